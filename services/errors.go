package services

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/glaciation-heu/sap-uc3/api/httpserver"
	"github.com/glaciation-heu/sap-uc3/coordinator"
	"github.com/glaciation-heu/sap-uc3/crypto"
	"github.com/glaciation-heu/sap-uc3/protocol"
)

// statusOf maps an error to the HTTP status it is reported with.
func statusOf(err error) int {
	switch {
	case errors.Is(err, protocol.ErrInvalidProvider):
		return http.StatusNotFound
	case errors.Is(err, protocol.ErrInvalidCount):
		return http.StatusBadRequest
	case errors.Is(err, protocol.ErrMasksNotFound),
		errors.Is(err, protocol.ErrShapeMismatch),
		errors.Is(err, crypto.ErrMalformedInput):
		return http.StatusUnprocessableEntity
	}

	switch coordinator.KindOf(err) {
	case coordinator.KindNotFound:
		return http.StatusNotFound
	case coordinator.KindConflict:
		return http.StatusConflict
	case coordinator.KindUnprocessable:
		return http.StatusUnprocessableEntity
	case coordinator.KindAlreadyReported:
		return http.StatusAlreadyReported
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as a JSON error. Internal errors are logged, their
// details stay in the log.
func writeError(w http.ResponseWriter, log *slog.Logger, err error) {
	status := statusOf(err)
	message := err.Error()

	var execErr *coordinator.ExecutionFailedError
	if status == http.StatusInternalServerError && !errors.As(err, &execErr) {
		log.Error("request failed", "err", err)
		message = http.StatusText(status)
	}
	httpserver.WriteError(w, status, message)
}
