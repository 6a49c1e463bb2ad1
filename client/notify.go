package client

import (
	"log/slog"
	"net/http"

	"github.com/glaciation-heu/sap-uc3/api/httpserver"
	"github.com/glaciation-heu/sap-uc3/coordinator"
	"github.com/go-chi/chi/v5"
)

// NotifyHandler receives result notifications for an output party.
type NotifyHandler struct {
	onResult func(coordinator.ExecutionResult)
	log      *slog.Logger
}

// NewNotifyHandler calls onResult for every accepted notification.
func NewNotifyHandler(onResult func(coordinator.ExecutionResult), log *slog.Logger) *NotifyHandler {
	return &NotifyHandler{onResult: onResult, log: log}
}

// RegisterRoutes mounts PUT /notify.
func (h *NotifyHandler) RegisterRoutes(r chi.Router) {
	r.Put("/notify", h.handleNotify)
}

// handleNotify accepts successful results only, failures are rejected with 422.
func (h *NotifyHandler) handleNotify(w http.ResponseWriter, req *http.Request) {
	var result coordinator.ExecutionResult
	if err := httpserver.DecodeJSON(req, &result); err != nil {
		httpserver.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if result.Code != http.StatusOK {
		h.log.Warn("Computation failed", "collaboration", result.CollaborationID, "message", result.Message)
		httpserver.WriteError(w, http.StatusUnprocessableEntity, "not waiting for a notification")
		return
	}

	h.log.Info("Result notification received", "collaboration", result.CollaborationID)
	if h.onResult != nil {
		h.onResult(result)
	}
	w.WriteHeader(http.StatusAccepted)
}
