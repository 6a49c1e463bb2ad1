package services

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/glaciation-heu/sap-uc3/api/httpserver"
	"github.com/glaciation-heu/sap-uc3/protocol"
	"github.com/go-chi/chi/v5"
)

// NilResultID is the result secret id reported by the mock execution.
const NilResultID = "00000000-0000-0000-0000-000000000000"

// OutputOptions selects where the result of a computation is stored.
type OutputOptions struct {
	Type string `json:"type"`
}

// StartComputationPayload starts one computation on a provider. All
// providers of a computation receive the same GameID.
type StartComputationPayload struct {
	GameID        string        `json:"gameId"`
	AmphoraParams []string      `json:"amphoraParams"`
	SecretParams  []string      `json:"secretParams"`
	Output        OutputOptions `json:"output"`
	Code          string        `json:"code"`
}

// ComputationResponse lists the result secret ids of a computation.
type ComputationResponse struct {
	Response []string `json:"response"`
}

// ProviderAPIConfig configures the provider endpoints.
type ProviderAPIConfig struct {
	// ResultID is returned by every mock execution.
	ResultID string
	// ExecutionDelay simulates the runtime of a computation.
	ExecutionDelay time.Duration
}

// ProviderAPI serves the secret-share endpoints of every provider index
// together with a mock of the execution endpoint.
type ProviderAPI struct {
	engine *protocol.ShareEngine
	cfg    ProviderAPIConfig
	log    *slog.Logger
}

// NewProviderAPI creates the provider HTTP handlers on top of engine.
func NewProviderAPI(engine *protocol.ShareEngine, cfg ProviderAPIConfig, log *slog.Logger) *ProviderAPI {
	if cfg.ResultID == "" {
		cfg.ResultID = NilResultID
	}
	return &ProviderAPI{engine: engine, cfg: cfg, log: log}
}

// RegisterRoutes mounts the provider routes below /{vcp}.
func (p *ProviderAPI) RegisterRoutes(r chi.Router) {
	r.Route("/{vcp}", func(r chi.Router) {
		r.Get("/amphora/input-masks", p.handleInputMasks)
		r.Post("/amphora/masked-inputs", p.handleMaskedInput)
		r.Get("/amphora/secret-shares", p.handleListSecrets)
		r.Get("/amphora/secret-shares/{secretId}", p.handleSecretShare)
		r.Delete("/amphora/secret-shares/{secretId}", p.handleDeleteSecret)
		r.Post("/", p.handleExecute)
	})
}

func (p *ProviderAPI) handleInputMasks(w http.ResponseWriter, req *http.Request) {
	vcp, ok := p.provider(w, req)
	if !ok {
		return
	}

	requestID := req.URL.Query().Get("requestId")
	if requestID == "" {
		httpserver.WriteError(w, http.StatusBadRequest, "requestId is required")
		return
	}
	count, err := strconv.Atoi(req.URL.Query().Get("count"))
	if err != nil {
		httpserver.WriteError(w, http.StatusBadRequest, "count must be an integer")
		return
	}

	bundle, err := p.engine.InputMaskBundle(vcp, requestID, count)
	if err != nil {
		writeError(w, p.log, err)
		return
	}
	p.log.Debug("Input masks served", "vcp", vcp, "requestId", requestID, "count", count)
	httpserver.WriteJSON(w, http.StatusOK, bundle.DeliveryObject())
}

func (p *ProviderAPI) handleMaskedInput(w http.ResponseWriter, req *http.Request) {
	vcp, ok := p.provider(w, req)
	if !ok {
		return
	}

	var in protocol.MaskedInput
	if err := httpserver.DecodeJSON(req, &in); err != nil {
		httpserver.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if in.SecretID == "" {
		httpserver.WriteError(w, http.StatusBadRequest, "secretId is required")
		return
	}

	blocks, err := in.Blocks()
	if err != nil {
		writeError(w, p.log, err)
		return
	}
	if err := p.engine.ApplyEncodedMaskedInput(vcp, in.SecretID, blocks); err != nil {
		writeError(w, p.log, err)
		return
	}

	p.log.Info("Masked input applied", "vcp", vcp, "secretId", in.SecretID, "blocks", len(blocks))
	httpserver.WriteJSON(w, http.StatusCreated, in.SecretID)
}

func (p *ProviderAPI) handleListSecrets(w http.ResponseWriter, req *http.Request) {
	if _, ok := p.provider(w, req); !ok {
		return
	}
	httpserver.WriteJSON(w, http.StatusOK, p.engine.SecretIDs())
}

func (p *ProviderAPI) handleSecretShare(w http.ResponseWriter, req *http.Request) {
	vcp, ok := p.provider(w, req)
	if !ok {
		return
	}

	secretID := chi.URLParam(req, "secretId")
	requestID := req.URL.Query().Get("requestId")
	if requestID == "" {
		httpserver.WriteError(w, http.StatusBadRequest, "requestId is required")
		return
	}

	bundle, err := p.engine.ShareBundle(vcp, secretID, requestID)
	if err != nil {
		writeError(w, p.log, err)
		return
	}
	httpserver.WriteJSON(w, http.StatusOK, protocol.NewSecretShareResponse(secretID, bundle))
}

func (p *ProviderAPI) handleDeleteSecret(w http.ResponseWriter, req *http.Request) {
	if _, ok := p.provider(w, req); !ok {
		return
	}
	secretID := chi.URLParam(req, "secretId")
	p.engine.DeleteSecret(secretID)
	p.log.Info("Secret deleted", "secretId", secretID)
	w.WriteHeader(http.StatusOK)
}

func (p *ProviderAPI) handleExecute(w http.ResponseWriter, req *http.Request) {
	vcp, ok := p.provider(w, req)
	if !ok {
		return
	}

	var payload StartComputationPayload
	if err := httpserver.DecodeJSON(req, &payload); err != nil {
		httpserver.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	for _, id := range payload.AmphoraParams {
		if _, ok := p.engine.SecretShares(vcp, id); !ok {
			httpserver.WriteError(w, http.StatusUnprocessableEntity, fmt.Sprintf("unknown secret %s", id))
			return
		}
	}

	p.log.Info("Execution requested", "vcp", vcp, "gameId", payload.GameID, "inputs", len(payload.AmphoraParams))
	if p.cfg.ExecutionDelay > 0 {
		select {
		case <-time.After(p.cfg.ExecutionDelay):
		case <-req.Context().Done():
			return
		}
	}
	httpserver.WriteJSON(w, http.StatusOK, ComputationResponse{Response: []string{p.cfg.ResultID}})
}

func (p *ProviderAPI) provider(w http.ResponseWriter, req *http.Request) (int, bool) {
	raw := chi.URLParam(req, "vcp")
	vcp, err := strconv.Atoi(raw)
	if err != nil {
		httpserver.WriteError(w, http.StatusNotFound, fmt.Sprintf("unknown provider %q", raw))
		return 0, false
	}
	if vcp < 0 || vcp >= protocol.NumProviders {
		writeError(w, p.log, fmt.Errorf("%w: %d", protocol.ErrInvalidProvider, vcp))
		return 0, false
	}
	return vcp, true
}
