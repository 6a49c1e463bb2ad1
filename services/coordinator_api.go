package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/glaciation-heu/sap-uc3/api/httpserver"
	"github.com/glaciation-heu/sap-uc3/coordinator"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
)

// CreateCollaborationRequest is the JSON body of POST /collaboration.
// MPCProgram is base64 encoded.
type CreateCollaborationRequest struct {
	Name            string                      `json:"name"`
	MPCProgram      []byte                      `json:"mpcProgram"`
	CSConfig        *coordinator.ProviderConfig `json:"csConfig"`
	CSVHeaderLine   string                      `json:"csvHeaderLine"`
	NumberOfParties int                         `json:"numberOfParties"`
}

// CoordinatorAPI exposes the collaboration orchestrator over HTTP.
type CoordinatorAPI struct {
	orch *coordinator.Orchestrator
	log  *slog.Logger
}

// NewCoordinatorAPI creates the coordinator HTTP handlers.
func NewCoordinatorAPI(orch *coordinator.Orchestrator, log *slog.Logger) *CoordinatorAPI {
	return &CoordinatorAPI{orch: orch, log: log}
}

// RegisterRoutes mounts the collaboration routes.
func (a *CoordinatorAPI) RegisterRoutes(r chi.Router) {
	r.Route("/collaboration", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))

		r.Post("/", a.handleCreateCollaboration)
		r.Get("/", a.handleListCollaborations)
		r.Get("/{id}", a.handleGetCollaboration)
		r.Delete("/{id}", a.handleDeleteCollaboration)
		r.Post("/{id}/register-input-party/{party}", a.handleRegisterInputParty)
		r.Delete("/{id}/register-input-party/{party}", a.handleUnregisterInputParty)
		r.Post("/{id}/register-output-party/{party}", a.handleRegisterOutputParty)
		r.Get("/{id}/input-parties", a.handleInputParties)
		r.Post("/{id}/confirm-upload/{party}", a.handleConfirmUpload)
		r.Get("/{id}/result_ids", a.handleResultIDs)
		r.Get("/{id}/compute_config", a.handleComputeConfig)
	})
}

func (a *CoordinatorAPI) handleCreateCollaboration(w http.ResponseWriter, req *http.Request) {
	body, err := decodeCreateCollaboration(req)
	if err != nil {
		httpserver.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	collab, err := a.orch.CreateCollaboration(req.Context(), &coordinator.NewCollaboration{
		Name:             body.Name,
		Program:          body.MPCProgram,
		InputSchema:      body.CSVHeaderLine,
		ParticipantCount: body.NumberOfParties,
		Config:           body.CSConfig,
	})
	if err != nil {
		writeError(w, a.log, err)
		return
	}
	httpserver.WriteJSON(w, http.StatusOK, collab)
}

// decodeCreateCollaboration accepts a JSON body or a multipart form with the
// fields name, mpc_program, cs_config, csv_header_line and number_of_parties.
func decodeCreateCollaboration(req *http.Request) (*CreateCollaborationRequest, error) {
	mediaType, _, _ := mime.ParseMediaType(req.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		var body CreateCollaborationRequest
		if err := httpserver.DecodeJSON(req, &body); err != nil {
			return nil, err
		}
		return &body, nil
	}

	if err := req.ParseMultipartForm(httpserver.MaxBodySize); err != nil {
		return nil, fmt.Errorf("invalid multipart form: %w", err)
	}
	form := req.MultipartForm

	body := &CreateCollaborationRequest{
		Name:          formValue(form, "name"),
		CSVHeaderLine: formValue(form, "csv_header_line"),
	}
	if n := formValue(form, "number_of_parties"); n != "" {
		parties, err := strconv.Atoi(n)
		if err != nil {
			return nil, fmt.Errorf("invalid number_of_parties %q", n)
		}
		body.NumberOfParties = parties
	}

	program, err := formFile(form, "mpc_program")
	if err != nil {
		return nil, err
	}
	body.MPCProgram = program

	rawConfig, err := formFile(form, "cs_config")
	if err != nil {
		return nil, err
	}
	if len(rawConfig) > 0 {
		var cfg coordinator.ProviderConfig
		if err := json.Unmarshal(rawConfig, &cfg); err != nil {
			return nil, fmt.Errorf("unable to decode computation service config: %w", err)
		}
		body.CSConfig = &cfg
	}
	return body, nil
}

func formValue(form *multipart.Form, key string) string {
	if v := form.Value[key]; len(v) > 0 {
		return v[0]
	}
	return ""
}

// formFile reads an uploaded file, falling back to a plain field of the same name.
func formFile(form *multipart.Form, key string) ([]byte, error) {
	files := form.File[key]
	if len(files) == 0 {
		return []byte(formValue(form, key)), nil
	}
	f, err := files[0].Open()
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", key, err)
	}
	defer f.Close()
	return io.ReadAll(f)
}

func (a *CoordinatorAPI) handleListCollaborations(w http.ResponseWriter, req *http.Request) {
	collabs, err := a.orch.ListCollaborations(req.Context())
	if err != nil {
		writeError(w, a.log, err)
		return
	}
	if collabs == nil {
		collabs = []*coordinator.Collaboration{}
	}
	httpserver.WriteJSON(w, http.StatusOK, collabs)
}

func (a *CoordinatorAPI) handleGetCollaboration(w http.ResponseWriter, req *http.Request) {
	collabID, ok := pathInt(w, req, "id")
	if !ok {
		return
	}
	collab, err := a.orch.GetCollaboration(req.Context(), collabID)
	if err != nil {
		writeError(w, a.log, err)
		return
	}
	httpserver.WriteJSON(w, http.StatusOK, collab)
}

func (a *CoordinatorAPI) handleDeleteCollaboration(w http.ResponseWriter, req *http.Request) {
	collabID, ok := pathInt(w, req, "id")
	if !ok {
		return
	}
	if err := a.orch.DeleteCollaboration(req.Context(), collabID); err != nil {
		writeError(w, a.log, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (a *CoordinatorAPI) handleRegisterInputParty(w http.ResponseWriter, req *http.Request) {
	collabID, partyID, ok := collabAndParty(w, req)
	if !ok {
		return
	}

	p, err := a.orch.RegisterInputParty(req.Context(), collabID, partyID)
	switch {
	case errors.Is(err, coordinator.ErrDuplicateParticipant):
		httpserver.WriteJSON(w, http.StatusAlreadyReported, p)
	case err != nil:
		writeError(w, a.log, err)
	default:
		httpserver.WriteJSON(w, http.StatusOK, p)
	}
}

func (a *CoordinatorAPI) handleUnregisterInputParty(w http.ResponseWriter, req *http.Request) {
	collabID, partyID, ok := collabAndParty(w, req)
	if !ok {
		return
	}
	if err := a.orch.UnregisterInputParty(req.Context(), collabID, partyID); err != nil {
		writeError(w, a.log, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (a *CoordinatorAPI) handleRegisterOutputParty(w http.ResponseWriter, req *http.Request) {
	collabID, partyID, ok := collabAndParty(w, req)
	if !ok {
		return
	}
	endpoint := strings.TrimSpace(req.URL.Query().Get("partyClientEndpoint"))
	if endpoint == "" {
		httpserver.WriteError(w, http.StatusBadRequest, "partyClientEndpoint is required")
		return
	}
	if err := a.orch.RegisterOutputParty(req.Context(), collabID, partyID, endpoint); err != nil {
		writeError(w, a.log, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (a *CoordinatorAPI) handleInputParties(w http.ResponseWriter, req *http.Request) {
	collabID, ok := pathInt(w, req, "id")
	if !ok {
		return
	}
	parties, err := a.orch.ListInputParties(req.Context(), collabID)
	if err != nil {
		writeError(w, a.log, err)
		return
	}
	if parties == nil {
		parties = []*coordinator.Participation{}
	}
	httpserver.WriteJSON(w, http.StatusOK, parties)
}

func (a *CoordinatorAPI) handleConfirmUpload(w http.ResponseWriter, req *http.Request) {
	collabID, partyID, ok := collabAndParty(w, req)
	if !ok {
		return
	}

	var shareIDs []string
	if err := httpserver.DecodeJSON(req, &shareIDs); err != nil {
		httpserver.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	p, err := a.orch.ConfirmUpload(req.Context(), collabID, partyID, shareIDs)
	switch {
	case errors.Is(err, coordinator.ErrAlreadyUploaded):
		httpserver.WriteError(w, http.StatusAlreadyReported, err.Error())
	case err != nil:
		writeError(w, a.log, err)
	default:
		httpserver.WriteJSON(w, http.StatusOK, p)
	}
}

func (a *CoordinatorAPI) handleResultIDs(w http.ResponseWriter, req *http.Request) {
	collabID, ok := pathInt(w, req, "id")
	if !ok {
		return
	}
	ids, err := a.orch.ResultIDs(req.Context(), collabID)
	if err != nil {
		writeError(w, a.log, err)
		return
	}
	httpserver.WriteJSON(w, http.StatusOK, ids)
}

func (a *CoordinatorAPI) handleComputeConfig(w http.ResponseWriter, req *http.Request) {
	collabID, ok := pathInt(w, req, "id")
	if !ok {
		return
	}
	cfg, err := a.orch.ComputeConfig(req.Context(), collabID)
	if err != nil {
		writeError(w, a.log, err)
		return
	}
	httpserver.WriteJSON(w, http.StatusOK, cfg)
}

func pathInt(w http.ResponseWriter, req *http.Request, key string) (int64, bool) {
	raw := chi.URLParam(req, key)
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		httpserver.WriteError(w, http.StatusBadRequest, fmt.Sprintf("invalid %s %q", key, raw))
		return 0, false
	}
	return v, true
}

func collabAndParty(w http.ResponseWriter, req *http.Request) (int64, int64, bool) {
	collabID, ok := pathInt(w, req, "id")
	if !ok {
		return 0, 0, false
	}
	partyID, ok := pathInt(w, req, "party")
	if !ok {
		return 0, 0, false
	}
	return collabID, partyID, true
}
