package services

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/glaciation-heu/sap-uc3/api/httpserver"
	"github.com/glaciation-heu/sap-uc3/coordinator"
	"github.com/glaciation-heu/sap-uc3/testutil"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = 3 * time.Second
	tick    = 10 * time.Millisecond
)

func setupCoordinatorAPI(t *testing.T, engine coordinator.ComputationEngine) chi.Router {
	t.Helper()

	log := testutil.DiscardLogger()
	orch := coordinator.NewOrchestrator(coordinator.NewInMemoryStore(), engine, coordinator.NopNotifier{}, log, coordinator.DefaultConfig())
	orch.Start(context.Background())
	t.Cleanup(orch.Stop)

	r := chi.NewRouter()
	NewCoordinatorAPI(orch, log).RegisterRoutes(r)
	return r
}

func doRequest(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func createCollaboration(t *testing.T, r http.Handler, parties int, cfg *coordinator.ProviderConfig) *coordinator.Collaboration {
	t.Helper()
	if cfg == nil {
		cfg = testutil.NewTestProviderConfig()
	}
	rec := doRequest(t, r, http.MethodPost, "/collaboration", CreateCollaborationRequest{
		Name:            "demo",
		MPCProgram:      []byte("listen_for_clients(15000)\n"),
		CSConfig:        cfg,
		CSVHeaderLine:   "age",
		NumberOfParties: parties,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var collab coordinator.Collaboration
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&collab))
	return &collab
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) httpserver.ErrorResponse {
	t.Helper()
	var er httpserver.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&er))
	return er
}

func TestCoordinatorAPI_CreateAndList(t *testing.T) {
	r := setupCoordinatorAPI(t, testutil.NewStubEngine("r"))

	collab := createCollaboration(t, r, 2, nil)
	assert.Equal(t, "demo", collab.Name)
	assert.Equal(t, 2, collab.ParticipantCount)
	assert.Equal(t, "age", collab.InputSchema)
	assert.Equal(t, []byte("listen_for_clients(15000)\n"), collab.Program)

	rec := doRequest(t, r, http.MethodGet, "/collaboration", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []coordinator.Collaboration
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	require.Len(t, list, 1)
	assert.Equal(t, collab.ID, list[0].ID)

	rec = doRequest(t, r, http.MethodGet, "/collaboration/"+itoa(collab.ID)+"/compute_config", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var cfg coordinator.ProviderConfig
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&cfg))
	assert.Len(t, cfg.Providers, 2)
}

func TestCoordinatorAPI_EmptyListIsArray(t *testing.T) {
	r := setupCoordinatorAPI(t, testutil.NewStubEngine("r"))
	rec := doRequest(t, r, http.MethodGet, "/collaboration", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestCoordinatorAPI_CreateMultipart(t *testing.T) {
	r := setupCoordinatorAPI(t, testutil.NewStubEngine("r"))

	cfg, err := json.Marshal(testutil.NewTestProviderConfig())
	require.NoError(t, err)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("name", "multipart"))
	require.NoError(t, mw.WriteField("csv_header_line", "data"))
	require.NoError(t, mw.WriteField("number_of_parties", "1"))
	fw, err := mw.CreateFormFile("mpc_program", "mpc_program")
	require.NoError(t, err)
	_, err = fw.Write([]byte("print_ln('hi')"))
	require.NoError(t, err)
	fw, err = mw.CreateFormFile("cs_config", "cs_config")
	require.NoError(t, err)
	_, err = fw.Write(cfg)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/collaboration", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var collab coordinator.Collaboration
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&collab))
	assert.Equal(t, "multipart", collab.Name)
	assert.Equal(t, []byte("print_ln('hi')"), collab.Program)
	assert.Equal(t, 1, collab.ParticipantCount)
}

func TestCoordinatorAPI_CreateValidation(t *testing.T) {
	r := setupCoordinatorAPI(t, testutil.NewStubEngine("r"))

	rec := doRequest(t, r, http.MethodPost, "/collaboration", CreateCollaborationRequest{
		Name:            "no parties",
		MPCProgram:      []byte("x"),
		CSConfig:        testutil.NewTestProviderConfig(),
		NumberOfParties: 0,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, http.StatusUnprocessableEntity, decodeError(t, rec).Code)

	req := httptest.NewRequest(http.MethodPost, "/collaboration", bytes.NewReader([]byte("{")))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCoordinatorAPI_Registration(t *testing.T) {
	r := setupCoordinatorAPI(t, testutil.NewStubEngine("r"))
	collab := createCollaboration(t, r, 2, nil)
	base := "/collaboration/" + itoa(collab.ID)

	rec := doRequest(t, r, http.MethodPost, base+"/register-input-party/1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var p coordinator.Participation
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&p))
	assert.Equal(t, collab.ID, p.CollaborationID)
	assert.Equal(t, int64(1), p.PartyID)

	rec = doRequest(t, r, http.MethodPost, base+"/register-input-party/1", nil)
	assert.Equal(t, http.StatusAlreadyReported, rec.Code)

	rec = doRequest(t, r, http.MethodPost, "/collaboration/999/register-input-party/1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, r, http.MethodPost, base+"/register-input-party/abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, r, http.MethodGet, base+"/input-parties", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var parties []coordinator.Participation
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&parties))
	assert.Len(t, parties, 1)

	rec = doRequest(t, r, http.MethodDelete, base+"/register-input-party/1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = doRequest(t, r, http.MethodDelete, base+"/register-input-party/1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCoordinatorAPI_OutputParty(t *testing.T) {
	r := setupCoordinatorAPI(t, testutil.NewStubEngine("r"))
	collab := createCollaboration(t, r, 1, nil)
	base := "/collaboration/" + itoa(collab.ID)

	rec := doRequest(t, r, http.MethodPost, base+"/register-output-party/5", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, r, http.MethodPost, base+"/register-output-party/5?partyClientEndpoint=http%3A%2F%2Fout.test", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, r, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got coordinator.Collaboration
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, []string{"http://out.test"}, got.OutputParties)
}

func TestCoordinatorAPI_UploadAndResult(t *testing.T) {
	engine := testutil.NewStubEngine("result-1")
	engine.Block = make(chan struct{})
	r := setupCoordinatorAPI(t, engine)
	collab := createCollaboration(t, r, 1, nil)
	base := "/collaboration/" + itoa(collab.ID)

	rec := doRequest(t, r, http.MethodGet, base+"/result_ids", nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, http.StatusConflict, decodeError(t, rec).Code)

	rec = doRequest(t, r, http.MethodPost, base+"/confirm-upload/1", []string{"s1"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	require.Equal(t, http.StatusOK, doRequest(t, r, http.MethodPost, base+"/register-input-party/1", nil).Code)

	rec = doRequest(t, r, http.MethodPost, base+"/confirm-upload/1", []string{})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = doRequest(t, r, http.MethodPost, base+"/confirm-upload/1", []string{"s1"})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = doRequest(t, r, http.MethodPost, base+"/confirm-upload/1", []string{"s2"})
	assert.Equal(t, http.StatusAlreadyReported, rec.Code)

	// Withdrawing after the upload is rejected.
	rec = doRequest(t, r, http.MethodDelete, base+"/register-input-party/1", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doRequest(t, r, http.MethodGet, base+"/result_ids", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	close(engine.Block)
	require.Eventually(t, func() bool {
		return doRequest(t, r, http.MethodGet, base+"/result_ids", nil).Code == http.StatusOK
	}, waitFor, tick)

	rec = doRequest(t, r, http.MethodGet, base+"/result_ids", nil)
	assert.JSONEq(t, `["result-1"]`, rec.Body.String())
}

func TestCoordinatorAPI_FailedExecution(t *testing.T) {
	r := setupCoordinatorAPI(t, testutil.NewFailingEngine("boom"))
	collab := createCollaboration(t, r, 1, nil)
	base := "/collaboration/" + itoa(collab.ID)

	require.Equal(t, http.StatusOK, doRequest(t, r, http.MethodPost, base+"/register-input-party/1", nil).Code)
	require.Equal(t, http.StatusOK, doRequest(t, r, http.MethodPost, base+"/confirm-upload/1", []string{"s1"}).Code)

	require.Eventually(t, func() bool {
		return doRequest(t, r, http.MethodGet, base+"/result_ids", nil).Code == http.StatusInternalServerError
	}, waitFor, tick)

	er := decodeError(t, doRequest(t, r, http.MethodGet, base+"/result_ids", nil))
	assert.Equal(t, http.StatusInternalServerError, er.Code)
	assert.Equal(t, "MPC execution failed: boom", er.Message)
}

func TestCoordinatorAPI_Delete(t *testing.T) {
	r := setupCoordinatorAPI(t, testutil.NewStubEngine("r"))
	collab := createCollaboration(t, r, 1, nil)
	base := "/collaboration/" + itoa(collab.ID)

	assert.Equal(t, http.StatusOK, doRequest(t, r, http.MethodDelete, base, nil).Code)
	assert.Equal(t, http.StatusNotFound, doRequest(t, r, http.MethodDelete, base, nil).Code)
	assert.Equal(t, http.StatusNotFound, doRequest(t, r, http.MethodGet, base+"/result_ids", nil).Code)
	assert.Equal(t, http.StatusNotFound, doRequest(t, r, http.MethodGet, base+"/compute_config", nil).Code)
}

func TestCoordinatorAPI_CORS(t *testing.T) {
	r := setupCoordinatorAPI(t, testutil.NewStubEngine("r"))

	req := httptest.NewRequest(http.MethodOptions, "/collaboration", nil)
	req.Header.Set("Origin", "http://ui.test")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
