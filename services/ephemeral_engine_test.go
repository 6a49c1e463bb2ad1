package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/glaciation-heu/sap-uc3/api/httpserver"
	"github.com/glaciation-heu/sap-uc3/coordinator"
	"github.com/glaciation-heu/sap-uc3/testutil"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// executionStub answers POST /{vcp}/ with the result id configured per provider.
type executionStub struct {
	mu       sync.Mutex
	results  map[string]string
	payloads []StartComputationPayload
}

func newExecutionStub(t *testing.T, results map[string]string) (*executionStub, string) {
	t.Helper()
	stub := &executionStub{results: results}

	r := chi.NewRouter()
	r.Post("/{vcp}/", func(w http.ResponseWriter, req *http.Request) {
		var p StartComputationPayload
		if err := json.NewDecoder(req.Body).Decode(&p); err != nil {
			httpserver.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		stub.mu.Lock()
		stub.payloads = append(stub.payloads, p)
		stub.mu.Unlock()

		id, ok := stub.results[chi.URLParam(req, "vcp")]
		if !ok {
			httpserver.WriteError(w, http.StatusInternalServerError, "compilation failed")
			return
		}
		httpserver.WriteJSON(w, http.StatusOK, ComputationResponse{Response: []string{id}})
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return stub, srv.URL
}

func TestEphemeralEngine_Success(t *testing.T) {
	stub, url := newExecutionStub(t, map[string]string{"0": "res", "1": "res"})
	engine := NewEphemeralEngine(0, testutil.DiscardLogger())
	cfg := testutil.NewTestProviderConfig(testutil.WithProviderURLs(url, url))

	id, err := engine.Execute(context.Background(), []byte("code"), cfg, []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, "res", id)

	require.Len(t, stub.payloads, 2)
	for _, p := range stub.payloads {
		assert.Equal(t, stub.payloads[0].GameID, p.GameID)
		assert.Equal(t, []string{"a", "b"}, p.AmphoraParams)
		assert.Equal(t, []string{}, p.SecretParams)
		assert.Equal(t, OutputTypeAmphoraSecret, p.Output.Type)
		assert.Equal(t, "code", p.Code)
	}
	assert.NotEmpty(t, stub.payloads[0].GameID)
}

func TestEphemeralEngine_Disagreement(t *testing.T) {
	_, url := newExecutionStub(t, map[string]string{"0": "res-a", "1": "res-b"})
	engine := NewEphemeralEngine(0, testutil.DiscardLogger())
	cfg := testutil.NewTestProviderConfig(testutil.WithProviderURLs(url, url))

	_, err := engine.Execute(context.Background(), []byte("code"), cfg, []string{"a"})
	require.ErrorIs(t, err, errResultMismatch)
}

func TestEphemeralEngine_ProviderFailure(t *testing.T) {
	_, url := newExecutionStub(t, map[string]string{"0": "res"})
	engine := NewEphemeralEngine(0, testutil.DiscardLogger())
	cfg := testutil.NewTestProviderConfig(testutil.WithProviderURLs(url, url))

	_, err := engine.Execute(context.Background(), []byte("code"), cfg, []string{"a"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "compilation failed")
}

func TestEphemeralEngine_NoProviders(t *testing.T) {
	engine := NewEphemeralEngine(0, testutil.DiscardLogger())
	_, err := engine.Execute(context.Background(), nil, &coordinator.ProviderConfig{}, nil)
	require.Error(t, err)
}

func TestEphemeralEngine_AgainstProviderAPI(t *testing.T) {
	r, _ := setupProviderAPI(t, ProviderAPIConfig{ResultID: "result-secret"})
	shareValues(t, r, "in", 1)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	engine := NewEphemeralEngine(0, testutil.DiscardLogger())
	cfg := testutil.NewTestProviderConfig(testutil.WithProviderURLs(srv.URL, srv.URL))

	id, err := engine.Execute(context.Background(), []byte("code"), cfg, []string{"in"})
	require.NoError(t, err)
	assert.Equal(t, "result-secret", id)

	_, err = engine.Execute(context.Background(), []byte("code"), cfg, []string{"unknown"})
	require.Error(t, err)
}
