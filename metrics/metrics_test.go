package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestCountersExposed(t *testing.T) {
	before := testutil.ToFloat64(Executions.WithLabelValues(OutcomeSuccess))
	Executions.WithLabelValues(OutcomeSuccess).Inc()
	require.Equal(t, before+1, testutil.ToFloat64(Executions.WithLabelValues(OutcomeSuccess)))

	m, err := New(":0")
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	m.srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, strings.Contains(rec.Body.String(), "sap_executions_total"))
}
