package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstrumentTransport_CountsRequests(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	before := testutil.ToFloat64(remoteRequestsTotal.WithLabelValues("204", "get"))

	client := &http.Client{Transport: InstrumentTransport(nil)}
	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	_ = resp.Body.Close()

	after := testutil.ToFloat64(remoteRequestsTotal.WithLabelValues("204", "get"))
	assert.Equal(t, before+1, after)
}

func TestObserveHelpers(t *testing.T) {
	ObserveCacheLookup("Trades", "hit")
	ObserveMutation("Tags", "create", "committed")
	ObserveSessionRefresh("ok")

	assert.GreaterOrEqual(t, testutil.ToFloat64(cacheLookupsTotal.WithLabelValues("Trades", "hit")), 1.0)
	assert.GreaterOrEqual(t, testutil.ToFloat64(mutationsTotal.WithLabelValues("Tags", "create", "committed")), 1.0)
	assert.GreaterOrEqual(t, testutil.ToFloat64(sessionRefreshesTotal.WithLabelValues("ok")), 1.0)
}

func TestHandler_ServesMetrics(t *testing.T) {
	ObserveSessionRefresh("failed")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), "tradebook_session_refreshes_total")
}
