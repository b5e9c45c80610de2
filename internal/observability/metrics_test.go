package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordEstimate(t *testing.T) {
	before := testutil.ToFloat64(estimatesTotal.WithLabelValues("test"))
	RecordEstimate("test", 42)
	after := testutil.ToFloat64(estimatesTotal.WithLabelValues("test"))
	assert.Equal(t, before+1, after)
}

func TestLiveSessionGauge(t *testing.T) {
	before := testutil.ToFloat64(liveSessions)
	LiveSessionOpened()
	LiveSessionOpened()
	LiveSessionClosed()
	assert.Equal(t, before+1, testutil.ToFloat64(liveSessions))
	LiveSessionClosed()
}

func TestRecordSnapshotRun(t *testing.T) {
	at := time.Unix(1_800_000_000, 0)
	RecordSnapshotRun(true, at)
	assert.Equal(t, float64(at.Unix()), testutil.ToFloat64(snapshotLastRun))

	before := testutil.ToFloat64(snapshotRuns.WithLabelValues("error"))
	RecordSnapshotRun(false, time.Now())
	assert.Equal(t, before+1, testutil.ToFloat64(snapshotRuns.WithLabelValues("error")))
}

func TestHTTPMetricsUsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(HTTPMetrics)
	r.Get("/api/items/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/items/7", nil)
	r.ServeHTTP(httptest.NewRecorder(), req)

	count := testutil.CollectAndCount(httpDuration, "ecotrace_http_request_duration_seconds")
	assert.GreaterOrEqual(t, count, 1)
}
