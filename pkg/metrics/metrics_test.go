package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegistry(t *testing.T) {
	if Registry == nil {
		t.Error("Registry should not be nil")
	}

	if Registry != prometheus.DefaultRegisterer {
		t.Error("Registry should be the default Prometheus registerer")
	}
}

func TestObserveRequest(t *testing.T) {
	before := testutil.ToFloat64(HTTPRequests.WithLabelValues("/v1/bodies", "200"))

	ObserveRequest("/v1/bodies", 200, 20*time.Millisecond)

	after := testutil.ToFloat64(HTTPRequests.WithLabelValues("/v1/bodies", "200"))
	if after != before+1 {
		t.Errorf("requests counter = %v, want %v", after, before+1)
	}

	ObserveRequest("", 404, time.Millisecond)
	if got := testutil.ToFloat64(HTTPRequests.WithLabelValues("unmatched", "404")); got < 1 {
		t.Errorf("unmatched counter = %v, want >= 1", got)
	}
}

func TestHandler(t *testing.T) {
	ObserveRequest("/health", 200, time.Millisecond)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "astro_http_requests_total") {
		t.Error("exposition missing astro_http_requests_total")
	}
}
