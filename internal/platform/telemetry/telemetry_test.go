package telemetry

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

// ---------------------------------------------------------------------------
// Config defaults
// ---------------------------------------------------------------------------

func TestTelemetryConfig_Defaults(t *testing.T) {
	tp := NewTelemetryProvider(TelemetryConfig{})

	res := tp.Resource()
	if res["service.name"] != "cds-dashboard" {
		t.Errorf("expected default service name, got %q", res["service.name"])
	}
	if res["service.version"] != "0.0.0" {
		t.Errorf("expected default version, got %q", res["service.version"])
	}
	if !tp.Enabled() {
		t.Error("expected metrics enabled by default")
	}
}

func TestNoop_WhenDisabled(t *testing.T) {
	tp := NewTelemetryProvider(TelemetryConfig{MetricsEnabled: BoolPtr(false)})

	e := echo.New()
	e.Use(tp.MetricsMiddleware())
	e.GET("/cds", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/cds", nil))
	tp.ObserveBackendCall(http.MethodGet, "/cds/services", "ok", time.Millisecond)

	if h := tp.GetLabeledHistogram(LabelsKey("GET", "/cds", "200")); h != nil {
		t.Error("expected no request histogram when disabled")
	}
	if n := tp.BackendCalls(http.MethodGet, "/cds/services", "ok"); n != 0 {
		t.Errorf("expected no backend calls when disabled, got %d", n)
	}
}

// ---------------------------------------------------------------------------
// MetricsMiddleware
// ---------------------------------------------------------------------------

func TestMetricsMiddleware_LabelsByRoutePattern(t *testing.T) {
	tp := NewTelemetryProvider(TelemetryConfig{})

	e := echo.New()
	e.Use(tp.MetricsMiddleware())
	e.GET("/imaging/mri/:id", func(c echo.Context) error {
		return c.String(http.StatusOK, "report")
	})

	for _, id := range []string{"r1", "r2"} {
		e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/imaging/mri/"+id, nil))
	}

	hist := tp.GetLabeledHistogram(LabelsKey("GET", "/imaging/mri/:id", "200"))
	if hist == nil {
		t.Fatal("expected histogram labeled by route pattern")
	}
	if hist.Count() != 2 {
		t.Fatalf("expected count=2, got %d", hist.Count())
	}
}

func TestMetricsMiddleware_ErrorStatus(t *testing.T) {
	tp := NewTelemetryProvider(TelemetryConfig{})

	e := echo.New()
	e.Use(tp.MetricsMiddleware())
	e.POST("/cds/intake/toggle/:factor", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusBadRequest, "unknown factor")
	})
	e.GET("/boom", func(c echo.Context) error {
		return errors.New("boom")
	})

	e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/cds/intake/toggle/coffee", nil))
	e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/boom", nil))

	if tp.GetLabeledHistogram(LabelsKey("POST", "/cds/intake/toggle/:factor", "400")) == nil {
		t.Error("expected the HTTP error code to label the request")
	}
	if tp.GetLabeledHistogram(LabelsKey("GET", "/boom", "500")) == nil {
		t.Error("expected a plain error to be labeled 500")
	}
}

func TestMetricsMiddleware_ActiveRequests(t *testing.T) {
	tp := NewTelemetryProvider(TelemetryConfig{})

	activeObserved := make(chan int64, 1)

	e := echo.New()
	e.Use(tp.MetricsMiddleware())
	e.GET("/synthetic", func(c echo.Context) error {
		activeObserved <- tp.GetGauge(gaugeActiveRequests)
		return c.String(http.StatusOK, "ok")
	})
	e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/synthetic", nil))

	if active := <-activeObserved; active != 1 {
		t.Fatalf("expected active_requests=1 during handling, got %d", active)
	}
	if val := tp.GetGauge(gaugeActiveRequests); val != 0 {
		t.Fatalf("expected active_requests=0 after request, got %d", val)
	}
}

// ---------------------------------------------------------------------------
// Backend calls and events
// ---------------------------------------------------------------------------

func TestObserveBackendCall(t *testing.T) {
	tp := NewTelemetryProvider(TelemetryConfig{})

	tp.ObserveBackendCall(http.MethodPost, "/cds/risk-prediction", "ok", 120*time.Millisecond)
	tp.ObserveBackendCall(http.MethodPost, "/cds/risk-prediction", "ok", 80*time.Millisecond)
	tp.ObserveBackendCall(http.MethodPost, "/cds/risk-prediction", "timeout", 30*time.Second)

	if n := tp.BackendCalls(http.MethodPost, "/cds/risk-prediction", "ok"); n != 2 {
		t.Errorf("expected 2 ok calls, got %d", n)
	}
	if n := tp.BackendCalls(http.MethodPost, "/cds/risk-prediction", "timeout"); n != 1 {
		t.Errorf("expected 1 timeout, got %d", n)
	}
	h := tp.backendDuration.get(LabelsKey(http.MethodPost, "/cds/risk-prediction", "ok"))
	if h == nil || h.Count() != 2 {
		t.Fatalf("expected latency histogram with 2 observations, got %v", h)
	}
	if h.Sum() < 0.19 || h.Sum() > 0.21 {
		t.Errorf("expected latency sum 0.2s, got %g", h.Sum())
	}
}

// ---------------------------------------------------------------------------
// PrometheusHandler
// ---------------------------------------------------------------------------

func TestPrometheusHandler_ValidFormat(t *testing.T) {
	tp := NewTelemetryProvider(TelemetryConfig{})

	e := echo.New()
	e.Use(tp.MetricsMiddleware())
	e.GET("/models", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.GET("/metrics", tp.PrometheusHandler())

	for i := 0; i < 3; i++ {
		e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/models", nil))
	}
	tp.ObserveBackendCall(http.MethodGet, "/ml-models/models", "server", 10*time.Millisecond)
	tp.ObserveEvent("export.created")

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get(echo.HeaderContentType); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("expected text/plain, got %q", ct)
	}

	body := rec.Body.String()
	for _, want := range []string{
		"# TYPE http_server_request_duration_seconds histogram",
		`http_server_request_duration_seconds_count{method="GET",route="/models",status_code="200"} 3`,
		`http_server_request_duration_seconds_bucket{method="GET",route="/models",status_code="200",le="+Inf"} 3`,
		"# TYPE http_server_active_requests gauge",
		"http_server_response_size_bytes_count",
		`cds_backend_requests_total{method="GET",endpoint="/ml-models/models",outcome="server"} 1`,
		`cds_backend_request_duration_seconds_count{method="GET",endpoint="/ml-models/models",outcome="server"} 1`,
		`cds_events_total{type="export.created"} 1`,
		"db_pool_active_connections 0",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected metrics output to contain %q, body:\n%s", want, body)
		}
	}
}

// ---------------------------------------------------------------------------
// Histogram
// ---------------------------------------------------------------------------

func TestHistogramBuckets_Observation(t *testing.T) {
	h := newHistogram([]float64{0.010, 0.025, 0.050, 0.100, 0.250, 0.500, 1.0, 2.5, 5.0, 10.0})

	h.Observe(0.005)
	h.Observe(0.015)
	h.Observe(3.0)
	h.Observe(60.0)

	if h.Count() != 4 {
		t.Fatalf("expected count=4, got %d", h.Count())
	}
	if h.bucketCounts[0] != 1 || h.bucketCounts[1] != 1 || h.bucketCounts[8] != 1 {
		t.Fatalf("unexpected bucket counts %v", h.bucketCounts)
	}
	cum := h.cumulativeBuckets()
	if cum[len(cum)-1] != 3 {
		t.Errorf("expected the value above every boundary only in +Inf, got last bucket %d", cum[len(cum)-1])
	}
}

func TestMetrics_ConcurrentSafe(t *testing.T) {
	tp := NewTelemetryProvider(TelemetryConfig{})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tp.ObserveBackendCall(http.MethodGet, "/patients/", "ok", time.Millisecond)
			tp.ObserveEvent("risk.predicted")
		}()
	}
	wg.Wait()

	if n := tp.BackendCalls(http.MethodGet, "/patients/", "ok"); n != 50 {
		t.Errorf("expected 50 calls, got %d", n)
	}
	if n := tp.events.get("risk.predicted"); n != 50 {
		t.Errorf("expected 50 events, got %d", n)
	}
}
