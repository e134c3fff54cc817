package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ecds/dashboard/internal/config"
	"github.com/ecds/dashboard/internal/platform/apiclient"
	"github.com/ecds/dashboard/internal/platform/blobstore"
	"github.com/ecds/dashboard/internal/platform/events"
	"github.com/ecds/dashboard/internal/platform/middleware"
	"github.com/ecds/dashboard/internal/platform/session"
	"github.com/ecds/dashboard/internal/platform/telemetry"
)

func testServer(t *testing.T, backend http.Handler) *echo.Echo {
	t.Helper()
	api := httptest.NewServer(backend)
	t.Cleanup(api.Close)

	cfg := &config.Config{Env: "test", BodyLimit: "1M", RequestTimeout: 30 * time.Second}
	m, err := session.NewManager(session.NewMemoryStore(), []byte("main-test-secret-main-test-secret"), 0)
	if err != nil {
		t.Fatalf("session manager: %v", err)
	}
	tp := telemetry.NewTelemetryProvider(telemetry.TelemetryConfig{})
	d := &deps{
		metrics:  tp,
		client:   apiclient.New(api.URL, apiclient.WithObserver(tp)),
		sessions: m,
		exports:  blobstore.NewInMemoryBlobStore(),
		events:   events.Nop{},
		limiter:  middleware.NewRateLimiter(middleware.DefaultRateLimitConfig()),
	}
	e, err := newServer(cfg, zerolog.Nop(), d)
	if err != nil {
		t.Fatalf("newServer: %v", err)
	}
	return e
}

func okBackend() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/health" {
			_, _ = w.Write([]byte(`{"status":"healthy"}`))
			return
		}
		_, _ = w.Write([]byte(`[]`))
	})
}

func get(e *echo.Echo, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestServer_Health(t *testing.T) {
	e := testServer(t, okBackend())

	rec := get(e, "/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("expected status ok, got %q", body["status"])
	}
}

func TestServer_BackendHealth(t *testing.T) {
	e := testServer(t, okBackend())
	if rec := get(e, "/health/backend"); rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	down := testServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	rec := get(down, "/health/backend")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "unreachable") {
		t.Errorf("expected unreachable status, got %s", rec.Body.String())
	}
}

func TestServer_MetricsCountBackendCalls(t *testing.T) {
	e := testServer(t, okBackend())

	if rec := get(e, "/health/backend"); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	rec := get(e, "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `cds_backend_requests_total{method="GET",endpoint="/health",outcome="ok"} 1`) {
		t.Errorf("expected backend health call in metrics, got:\n%s", body)
	}
	if !strings.Contains(body, `route="/health/backend",status_code="200"`) {
		t.Errorf("expected request metrics for /health/backend, got:\n%s", body)
	}
}

func TestServer_NoDBHealthWithoutPool(t *testing.T) {
	e := testServer(t, okBackend())
	if rec := get(e, "/health/db"); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 without a pool, got %d", rec.Code)
	}
}

func TestServer_PageGetsCookiesAndHeaders(t *testing.T) {
	e := testServer(t, okBackend())

	rec := get(e, "/models")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	names := map[string]bool{}
	for _, c := range rec.Result().Cookies() {
		names[c.Name] = true
	}
	if !names[session.DefaultCookieName] {
		t.Error("expected a session cookie")
	}
	if !names[middleware.CSRFCookieName] {
		t.Error("expected a csrf cookie")
	}
	if csp := rec.Header().Get("Content-Security-Policy"); !strings.Contains(csp, "cdn.jsdelivr.net") {
		t.Errorf("expected CDN origin in CSP, got %q", csp)
	}
	if rec.Header().Get(middleware.RequestIDHeader) == "" {
		t.Error("expected a request id")
	}
}

func TestServer_StaticAssets(t *testing.T) {
	e := testServer(t, okBackend())
	rec := get(e, "/static/app.css")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Header().Get("Cache-Control") == "no-store" {
		t.Error("static assets should be cacheable")
	}
}

func TestServer_PostWithoutCSRFIsForbidden(t *testing.T) {
	e := testServer(t, okBackend())

	form := url.Values{"age": {"60"}}
	req := httptest.NewRequest(http.MethodPost, "/reset", strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", rec.Code)
	}
}

func TestServer_PostWithCSRFRedirects(t *testing.T) {
	e := testServer(t, okBackend())

	first := get(e, "/models")
	var cookies []*http.Cookie
	var token string
	for _, c := range first.Result().Cookies() {
		cookies = append(cookies, c)
		if c.Name == middleware.CSRFCookieName {
			token = c.Value
		}
	}
	if token == "" {
		t.Fatal("no csrf cookie issued")
	}

	form := url.Values{middleware.CSRFFormField: {token}}
	req := httptest.NewRequest(http.MethodPost, "/reset", strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d: %s", rec.Code, rec.Body.String())
	}
	if loc := rec.Header().Get(echo.HeaderLocation); loc != "/" {
		t.Errorf("expected redirect to /, got %s", loc)
	}
}

func TestServer_UnknownRouteRendersErrorPage(t *testing.T) {
	e := testServer(t, okBackend())
	rec := get(e, "/no-such-page")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestRootCmd_Subcommands(t *testing.T) {
	root := newRootCmd()
	want := map[string]bool{"serve": false, "ping": false, "migrate": false}
	for _, c := range root.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("missing subcommand %s", name)
		}
	}
}
