package monitoring

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/ecds/dashboard/internal/platform/apiclient"
	"github.com/ecds/dashboard/internal/platform/webtest"
)

type fakeBackend struct {
	m   *apiclient.Monitoring
	err error
	ids []string
}

func (f *fakeBackend) PatientMonitoring(_ context.Context, id string) (*apiclient.Monitoring, error) {
	f.ids = append(f.ids, id)
	return f.m, f.err
}

func newTestBrowser(t *testing.T, backend *fakeBackend) *webtest.Browser {
	t.Helper()
	h := NewHandler(backend)
	return webtest.New(t, func(g *echo.Group) { h.RegisterRoutes(g) })
}

func TestIndex_RedirectsToPatient(t *testing.T) {
	b := newTestBrowser(t, &fakeBackend{})
	rec := b.Get("/monitoring")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	webtest.ExpectRedirect(t, b.Get("/monitoring?patient_id=+P7+"), "/monitoring/P7")
}

func TestPatient_Timeline(t *testing.T) {
	backend := &fakeBackend{m: &apiclient.Monitoring{
		PatientID: "P7",
		Status:    "stable",
		Timeline: []apiclient.MonitoringPoint{
			{Timestamp: "2024-05-01", Values: map[string]float64{"heart_rate": 72, "weight": 0}},
			{Timestamp: "2024-05-02", Values: map[string]float64{"heart_rate": 75}},
		},
		Alerts: []apiclient.MonitoringAlert{{Severity: "High", Message: "weight loss", Metric: "weight"}},
	}}
	b := newTestBrowser(t, backend)

	rec := b.Get("/monitoring/P7")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if len(backend.ids) != 1 || backend.ids[0] != "P7" {
		t.Errorf("unexpected backend calls %v", backend.ids)
	}
	for _, want := range []string{"monitoring_timeline", "weight loss", "<td>72</td><td>0</td>", "<td>75</td><td>-</td>"} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %q in the page", want)
		}
	}
	if webtest.Alerts(body) != 0 {
		t.Errorf("expected no alerts, got %d", webtest.Alerts(body))
	}
}

func TestPatient_NoData(t *testing.T) {
	backend := &fakeBackend{err: &apiclient.Error{Kind: apiclient.KindEmpty}}
	body := newTestBrowser(t, backend).Get("/monitoring/P9").Body.String()
	if webtest.Alerts(body) != 1 {
		t.Fatalf("expected one alert, got %d", webtest.Alerts(body))
	}
	if !strings.Contains(body, "No monitoring data for patient P9.") || !strings.Contains(body, `data-kind="empty"`) {
		t.Error("expected the empty alert")
	}
}

func TestPatient_BackendFailure(t *testing.T) {
	backend := &fakeBackend{err: &apiclient.Error{Kind: apiclient.KindServer, Status: 500, Err: errors.New("boom")}}
	body := newTestBrowser(t, backend).Get("/monitoring/P9").Body.String()
	if webtest.Alerts(body) != 1 {
		t.Errorf("expected one alert, got %d", webtest.Alerts(body))
	}
	if !strings.Contains(body, `data-kind="server"`) {
		t.Error("expected a server alert")
	}
}
