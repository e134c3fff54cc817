package imaging

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/ecds/dashboard/internal/platform/apiclient"
	"github.com/ecds/dashboard/internal/platform/blobstore"
	"github.com/ecds/dashboard/internal/platform/session"
	"github.com/ecds/dashboard/internal/platform/webtest"
)

type fakeBackend struct {
	reports []apiclient.MRIReport
	queries []apiclient.MRIQuery
	err     error
}

func (f *fakeBackend) ListMRIReports(_ context.Context, q apiclient.MRIQuery) ([]apiclient.MRIReport, error) {
	f.queries = append(f.queries, q)
	return f.reports, f.err
}

func newTestBrowser(t *testing.T, backend *fakeBackend) (*webtest.Browser, *blobstore.InMemoryBlobStore) {
	t.Helper()
	store := blobstore.NewInMemoryBlobStore()
	h := NewHandler(NewService(backend, store, nil))
	b := webtest.New(t, func(g *echo.Group) {
		h.RegisterRoutes(g)
		blobstore.NewBlobHandler(store, session.Owner).RegisterRoutes(g)
	})
	return b, store
}

func TestList_FiltersAndForwardsQuery(t *testing.T) {
	backend := &fakeBackend{reports: sampleReports()}
	b, _ := newTestBrowser(t, backend)

	rec := b.Get("/imaging/mri?patient_id=P1&status=final")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(backend.queries) != 1 || backend.queries[0] != (apiclient.MRIQuery{PatientID: "P1", Status: "final"}) {
		t.Errorf("unexpected backend queries %+v", backend.queries)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `href="/imaging/mri/r3"`) {
		t.Error("expected the matching report")
	}
	if strings.Contains(body, `href="/imaging/mri/r1"`) {
		t.Error("expected other patients' reports to be filtered out")
	}
}

func TestList_Empty(t *testing.T) {
	b, _ := newTestBrowser(t, &fakeBackend{})
	body := b.Get("/imaging/mri").Body.String()
	if !strings.Contains(body, "No MRI reports to show.") {
		t.Error("expected the empty state")
	}
	if webtest.Alerts(body) != 0 {
		t.Errorf("expected no alerts, got %d", webtest.Alerts(body))
	}
}

func TestList_BackendFailure(t *testing.T) {
	backend := &fakeBackend{err: &apiclient.Error{Kind: apiclient.KindTimeout, Err: context.DeadlineExceeded}}
	b, _ := newTestBrowser(t, backend)
	body := b.Get("/imaging/mri").Body.String()
	if webtest.Alerts(body) != 1 {
		t.Errorf("expected one alert, got %d", webtest.Alerts(body))
	}
}

func TestDetail(t *testing.T) {
	b, _ := newTestBrowser(t, &fakeBackend{reports: sampleReports()})
	rec := b.Get("/imaging/mri/r2")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "2024-03-05") {
		t.Error("expected the report's study date")
	}

	webtest.ExpectRedirect(t, b.Get("/imaging/mri/missing"), "/imaging/mri")
	if n := webtest.Alerts(b.Get("/imaging/mri").Body.String()); n != 1 {
		t.Errorf("expected one alert for the unknown report, got %d", n)
	}
}

func TestExport(t *testing.T) {
	backend := &fakeBackend{reports: sampleReports()}
	b, store := newTestBrowser(t, backend)

	rec := b.Post("/imaging/mri/export", url.Values{"patient_id": {"P1"}})
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", rec.Code)
	}
	loc := rec.Header().Get(echo.HeaderLocation)
	if !strings.HasPrefix(loc, "/exports/") {
		t.Fatalf("expected a redirect to the export, got %q", loc)
	}
	items, _, _ := store.List(context.Background(), blobstore.ListParams{Kind: blobstore.KindMRIReports})
	if len(items) != 1 || items[0].Tags["rows"] != "2" {
		t.Fatalf("expected one export of 2 rows, got %+v", items)
	}

	dl := b.Get(loc)
	if dl.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", dl.Code)
	}
	if !strings.HasPrefix(dl.Body.String(), strings.Join(csvHeader, ",")+"\n") {
		t.Errorf("unexpected csv %q", dl.Body.String())
	}
}

func TestExport_NothingMatches(t *testing.T) {
	b, store := newTestBrowser(t, &fakeBackend{reports: sampleReports()})
	webtest.ExpectRedirect(t, b.Post("/imaging/mri/export", url.Values{"patient_id": {"P9"}}),
		"/imaging/mri?patient_id=P9&sort=&status=")
	if _, total, _ := store.List(context.Background(), blobstore.ListParams{}); total != 0 {
		t.Errorf("expected no export, got %d", total)
	}
}

func TestExport_BackendFailure(t *testing.T) {
	backend := &fakeBackend{err: &apiclient.Error{Kind: apiclient.KindNetwork, Err: errors.New("refused")}}
	b, _ := newTestBrowser(t, backend)
	rec := b.Post("/imaging/mri/export", url.Values{})
	webtest.ExpectRedirect(t, rec, "/imaging/mri?patient_id=&sort=&status=")
	if n := webtest.Alerts(b.Get("/imaging/mri").Body.String()); n != 2 {
		t.Errorf("expected the flashed alert and the listing alert, got %d", n)
	}
}
