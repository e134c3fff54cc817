// Package monitoring shows the metric timeline and alerts the backend keeps
// for one patient.
package monitoring

import (
	"context"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/samber/lo"

	"github.com/ecds/dashboard/internal/domain/assessment"
	"github.com/ecds/dashboard/internal/platform/apiclient"
	"github.com/ecds/dashboard/internal/platform/render"
	"github.com/ecds/dashboard/internal/platform/session"
)

const pageTitle = "Patient Monitoring"

// Backend returns the monitoring record of a patient.
type Backend interface {
	PatientMonitoring(ctx context.Context, patientID string) (*apiclient.Monitoring, error)
}

type Handler struct {
	backend Backend
}

func NewHandler(backend Backend) *Handler {
	return &Handler{backend: backend}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/monitoring", h.Index)
	g.GET("/monitoring/:patientID", h.Patient)
}

// PageData is what the monitoring template renders.
type PageData struct {
	PatientID  string
	Monitoring *apiclient.Monitoring
	Metrics    []string
	Readings   []Reading
	Chart      template.HTML
}

// Reading is one timeline row with a cell per metric. Missing readings are
// empty.
type Reading struct {
	Timestamp string
	Values    []string
}

func readings(m *apiclient.Monitoring, metrics []string) []Reading {
	return lo.Map(m.Timeline, func(p apiclient.MonitoringPoint, _ int) Reading {
		return Reading{
			Timestamp: p.Timestamp,
			Values: lo.Map(metrics, func(metric string, _ int) string {
				if v, ok := p.Values[metric]; ok {
					return strconv.FormatFloat(v, 'f', -1, 64)
				}
				return ""
			}),
		}
	})
}

// Index asks for a patient id, prefilled with the patient selected for the
// CDS page. A submitted id opens that patient's timeline.
func (h *Handler) Index(c echo.Context) error {
	if id := strings.TrimSpace(c.QueryParam("patient_id")); id != "" {
		return render.Redirect(c, "/monitoring/"+url.PathEscape(id))
	}
	data := &PageData{PatientID: assessment.LoadState(session.FromContext(c)).PatientID}
	p := render.NewPage(c, "monitoring", pageTitle, data).WithFlash(c)
	return c.Render(http.StatusOK, "monitoring", p)
}

func (h *Handler) Patient(c echo.Context) error {
	id := c.Param("patientID")
	data := &PageData{PatientID: id}
	p := render.NewPage(c, "monitoring", pageTitle+" "+id, data).WithFlash(c)

	m, err := h.backend.PatientMonitoring(c.Request().Context(), id)
	switch {
	case apiclient.IsEmpty(err):
		p.Alert(render.Empty(fmt.Sprintf("No monitoring data for patient %s.", id)))
	case err != nil:
		p.Alert(render.AlertFor("Monitoring", err))
	default:
		data.Monitoring = m
		data.Metrics = m.Metrics()
		data.Readings = readings(m, data.Metrics)
		data.Chart = render.TimelineChart("monitoring_timeline", m)
	}
	return c.Render(http.StatusOK, "monitoring", p)
}
