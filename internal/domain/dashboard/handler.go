package dashboard

import (
	"html/template"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ecds/dashboard/internal/platform/apiclient"
	"github.com/ecds/dashboard/internal/platform/render"
	"github.com/ecds/dashboard/internal/platform/session"
)

// recentPatients is how many patients the overview table shows.
const recentPatients = 5

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/", h.Index)
	g.POST("/reset", h.Reset)
}

// PageData is what the dashboard template renders.
type PageData struct {
	*Overview
	TopPatients    []apiclient.Patient
	DeployedModels int
	RiskChart      template.HTML
}

func (h *Handler) Index(c echo.Context) error {
	o := h.svc.Overview(c.Request().Context())

	p := render.NewPage(c, "dashboard", "Dashboard", nil).WithFlash(c)
	p.Alert(render.AlertFor("Patients", o.PatientsErr)).
		Alert(render.AlertFor("CDS services", o.ServicesErr)).
		Alert(render.AlertFor("ML models", o.ModelsErr))

	top := o.Patients
	if len(top) > recentPatients {
		top = top[:recentPatients]
	}
	p.Data = &PageData{
		Overview:       o,
		TopPatients:    top,
		DeployedModels: o.DeployedModels(),
		RiskChart:      render.DistributionChart("dashboard_risk", "Patients by risk level", o.PatientRecords(), "risk_level"),
	}
	return c.Render(http.StatusOK, "dashboard", p)
}

// Reset drops every draft, result and wizard position of the visitor. The
// error page offers it as the way back to a clean state.
func (h *Handler) Reset(c echo.Context) error {
	session.FromContext(c).Clear()
	return render.Redirect(c, "/")
}
