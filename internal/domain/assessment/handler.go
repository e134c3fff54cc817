package assessment

import (
	"html/template"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/samber/lo"

	"github.com/ecds/dashboard/internal/platform/apiclient"
	"github.com/ecds/dashboard/internal/platform/form"
	"github.com/ecds/dashboard/internal/platform/render"
	"github.com/ecds/dashboard/internal/platform/session"
)

const pageTitle = "Clinical Decision Support"

// Tabs of the CDS page, in display order.
var Tabs = []string{"risk", "treatment", "services"}

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/cds", h.Page)
	g.POST("/cds/intake", h.SubmitIntake)
	g.POST("/cds/intake/toggle/:factor", h.ToggleFactor)
	g.POST("/cds/staging", h.SubmitStaging)
	g.POST("/cds/reset", h.Reset)
}

// FactorView is one risk factor checkbox.
type FactorView struct {
	Name string
	On   bool
}

// PageData is what the cds template renders.
type PageData struct {
	Tab   string
	Tabs  []string
	State *State

	Genders []string
	Factors []FactorView
	TStages []string
	NStages []string
	MStages []string
	Grades  []string

	HasRisk          bool
	HasTreatment     bool
	RiskCurrent      bool
	TreatmentCurrent bool
	ShapChart        template.HTML
	RiskChart        template.HTML

	Services []apiclient.Service
}

// NewPageData prepares st for display with tab active. An unknown tab falls
// back to the first one.
func NewPageData(st *State, tab string) *PageData {
	if !lo.Contains(Tabs, tab) {
		tab = Tabs[0]
	}
	d := &PageData{
		Tab:     tab,
		Tabs:    Tabs,
		State:   st,
		Genders: Genders,
		Factors: lo.Map(Factors, func(f string, _ int) FactorView {
			return FactorView{Name: f, On: st.Intake.Factor(f)}
		}),
		TStages:          TStages,
		NStages:          NStages,
		MStages:          MStages,
		Grades:           Grades,
		HasRisk:          st.Risk.Present(),
		HasTreatment:     st.Treatment.Present(),
		RiskCurrent:      st.RiskCurrent(),
		TreatmentCurrent: st.TreatmentCurrent(),
	}
	if d.HasRisk {
		d.ShapChart = render.ShapChart("cds_shap", st.Risk.Features(), 10)
		d.RiskChart = render.RiskPie("cds_risk", st.Risk)
	}
	return d
}

// Page renders the CDS page with the tab named in the query.
func (h *Handler) Page(c echo.Context) error {
	st := LoadState(session.FromContext(c))
	p := render.NewPage(c, "cds", pageTitle, nil).WithFlash(c)
	return h.render(c, http.StatusOK, p, st, c.QueryParam("tab"))
}

func (h *Handler) render(c echo.Context, status int, p *render.Page, st *State, tab string) error {
	data := NewPageData(st, tab)
	if data.Tab == "services" {
		services, err := h.svc.Services(c.Request().Context())
		data.Services = services
		p.Alert(render.AlertFor("CDS services", err))
	}
	p.Data = data
	return c.Render(status, "cds", p)
}

// invalid re-renders the page with the rejected values and a validation
// alert. Nothing is saved.
func (h *Handler) invalid(c echo.Context, st *State, tab string, err error) error {
	p := render.NewPage(c, "cds", pageTitle, nil).Alert(render.Invalid(err.Error()))
	return h.render(c, http.StatusUnprocessableEntity, p, st, tab)
}

// SubmitIntake stores the posted intake draft and requests a risk
// prediction for it.
func (h *Handler) SubmitIntake(c echo.Context) error {
	s := session.FromContext(c)
	st := LoadState(s)

	var d IntakeDraft
	if err := form.Decode(c, &d); err != nil {
		return h.invalid(c, st, "risk", err)
	}
	if err := d.Validate(); err != nil {
		st.Intake = d
		return h.invalid(c, st, "risk", err)
	}
	st.Intake = d

	err := h.svc.Assess(c.Request().Context(), s.ID, st)
	if saveErr := SaveState(s, st); saveErr != nil {
		return saveErr
	}
	render.Flash(c, render.AlertFor("Risk assessment", err))
	return render.Redirect(c, "/cds?tab=risk")
}

// ToggleFactor flips one boolean risk factor of the intake draft.
func (h *Handler) ToggleFactor(c echo.Context) error {
	s := session.FromContext(c)
	st := LoadState(s)
	if err := st.Intake.Toggle(c.Param("factor")); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := SaveState(s, st); err != nil {
		return err
	}
	return render.Redirect(c, "/cds?tab=risk")
}

// SubmitStaging stores the posted staging draft and requests a treatment
// recommendation for both drafts.
func (h *Handler) SubmitStaging(c echo.Context) error {
	s := session.FromContext(c)
	st := LoadState(s)

	var d StagingDraft
	if err := form.Decode(c, &d); err != nil {
		return h.invalid(c, st, "treatment", err)
	}
	if err := d.Validate(); err != nil {
		st.Staging = d
		return h.invalid(c, st, "treatment", err)
	}
	st.Staging = d

	err := h.svc.Recommend(c.Request().Context(), s.ID, st)
	if saveErr := SaveState(s, st); saveErr != nil {
		return saveErr
	}
	render.Flash(c, render.AlertFor("Treatment recommendation", err))
	return render.Redirect(c, "/cds?tab=treatment")
}

// Reset restores the default drafts and drops every result.
func (h *Handler) Reset(c echo.Context) error {
	if err := SaveState(session.FromContext(c), NewState()); err != nil {
		return err
	}
	return render.Redirect(c, "/cds")
}
