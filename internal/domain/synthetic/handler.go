package synthetic

import (
	"context"
	"html/template"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ecds/dashboard/internal/platform/form"
	"github.com/ecds/dashboard/internal/platform/render"
	"github.com/ecds/dashboard/internal/platform/session"
)

const (
	pageTitle = "Synthetic Data"
	cohortKey = "synthetic"
)

var chartTitles = map[string]string{
	"gender":     "Gender",
	"risk_level": "Risk level",
	"t_stage":    "T stage",
}

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/synthetic", h.Page)
	g.POST("/synthetic/generate", h.Generate)
	g.POST("/synthetic/export", h.Export)
}

// PageData is what the synthetic template renders.
type PageData struct {
	Form     GenerateForm
	MaxCount int
	Cohort   *Cohort
	Charts   []template.HTML
}

func loadCohort(s *session.Session) *Cohort {
	var c Cohort
	if ok, err := s.Get(cohortKey, &c); !ok || err != nil {
		return nil
	}
	return &c
}

func newPageData(f GenerateForm, c *Cohort) *PageData {
	d := &PageData{Form: f, MaxCount: MaxCount, Cohort: c}
	if c == nil {
		return d
	}
	for _, field := range DistributionFields {
		if chart := render.CountChart("synthetic_"+field, chartTitles[field], c.Counts[field]); chart != "" {
			d.Charts = append(d.Charts, chart)
		}
	}
	return d
}

func (h *Handler) Page(c echo.Context) error {
	cohort := loadCohort(session.FromContext(c))
	f := DefaultForm()
	if cohort != nil {
		f = cohort.Form
	}
	p := render.NewPage(c, "synthetic", pageTitle, newPageData(f, cohort)).WithFlash(c)
	return c.Render(http.StatusOK, "synthetic", p)
}

// Generate requests a new cohort. A failed call keeps the previous cohort.
func (h *Handler) Generate(c echo.Context) error {
	s := session.FromContext(c)
	f := DefaultForm()
	f.IncludeStaging = false
	err := form.Decode(c, &f)
	if err == nil {
		_, err = f.Request()
	}
	if err != nil {
		p := render.NewPage(c, "synthetic", pageTitle, newPageData(f, loadCohort(s))).Alert(render.Invalid(err.Error()))
		return c.Render(http.StatusUnprocessableEntity, "synthetic", p)
	}

	ctx := c.Request().Context()
	prev := loadCohort(s)
	cohort, err := h.svc.Generate(ctx, s.ID, f)
	if err != nil {
		render.Flash(c, render.AlertFor("Synthetic data", err))
		return render.Redirect(c, "/synthetic")
	}
	if err := s.Put(cohortKey, cohort); err != nil {
		h.discard(ctx, s.ID, cohort)
		return err
	}
	if prev != nil && prev.BlobID != cohort.BlobID {
		h.discard(ctx, s.ID, prev)
	}
	zerolog.Ctx(ctx).Info().Int("patients", cohort.Total).Msg("synthetic cohort generated")
	return render.Redirect(c, "/synthetic")
}

func (h *Handler) discard(ctx context.Context, owner string, cohort *Cohort) {
	if err := h.svc.Discard(ctx, owner, cohort); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("blob_id", cohort.BlobID).Msg("discard synthetic cohort failed")
	}
}

// Export writes the last cohort as CSV and links the download.
func (h *Handler) Export(c echo.Context) error {
	s := session.FromContext(c)
	cohort := loadCohort(s)
	if cohort == nil {
		render.Flash(c, render.Invalid("Generate a cohort before exporting it."))
		return render.Redirect(c, "/synthetic")
	}

	meta, err := h.svc.Export(c.Request().Context(), s.ID, cohort)
	if err != nil {
		zerolog.Ctx(c.Request().Context()).Error().Err(err).Msg("synthetic export failed")
		render.Flash(c, &render.Alert{Source: "Export", Message: "The cohort could not be exported. Generate it again and retry."})
		return render.Redirect(c, "/synthetic")
	}
	cohort.ExportID = meta.ID
	if err := s.Put(cohortKey, cohort); err != nil {
		return err
	}
	return render.Redirect(c, "/synthetic")
}
