package workflow

import (
	"context"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ecds/dashboard/internal/domain/assessment"
	"github.com/ecds/dashboard/internal/platform/form"
	"github.com/ecds/dashboard/internal/platform/middleware"
	"github.com/ecds/dashboard/internal/platform/render"
	"github.com/ecds/dashboard/internal/platform/session"
)

const pageTitle = "Clinical Workflow"

type Handler struct {
	svc      *assessment.Service
	debounce time.Duration
}

// NewHandler returns the wizard handler. debounce is how long the browser
// waits after the last edit before sending the drafts.
func NewHandler(svc *assessment.Service, debounce time.Duration) *Handler {
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	return &Handler{svc: svc, debounce: debounce}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/workflow", h.Page)
	g.POST("/workflow/next", h.Next)
	g.POST("/workflow/back", h.Back)
	g.POST("/workflow/reset", h.Reset)
	g.POST("/workflow/fields", h.Fields)
}

// StepView is one entry of the progress bar.
type StepView struct {
	Index int
	Name  string
	State string
}

// ResultView is the result panel of steps 2 and 3. It is patched in place
// when the drafts change.
type ResultView struct {
	Step   int
	Alerts []render.Alert
	CDS    *assessment.PageData
}

// PageData is what the workflow template renders.
type PageData struct {
	Step        int
	Steps       []StepView
	CDS         *assessment.PageData
	Result      ResultView
	Signals     Signals
	RefreshAttr template.HTMLAttr
}

func steps(active int) []StepView {
	out := make([]StepView, len(StepNames))
	for i, name := range StepNames {
		state := ""
		switch {
		case i < active:
			state = "done"
		case i == active:
			state = "active"
		}
		out[i] = StepView{Index: i, Name: name, State: state}
	}
	return out
}

func (h *Handler) pageData(c echo.Context, w *Wizard, st *assessment.State, alerts ...*render.Alert) *PageData {
	cds := assessment.NewPageData(st, "risk")
	return &PageData{
		Step:        w.Step,
		Steps:       steps(w.Step),
		CDS:         cds,
		Result:      resultView(w, cds, alerts...),
		Signals:     SignalsFrom(st),
		RefreshAttr: h.refreshAttr(middleware.CSRFToken(c)),
	}
}

func resultView(w *Wizard, cds *assessment.PageData, alerts ...*render.Alert) ResultView {
	v := ResultView{Step: w.Step, CDS: cds}
	for _, a := range alerts {
		if a != nil {
			v.Alerts = append(v.Alerts, *a)
		}
	}
	return v
}

// refreshAttr is the datastar attribute that posts the signals after the
// debounce. The token is base64url, so it needs no quoting.
func (h *Handler) refreshAttr(csrf string) template.HTMLAttr {
	return template.HTMLAttr(fmt.Sprintf(
		`data-on:input__debounce.%dms="@post('/workflow/fields', {headers: {'%s': '%s'}})"`,
		h.debounce.Milliseconds(), middleware.CSRFHeader, csrf,
	))
}

// refresh fetches the result of the active step unless the cached one
// matches the drafts. It reports whether the backend was called.
func (h *Handler) refresh(ctx context.Context, sessionID string, w *Wizard, st *assessment.State) (bool, *render.Alert) {
	switch w.Step {
	case StepRisk:
		called, err := h.svc.EnsureRisk(ctx, sessionID, st)
		return called, render.AlertFor("Risk assessment", err)
	case StepTreatment:
		called, err := h.svc.EnsureTreatment(ctx, sessionID, st)
		return called, render.AlertFor("Treatment recommendation", err)
	}
	return false, nil
}

// Page renders the active step, fetching its result on entry.
func (h *Handler) Page(c echo.Context) error {
	s := session.FromContext(c)
	w := LoadWizard(s)
	st := assessment.LoadState(s)

	called, alert := h.refresh(c.Request().Context(), s.ID, w, st)
	if called {
		if err := assessment.SaveState(s, st); err != nil {
			return err
		}
	}

	p := render.NewPage(c, "workflow", pageTitle, h.pageData(c, w, st, alert)).WithFlash(c)
	return c.Render(http.StatusOK, "workflow", p)
}

// Next saves the form of the intake and staging steps and moves forward.
func (h *Handler) Next(c echo.Context) error {
	s := session.FromContext(c)
	w := LoadWizard(s)
	st := assessment.LoadState(s)

	switch w.Step {
	case StepIntake:
		var d assessment.IntakeDraft
		err := form.Decode(c, &d)
		if err == nil {
			err = d.Validate()
		}
		if err != nil {
			st.Intake = d
			return h.invalid(c, w, st, err)
		}
		st.Intake = d
	case StepStaging:
		var d assessment.StagingDraft
		err := form.Decode(c, &d)
		if err == nil {
			err = d.Validate()
		}
		if err != nil {
			st.Staging = d
			return h.invalid(c, w, st, err)
		}
		st.Staging = d
	}

	w.Next()
	if err := assessment.SaveState(s, st); err != nil {
		return err
	}
	if err := SaveWizard(s, w); err != nil {
		return err
	}
	return render.Redirect(c, "/workflow")
}

func (h *Handler) invalid(c echo.Context, w *Wizard, st *assessment.State, err error) error {
	p := render.NewPage(c, "workflow", pageTitle, h.pageData(c, w, st)).Alert(render.Invalid(err.Error()))
	return c.Render(http.StatusUnprocessableEntity, "workflow", p)
}

// Back moves to the previous step. Drafts are kept.
func (h *Handler) Back(c echo.Context) error {
	s := session.FromContext(c)
	w := LoadWizard(s)
	w.Back()
	if err := SaveWizard(s, w); err != nil {
		return err
	}
	return render.Redirect(c, "/workflow")
}

// Reset returns to the first step with default drafts.
func (h *Handler) Reset(c echo.Context) error {
	s := session.FromContext(c)
	if err := SaveWizard(s, &Wizard{}); err != nil {
		return err
	}
	if err := assessment.SaveState(s, assessment.NewState()); err != nil {
		return err
	}
	return render.Redirect(c, "/workflow")
}

// Fields receives the drafts from datastar after an edit. On the result
// steps it recomputes when the drafts changed and patches the result panel.
func (h *Handler) Fields(c echo.Context) error {
	var sig Signals
	if err := render.ReadSignals(c, &sig); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid signals")
	}

	s := session.FromContext(c)
	w := LoadWizard(s)
	st := assessment.LoadState(s)
	ctx := c.Request().Context()

	intake, staging := sig.Drafts()
	err := sig.Validate()
	if err == nil {
		err = intake.Validate()
	}
	if err == nil {
		err = staging.Validate()
	}
	if err != nil {
		view := resultView(w, assessment.NewPageData(st, "risk"), render.Invalid(err.Error()))
		return render.PatchFragment(c, "workflow", "result", view)
	}
	st.Intake, st.Staging = intake, staging

	called, alert := h.refresh(ctx, s.ID, w, st)
	if err := assessment.SaveState(s, st); err != nil {
		return err
	}
	if w.Step < StepRisk {
		return c.NoContent(http.StatusNoContent)
	}
	zerolog.Ctx(ctx).Debug().Int("step", w.Step).Bool("recomputed", called).Msg("workflow fields updated")

	view := resultView(w, assessment.NewPageData(st, "risk"), alert)
	return render.PatchFragment(c, "workflow", "result", view)
}
