package patient

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ecds/dashboard/internal/domain/assessment"
	"github.com/ecds/dashboard/internal/platform/apiclient"
	"github.com/ecds/dashboard/internal/platform/form"
	"github.com/ecds/dashboard/internal/platform/render"
	"github.com/ecds/dashboard/internal/platform/session"
	"github.com/ecds/dashboard/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/patients", h.List)
	g.POST("/patients/:id/select", h.Select)
}

// ListData is what the patients template renders.
type ListData struct {
	Query    Query
	Sorts    []string
	Patients []apiclient.Patient
	Pager    pagination.Page
	Selected string
}

func (h *Handler) List(c echo.Context) error {
	p := render.NewPage(c, "patients", "Patients", nil).WithFlash(c)

	var q Query
	if err := form.DecodeQuery(c, &q); err != nil {
		p.Alert(render.Invalid(err.Error()))
	}
	pg := pagination.FromContext(c)

	data := &ListData{
		Query:    q,
		Sorts:    Sorts,
		Selected: assessment.LoadState(session.FromContext(c)).PatientID,
	}
	items, total, err := h.svc.List(c.Request().Context(), q, pg)
	if err != nil {
		p.Alert(render.AlertFor("Patients", err))
	} else {
		data.Patients = items
		data.Pager = pg.NewPage("/patients", c.QueryParams(), total)
	}
	p.Data = data
	return c.Render(http.StatusOK, "patients", p)
}

// Select copies the patient's age and gender into the intake draft and
// opens the CDS page.
func (h *Handler) Select(c echo.Context) error {
	id := c.Param("id")
	pt, err := h.svc.Get(c.Request().Context(), id)
	switch {
	case errors.Is(err, ErrUnknownPatient):
		render.Flash(c, render.Invalid(fmt.Sprintf("Patient %s is not in the current listing.", id)))
		return render.Redirect(c, "/patients")
	case err != nil:
		render.Flash(c, render.AlertFor("Patients", err))
		return render.Redirect(c, "/patients")
	}

	s := session.FromContext(c)
	st := assessment.LoadState(s)
	st.SelectPatient(pt)
	if err := assessment.SaveState(s, st); err != nil {
		return err
	}
	return render.Redirect(c, "/cds")
}
