package imaging

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ecds/dashboard/internal/platform/apiclient"
	"github.com/ecds/dashboard/internal/platform/form"
	"github.com/ecds/dashboard/internal/platform/render"
	"github.com/ecds/dashboard/internal/platform/session"
	"github.com/ecds/dashboard/pkg/pagination"
)

const pageTitle = "MRI Reports"

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/imaging/mri", h.List)
	g.POST("/imaging/mri/export", h.Export)
	g.GET("/imaging/mri/:id", h.Detail)
}

// ListData is what the mri template renders.
type ListData struct {
	Query    Query
	Sorts    []string
	Statuses []string
	Reports  []apiclient.MRIReport
	Pager    pagination.Page
}

// DetailData is what the mri-report template renders.
type DetailData struct {
	Report apiclient.MRIReport
}

func (h *Handler) List(c echo.Context) error {
	p := render.NewPage(c, "imaging", pageTitle, nil).WithFlash(c)

	var q Query
	if err := form.DecodeQuery(c, &q); err != nil {
		p.Alert(render.Invalid(err.Error()))
	}
	pg := pagination.FromContext(c)

	data := &ListData{Query: q, Sorts: Sorts, Statuses: Statuses}
	items, total, err := h.svc.List(c.Request().Context(), q, pg)
	if err != nil {
		p.Alert(render.AlertFor("MRI reports", err))
	} else {
		data.Reports = items
		data.Pager = pg.NewPage("/imaging/mri", c.QueryParams(), total)
	}
	p.Data = data
	return c.Render(http.StatusOK, "mri", p)
}

func (h *Handler) Detail(c echo.Context) error {
	id := c.Param("id")
	r, err := h.svc.Get(c.Request().Context(), id)
	switch {
	case errors.Is(err, ErrUnknownReport):
		render.Flash(c, render.Invalid(fmt.Sprintf("Report %s is not in the current listing.", id)))
		return render.Redirect(c, "/imaging/mri")
	case err != nil:
		render.Flash(c, render.AlertFor("MRI reports", err))
		return render.Redirect(c, "/imaging/mri")
	}
	p := render.NewPage(c, "imaging", "MRI Report "+id, &DetailData{Report: r})
	return c.Render(http.StatusOK, "mri-report", p)
}

// Export stores the filtered listing as CSV and sends the visitor to its
// download.
func (h *Handler) Export(c echo.Context) error {
	var q Query
	if err := form.Decode(c, &q); err != nil {
		render.Flash(c, render.Invalid(err.Error()))
		return render.Redirect(c, "/imaging/mri")
	}
	back := "/imaging/mri?" + url.Values{
		"patient_id": {q.PatientID}, "status": {q.Status}, "sort": {q.Sort},
	}.Encode()

	meta, err := h.svc.Export(c.Request().Context(), session.Owner(c), q)
	var apiErr *apiclient.Error
	switch {
	case errors.Is(err, ErrNothingToExport):
		render.Flash(c, render.Empty("No reports match the filter, so there is nothing to export."))
		return render.Redirect(c, back)
	case errors.As(err, &apiErr):
		render.Flash(c, render.AlertFor("MRI export", err))
		return render.Redirect(c, back)
	case err != nil:
		zerolog.Ctx(c.Request().Context()).Error().Err(err).Msg("mri export failed")
		render.Flash(c, &render.Alert{Source: "MRI export", Message: "The listing could not be exported."})
		return render.Redirect(c, back)
	}
	return render.Redirect(c, "/exports/"+meta.ID)
}
