package datacollection

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ecds/dashboard/internal/platform/apiclient"
	"github.com/ecds/dashboard/internal/platform/render"
	"github.com/ecds/dashboard/internal/platform/session"
)

const (
	pageTitle = "Data Collection"
	importKey = "data-collection.import"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/data-collection", h.Page)
	g.POST("/data-collection/import", h.Import)
}

// ImportView is the outcome of the last import.
type ImportView struct {
	DatasetID string
	Result    apiclient.ImportResult
}

// PageData is what the data collection template renders.
type PageData struct {
	*Overview
	LastImport *ImportView
}

func (h *Handler) Page(c echo.Context) error {
	o := h.svc.Overview(c.Request().Context())
	p := render.NewPage(c, "data-collection", pageTitle, nil).WithFlash(c)
	p.Alert(render.AlertFor("Statistics", o.StatsErr)).
		Alert(render.AlertFor("Data sources", o.SourcesErr)).
		Alert(render.AlertFor("Datasets", o.DatasetsErr))

	data := &PageData{Overview: o}
	var last ImportView
	if ok, err := session.FromContext(c).Get(importKey, &last); ok && err == nil {
		data.LastImport = &last
	}
	p.Data = data
	return c.Render(http.StatusOK, "data-collection", p)
}

// Import imports the posted dataset and shows the backend's answer.
func (h *Handler) Import(c echo.Context) error {
	id := c.FormValue("dataset_id")
	res, err := h.svc.Import(c.Request().Context(), session.Owner(c), id)
	switch {
	case errors.Is(err, ErrNoDataset):
		render.Flash(c, render.Invalid(err.Error()))
	case err != nil:
		render.Flash(c, render.AlertFor("Import", err))
	default:
		if err := session.FromContext(c).Put(importKey, ImportView{DatasetID: id, Result: *res}); err != nil {
			return err
		}
	}
	return render.Redirect(c, "/data-collection")
}
