// Package mlmodel lists the trained models the backend knows about.
package mlmodel

import (
	"context"
	"net/http"
	"sort"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/samber/lo"

	"github.com/ecds/dashboard/internal/platform/apiclient"
	"github.com/ecds/dashboard/internal/platform/form"
	"github.com/ecds/dashboard/internal/platform/render"
)

// Sorts accepted by the model listing.
var Sorts = []string{"name", "accuracy", "-accuracy"}

// Backend lists models.
type Backend interface {
	ListModels(ctx context.Context, q apiclient.ModelQuery) ([]apiclient.Model, error)
}

// Query filters and orders the model listing.
type Query struct {
	Type   string `schema:"type"`
	Status string `schema:"status"`
	Sort   string `schema:"sort"`
}

// Apply filters models by type and status and orders them. Unsorted
// listings keep the backend order.
func (q Query) Apply(models []apiclient.Model) []apiclient.Model {
	out := lo.Filter(models, func(m apiclient.Model, _ int) bool {
		if q.Type != "" && !strings.EqualFold(m.Kind(), q.Type) {
			return false
		}
		return q.Status == "" || strings.EqualFold(m.Status, q.Status)
	})
	switch q.Sort {
	case "name":
		sort.SliceStable(out, func(i, j int) bool { return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name) })
	case "accuracy":
		sort.SliceStable(out, func(i, j int) bool { return out[i].Accuracy < out[j].Accuracy })
	case "-accuracy":
		sort.SliceStable(out, func(i, j int) bool { return out[i].Accuracy > out[j].Accuracy })
	}
	return out
}

type Handler struct {
	backend Backend
}

func NewHandler(backend Backend) *Handler {
	return &Handler{backend: backend}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/models", h.List)
}

// ListData is what the models template renders.
type ListData struct {
	Query  Query
	Sorts  []string
	Types  []string
	Models []apiclient.Model
}

func (h *Handler) List(c echo.Context) error {
	p := render.NewPage(c, "models", "ML Models", nil).WithFlash(c)

	var q Query
	if err := form.DecodeQuery(c, &q); err != nil {
		p.Alert(render.Invalid(err.Error()))
	}
	data := &ListData{Query: q, Sorts: Sorts}

	all, err := h.backend.ListModels(c.Request().Context(), apiclient.ModelQuery{Type: q.Type, Status: q.Status})
	if err != nil {
		p.Alert(render.AlertFor("ML models", err))
	} else {
		data.Models = q.Apply(all)
		data.Types = lo.Uniq(lo.FilterMap(all, func(m apiclient.Model, _ int) (string, bool) {
			return m.Kind(), m.Kind() != ""
		}))
		sort.Strings(data.Types)
	}
	p.Data = data
	return c.Render(http.StatusOK, "models", p)
}
