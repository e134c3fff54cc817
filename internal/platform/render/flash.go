package render

import (
	"net/http"

	"github.com/ecds/dashboard/internal/platform/session"
	"github.com/labstack/echo/v4"
)

const flashKey = "flash"

// Flash queues alerts for the next page rendered for this visitor, for
// handlers that redirect after a post.
func Flash(c echo.Context, alerts ...*Alert) {
	s := session.FromContext(c)
	var queued []Alert
	s.Get(flashKey, &queued)
	for _, a := range alerts {
		if a != nil {
			queued = append(queued, *a)
		}
	}
	if len(queued) > 0 {
		s.Put(flashKey, queued)
	}
}

// TakeFlash returns and clears the queued alerts.
func TakeFlash(c echo.Context) []Alert {
	s := session.FromContext(c)
	var queued []Alert
	if ok, _ := s.Get(flashKey, &queued); ok {
		s.Remove(flashKey)
	}
	return queued
}

// WithFlash moves the queued alerts onto p.
func (p *Page) WithFlash(c echo.Context) *Page {
	p.Alerts = append(p.Alerts, TakeFlash(c)...)
	return p
}

// Redirect answers a form post with 303 See Other.
func Redirect(c echo.Context, to string) error {
	return c.Redirect(http.StatusSeeOther, to)
}
