package render

import (
	"errors"

	"github.com/ecds/dashboard/internal/platform/apiclient"
	"github.com/ecds/dashboard/internal/platform/middleware"
	"github.com/labstack/echo/v4"
)

// KindValidation marks alerts raised by form validation rather than by a
// backend call.
const KindValidation apiclient.Kind = "validation"

// Alert is one inline message shown above a page section.
type Alert struct {
	Kind    apiclient.Kind
	Source  string
	Message string
}

// Level maps the kind to a display level used as a CSS class.
func (a Alert) Level() string {
	switch a.Kind {
	case apiclient.KindEmpty:
		return "info"
	case KindValidation:
		return "warning"
	default:
		return "error"
	}
}

// Retryable reports whether the page offers a retry button for the alert.
func (a Alert) Retryable() bool {
	return a.Kind == apiclient.KindNetwork || a.Kind == apiclient.KindTimeout || a.Kind == apiclient.KindServer
}

// AlertFrom maps a failed backend call to the alert shown for it. A nil
// error yields nil.
func AlertFrom(err error) *Alert {
	if err == nil {
		return nil
	}
	kind := apiclient.KindOf(err)
	a := &Alert{Kind: kind}
	switch kind {
	case apiclient.KindNetwork:
		a.Message = "Could not reach the CDS backend. Check that it is running and try again."
	case apiclient.KindTimeout:
		a.Message = "The CDS backend did not respond in time. Try again in a moment."
	case apiclient.KindEmpty:
		a.Message = "The backend returned no results for this request."
	default:
		a.Message = "The CDS backend reported an error."
		var apiErr *apiclient.Error
		if errors.As(err, &apiErr) && apiErr.Message != "" {
			a.Message += " " + apiErr.Message
		}
	}
	return a
}

// AlertFor is AlertFrom with the name of the section that failed.
func AlertFor(source string, err error) *Alert {
	a := AlertFrom(err)
	if a != nil {
		a.Source = source
	}
	return a
}

// Invalid returns a validation alert.
func Invalid(message string) *Alert {
	return &Alert{Kind: KindValidation, Message: message}
}

// Empty returns an alert for a call that succeeded with nothing to show.
func Empty(message string) *Alert {
	return &Alert{Kind: apiclient.KindEmpty, Message: message}
}

// Page is the envelope every page template receives.
type Page struct {
	Title     string
	Section   string
	CSRF      string
	RequestID string
	Alerts    []Alert
	Data      any
}

// NewPage starts a page for the current request.
func NewPage(c echo.Context, section, title string, data any) *Page {
	return &Page{
		Title:     title,
		Section:   section,
		CSRF:      middleware.CSRFToken(c),
		RequestID: middleware.GetRequestID(c),
		Data:      data,
	}
}

// Alert appends a; nil is ignored.
func (p *Page) Alert(a *Alert) *Page {
	if a != nil {
		p.Alerts = append(p.Alerts, *a)
	}
	return p
}
