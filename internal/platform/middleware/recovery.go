package middleware

import (
	"fmt"
	"html/template"
	"net/http"
	"runtime"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// ErrorPage renders the page shown after an unexpected failure. It offers a
// way back to a clean state (POST /reset).
type ErrorPage func(c echo.Context, status int) error

// Recovery is the top-level error boundary. A panic in a handler or a
// template is logged with its stack and the visitor gets the error page
// instead of a broken response. A nil page falls back to FallbackErrorPage.
func Recovery(logger zerolog.Logger, page ErrorPage) echo.MiddlewareFunc {
	if page == nil {
		page = FallbackErrorPage
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				if r == http.ErrAbortHandler {
					panic(r)
				}
				var stack [4096]byte
				n := runtime.Stack(stack[:], false)

				logger.Error().
					Str("request_id", GetRequestID(c)).
					Str("path", c.Request().URL.Path).
					Str("panic", fmt.Sprintf("%v", r)).
					Str("stack", string(stack[:n])).
					Msg("panic recovered")

				if c.Response().Committed {
					err = nil
					return
				}
				if perr := page(c, http.StatusInternalServerError); perr != nil {
					err = echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
				}
			}()
			return next(c)
		}
	}
}

var fallbackTmpl = template.Must(template.New("error").Parse(`<!doctype html>
<html lang="en"><head><meta charset="utf-8"><title>Something went wrong</title></head>
<body>
<h1>Something went wrong</h1>
<p>The page could not be displayed. Reference: <code>{{.RequestID}}</code></p>
<form method="post" action="/reset">
<input type="hidden" name="` + CSRFFormField + `" value="{{.CSRF}}">
<button type="submit">Reset</button>
</form>
</body></html>`))

// FallbackErrorPage is a self-contained error page that does not depend on
// the page templates, which may be what failed.
func FallbackErrorPage(c echo.Context, status int) error {
	res := c.Response()
	res.Header().Set(echo.HeaderContentType, echo.MIMETextHTMLCharsetUTF8)
	res.WriteHeader(status)
	return fallbackTmpl.Execute(res, map[string]string{
		"RequestID": GetRequestID(c),
		"CSRF":      CSRFToken(c),
	})
}
