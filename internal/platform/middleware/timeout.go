package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
)

// RequestTimeout sets a context deadline on each request. When it passes
// before the handler returns, the visitor gets a 504: a JSON body for
// datastar and JSON requests, a short HTML page otherwise.
//
// Export downloads are excluded; they stream from the blob store.
func RequestTimeout(timeout time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if strings.HasPrefix(c.Request().URL.Path, "/exports/") {
				return next(c)
			}

			ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
			defer cancel()

			c.SetRequest(c.Request().WithContext(ctx))

			// Run handler in a goroutine so we can select on the context.
			done := make(chan error, 1)
			go func() {
				done <- next(c)
			}()

			select {
			case err := <-done:
				return err
			case <-ctx.Done():
				if ctx.Err() == context.DeadlineExceeded {
					return gatewayTimeout(c)
				}
				// Client went away.
				return ctx.Err()
			}
		}
	}
}

const timeoutMessage = "The request took too long. The backend may be busy; please try again."

func gatewayTimeout(c echo.Context) error {
	// A partially written response cannot be replaced.
	if c.Response().Committed {
		return nil
	}
	req := c.Request()
	if req.Header.Get("Datastar-Request") != "" || strings.Contains(req.Header.Get(echo.HeaderAccept), echo.MIMEApplicationJSON) {
		return c.JSON(http.StatusGatewayTimeout, map[string]string{
			"error":   "timeout",
			"message": timeoutMessage,
		})
	}
	return c.HTML(http.StatusGatewayTimeout,
		`<!doctype html><html lang="en"><head><meta charset="utf-8"><title>Timeout</title></head>`+
			`<body><h1>Timeout</h1><p>`+timeoutMessage+`</p><p><a href="/">Back to the dashboard</a></p></body></html>`)
}
