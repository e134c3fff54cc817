package render

import (
	"errors"
	"net/http"

	"github.com/ecds/dashboard/internal/platform/middleware"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

type errorData struct {
	Status  int
	Message string
}

// ErrorPage renders the "error" page. It satisfies middleware.ErrorPage.
func ErrorPage(c echo.Context, status int) error {
	return errorPage(c, status, "Something went wrong while preparing this page.")
}

func errorPage(c echo.Context, status int, message string) error {
	p := NewPage(c, "", http.StatusText(status), errorData{Status: status, Message: message})
	return c.Render(status, "error", p)
}

// ErrorHandler renders handler errors as the error page, or as JSON for
// datastar requests. It falls back to the self-contained page when the page
// templates themselves fail.
func ErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status := http.StatusInternalServerError
		message := "Something went wrong while preparing this page."
		var he *echo.HTTPError
		if errors.As(err, &he) {
			status = he.Code
			if m, ok := he.Message.(string); ok {
				message = m
			}
		}
		if status >= 500 {
			logger.Error().Err(err).Str("request_id", middleware.GetRequestID(c)).Msg("request failed")
		}

		var werr error
		switch {
		case c.Request().Method == http.MethodHead:
			werr = c.NoContent(status)
		case IsDatastar(c):
			werr = c.JSON(status, map[string]string{"error": http.StatusText(status), "message": message})
		default:
			werr = errorPage(c, status, message)
		}
		if werr != nil {
			logger.Error().Err(werr).Msg("error page failed")
			if !c.Response().Committed {
				middleware.FallbackErrorPage(c, status)
			}
		}
	}
}
