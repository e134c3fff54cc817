package middleware

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"net/http"

	"github.com/labstack/echo/v4"
)

const (
	// CSRFCookieName holds the token on the browser side.
	CSRFCookieName = "cds_csrf"
	// CSRFFormField is the hidden form field every page form carries.
	CSRFFormField = "csrf_token"
	// CSRFHeader is used by datastar requests, which post JSON signals.
	CSRFHeader = "X-CSRF-Token"

	csrfContextKey = "csrf"
)

// CSRFConfig configures the CSRF middleware.
type CSRFConfig struct {
	Skipper      func(c echo.Context) bool
	SecureCookie bool
}

// CSRF protects state-changing requests with a double-submit cookie. Safe
// requests get a token cookie; unsafe requests must echo the cookie value in
// the csrf_token form field or the X-CSRF-Token header.
func CSRF(cfg CSRFConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if cfg.Skipper != nil && cfg.Skipper(c) {
				return next(c)
			}

			var token string
			if cookie, err := c.Cookie(CSRFCookieName); err == nil && len(cookie.Value) >= 32 {
				token = cookie.Value
			}

			switch c.Request().Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				if token == "" {
					var err error
					if token, err = newCSRFToken(); err != nil {
						return err
					}
					c.SetCookie(&http.Cookie{
						Name:     CSRFCookieName,
						Value:    token,
						Path:     "/",
						HttpOnly: true,
						Secure:   cfg.SecureCookie,
						SameSite: http.SameSiteStrictMode,
					})
				}
			default:
				sent := c.Request().Header.Get(CSRFHeader)
				if sent == "" {
					sent = c.FormValue(CSRFFormField)
				}
				if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(sent)) != 1 {
					return echo.NewHTTPError(http.StatusForbidden, "invalid csrf token")
				}
			}

			c.Set(csrfContextKey, token)
			return next(c)
		}
	}
}

// CSRFToken returns the token for the current request, or "" outside the
// middleware.
func CSRFToken(c echo.Context) string {
	token, _ := c.Get(csrfContextKey).(string)
	return token
}

func newCSRFToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
