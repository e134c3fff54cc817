package middleware

import (
	"strings"

	"github.com/labstack/echo/v4"
)

// DefaultAssetOrigins are the CDNs the pages load scripts from: the
// go-echarts asset host and jsDelivr for datastar.
var DefaultAssetOrigins = []string{
	"https://go-echarts.github.io",
	"https://cdn.jsdelivr.net",
}

// ContentSecurityPolicy builds the policy for the dashboard pages. Charts are
// initialised by inline scripts and datastar evaluates its expressions, so
// scripts need 'unsafe-inline' and 'unsafe-eval'.
func ContentSecurityPolicy(origins ...string) string {
	src := strings.Join(append([]string{"'self'"}, origins...), " ")
	return strings.Join([]string{
		"default-src 'self'",
		"script-src " + src + " 'unsafe-inline' 'unsafe-eval'",
		"style-src 'self' 'unsafe-inline'",
		"img-src 'self' data:",
		"connect-src 'self'",
		"form-action 'self'",
		"frame-ancestors 'none'",
	}, "; ")
}

// SecurityHeaders sets the browser security headers on every response.
// Pages hold patient data, so nothing is cached.
func SecurityHeaders(origins ...string) echo.MiddlewareFunc {
	csp := ContentSecurityPolicy(origins...)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()

			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("X-XSS-Protection", "0")
			h.Set("Content-Security-Policy", csp)
			h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			h.Set("Referrer-Policy", "same-origin")
			h.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
			if !strings.HasPrefix(c.Request().URL.Path, "/static/") {
				h.Set("Cache-Control", "no-store")
			}

			return next(c)
		}
	}
}
