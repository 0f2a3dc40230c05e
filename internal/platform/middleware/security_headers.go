package middleware

import (
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
)

const hstsMaxAge = 365 * 24 * 60 * 60

// SecurityHeaders sets response headers suitable for a JSON API that serves
// patient records. HSTS is only sent on TLS (or X-Forwarded-Proto: https)
// requests.
func SecurityHeaders(hsts bool) echo.MiddlewareFunc {
	cfg := echomw.SecureConfig{
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "DENY",
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
		ReferrerPolicy:        "no-referrer",
	}
	if hsts {
		cfg.HSTSMaxAge = hstsMaxAge
	}
	secure := echomw.SecureWithConfig(cfg)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		h := secure(next)
		return func(c echo.Context) error {
			// Patient data must not be cached by browsers or proxies.
			c.Response().Header().Set("Cache-Control", "no-store")
			return h(c)
		}
	}
}
