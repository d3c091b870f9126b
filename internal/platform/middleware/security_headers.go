package middleware

import (
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

// SecurityConfig controls the response hardening headers.
type SecurityConfig struct {
	// HSTS adds Strict-Transport-Security. Off in development where the
	// server is reached over plain HTTP.
	HSTS bool
	// CacheableSuffixes lists path suffixes whose responses hold no patient
	// data and may be cached publicly.
	CacheableSuffixes []string
	// CacheMaxAge is the max-age in seconds for cacheable responses.
	CacheMaxAge int
}

// DefaultSecurityConfig caches rendered verification QR codes for a day.
var DefaultSecurityConfig = SecurityConfig{
	HSTS:              true,
	CacheableSuffixes: []string{"/qr.png"},
	CacheMaxAge:       86400,
}

var baseSecurityHeaders = [][2]string{
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "DENY"},
	{"X-XSS-Protection", "0"},
	{"Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'"},
	{"Referrer-Policy", "no-referrer"},
	{"Permissions-Policy", "camera=(), microphone=(), geolocation=()"},
}

// SecurityHeaders sets hardening headers on every response. Anything not
// matched by CacheableSuffixes is marked no-store.
func SecurityHeaders(cfg SecurityConfig) echo.MiddlewareFunc {
	cacheable := "public, max-age=" + strconv.Itoa(cfg.CacheMaxAge)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			for _, kv := range baseSecurityHeaders {
				h.Set(kv[0], kv[1])
			}
			if cfg.HSTS {
				h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}

			h.Set("Cache-Control", "no-store")
			path := c.Request().URL.Path
			for _, suffix := range cfg.CacheableSuffixes {
				if strings.HasSuffix(path, suffix) {
					h.Set("Cache-Control", cacheable)
					break
				}
			}
			return next(c)
		}
	}
}
