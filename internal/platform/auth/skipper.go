package auth

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Route patterns served without credentials. Only read methods are public;
// anything else on these routes still goes through authentication.
var publicRoutes = []string{
	"/health",
	"/health/db",
	"/verify/:scanId",
	"/verify/:scanId/qr.png",
}

// IsPublicPath reports whether the route pattern is one of the public routes.
func IsPublicPath(pattern string) bool {
	for _, p := range publicRoutes {
		if p == pattern {
			return true
		}
	}
	return false
}

// AuthSkipper is the JWT middleware skipper. It matches on the routed
// pattern, so it must run as post-routing middleware (echo.Use).
func AuthSkipper(c echo.Context) bool {
	switch c.Request().Method {
	case http.MethodGet, http.MethodHead:
		return IsPublicPath(c.Path())
	}
	return false
}
