package auth

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

type route struct {
	method string
	path   string
}

// publicRoutes may be called without a bearer token. POST /users is listed so
// patients can self-register; a token sent there is still validated so an
// admin can create staff accounts through the same endpoint.
var publicRoutes = map[route]bool{
	{http.MethodGet, "/health"}:      true,
	{http.MethodGet, "/health/db"}:   true,
	{http.MethodPost, "/auth/login"}: true,
	{http.MethodPost, "/users"}:      true,
}

// AuthSkipper returns true for requests whose route is public.
func AuthSkipper(c echo.Context) bool {
	return IsPublicRoute(c.Request().Method, c.Path())
}

// IsPublicRoute reports whether method and path name a public endpoint.
func IsPublicRoute(method, path string) bool {
	return publicRoutes[route{method, path}]
}
