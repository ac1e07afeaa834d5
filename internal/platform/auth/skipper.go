package auth

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// publicPaths are reachable without a token: health checks, metrics, the API
// document and CDS Hooks discovery.
var publicPaths = map[string]bool{
	"/health":       true,
	"/health/db":    true,
	"/metrics":      true,
	"/cds-services": true,
	"/openapi.json": true,
	"/docs":         true,
}

// AuthSkipper reports whether a request may skip authentication. Only GETs
// of public paths qualify.
func AuthSkipper(c echo.Context) bool {
	return c.Request().Method == http.MethodGet && IsPublicPath(c.Path())
}

// IsPublicPath reports whether path is a public infrastructure endpoint.
func IsPublicPath(path string) bool {
	return publicPaths[path]
}
