package auth

import (
	"strings"

	"github.com/labstack/echo/v4"
)

// publicPaths bypass authentication.
var publicPaths = map[string]bool{
	"/health":     true,
	"/health/db":  true,
	"/api/health": true,
}

// publicPrefixes bypass authentication for every path beneath them.
var publicPrefixes = []string{
	"/api/v1/auth/",
}

// AuthSkipper returns true for requests whose path should skip
// authentication. It matches the registered route when one exists and the
// raw request path otherwise.
func AuthSkipper(c echo.Context) bool {
	if c.Path() != "" && IsPublicPath(c.Path()) {
		return true
	}
	return IsPublicPath(c.Request().URL.Path)
}

// IsPublicPath reports whether path is reachable without credentials.
func IsPublicPath(path string) bool {
	if publicPaths[path] {
		return true
	}
	for _, prefix := range publicPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
