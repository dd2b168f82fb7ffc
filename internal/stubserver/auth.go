package stubserver

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// authMiddleware validates the bearer token on every request whose path is
// not in skipPaths.
func authMiddleware(apiKey string, skipPaths []string) echo.MiddlewareFunc {
	skip := make(map[string]struct{}, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = struct{}{}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if _, ok := skip[c.Request().URL.Path]; ok {
				return next(c)
			}

			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return writeError(c, http.StatusUnauthorized, "authentication_error", "missing authorization header")
			}

			const prefix = "Bearer "
			if !strings.HasPrefix(authHeader, prefix) {
				return writeError(c, http.StatusUnauthorized, "authentication_error", "invalid authorization header format, expected 'Bearer <token>'")
			}

			if token := strings.TrimPrefix(authHeader, prefix); token != apiKey {
				return writeError(c, http.StatusUnauthorized, "authentication_error", "invalid api key")
			}

			return next(c)
		}
	}
}
