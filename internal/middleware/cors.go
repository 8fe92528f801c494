package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"overstat-proxy-go/internal/cors"
)

// CORS returns an Echo middleware that stamps the wildcard CORS headers on
// every response, whether or not the request carried an Origin header.
// OPTIONS requests are answered here with 204 and never reach a handler.
func CORS(policy *cors.Policy) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			if c.Request().Method == http.MethodOptions {
				policy.ApplyPreflight(h)
				return c.NoContent(http.StatusNoContent)
			}
			policy.Apply(h)
			return next(c)
		}
	}
}
