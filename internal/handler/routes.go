package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"overstat-proxy-go/internal/config"
	"overstat-proxy-go/internal/metrics"
)

// APIMiddleware is applied to the /api group only.
type APIMiddleware []echo.MiddlewareFunc

// RegisterRoutes wires all route handlers onto the Echo instance.
func RegisterRoutes(
	e *echo.Echo,
	cfg *config.Config,
	m *metrics.Metrics,
	apiMW APIMiddleware,
	proxy *ProxyHandler,
	health *HealthHandler,
	status *StatusHandler,
) {
	getHead := []string{http.MethodGet, http.MethodHead}
	e.Match(getHead, "/", status.Status)
	e.Match(getHead, "/health", health.Health)

	if cfg.Metrics.Enabled && m != nil {
		e.GET(cfg.Metrics.Path, echo.WrapHandler(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})))
	}

	api := e.Group("/api", apiMW...)
	api.Any("", proxy.Handle)
	api.Any("/*", proxy.Handle)
}
