package handler

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"

	"github.com/labstack/echo/v4"

	"overstat-proxy-go/internal/config"
	"overstat-proxy-go/internal/cors"
	"overstat-proxy-go/internal/service"
)

//go:embed templates/status.html
var templateFS embed.FS

var statusTemplate = template.Must(template.ParseFS(templateFS, "templates/status.html"))

type statusView struct {
	Target        string
	CORS          string
	RateLimit     string
	UptimeSeconds int64
	Breaker       string
	BaseURL       string
	ProbePath     string
	MetricsPath   string
	Version       string
}

// StatusHandler renders the informational HTML page served at "/".
type StatusHandler struct {
	process     *Process
	proxy       *service.ProxyService
	cors        string
	rateLimit   string
	probePath   string
	metricsPath string
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(cfg *config.Config, p *Process, policy *cors.Policy, proxy *service.ProxyService) *StatusHandler {
	h := &StatusHandler{
		process:   p,
		proxy:     proxy,
		cors:      policy.Describe(),
		rateLimit: "Disabled",
		probePath: cfg.Health.ProbePath,
	}
	if rl := cfg.Server.RateLimit; rl.Enabled {
		h.rateLimit = fmt.Sprintf("%d requests per %s per IP", rl.MaxRequests, describeWindow(rl.WindowSeconds))
	}
	if cfg.Metrics.Enabled {
		h.metricsPath = cfg.Metrics.Path
	}
	return h
}

// Status renders the page.
func (h *StatusHandler) Status(c echo.Context) error {
	view := statusView{
		Target:        h.proxy.Target(),
		CORS:          h.cors,
		RateLimit:     h.rateLimit,
		UptimeSeconds: int64(h.process.Uptime().Seconds()),
		Breaker:       h.proxy.BreakerState(),
		BaseURL:       c.Scheme() + "://" + c.Request().Host,
		ProbePath:     h.probePath,
		MetricsPath:   h.metricsPath,
		Version:       string(h.process.Version),
	}

	var buf bytes.Buffer
	if err := statusTemplate.Execute(&buf, view); err != nil {
		return fmt.Errorf("render status page: %w", err)
	}
	return c.HTMLBlob(http.StatusOK, buf.Bytes())
}

func describeWindow(seconds int) string {
	switch {
	case seconds%3600 == 0:
		return pluralUnit(seconds/3600, "hour")
	case seconds%60 == 0:
		return pluralUnit(seconds/60, "minute")
	default:
		return pluralUnit(seconds, "second")
	}
}

func pluralUnit(n int, unit string) string {
	if n == 1 {
		return unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
