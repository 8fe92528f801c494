package handler

import (
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/labstack/echo/v4"

	"overstat-proxy-go/internal/config"
	"overstat-proxy-go/internal/model"
	"overstat-proxy-go/internal/service"
)

// Version is a string type for dependency injection of the build version.
type Version string

// Process describes the running proxy instance.
type Process struct {
	Version Version
	Started time.Time
}

// NewProcess records the process start time.
func NewProcess(v Version) *Process {
	return &Process{Version: v, Started: time.Now()}
}

// Uptime returns the time elapsed since start.
func (p *Process) Uptime() time.Duration {
	return time.Since(p.Started)
}

// HealthHandler serves the /health endpoint.
type HealthHandler struct {
	process *Process
	target  string
	prober  *service.HealthProber
	proxy   *service.ProxyService
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(cfg *config.Config, p *Process, prober *service.HealthProber, proxy *service.ProxyService) *HealthHandler {
	return &HealthHandler{
		process: p,
		target:  cfg.Upstream.BaseURL,
		prober:  prober,
		proxy:   proxy,
	}
}

// Health probes the upstream and reports process and upstream state. Any
// HTTP answer from the upstream yields 200; a transport failure yields 503.
func (h *HealthHandler) Health(c echo.Context) error {
	res, err := h.prober.Probe(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, model.UnhealthyReport{
			Status:    "unhealthy",
			Error:     err.Error(),
			Timestamp: model.Timestamp(time.Now()),
		})
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	report := model.HealthReport{
		Status: "healthy",
		Proxy: model.ProxyInfo{
			Version: string(h.process.Version),
			Uptime:  h.process.Uptime().Seconds(),
			Memory: model.MemoryInfo{
				Alloc:     ms.Alloc,
				HeapInuse: ms.HeapInuse,
				Sys:       ms.Sys,
				NumGC:     ms.NumGC,
			},
			PID:        os.Getpid(),
			Goroutines: runtime.NumGoroutine(),
		},
		Target: model.TargetInfo{
			URL:          h.target,
			Reachable:    res.Reachable(),
			ResponseTime: res.Latency.Milliseconds(),
			Status:       res.StatusCode,
			StatusText:   res.Status,
		},
		Timestamp: model.Timestamp(time.Now()),
		Server: model.RuntimeInfo{
			Go:       runtime.Version(),
			Platform: runtime.GOOS,
			Arch:     runtime.GOARCH,
		},
	}
	if h.proxy != nil {
		report.Target.Breaker = h.proxy.BreakerState()
	}

	return c.JSON(http.StatusOK, report)
}
