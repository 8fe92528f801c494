package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"overstat-proxy-go/internal/config"
	"overstat-proxy-go/internal/metrics"
	"overstat-proxy-go/internal/model"
)

// HealthProber issues a HEAD request against a known-good upstream endpoint.
// It uses its own client and timeout so that forwarding settings (throttle,
// breaker) never mask the probe result.
type HealthProber struct {
	httpClient *http.Client
	url        string
	userAgent  string
	timeout    time.Duration
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewHealthProber creates a HealthProber. The metrics parameter is optional.
func NewHealthProber(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *HealthProber {
	timeout := time.Duration(cfg.Health.TimeoutSeconds) * time.Second
	return &HealthProber{
		httpClient: &http.Client{Timeout: timeout},
		url:        strings.TrimSuffix(cfg.Upstream.BaseURL, "/") + cfg.Health.ProbePath,
		userAgent:  cfg.Health.UserAgent,
		timeout:    timeout,
		logger:     logger.With("component", "health_prober"),
		metrics:    m,
	}
}

// Probe performs one synthetic request. Any HTTP response counts as a
// successful probe; only transport failures and timeouts return an error.
func (p *HealthProber) Probe(ctx context.Context) (*model.ProbeResult, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build probe request: %w", err)
	}
	req.Header.Set("User-Agent", p.userAgent)

	start := time.Now()
	resp, err := p.httpClient.Do(req)
	latency := time.Since(start)

	if p.metrics != nil {
		p.metrics.HealthProbeDuration.Observe(latency.Seconds())
	}
	if err != nil {
		p.logger.Warn("health probe failed", "url", p.url, "err", err)
		return nil, fmt.Errorf("health probe: %w", err)
	}
	_ = resp.Body.Close()

	return &model.ProbeResult{
		URL:        p.url,
		StatusCode: resp.StatusCode,
		Status:     http.StatusText(resp.StatusCode),
		Latency:    latency,
	}, nil
}
