package handler

import (
	"io"
	"log/slog"
	"testing"

	"overstat-proxy-go/internal/client"
	"overstat-proxy-go/internal/config"
	"overstat-proxy-go/internal/cors"
	"overstat-proxy-go/internal/service"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type testDeps struct {
	cfg    *config.Config
	proxy  *service.ProxyService
	prober *service.HealthProber
}

// newTestDeps wires the service layer against baseURL, bypassing the
// upstream host allowlist so httptest servers can stand in for Overstat.
func newTestDeps(t *testing.T, baseURL string, mutate func(*config.Config)) testDeps {
	t.Helper()
	cfg := config.Default()
	cfg.Upstream.BaseURL = baseURL
	cfg.Upstream.TimeoutSeconds = 5
	cfg.Health.TimeoutSeconds = 2
	if mutate != nil {
		mutate(cfg)
	}

	uc := client.NewUpstreamClient(cfg, testLogger, nil)
	svc, err := service.NewProxyServiceForTest(uc, cors.NewPolicy(cfg), cfg, testLogger)
	if err != nil {
		t.Fatalf("NewProxyServiceForTest: %v", err)
	}
	return testDeps{
		cfg:    cfg,
		proxy:  svc,
		prober: service.NewHealthProber(cfg, testLogger, nil),
	}
}
