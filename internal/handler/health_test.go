package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"overstat-proxy-go/internal/config"
	"overstat-proxy-go/internal/model"
)

func TestHealth_Healthy(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			t.Errorf("probe method = %q, want HEAD", r.Method)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	deps := newTestDeps(t, upstream.URL, func(cfg *config.Config) {
		cfg.Upstream.Breaker.Enabled = true
	})
	h := NewHealthHandler(deps.cfg, NewProcess("1.2.3"), deps.prober, deps.proxy)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/health", http.NoBody)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.Health(c); err != nil {
		t.Fatalf("Health() error = %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var body model.HealthReport
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.Status != "healthy" {
		t.Errorf("status = %q, want %q", body.Status, "healthy")
	}
	if body.Proxy.Version != "1.2.3" {
		t.Errorf("proxy.version = %q, want %q", body.Proxy.Version, "1.2.3")
	}
	if body.Proxy.PID == 0 || body.Proxy.Memory.Sys == 0 {
		t.Errorf("proxy process info not populated: %+v", body.Proxy)
	}
	if !body.Target.Reachable || body.Target.Status != http.StatusOK || body.Target.StatusText != "OK" {
		t.Errorf("target = %+v, want reachable 200 OK", body.Target)
	}
	if body.Target.ResponseTime < 0 {
		t.Errorf("responseTime = %d, want >= 0", body.Target.ResponseTime)
	}
	if body.Target.URL != upstream.URL {
		t.Errorf("target.url = %q, want %q", body.Target.URL, upstream.URL)
	}
	if body.Target.Breaker != "closed" {
		t.Errorf("target.breaker = %q, want %q", body.Target.Breaker, "closed")
	}
	if _, err := time.Parse(time.RFC3339Nano, body.Timestamp); err != nil {
		t.Errorf("timestamp %q not RFC 3339: %v", body.Timestamp, err)
	}
}

func TestHealth_UpstreamErrorStatusStillHealthy(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer upstream.Close()

	deps := newTestDeps(t, upstream.URL, nil)
	h := NewHealthHandler(deps.cfg, NewProcess("test"), deps.prober, deps.proxy)

	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/health", http.NoBody), rec)

	if err := h.Health(c); err != nil {
		t.Fatalf("Health() error = %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var body model.HealthReport
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.Target.Reachable {
		t.Error("target.reachable = true, want false for 403")
	}
	if body.Target.Status != http.StatusForbidden {
		t.Errorf("target.status = %d, want %d", body.Target.Status, http.StatusForbidden)
	}
}

func TestHealth_Unreachable(t *testing.T) {
	deps := newTestDeps(t, "http://127.0.0.1:1", nil)
	h := NewHealthHandler(deps.cfg, NewProcess("test"), deps.prober, deps.proxy)

	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/health", http.NoBody), rec)

	if err := h.Health(c); err != nil {
		t.Fatalf("Health() error = %v", err)
	}
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}

	var body model.UnhealthyReport
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.Status != "unhealthy" {
		t.Errorf("status = %q, want %q", body.Status, "unhealthy")
	}
	if body.Error == "" || body.Timestamp == "" {
		t.Errorf("error and timestamp must be set: %+v", body)
	}
}

func TestProcess_Uptime(t *testing.T) {
	p := &Process{Version: "test", Started: time.Now().Add(-90 * time.Second)}
	if got := p.Uptime(); got < 90*time.Second {
		t.Errorf("Uptime() = %v, want >= 90s", got)
	}
}
