package main

import (
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/fx"

	"overstat-proxy-go/internal/config"
)

func writeConfig(t *testing.T, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestOptions_Validate(t *testing.T) {
	tests := []struct {
		name string
		toml string
	}{
		{"defaults", ""},
		{"memory limiter", "[server.rate_limit]\nbackend = \"memory\"\n"},
		{"redis limiter", "[server.rate_limit]\nbackend = \"redis\"\n[server.rate_limit.redis]\naddr = \"127.0.0.1:6379\"\n"},
		{"rate limit off", "[server.rate_limit]\nenabled = false\n"},
		{"metrics off", "[metrics]\nenabled = false\n"},
		{"breaker and throttle", "[upstream]\nrequests_per_second = 5.0\n[upstream.breaker]\nenabled = true\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cli := &config.CLI{Config: writeConfig(t, tt.toml)}
			if err := fx.ValidateApp(options(cli)...); err != nil {
				t.Fatalf("ValidateApp() error = %v", err)
			}
		})
	}
}

func TestNewLogger_Levels(t *testing.T) {
	for _, lvl := range []string{"debug", "info", "warn", "error"} {
		cfg := config.Default()
		cfg.Log.Level = lvl
		cfg.Log.Format = "text"
		if newLogger(cfg) == nil {
			t.Fatalf("newLogger(%q) returned nil", lvl)
		}
	}
}
