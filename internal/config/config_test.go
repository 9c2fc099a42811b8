package config

import (
	"log/slog"
	"reflect"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.ListenAddr != ":8080" {
		t.Fatalf("unexpected ListenAddr %q", cfg.ListenAddr)
	}
	if cfg.RefreshInterval != 2*time.Second {
		t.Fatalf("unexpected RefreshInterval %s", cfg.RefreshInterval)
	}
	if cfg.HighCPUThreshold != 50 {
		t.Fatalf("unexpected HighCPUThreshold %v", cfg.HighCPUThreshold)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Fatalf("unexpected LogLevel %v", cfg.LogLevel)
	}
	if cfg.EnablePrometheus || cfg.EnablePprof {
		t.Fatalf("prometheus/pprof must be off by default")
	}
	if cfg.WS.MaxClients != 1024 {
		t.Fatalf("unexpected WS.MaxClients %d", cfg.WS.MaxClients)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("APP_LISTEN_ADDR", "127.0.0.1:9000")
	t.Setenv("APP_REFRESH_INTERVAL", "500ms")
	t.Setenv("APP_ALLOWED_ORIGINS", "https://example.com, https://other.test")
	t.Setenv("APP_HIGH_CPU_THRESHOLD", "-1")
	t.Setenv("APP_ENABLE_PROMETHEUS", "true")
	t.Setenv("APP_ENABLE_PPROF", "true")
	t.Setenv("APP_LOG_LEVEL", "debug")
	t.Setenv("APP_WS_MAX_CLIENTS", "2048")
	t.Setenv("APP_WS_WRITE_TIMEOUT", "10s")
	t.Setenv("APP_WS_READ_TIMEOUT", "45s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.ListenAddr != "127.0.0.1:9000" {
		t.Fatalf("ListenAddr override failed, got %q", cfg.ListenAddr)
	}
	if cfg.RefreshInterval != 500*time.Millisecond {
		t.Fatalf("RefreshInterval override failed, got %s", cfg.RefreshInterval)
	}
	wantOrigins := []string{"https://example.com", "https://other.test"}
	if !reflect.DeepEqual(cfg.AllowedOrigins, wantOrigins) {
		t.Fatalf("AllowedOrigins mismatch: %+v", cfg.AllowedOrigins)
	}
	if cfg.HighCPUThreshold != -1 {
		t.Fatalf("HighCPUThreshold override failed, got %v", cfg.HighCPUThreshold)
	}
	if !cfg.EnablePrometheus || !cfg.EnablePprof {
		t.Fatalf("prometheus/pprof overrides failed")
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Fatalf("LogLevel override failed, got %v", cfg.LogLevel)
	}
	if cfg.WS.MaxClients != 2048 {
		t.Fatalf("WS.MaxClients override failed, got %d", cfg.WS.MaxClients)
	}
	if cfg.WS.WriteTimeout != 10*time.Second || cfg.WS.ReadTimeout != 45*time.Second {
		t.Fatalf("WS timeout overrides failed: %+v", cfg.WS)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := []struct {
		name  string
		key   string
		value string
	}{
		{"bad interval", "APP_REFRESH_INTERVAL", "soon"},
		{"zero interval", "APP_REFRESH_INTERVAL", "0s"},
		{"bad threshold", "APP_HIGH_CPU_THRESHOLD", "half"},
		{"bad bool", "APP_ENABLE_PROMETHEUS", "maybe"},
		{"bad level", "APP_LOG_LEVEL", "loud"},
		{"zero clients", "APP_WS_MAX_CLIENTS", "0"},
		{"negative write timeout", "APP_WS_WRITE_TIMEOUT", "-1s"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.value)
			if _, err := Load(); err == nil {
				t.Fatalf("Load should reject %s=%q", tc.key, tc.value)
			}
		})
	}
}
