package config

import (
	"log/slog"
	"testing"
	"time"
	_ "time/tzdata"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "DB_DSN", "TIMEZONE", "BUSINESS_HOURS_JSON", "RATE_LIMIT_PER_MIN", "SHUTDOWN_TIMEOUT_SECONDS"} {
		t.Setenv(key, "")
	}
	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port, got %q", cfg.Port)
	}
	if cfg.Timezone != "UTC" {
		t.Fatalf("expected UTC, got %q", cfg.Timezone)
	}
	if cfg.RateLimitPerMinute != 120 {
		t.Fatalf("expected 120, got %d", cfg.RateLimitPerMinute)
	}
	if cfg.ShutdownTimeout != 10*time.Second {
		t.Fatalf("expected 10s, got %s", cfg.ShutdownTimeout)
	}

	hours, err := cfg.BusinessHours()
	if err != nil {
		t.Fatalf("business hours: %v", err)
	}
	if !hours.Day(time.Monday).Open || hours.Day(time.Sunday).Open {
		t.Fatalf("unexpected default hours %+v", hours.Days)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("RATE_LIMIT_PER_MIN", "abc")
	t.Setenv("OTEL_EXPORTER_OTLP_INSECURE", "true")
	t.Setenv("SHUTDOWN_TIMEOUT_SECONDS", "0")
	t.Setenv("TIMEZONE", "Asia/Jakarta")
	t.Setenv("BUSINESS_HOURS_JSON", `{"saturday":{"open":true,"open_time":"08:00","close_time":"12:00","slot_minutes":30}}`)

	cfg := Load()
	if cfg.Port != "9090" {
		t.Fatalf("expected 9090, got %q", cfg.Port)
	}
	if cfg.RateLimitPerMinute != 120 {
		t.Fatalf("invalid int should fall back, got %d", cfg.RateLimitPerMinute)
	}
	if !cfg.OTLPInsecure {
		t.Fatalf("expected insecure exporter")
	}
	if cfg.ShutdownTimeout != 0 {
		t.Fatalf("expected zero timeout, got %s", cfg.ShutdownTimeout)
	}

	hours, err := cfg.BusinessHours()
	if err != nil {
		t.Fatalf("business hours: %v", err)
	}
	if hours.Location.String() != "Asia/Jakarta" {
		t.Fatalf("unexpected location %s", hours.Location)
	}
	if day := hours.Day(time.Saturday); !day.Open || day.SlotMinutes != 30 {
		t.Fatalf("unexpected saturday %+v", day)
	}
	if hours.Day(time.Monday).Open {
		t.Fatalf("monday should be closed when not configured")
	}
}

func TestBusinessHoursErrors(t *testing.T) {
	if _, err := (Config{Timezone: "Mars/Olympus"}).BusinessHours(); err == nil {
		t.Fatalf("expected timezone error")
	}
	if _, err := (Config{Timezone: "UTC", BusinessHoursJSON: "{"}).BusinessHours(); err == nil {
		t.Fatalf("expected hours error")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for raw, want := range cases {
		if got := parseLevel(raw); got != want {
			t.Fatalf("parseLevel(%q) = %v, want %v", raw, got, want)
		}
	}
}
