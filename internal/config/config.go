package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"smartq/queue-service/internal/schedule"

	"github.com/joho/godotenv"
)

type Config struct {
	Port              string
	DatabaseURL       string
	RedisURL          string
	Timezone          string
	BusinessHoursJSON string

	RateLimitPerMinute      int
	RateLimitBurst          int
	StaffRateLimitPerMinute int
	StaffRateLimitBurst     int

	LogLevel  string
	LogFormat string

	OTLPEndpoint string
	OTLPInsecure bool

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Load reads the environment, after merging a .env file from the working
// directory when one exists. Variables already set win over the file.
func Load() Config {
	_ = godotenv.Load()

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	return Config{
		Port:                    port,
		DatabaseURL:             os.Getenv("DB_DSN"),
		RedisURL:                os.Getenv("REDIS_URL"),
		Timezone:                readString("TIMEZONE", "UTC"),
		BusinessHoursJSON:       os.Getenv("BUSINESS_HOURS_JSON"),
		RateLimitPerMinute:      readInt("RATE_LIMIT_PER_MIN", 120),
		RateLimitBurst:          readInt("RATE_LIMIT_BURST", 30),
		StaffRateLimitPerMinute: readInt("STAFF_RATE_LIMIT_PER_MIN", 600),
		StaffRateLimitBurst:     readInt("STAFF_RATE_LIMIT_BURST", 120),
		LogLevel:                readString("LOG_LEVEL", "info"),
		LogFormat:               readString("LOG_FORMAT", "json"),
		OTLPEndpoint:            os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		OTLPInsecure:            readBool("OTEL_EXPORTER_OTLP_INSECURE", false),
		ReadTimeout:             readDurationSeconds("SERVER_READ_TIMEOUT_SECONDS", 10),
		WriteTimeout:            readDurationSeconds("SERVER_WRITE_TIMEOUT_SECONDS", 10),
		ShutdownTimeout:         readDurationSeconds("SHUTDOWN_TIMEOUT_SECONDS", 10),
	}
}

// BusinessHours resolves the timezone and the configured opening hours,
// falling back to the Monday to Friday default.
func (c Config) BusinessHours() (schedule.BusinessHours, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return schedule.BusinessHours{}, fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	if strings.TrimSpace(c.BusinessHoursJSON) == "" {
		return schedule.DefaultHours(loc), nil
	}
	return schedule.ParseHours(c.BusinessHoursJSON, loc)
}

func (c Config) Logger() *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(c.LogLevel)}
	var handler slog.Handler
	if strings.EqualFold(c.LogFormat, "text") {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.New(handler).With("service", "queue-service")
}

func parseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func readString(key, fallback string) string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	return raw
}

func readDurationSeconds(key string, fallback int) time.Duration {
	value := readInt(key, fallback)
	if value <= 0 {
		return 0
	}
	return time.Duration(value) * time.Second
}

func readInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func readBool(key string, fallback bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return value
}
