package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config carries the settings shared by every pipeline binary. Each binary
// reads only the fields it needs; unset broker values fall back to the
// docker-compose defaults.
type Config struct {
	RabbitHost string
	RabbitPort int

	// Aggregator
	AggregationWindow time.Duration

	// Validator
	SimulateErrors bool

	// Audit
	LogFilePath string
	AuditDBPath string

	// Publisher
	EventRate   float64
	EnableBurst bool
	Regions     []string

	// Dashboard / health
	DashboardAddr string
	MetricsAddr   string

	LogLevel  string
	LogFormat string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	cfg.RabbitHost = getEnv("RABBITMQ_HOST", "localhost")
	cfg.RabbitPort = getIntEnv("RABBITMQ_PORT", 5672)

	window := getFloatEnv("AGGREGATION_WINDOW", 5.0)
	if window <= 0 {
		return nil, fmt.Errorf("AGGREGATION_WINDOW must be positive, got %v", window)
	}
	cfg.AggregationWindow = time.Duration(window * float64(time.Second))

	cfg.SimulateErrors = getEnv("SIMULATE_ERRORS", "false") == "true"

	cfg.LogFilePath = getEnv("LOG_FILE_PATH", "/data/audit_log.jsonl")
	cfg.AuditDBPath = getEnv("AUDIT_DB_PATH", "/data/audit.db")

	cfg.EventRate = getFloatEnv("EVENT_RATE", 1.0)
	if cfg.EventRate <= 0 {
		return nil, fmt.Errorf("EVENT_RATE must be positive, got %v", cfg.EventRate)
	}
	cfg.EnableBurst = strings.ToLower(getEnv("ENABLE_BURST", "false")) == "true"
	cfg.Regions = splitCSV(getEnv("REGIONS", "norte,sur,centro,este,oeste"))

	cfg.DashboardAddr = getEnv("DASHBOARD_ADDR", ":5000")
	cfg.MetricsAddr = getEnv("METRICS_ADDR", ":8081")

	cfg.LogLevel = getEnv("LOG_LEVEL", "info")
	cfg.LogFormat = getEnv("LOG_FORMAT", "console")

	return cfg, nil
}

// AMQPURL builds the broker URL from host/port.
func (c *Config) AMQPURL() string {
	return fmt.Sprintf("amqp://guest:guest@%s:%d/", c.RabbitHost, c.RabbitPort)
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func getEnv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getIntEnv(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getFloatEnv(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}
