package config

import (
	"os"
	"strconv"
)

// Config holds all configuration for the Papermill action service.
type Config struct {
	Port      int
	Version   string
	Backend   BackendConfig
	Host      HostConfig
	Approval  ApprovalConfig
	Executor  ExecutorConfig
	Telemetry TelemetryConfig
}

// BackendConfig points at the backend of record.
type BackendConfig struct {
	URL    string
	APIKey string
}

// HostConfig points at the local library connector.
type HostConfig struct {
	ConnectorURL string
}

// ApprovalConfig carries the optional auto-approval rule (expr syntax).
type ApprovalConfig struct {
	PolicyRule string
}

// ExecutorConfig bounds host-side batch concurrency.
type ExecutorConfig struct {
	Window int
}

type TelemetryConfig struct {
	Enabled      bool
	OTLPEndpoint string
	ServiceName  string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		Port:    envInt("PAPERMILL_PORT", 8750),
		Version: envStr("PAPERMILL_VERSION", "0.4.0"),
		Backend: BackendConfig{
			URL:    envStr("PAPERMILL_BACKEND_URL", "http://localhost:8751"),
			APIKey: envStr("PAPERMILL_BACKEND_API_KEY", ""),
		},
		Host: HostConfig{
			ConnectorURL: envStr("PAPERMILL_CONNECTOR_URL", "http://127.0.0.1:23119"),
		},
		Approval: ApprovalConfig{
			PolicyRule: envStr("PAPERMILL_APPROVAL_POLICY", ""),
		},
		Executor: ExecutorConfig{
			Window: envInt("PAPERMILL_BATCH_CONCURRENCY", 4),
		},
		Telemetry: TelemetryConfig{
			Enabled:      envBool("OTEL_ENABLED", false),
			OTLPEndpoint: envStr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			ServiceName:  envStr("OTEL_SERVICE_NAME", "papermill-actions"),
		},
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
