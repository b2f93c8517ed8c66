// GadgetGrove - E-commerce Clickstream Analytics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gadgetgrove

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths are searched in order; the first existing file wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/gadgetgrove/config.yaml",
}

// ConfigPathEnvVar overrides the config file location.
const ConfigPathEnvVar = "CONFIG_PATH"

// DefaultQueues are the queues the storefront routes into.
var DefaultQueues = []string{
	"page_views",
	"user_events",
	"ecommerce_events",
	"analytics_events",
	"event_queue",
}

func defaultConfig() *Config {
	return &Config{
		NATS: NATSConfig{
			Enabled:         true,
			URL:             "nats://127.0.0.1:4222",
			EmbeddedServer:  true,
			Host:            "127.0.0.1",
			Port:            4222,
			StoreDir:        "/data/nats/jetstream",
			MaxMemory:       256 << 20, // 256MB
			MaxStore:        4 << 30,   // 4GB
			StreamName:      "CLICKSTREAM",
			SubjectPrefix:   "clickstream",
			StreamMaxAge:    7 * 24 * time.Hour,
			DuplicateWindow: 2 * time.Minute,
			AckWait:         30 * time.Second,
			MaxDeliver:      10,
			MaxAckPending:   1, // one in-flight message per queue, like prefetch=1
			CloseTimeout:    30 * time.Second,
		},
		Queues: QueuesConfig{
			Names:   append([]string(nil), DefaultQueues...),
			Default: "event_queue",
		},
		Staging: StagingConfig{
			Enabled:       true,
			RawDir:        "/data/raw",
			ProcessingDir: "/data/processing",
			ArchiveDir:    "/data/archive",
			ReportsDir:    "/data/reports",
			Extension:     ".json",
			Interval:      5 * time.Minute,
			RunOnStart:    false,
			Rediscovery:   "auto",
			RetryScope:    "transform",
			RetryAttempts: 3,
			RetryDelay:    30 * time.Second,
		},
		Transform: TransformConfig{
			Mode:    "loader",
			Command: "",
			Args:    []string{},
			Timeout: 30 * time.Minute,
			Strict:  true,
		},
		Retention: RetentionConfig{
			Enabled:    true,
			Hours:      24 * 7,
			Interval:   time.Hour,
			RunOnStart: true,
		},
		Warehouse: WarehouseConfig{
			Driver:          "duckdb",
			DuckDBPath:      "/data/warehouse.duckdb",
			Schema:          "raw_data",
			PostgresHost:    "localhost",
			PostgresPort:    5432,
			PostgresUser:    "postgres",
			PostgresDB:      "analytics",
			PostgresSSLMode: "disable",
		},
		Emitter: EmitterConfig{
			Enabled:           false,
			SessionsPerMinute: 6,
			Burst:             1,
			PurchaseRate:      0.9,
		},
		Server: ServerConfig{
			Host:    "0.0.0.0",
			Port:    8000,
			Timeout: 30 * time.Second,
		},
		Security: SecurityConfig{
			CORSOrigins:     []string{"*"},
			RateLimitReqs:   600,
			RateLimitWindow: time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads configuration from defaults, an optional YAML file and the
// environment (in increasing priority), then validates it.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths are parsed from comma-separated strings when set via env.
var sliceConfigPaths = []string{
	"queues.names",
	"transform.args",
	"security.cors_origins",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings maps environment variable names (lowercased) to koanf paths.
// RABBITMQ_QUEUE and SPARK_SCRIPT are kept for existing deployment files.
var envMappings = map[string]string{
	"nats_enabled":          "nats.enabled",
	"nats_url":              "nats.url",
	"nats_embedded":         "nats.embedded",
	"nats_host":             "nats.host",
	"nats_port":             "nats.port",
	"nats_store_dir":        "nats.store_dir",
	"nats_max_memory":       "nats.max_memory",
	"nats_max_store":        "nats.max_store",
	"nats_stream_name":      "nats.stream_name",
	"nats_subject_prefix":   "nats.subject_prefix",
	"nats_stream_max_age":   "nats.stream_max_age",
	"nats_ack_wait":         "nats.ack_wait",
	"nats_max_deliver":      "nats.max_deliver",
	"nats_max_ack_pending":  "nats.max_ack_pending",
	"nats_duplicate_window": "nats.duplicate_window",

	"queues":         "queues.names",
	"default_queue":  "queues.default",
	"rabbitmq_queue": "queues.default",

	"staging_enabled":        "staging.enabled",
	"raw_dir":                "staging.raw_dir",
	"processing_dir":         "staging.processing_dir",
	"archive_dir":            "staging.archive_dir",
	"reports_dir":            "staging.reports_dir",
	"staging_extension":      "staging.extension",
	"staging_interval":       "staging.interval",
	"staging_run_on_start":   "staging.run_on_start",
	"staging_rediscovery":    "staging.rediscovery",
	"staging_retry_scope":    "staging.retry_scope",
	"staging_retry_attempts": "staging.retry_attempts",
	"staging_retry_delay":    "staging.retry_delay",

	"transform_mode":    "transform.mode",
	"transform_command": "transform.command",
	"spark_script":      "transform.command",
	"transform_args":    "transform.args",
	"transform_timeout": "transform.timeout",
	"transform_strict":  "transform.strict",

	"retention_enabled":      "retention.enabled",
	"retention_hours":        "retention.hours",
	"retention_interval":     "retention.interval",
	"retention_run_on_start": "retention.run_on_start",

	"warehouse_driver":  "warehouse.driver",
	"duckdb_path":       "warehouse.duckdb_path",
	"warehouse_schema":  "warehouse.schema",
	"postgres_host":     "warehouse.postgres_host",
	"postgres_port":     "warehouse.postgres_port",
	"postgres_user":     "warehouse.postgres_user",
	"postgres_password": "warehouse.postgres_password",
	"postgres_db":       "warehouse.postgres_db",
	"postgres_sslmode":  "warehouse.postgres_sslmode",

	"emitter_enabled":             "emitter.enabled",
	"emitter_sessions_per_minute": "emitter.sessions_per_minute",
	"emitter_burst":               "emitter.burst",
	"emitter_purchase_rate":       "emitter.purchase_rate",
	"emitter_seed":                "emitter.seed",

	"http_host":          "server.host",
	"http_port":          "server.port",
	"server_timeout":     "server.timeout",
	"cors_origins":       "security.cors_origins",
	"rate_limit_reqs":    "security.rate_limit_requests",
	"rate_limit_window":  "security.rate_limit_window",
	"disable_rate_limit": "security.rate_limit_disabled",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc maps an environment variable name to a koanf path.
// Unmapped variables return "" and are ignored.
//
//   - RAW_DIR -> staging.raw_dir
//   - RETENTION_HOURS -> retention.hours
//   - POSTGRES_HOST -> warehouse.postgres_host
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
