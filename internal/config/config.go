// GadgetGrove - E-commerce Clickstream Analytics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gadgetgrove

// Package config loads GadgetGrove configuration.
//
// Configuration is layered with Koanf v2 and read exactly once at process
// start; there is no hot reload:
//  1. Defaults: built-in values from defaultConfig()
//  2. Config file: optional YAML (CONFIG_PATH, config.yaml, /etc/gadgetgrove/config.yaml)
//  3. Environment variables: highest priority, mapped through envTransformFunc
//
// Sections:
//   - NATS: broker connection, embedded server, JetStream stream and consumer limits
//   - Queues: the named queues events are routed to and consumed from
//   - Staging: landing/processing/archive roots, schedule, retry policy
//   - Transform: which Transform Step runs and how
//   - Retention: archive sweeper window and schedule
//   - Warehouse: DuckDB or PostgreSQL connection
//   - Emitter: synthetic session generator
//   - Server, Security: HTTP API
//   - Logging
package config

import (
	"fmt"
	"net/url"
	"time"
)

// Config holds all application configuration.
type Config struct {
	NATS      NATSConfig      `koanf:"nats"`
	Queues    QueuesConfig    `koanf:"queues"`
	Staging   StagingConfig   `koanf:"staging"`
	Transform TransformConfig `koanf:"transform"`
	Retention RetentionConfig `koanf:"retention"`
	Warehouse WarehouseConfig `koanf:"warehouse"`
	Emitter   EmitterConfig   `koanf:"emitter"`
	Server    ServerConfig    `koanf:"server"`
	Security  SecurityConfig  `koanf:"security"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// NATSConfig configures the message broker.
type NATSConfig struct {
	Enabled        bool   `koanf:"enabled"`
	URL            string `koanf:"url"`
	EmbeddedServer bool   `koanf:"embedded"`
	Host           string `koanf:"host"`
	Port           int    `koanf:"port"`
	StoreDir       string `koanf:"store_dir"`
	MaxMemory      int64  `koanf:"max_memory"`
	MaxStore       int64  `koanf:"max_store"`

	// StreamName is the JetStream stream holding every queue.
	StreamName string `koanf:"stream_name"`
	// SubjectPrefix is prepended to queue names: <prefix>.<queue>.
	SubjectPrefix   string        `koanf:"subject_prefix"`
	StreamMaxAge    time.Duration `koanf:"stream_max_age"`
	DuplicateWindow time.Duration `koanf:"duplicate_window"`

	// AckWait and MaxDeliver are the broker's redelivery policy for
	// messages the consumer nacks or never acknowledges.
	AckWait       time.Duration `koanf:"ack_wait"`
	MaxDeliver    int           `koanf:"max_deliver"`
	MaxAckPending int           `koanf:"max_ack_pending"`
	CloseTimeout  time.Duration `koanf:"close_timeout"`
}

// QueuesConfig lists the named queues.
type QueuesConfig struct {
	Names []string `koanf:"names"`
	// Default receives events whose type has no routing entry.
	Default string `koanf:"default"`
}

// StagingConfig configures the file-based staging pipeline.
type StagingConfig struct {
	Enabled       bool   `koanf:"enabled"`
	RawDir        string `koanf:"raw_dir"`
	ProcessingDir string `koanf:"processing_dir"`
	ArchiveDir    string `koanf:"archive_dir"`
	ReportsDir    string `koanf:"reports_dir"`
	Extension     string `koanf:"extension"`

	Interval   time.Duration `koanf:"interval"`
	RunOnStart bool          `koanf:"run_on_start"`

	// Rediscovery is "auto" (failed batches in the processing area are
	// picked up by the next run) or "manual" (a run refuses to start while
	// the processing area holds files).
	Rediscovery string `koanf:"rediscovery"`

	// RetryScope is "transform" (retry only the Transform Step) or "run"
	// (retry the whole discover/stage/transform/archive cycle).
	RetryScope    string        `koanf:"retry_scope"`
	RetryAttempts int           `koanf:"retry_attempts"`
	RetryDelay    time.Duration `koanf:"retry_delay"`
}

// TransformConfig selects the Transform Step.
type TransformConfig struct {
	// Mode is "loader" (built-in warehouse loader) or "exec" (external command).
	Mode    string        `koanf:"mode"`
	Command string        `koanf:"command"`
	Args    []string      `koanf:"args"`
	Timeout time.Duration `koanf:"timeout"`
	// Strict fails the whole batch on any malformed line.
	Strict bool `koanf:"strict"`
}

// RetentionConfig configures the archive sweeper.
type RetentionConfig struct {
	Enabled    bool          `koanf:"enabled"`
	Hours      int           `koanf:"hours"`
	Interval   time.Duration `koanf:"interval"`
	RunOnStart bool          `koanf:"run_on_start"`
}

// Window returns the retention window as a duration.
func (r RetentionConfig) Window() time.Duration {
	return time.Duration(r.Hours) * time.Hour
}

// WarehouseConfig configures the relational warehouse.
type WarehouseConfig struct {
	// Driver is "duckdb" or "postgres".
	Driver     string `koanf:"driver"`
	DuckDBPath string `koanf:"duckdb_path"`
	Schema     string `koanf:"schema"`

	PostgresHost     string `koanf:"postgres_host"`
	PostgresPort     int    `koanf:"postgres_port"`
	PostgresUser     string `koanf:"postgres_user"`
	PostgresPassword string `koanf:"postgres_password"`
	PostgresDB       string `koanf:"postgres_db"`
	PostgresSSLMode  string `koanf:"postgres_sslmode"`
}

// PostgresDSN builds a pgx connection URL from the discrete settings.
func (w WarehouseConfig) PostgresDSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(w.PostgresUser, w.PostgresPassword),
		Host:     fmt.Sprintf("%s:%d", w.PostgresHost, w.PostgresPort),
		Path:     "/" + w.PostgresDB,
		RawQuery: "sslmode=" + url.QueryEscape(w.PostgresSSLMode),
	}
	return u.String()
}

// EmitterConfig configures the synthetic event emitter.
type EmitterConfig struct {
	Enabled           bool    `koanf:"enabled"`
	SessionsPerMinute float64 `koanf:"sessions_per_minute"`
	Burst             int     `koanf:"burst"`
	PurchaseRate      float64 `koanf:"purchase_rate"`
	// Seed of 0 means a random seed.
	Seed uint64 `koanf:"seed"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port"`
	Timeout time.Duration `koanf:"timeout"`
}

// SecurityConfig holds the HTTP CORS and rate-limit settings.
type SecurityConfig struct {
	CORSOrigins       []string      `koanf:"cors_origins"`
	RateLimitReqs     int           `koanf:"rate_limit_requests"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
}

// LoggingConfig mirrors logging.Config.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}
