// GadgetGrove - E-commerce Clickstream Analytics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gadgetgrove

package config

import (
	"fmt"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
)

// queueNamePattern keeps queue names usable both as a directory name and as
// a NATS subject token.
var queueNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)

// Rediscovery modes.
const (
	RediscoveryAuto   = "auto"
	RediscoveryManual = "manual"
)

// Retry scopes.
const (
	RetryScopeTransform = "transform"
	RetryScopeRun       = "run"
)

// Transform modes.
const (
	TransformModeLoader = "loader"
	TransformModeExec   = "exec"
)

// Warehouse drivers.
const (
	DriverDuckDB   = "duckdb"
	DriverPostgres = "postgres"
)

// Validate checks that the configuration is complete and consistent.
func (c *Config) Validate() error {
	if err := c.validateQueues(); err != nil {
		return err
	}
	if err := c.validateNATS(); err != nil {
		return err
	}
	if err := c.validateStaging(); err != nil {
		return err
	}
	if err := c.validateTransform(); err != nil {
		return err
	}
	if err := c.validateRetention(); err != nil {
		return err
	}
	if err := c.validateWarehouse(); err != nil {
		return err
	}
	if err := c.validateEmitter(); err != nil {
		return err
	}
	return c.validateServer()
}

func (c *Config) validateQueues() error {
	if len(c.Queues.Names) == 0 {
		return fmt.Errorf("QUEUES must name at least one queue")
	}
	seen := make(map[string]struct{}, len(c.Queues.Names))
	for _, q := range c.Queues.Names {
		if !queueNamePattern.MatchString(q) {
			return fmt.Errorf("queue name %q must match %s", q, queueNamePattern)
		}
		if _, dup := seen[q]; dup {
			return fmt.Errorf("queue %q is listed more than once", q)
		}
		seen[q] = struct{}{}
	}
	if !slices.Contains(c.Queues.Names, c.Queues.Default) {
		return fmt.Errorf("DEFAULT_QUEUE %q must be one of QUEUES", c.Queues.Default)
	}
	return nil
}

func (c *Config) validateNATS() error {
	if !c.NATS.Enabled {
		return nil
	}
	if !c.NATS.EmbeddedServer && c.NATS.URL == "" {
		return fmt.Errorf("NATS_URL is required when the embedded server is disabled")
	}
	if c.NATS.StreamName == "" || strings.ContainsAny(c.NATS.StreamName, ". *>") {
		return fmt.Errorf("NATS_STREAM_NAME %q is not a valid stream name", c.NATS.StreamName)
	}
	if c.NATS.SubjectPrefix == "" || strings.ContainsAny(c.NATS.SubjectPrefix, " *>") {
		return fmt.Errorf("NATS_SUBJECT_PREFIX %q is not a valid subject prefix", c.NATS.SubjectPrefix)
	}
	if c.NATS.AckWait <= 0 {
		return fmt.Errorf("NATS_ACK_WAIT must be positive, got %v", c.NATS.AckWait)
	}
	if c.NATS.MaxDeliver == 0 || c.NATS.MaxDeliver < -1 {
		return fmt.Errorf("NATS_MAX_DELIVER must be -1 (unlimited) or positive, got %d", c.NATS.MaxDeliver)
	}
	if c.NATS.MaxAckPending < 1 {
		return fmt.Errorf("NATS_MAX_ACK_PENDING must be at least 1, got %d", c.NATS.MaxAckPending)
	}
	return nil
}

func (c *Config) validateStaging() error {
	s := c.Staging
	roots := map[string]string{
		"RAW_DIR":        s.RawDir,
		"PROCESSING_DIR": s.ProcessingDir,
		"ARCHIVE_DIR":    s.ArchiveDir,
	}
	for name, dir := range roots {
		if dir == "" {
			return fmt.Errorf("%s is required", name)
		}
	}
	names := []string{"RAW_DIR", "PROCESSING_DIR", "ARCHIVE_DIR"}
	for i, a := range names {
		for _, b := range names[i+1:] {
			if pathsOverlap(roots[a], roots[b]) {
				return fmt.Errorf("%s (%s) and %s (%s) must not overlap", a, roots[a], b, roots[b])
			}
		}
	}
	if !strings.HasPrefix(s.Extension, ".") || len(s.Extension) < 2 {
		return fmt.Errorf("STAGING_EXTENSION must start with '.', got %q", s.Extension)
	}
	switch s.Rediscovery {
	case RediscoveryAuto, RediscoveryManual:
	default:
		return fmt.Errorf("STAGING_REDISCOVERY must be %q or %q, got %q", RediscoveryAuto, RediscoveryManual, s.Rediscovery)
	}
	switch s.RetryScope {
	case RetryScopeTransform, RetryScopeRun:
	default:
		return fmt.Errorf("STAGING_RETRY_SCOPE must be %q or %q, got %q", RetryScopeTransform, RetryScopeRun, s.RetryScope)
	}
	if s.RetryAttempts < 1 {
		return fmt.Errorf("STAGING_RETRY_ATTEMPTS must be at least 1, got %d", s.RetryAttempts)
	}
	if s.RetryDelay < 0 {
		return fmt.Errorf("STAGING_RETRY_DELAY must not be negative, got %v", s.RetryDelay)
	}
	if s.Enabled && s.Interval <= 0 {
		return fmt.Errorf("STAGING_INTERVAL must be positive, got %v", s.Interval)
	}
	return nil
}

// pathsOverlap reports whether a and b are the same directory or one
// contains the other.
func pathsOverlap(a, b string) bool {
	a, b = filepath.Clean(a), filepath.Clean(b)
	return a == b || isWithin(a, b) || isWithin(b, a)
}

func isWithin(parent, child string) bool {
	rel, err := filepath.Rel(parent, child)
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func (c *Config) validateTransform() error {
	switch c.Transform.Mode {
	case TransformModeLoader:
	case TransformModeExec:
		if strings.TrimSpace(c.Transform.Command) == "" {
			return fmt.Errorf("TRANSFORM_COMMAND (or SPARK_SCRIPT) is required when TRANSFORM_MODE=exec")
		}
	default:
		return fmt.Errorf("TRANSFORM_MODE must be %q or %q, got %q", TransformModeLoader, TransformModeExec, c.Transform.Mode)
	}
	if c.Transform.Timeout < 0 {
		return fmt.Errorf("TRANSFORM_TIMEOUT must not be negative, got %v", c.Transform.Timeout)
	}
	return nil
}

func (c *Config) validateRetention() error {
	if c.Retention.Hours < 0 {
		return fmt.Errorf("RETENTION_HOURS must not be negative, got %d", c.Retention.Hours)
	}
	if c.Retention.Enabled && c.Retention.Interval <= 0 {
		return fmt.Errorf("RETENTION_INTERVAL must be positive, got %v", c.Retention.Interval)
	}
	return nil
}

func (c *Config) validateWarehouse() error {
	switch c.Warehouse.Driver {
	case DriverDuckDB:
		if c.Warehouse.DuckDBPath == "" {
			return fmt.Errorf("DUCKDB_PATH is required when WAREHOUSE_DRIVER=duckdb")
		}
	case DriverPostgres:
		if c.Warehouse.PostgresHost == "" || c.Warehouse.PostgresDB == "" {
			return fmt.Errorf("POSTGRES_HOST and POSTGRES_DB are required when WAREHOUSE_DRIVER=postgres")
		}
	default:
		return fmt.Errorf("WAREHOUSE_DRIVER must be %q or %q, got %q", DriverDuckDB, DriverPostgres, c.Warehouse.Driver)
	}
	if !queueNamePattern.MatchString(c.Warehouse.Schema) {
		return fmt.Errorf("WAREHOUSE_SCHEMA %q is not a valid identifier", c.Warehouse.Schema)
	}
	return nil
}

func (c *Config) validateEmitter() error {
	if !c.Emitter.Enabled {
		return nil
	}
	if c.Emitter.SessionsPerMinute <= 0 {
		return fmt.Errorf("EMITTER_SESSIONS_PER_MINUTE must be positive, got %v", c.Emitter.SessionsPerMinute)
	}
	if c.Emitter.PurchaseRate < 0 || c.Emitter.PurchaseRate > 1 {
		return fmt.Errorf("EMITTER_PURCHASE_RATE must be within [0,1], got %v", c.Emitter.PurchaseRate)
	}
	if !c.NATS.Enabled {
		return fmt.Errorf("EMITTER_ENABLED requires NATS_ENABLED")
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if !c.Security.RateLimitDisabled {
		if c.Security.RateLimitReqs < 1 {
			return fmt.Errorf("RATE_LIMIT_REQS must be at least 1, got %d", c.Security.RateLimitReqs)
		}
		if c.Security.RateLimitWindow <= 0 {
			return fmt.Errorf("RATE_LIMIT_WINDOW must be positive, got %v", c.Security.RateLimitWindow)
		}
	}
	return nil
}
