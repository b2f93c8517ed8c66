// GadgetGrove - E-commerce Clickstream Analytics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gadgetgrove

// Package warehouse is the relational store the Transform Step loads events
// into. Each queue has one append-only table <schema>.<queue> with a fixed
// column set; nothing in this module deletes warehouse rows.
//
// DuckDB is the default driver (a single file, or in memory for tests).
// PostgreSQL is supported through pgx's database/sql driver for deployments
// that keep the original warehouse. Both accept $n placeholders, so the SQL
// here is shared.
package warehouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/jackc/pgx/v5"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/tomtom215/gadgetgrove/internal/config"
	"github.com/tomtom215/gadgetgrove/internal/logging"
)

// Supported drivers.
const (
	DriverDuckDB   = "duckdb"
	DriverPostgres = "postgres"
)

// MemoryPath opens an in-memory DuckDB database.
const MemoryPath = ":memory:"

var (
	// ErrUnknownDriver is returned by Open for an unsupported driver.
	ErrUnknownDriver = errors.New("unknown warehouse driver")

	// ErrInvalidIdentifier is returned for schema or queue names that are
	// not safe SQL identifiers.
	ErrInvalidIdentifier = errors.New("invalid identifier")
)

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// Config selects and configures the warehouse backend.
type Config struct {
	Driver      string
	DuckDBPath  string
	PostgresDSN string
	Schema      string
}

// ConfigFrom maps the application configuration.
func ConfigFrom(c config.WarehouseConfig) Config {
	cfg := Config{Driver: c.Driver, DuckDBPath: c.DuckDBPath, Schema: c.Schema}
	if c.Driver == DriverPostgres {
		cfg.PostgresDSN = c.PostgresDSN()
	}
	return cfg
}

// DB is an open warehouse.
type DB struct {
	conn   *sql.DB
	driver string
	schema string

	mu      sync.Mutex
	ensured map[string]string // queue -> qualified table name
}

// Open connects to the warehouse and creates the schema.
func Open(ctx context.Context, cfg Config) (*DB, error) {
	schema := cfg.Schema
	if schema == "" {
		schema = "raw_data"
	}
	if !identPattern.MatchString(schema) {
		return nil, fmt.Errorf("%w: schema %q", ErrInvalidIdentifier, schema)
	}

	var (
		conn *sql.DB
		err  error
	)
	switch cfg.Driver {
	case DriverDuckDB, "":
		conn, err = openDuckDB(cfg.DuckDBPath)
		cfg.Driver = DriverDuckDB
	case DriverPostgres:
		conn, err = openPostgres(cfg.PostgresDSN)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	db := &DB{conn: conn, driver: cfg.Driver, schema: schema, ensured: make(map[string]string)}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		closeQuietly(conn)
		return nil, fmt.Errorf("ping %s warehouse: %w", cfg.Driver, err)
	}
	if _, err := conn.ExecContext(ctx, "CREATE SCHEMA IF NOT EXISTS "+quoteIdent(schema)); err != nil {
		closeQuietly(conn)
		return nil, fmt.Errorf("create schema %s: %w", schema, err)
	}

	logging.Info().
		Str("driver", cfg.Driver).
		Str("schema", schema).
		Msg("Warehouse opened")
	return db, nil
}

func openDuckDB(path string) (*sql.DB, error) {
	dsn := path
	if path == MemoryPath {
		dsn = ""
	} else if path != "" {
		if dir := filepath.Dir(path); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("create warehouse directory %s: %w", dir, err)
			}
		}
	}
	conn, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	return conn, nil
}

func openPostgres(dsn string) (*sql.DB, error) {
	if _, err := pgx.ParseConfig(dsn); err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	conn, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	conn.SetMaxOpenConns(4)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(time.Hour)
	return conn, nil
}

func closeQuietly(conn *sql.DB) {
	if err := conn.Close(); err != nil {
		logging.Warn().Err(err).Msg("Failed to close warehouse connection")
	}
}

// Driver returns the active driver name.
func (db *DB) Driver() string {
	return db.driver
}

// Schema returns the warehouse schema.
func (db *DB) Schema() string {
	return db.schema
}

// Ping checks the connection.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Close closes the connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// QueryContext runs a read query.
func (db *DB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return db.conn.QueryContext(ctx, query, args...)
}

// QueryRowContext runs a single-row read query.
func (db *DB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return db.conn.QueryRowContext(ctx, query, args...)
}

// TableIdent maps a queue name to its table identifier: "-" becomes "_".
func TableIdent(queue string) (string, error) {
	name := strings.ReplaceAll(queue, "-", "_")
	if !identPattern.MatchString(name) {
		return "", fmt.Errorf("%w: queue %q", ErrInvalidIdentifier, queue)
	}
	return name, nil
}

// TableName returns the quoted, schema-qualified table for a queue.
func TableName(schema, queue string) (string, error) {
	if !identPattern.MatchString(schema) {
		return "", fmt.Errorf("%w: schema %q", ErrInvalidIdentifier, schema)
	}
	table, err := TableIdent(queue)
	if err != nil {
		return "", err
	}
	return quoteIdent(schema) + "." + quoteIdent(table), nil
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// Tables returns the table identifiers present in the warehouse schema.
func (db *DB) Tables(ctx context.Context) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT table_name FROM information_schema.tables WHERE table_schema = $1 ORDER BY table_name`,
		db.schema)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}
