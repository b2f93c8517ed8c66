// GadgetGrove - E-commerce Clickstream Analytics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gadgetgrove

package warehouse

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"
)

// Row is one event as stored in a queue table.
type Row struct {
	Type               string
	Timestamp          time.Time
	ServerTimestamp    *time.Time
	SessionID          string
	UserID             string
	ClientIP           string
	UserAgent          string
	URL                string
	Path               string
	Properties         string // JSON object text
	QueueName          string
	ReceivedAt         *time.Time
	ProcessedTimestamp time.Time
}

// Columns lists the queue table columns in insert order.
var Columns = []string{
	"type", "timestamp", "server_timestamp", "session_id", "user_id",
	"client_ip", "user_agent", "url", "path", "properties",
	"queue_name", "received_at", "processed_timestamp",
}

func createTableSQL(table string) string {
	return `CREATE TABLE IF NOT EXISTS ` + table + ` (
	"type"                VARCHAR NOT NULL,
	"timestamp"           TIMESTAMP NOT NULL,
	"server_timestamp"    TIMESTAMP,
	"session_id"          VARCHAR,
	"user_id"             VARCHAR,
	"client_ip"           VARCHAR,
	"user_agent"          VARCHAR,
	"url"                 VARCHAR,
	"path"                VARCHAR,
	"properties"          VARCHAR,
	"queue_name"          VARCHAR NOT NULL,
	"received_at"         TIMESTAMP,
	"processed_timestamp" TIMESTAMP NOT NULL
)`
}

func insertSQL(table string) string {
	cols := make([]string, len(Columns))
	params := make([]string, len(Columns))
	for i, c := range Columns {
		cols[i] = quoteIdent(c)
		params[i] = fmt.Sprintf("$%d", i+1)
	}
	return `INSERT INTO ` + table + ` (` + strings.Join(cols, ", ") + `) VALUES (` + strings.Join(params, ", ") + `)`
}

func (r Row) args() []any {
	return []any{
		r.Type, r.Timestamp.UTC(), nullTime(r.ServerTimestamp), nullString(r.SessionID), nullString(r.UserID),
		nullString(r.ClientIP), nullString(r.UserAgent), nullString(r.URL), nullString(r.Path), nullString(r.Properties),
		r.QueueName, nullTime(r.ReceivedAt), r.ProcessedTimestamp.UTC(),
	}
}

// nullString and nullTime bind empty values as NULL.
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

// EnsureTable creates the queue table if needed and returns its qualified
// name.
func (db *DB) EnsureTable(ctx context.Context, queue string) (string, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if table, ok := db.ensured[queue]; ok {
		return table, nil
	}
	table, err := TableName(db.schema, queue)
	if err != nil {
		return "", err
	}
	if _, err := db.conn.ExecContext(ctx, createTableSQL(table)); err != nil {
		return "", fmt.Errorf("create table %s: %w", table, err)
	}
	db.ensured[queue] = table
	return table, nil
}

// InsertRows appends rows to the queue table in one transaction.
func (db *DB) InsertRows(ctx context.Context, queue string, rows []Row) (int, error) {
	counts, err := db.InsertBatch(ctx, map[string][]Row{queue: rows})
	return counts[queue], err
}

// InsertBatch appends rows for several queues in a single transaction:
// either every row is written or none is.
func (db *DB) InsertBatch(ctx context.Context, batch map[string][]Row) (map[string]int, error) {
	queues := slices.Sorted(maps.Keys(batch))
	tables := make(map[string]string, len(queues))
	for _, q := range queues {
		table, err := db.EnsureTable(ctx, q)
		if err != nil {
			return nil, err
		}
		tables[q] = table
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after Commit

	counts := make(map[string]int, len(queues))
	for _, q := range queues {
		if len(batch[q]) == 0 {
			continue
		}
		stmt, err := tx.PrepareContext(ctx, insertSQL(tables[q]))
		if err != nil {
			return nil, fmt.Errorf("prepare insert %s: %w", tables[q], err)
		}
		for i, r := range batch[q] {
			if _, err := stmt.ExecContext(ctx, r.args()...); err != nil {
				stmt.Close()
				return nil, fmt.Errorf("insert %s row %d: %w", tables[q], i, err)
			}
		}
		if err := stmt.Close(); err != nil {
			return nil, err
		}
		counts[q] = len(batch[q])
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return counts, nil
}

// CountRows returns the number of rows in a queue table, or 0 if the table
// does not exist.
func (db *DB) CountRows(ctx context.Context, queue string) (int, error) {
	ident, err := TableIdent(queue)
	if err != nil {
		return 0, err
	}
	tables, err := db.Tables(ctx)
	if err != nil {
		return 0, err
	}
	if !slices.Contains(tables, ident) {
		return 0, nil
	}
	table, _ := TableName(db.schema, queue)
	var n int
	if err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}
