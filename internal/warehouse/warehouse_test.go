// GadgetGrove - E-commerce Clickstream Analytics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gadgetgrove

package warehouse

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"testing"
	"time"
)

// openMemory opens an in-memory DuckDB warehouse closed at test end.
func openMemory(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), Config{Driver: DriverDuckDB, DuckDBPath: MemoryPath})
	if err != nil {
		t.Fatalf("open warehouse: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func sampleRow(queue, typ, session string) Row {
	ts := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	return Row{
		Type:               typ,
		Timestamp:          ts,
		SessionID:          session,
		Path:               "/",
		Properties:         `{"value":10.5}`,
		QueueName:          queue,
		ReceivedAt:         &ts,
		ProcessedTimestamp: ts.Add(time.Minute),
	}
}

func TestTableName(t *testing.T) {
	tests := []struct {
		schema, queue, want string
		wantErr             bool
	}{
		{"raw_data", "page_views", `"raw_data"."page_views"`, false},
		{"raw_data", "user-events", `"raw_data"."user_events"`, false},
		{"raw_data", "bad;drop", "", true},
		{"raw data", "page_views", "", true},
		{"raw_data", "", "", true},
	}
	for _, tt := range tests {
		got, err := TableName(tt.schema, tt.queue)
		if (err != nil) != tt.wantErr {
			t.Errorf("TableName(%q, %q) err = %v, wantErr %v", tt.schema, tt.queue, err, tt.wantErr)
			continue
		}
		if err != nil && !errors.Is(err, ErrInvalidIdentifier) {
			t.Errorf("expected ErrInvalidIdentifier, got %v", err)
		}
		if got != tt.want {
			t.Errorf("TableName(%q, %q) = %q, want %q", tt.schema, tt.queue, got, tt.want)
		}
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: "sqlite"})
	if !errors.Is(err, ErrUnknownDriver) {
		t.Errorf("expected ErrUnknownDriver, got %v", err)
	}
}

func TestOpenRejectsBadPostgresDSN(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: DriverPostgres, PostgresDSN: "postgres://%zz"})
	if err == nil {
		t.Error("expected DSN parse error")
	}
}

func TestInsertBatch(t *testing.T) {
	db := openMemory(t)
	ctx := context.Background()

	counts, err := db.InsertBatch(ctx, map[string][]Row{
		"page_views":       {sampleRow("page_views", "page_view", "s1"), sampleRow("page_views", "page_view", "s2")},
		"ecommerce_events": {sampleRow("ecommerce_events", "purchase", "s1")},
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if counts["page_views"] != 2 || counts["ecommerce_events"] != 1 {
		t.Errorf("counts = %v", counts)
	}

	tables, err := db.Tables(ctx)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !slices.Equal(tables, []string{"ecommerce_events", "page_views"}) {
		t.Errorf("Tables() = %v", tables)
	}

	n, err := db.CountRows(ctx, "page_views")
	if err != nil || n != 2 {
		t.Errorf("CountRows(page_views) = %d, %v", n, err)
	}
	n, err = db.CountRows(ctx, "user_events")
	if err != nil || n != 0 {
		t.Errorf("CountRows(user_events) = %d, %v; missing tables count as zero", n, err)
	}

	var session, queue string
	var ts time.Time
	var userID *string
	row := db.QueryRowContext(ctx,
		`SELECT "session_id", "queue_name", "timestamp", "user_id" FROM "raw_data"."ecommerce_events"`)
	if err := row.Scan(&session, &queue, &ts, &userID); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if session != "s1" || queue != "ecommerce_events" || !ts.Equal(time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("row = %s %s %v", session, queue, ts)
	}
	if userID != nil {
		t.Errorf("empty user id should be NULL, got %q", *userID)
	}
}

func TestInsertBatchIsAtomic(t *testing.T) {
	db := openMemory(t)
	ctx := context.Background()

	// A table with the wrong shape makes the second insert of the batch fail.
	if _, err := db.conn.ExecContext(ctx, `CREATE TABLE "raw_data"."user_events" (x INTEGER)`); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	_, err := db.InsertBatch(ctx, map[string][]Row{
		"page_views":  {sampleRow("page_views", "page_view", "s1")},
		"user_events": {sampleRow("user_events", "identify", "s1")},
	})
	if err == nil {
		t.Fatal("expected insert error")
	}

	n, err := db.CountRows(ctx, "page_views")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if n != 0 {
		t.Errorf("page_views has %d rows, want 0 after a failed batch", n)
	}

	if _, err := db.InsertBatch(ctx, map[string][]Row{"bad-queue;": {sampleRow("x", "page_view", "s")}}); !errors.Is(err, ErrInvalidIdentifier) {
		t.Errorf("expected ErrInvalidIdentifier, got %v", err)
	}
}

func TestOpenDuckDBFileCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "warehouse.duckdb")
	db, err := Open(context.Background(), Config{Driver: DriverDuckDB, DuckDBPath: path, Schema: "analytics"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	defer db.Close()

	if db.Schema() != "analytics" || db.Driver() != DriverDuckDB {
		t.Errorf("schema=%s driver=%s", db.Schema(), db.Driver())
	}
	if err := db.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
}
