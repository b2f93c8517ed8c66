// GadgetGrove - E-commerce Clickstream Analytics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gadgetgrove

package transform

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/gadgetgrove/internal/artifacts"
	"github.com/tomtom215/gadgetgrove/internal/eventprocessor"
	"github.com/tomtom215/gadgetgrove/internal/logging"
	"github.com/tomtom215/gadgetgrove/internal/warehouse"
)

// Artifact keys written by the Loader.
const (
	QueueArtifactPrefix = "spark-"
	TotalArtifactKey    = "spark-total"
)

const maxLineBytes = 1 << 20

// RowStore receives one batch of rows per transform.
type RowStore interface {
	InsertBatch(ctx context.Context, batch map[string][]warehouse.Row) (map[string]int, error)
}

// LoaderConfig configures a Loader.
type LoaderConfig struct {
	// Extension selects event files; defaults to ".json".
	Extension string
	// Strict fails the batch on the first malformed line. Otherwise
	// malformed lines are skipped and counted as rejected.
	Strict bool
	// Artifacts receives the per-queue and total reports. Nil discards.
	Artifacts artifacts.Writer
	// Queues restricts loading to these queue directories. Empty loads
	// every subdirectory.
	Queues []string
}

// Loader is the built-in Transform Step. Each configured queue is an
// immediate subdirectory of the processing directory; every event file
// below it is read line by line and the rows of all queues are inserted as
// one batch. Directories of other queues are left alone.
type Loader struct {
	store     RowStore
	queues    []string
	ext       string
	strict    bool
	artifacts artifacts.Writer
	now       func() time.Time
}

// NewLoader creates a Loader writing to store.
func NewLoader(store RowStore, cfg LoaderConfig) *Loader {
	if cfg.Extension == "" {
		cfg.Extension = ".json"
	}
	if cfg.Artifacts == nil {
		cfg.Artifacts = artifacts.Discard{}
	}
	return &Loader{
		store:     store,
		queues:    cfg.Queues,
		ext:       cfg.Extension,
		strict:    cfg.Strict,
		artifacts: cfg.Artifacts,
		now:       time.Now,
	}
}

// SetClock replaces the clock used for processed_timestamp.
func (l *Loader) SetClock(now func() time.Time) {
	l.now = now
}

// Transform implements Transformer.
func (l *Loader) Transform(ctx context.Context, dir string) (Result, error) {
	queues, err := queueDirs(dir, l.queues)
	if err != nil {
		return Result{}, &Error{Op: "load", Err: err}
	}

	processedAt := l.now().UTC()
	batch := make(map[string][]warehouse.Row, len(queues))
	var res Result
	for _, queue := range queues {
		files, err := l.eventFiles(filepath.Join(dir, queue))
		if err != nil {
			return Result{}, &Error{Op: "load", Err: err}
		}
		for _, path := range files {
			if err := ctx.Err(); err != nil {
				return Result{}, &Error{Op: "load", Err: err}
			}
			rows, rejected, err := l.readFile(path, queue, processedAt)
			if err != nil {
				return Result{}, err
			}
			res.Files++
			res.Rejected += rejected
			if len(rows) > 0 {
				batch[queue] = append(batch[queue], rows...)
			}
		}
	}

	if len(batch) > 0 {
		counts, err := l.store.InsertBatch(ctx, batch)
		if err != nil {
			return Result{}, &Error{Op: "load", Err: err}
		}
		res.PerQueue = counts
		for _, n := range counts {
			res.Accepted += n
		}
	}

	logging.Ctx(ctx).Info().
		Int("files", res.Files).
		Int("accepted", res.Accepted).
		Int("rejected", res.Rejected).
		Interface("per_queue", res.PerQueue).
		Msg("Loaded events into warehouse")

	l.report(ctx, queues, res, processedAt)
	return res, nil
}

// readFile decodes one event file. Each non-blank line is one event.
func (l *Loader) readFile(path, queue string, processedAt time.Time) ([]warehouse.Row, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, &Error{Op: "load", Err: err}
	}
	defer f.Close()

	var (
		rows     []warehouse.Row
		rejected int
		line     int
	)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64<<10), maxLineBytes)
	for scanner.Scan() {
		line++
		data := bytes.TrimSpace(scanner.Bytes())
		if len(data) == 0 {
			continue
		}
		event, err := eventprocessor.DeserializeEvent(data)
		if err == nil {
			var row warehouse.Row
			row, err = toRow(event, queue, processedAt)
			if err == nil {
				rows = append(rows, row)
				continue
			}
		}
		if l.strict {
			return nil, 0, &Error{Op: "decode", Diagnostic: path + ":" + strconv.Itoa(line), Err: err}
		}
		rejected++
		logging.Warn().
			Err(err).
			Str("file", path).
			Int("line", line).
			Msg("Skipping malformed event")
	}
	if err := scanner.Err(); err != nil {
		if l.strict {
			return nil, 0, &Error{Op: "decode", Diagnostic: path + ":" + strconv.Itoa(line+1), Err: err}
		}
		rejected++
		logging.Warn().Err(err).Str("file", path).Msg("Skipping unreadable remainder of event file")
	}
	return rows, rejected, nil
}

func toRow(e *eventprocessor.Event, queue string, processedAt time.Time) (warehouse.Row, error) {
	row := warehouse.Row{
		Type:               e.Type,
		Timestamp:          e.Timestamp,
		ServerTimestamp:    e.ServerTimestamp,
		SessionID:          e.SessionID,
		UserID:             e.UserID,
		ClientIP:           e.ClientIP,
		UserAgent:          e.UserAgent,
		URL:                e.URL,
		Path:               e.Path,
		QueueName:          queue,
		ReceivedAt:         e.ReceivedAt,
		ProcessedTimestamp: processedAt,
	}
	if len(e.Properties) > 0 {
		props, err := json.Marshal(e.Properties)
		if err != nil {
			return warehouse.Row{}, fmt.Errorf("encode properties: %w", err)
		}
		row.Properties = string(props)
	}
	return row, nil
}

// queueDirs lists the queue directories under dir, limited to allowed when
// it is not empty. A missing dir has none.
func queueDirs(dir string, allowed []string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}
	var queues []string
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if len(allowed) == 0 || slices.Contains(allowed, e.Name()) {
			queues = append(queues, e.Name())
		}
	}
	return queues, nil
}

func (l *Loader) eventFiles(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if path != root && strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() && !strings.HasPrefix(name, ".") && strings.HasSuffix(name, l.ext) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}
	sort.Strings(files)
	return files, nil
}

// report writes one artifact per queue that had files plus a total.
// Failures are logged; the rows are already committed.
func (l *Loader) report(ctx context.Context, queues []string, res Result, at time.Time) {
	for _, q := range queues {
		n := res.PerQueue[q]
		a := artifacts.Artifact{
			Key:         QueueArtifactPrefix + strings.ReplaceAll(q, "_", "-"),
			Title:       "Warehouse load: " + q,
			Status:      artifacts.StatusSuccess,
			GeneratedAt: at,
			Summary:     fmt.Sprintf("Processed `%d` records for `%s`", n, q),
			Fields:      []artifacts.Field{{Name: "Queue", Value: q}, {Name: "Records", Value: strconv.Itoa(n)}},
		}
		if n == 0 {
			a.Status = artifacts.StatusNoop
		}
		l.writeArtifact(ctx, a)
	}

	total := artifacts.Artifact{
		Key:         TotalArtifactKey,
		Title:       "Warehouse load summary",
		Status:      artifacts.StatusSuccess,
		GeneratedAt: at,
		Summary:     fmt.Sprintf("Total records processed: **%d**", res.Accepted),
		Fields: []artifacts.Field{
			{Name: "Files", Value: strconv.Itoa(res.Files)},
			{Name: "Accepted", Value: strconv.Itoa(res.Accepted)},
			{Name: "Rejected", Value: strconv.Itoa(res.Rejected)},
		},
	}
	if qs := res.Queues(); len(qs) > 0 {
		table := &artifacts.Table{Header: []string{"Queue", "Records"}}
		for _, q := range qs {
			table.Rows = append(table.Rows, []string{q, strconv.Itoa(res.PerQueue[q])})
		}
		total.Table = table
	} else {
		total.Status = artifacts.StatusNoop
	}
	l.writeArtifact(ctx, total)
}

func (l *Loader) writeArtifact(ctx context.Context, a artifacts.Artifact) {
	if err := l.artifacts.Write(ctx, a); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("key", a.Key).Msg("Failed to write transform artifact")
	}
}
