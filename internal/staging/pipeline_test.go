// GadgetGrove - E-commerce Clickstream Analytics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gadgetgrove

package staging

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/tomtom215/gadgetgrove/internal/artifacts"
	"github.com/tomtom215/gadgetgrove/internal/transform"
	"github.com/tomtom215/gadgetgrove/internal/warehouse"
)

var testQueues = []string{"page_views", "user_events", "ecommerce_events", "analytics_events", "event_queue"}

func newAreas(t *testing.T) Areas {
	t.Helper()
	base := t.TempDir()
	return Areas{
		Landing:    filepath.Join(base, "raw"),
		Processing: filepath.Join(base, "processing"),
		Archive:    filepath.Join(base, "archive"),
	}
}

func writeFile(t *testing.T, root, rel string) string {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(`{"type":"page_view"}`+"\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func fileExists(t *testing.T, path string) bool {
	t.Helper()
	ok, err := exists(path)
	if err != nil {
		t.Fatalf("stat %s: %v", path, err)
	}
	return ok
}

func countFiles(t *testing.T, root string) int {
	t.Helper()
	n := 0
	_ = filepath.WalkDir(root, func(_ string, d os.DirEntry, err error) error {
		if err == nil && !d.IsDir() {
			n++
		}
		return nil
	})
	return n
}

// countingTransformer accepts one row per file and counts invocations.
type countingTransformer struct {
	calls atomic.Int32
	fail  int32 // fail the first n calls
}

func (c *countingTransformer) Transform(_ context.Context, dir string) (transform.Result, error) {
	call := c.calls.Add(1)
	if call <= c.fail {
		return transform.Result{}, &transform.Error{Op: "exec", Diagnostic: "spark exited 1", Err: errors.New("exit status 1")}
	}
	res := transform.Result{PerQueue: map[string]int{}}
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, _ := filepath.Rel(dir, path)
		queue, _, _ := strings.Cut(filepath.ToSlash(rel), "/")
		res.PerQueue[queue]++
		res.Accepted++
		res.Files++
		return nil
	})
	return res, err
}

func newPipeline(t *testing.T, areas Areas, tr transform.Transformer, mutate func(*Config)) *Pipeline {
	t.Helper()
	cfg := Config{
		Areas:       areas,
		Queues:      testQueues,
		Transformer: tr,
		Retry:       RetryPolicy{MaxAttempts: 3},
	}
	if mutate != nil {
		mutate(&cfg)
	}
	p, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func TestNewValidation(t *testing.T) {
	areas := Areas{Landing: "/a", Processing: "/b", Archive: "/c"}
	tr := transform.Func(func(context.Context, string) (transform.Result, error) { return transform.Result{}, nil })

	tests := []struct {
		name string
		cfg  Config
	}{
		{"missing roots", Config{Queues: testQueues, Transformer: tr}},
		{"no queues", Config{Areas: areas, Transformer: tr}},
		{"no transformer", Config{Areas: areas, Queues: testQueues}},
		{"bad scope", Config{Areas: areas, Queues: testQueues, Transformer: tr, RetryScope: "batch"}},
		{"bad rediscovery", Config{Areas: areas, Queues: testQueues, Transformer: tr, Rediscovery: "sometimes"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.cfg); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestDiscover(t *testing.T) {
	areas := newAreas(t)
	writeFile(t, areas.Landing, "user_events/identify/b.json")
	writeFile(t, areas.Landing, "page_views/page_view/a.json")
	writeFile(t, areas.Landing, "page_views/page_view/.a.json-123.tmp")
	writeFile(t, areas.Landing, "page_views/page_view/notes.txt")
	writeFile(t, areas.Landing, "unconfigured/x/c.json")
	writeFile(t, areas.Processing, "ecommerce_events/purchase/old.json")

	t.Run("auto includes processing", func(t *testing.T) {
		p := newPipeline(t, areas, &countingTransformer{}, nil)
		files, err := p.Discover(context.Background())
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		want := []string{
			filepath.Join("page_views", "page_view", "a.json"),
			filepath.Join("user_events", "identify", "b.json"),
			filepath.Join("ecommerce_events", "purchase", "old.json"),
		}
		if len(files) != len(want) {
			t.Fatalf("got %d files (%v), want %d", len(files), files, len(want))
		}
		for i, f := range files {
			if f.Rel != want[i] {
				t.Errorf("files[%d].Rel = %q, want %q", i, f.Rel, want[i])
			}
		}
		if files[2].Area != AreaProcessing || files[2].Queue != "ecommerce_events" {
			t.Errorf("unexpected processing entry: %+v", files[2])
		}
	})

	t.Run("manual is landing only", func(t *testing.T) {
		p := newPipeline(t, areas, &countingTransformer{}, func(c *Config) { c.Rediscovery = RediscoveryManual })
		files, err := p.Discover(context.Background())
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if len(files) != 2 {
			t.Errorf("got %d files, want 2", len(files))
		}
	})

	t.Run("missing directories are empty", func(t *testing.T) {
		p := newPipeline(t, newAreas(t), &countingTransformer{}, nil)
		files, err := p.Discover(context.Background())
		if err != nil || len(files) != 0 {
			t.Errorf("Discover() = %v, %v; want empty, nil", files, err)
		}
	})
}

func TestStageAndArchive(t *testing.T) {
	areas := newAreas(t)
	src := writeFile(t, areas.Landing, "page_views/page_view/20260101T000000000000_abc.json")
	p := newPipeline(t, areas, &countingTransformer{}, nil)
	ctx := context.Background()

	files, err := p.Discover(ctx)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	staged, err := p.Stage(ctx, files)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	processing := filepath.Join(areas.Processing, "page_views", "page_view", "20260101T000000000000_abc.json")
	if len(staged) != 1 || staged[0].Path != processing || staged[0].Area != AreaProcessing {
		t.Fatalf("staged = %+v", staged)
	}
	if fileExists(t, src) || !fileExists(t, processing) {
		t.Error("file must be in processing only")
	}

	moved, err := p.Archive(ctx, staged)
	if err != nil || moved != 1 {
		t.Fatalf("Archive() = %d, %v", moved, err)
	}
	archived := filepath.Join(areas.Archive, "page_views", "page_view", "20260101T000000000000_abc.json")
	if !fileExists(t, archived) || fileExists(t, processing) {
		t.Error("file must be in archive only")
	}

	moved, err = p.Archive(ctx, staged)
	if err != nil || moved != 0 {
		t.Errorf("second Archive() = %d, %v; want 0, nil", moved, err)
	}
	if countFiles(t, areas.Archive) != 1 {
		t.Error("archive must hold the file exactly once")
	}
}

func TestStageNeverOverwrites(t *testing.T) {
	areas := newAreas(t)
	writeFile(t, areas.Landing, "page_views/page_view/a.json")
	existing := writeFile(t, areas.Processing, "page_views/page_view/a.json")
	p := newPipeline(t, areas, &countingTransformer{}, func(c *Config) { c.Rediscovery = RediscoveryManual })

	files, _ := p.Discover(context.Background())
	staged, err := p.Stage(context.Background(), files)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	want := filepath.Join(areas.Processing, "page_views", "page_view", "a-1.json")
	if staged[0].Path != want {
		t.Errorf("staged to %q, want %q", staged[0].Path, want)
	}
	if !fileExists(t, existing) {
		t.Error("existing processing file was replaced")
	}
}

func TestRunNoop(t *testing.T) {
	areas := newAreas(t)
	reports := artifacts.NewMarkdown(filepath.Join(t.TempDir(), "reports"))
	tr := &countingTransformer{}
	p := newPipeline(t, areas, tr, func(c *Config) { c.Artifacts = reports })

	report, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if report.Status != artifacts.StatusNoop || report.Discovered != 0 {
		t.Errorf("report = %+v", report)
	}
	if tr.calls.Load() != 0 {
		t.Error("transform must not run when nothing was discovered")
	}
	data, err := os.ReadFile(reports.Path(ArtifactKey))
	if err != nil {
		t.Fatalf("artifact not written: %v", err)
	}
	if !strings.Contains(string(data), "No new files found to process.") {
		t.Errorf("artifact:\n%s", data)
	}
}

func TestRunTransformFailureLeavesProcessingIntact(t *testing.T) {
	areas := newAreas(t)
	for _, rel := range []string{"page_views/page_view/a.json", "ecommerce_events/purchase/b.json"} {
		writeFile(t, areas.Landing, rel)
	}
	reports := artifacts.NewMarkdown(t.TempDir())
	tr := &countingTransformer{fail: 100}
	p := newPipeline(t, areas, tr, func(c *Config) { c.Artifacts = reports })

	report, err := p.Run(context.Background())
	if !errors.Is(err, ErrTransformFailed) {
		t.Fatalf("expected ErrTransformFailed, got %v", err)
	}
	var terr *transform.Error
	if !errors.As(err, &terr) || terr.Diagnostic != "spark exited 1" {
		t.Errorf("diagnostics lost: %v", err)
	}
	if tr.calls.Load() != 3 || report.Attempts != 3 {
		t.Errorf("calls = %d, attempts = %d; want 3", tr.calls.Load(), report.Attempts)
	}
	if n := countFiles(t, areas.Processing); n != 2 {
		t.Errorf("processing holds %d files, want 2", n)
	}
	if n := countFiles(t, areas.Archive); n != 0 {
		t.Errorf("archive holds %d files, want 0", n)
	}
	if report.Status != artifacts.StatusFailure {
		t.Errorf("status = %q", report.Status)
	}
	data, _ := os.ReadFile(reports.Path(ArtifactKey))
	if !strings.Contains(string(data), "**failure**") || !strings.Contains(string(data), "2 file(s) remain") {
		t.Errorf("artifact:\n%s", data)
	}

	// The next run rediscovers the leftovers.
	tr.fail = 0
	report, err = p.Run(context.Background())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if report.Rediscovered != 2 || report.Staged != 0 || report.Archived != 2 || report.Accepted != 2 {
		t.Errorf("report = %+v", report)
	}
	if countFiles(t, areas.Processing) != 0 {
		t.Error("processing should be empty after a successful run")
	}
}

func TestRunManualRediscoveryRefusesStaleFiles(t *testing.T) {
	areas := newAreas(t)
	writeFile(t, areas.Processing, "page_views/page_view/stale.json")
	writeFile(t, areas.Landing, "page_views/page_view/new.json")
	tr := &countingTransformer{}
	p := newPipeline(t, areas, tr, func(c *Config) { c.Rediscovery = RediscoveryManual })

	_, err := p.Run(context.Background())
	if !errors.Is(err, ErrStaleProcessing) {
		t.Fatalf("expected ErrStaleProcessing, got %v", err)
	}
	if tr.calls.Load() != 0 {
		t.Error("transform must not run")
	}
	if !fileExists(t, filepath.Join(areas.Landing, "page_views", "page_view", "new.json")) {
		t.Error("landing file must not be staged")
	}
}

func TestRunRejectsConcurrentRuns(t *testing.T) {
	areas := newAreas(t)
	writeFile(t, areas.Landing, "page_views/page_view/a.json")

	entered := make(chan struct{})
	release := make(chan struct{})
	tr := transform.Func(func(context.Context, string) (transform.Result, error) {
		close(entered)
		<-release
		return transform.Result{Accepted: 1}, nil
	})
	p := newPipeline(t, areas, tr, nil)

	done := make(chan error, 1)
	go func() {
		_, err := p.Run(context.Background())
		done <- err
	}()
	<-entered

	if _, err := p.Run(context.Background()); !errors.Is(err, ErrRunInProgress) {
		t.Errorf("expected ErrRunInProgress, got %v", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Errorf("first run: %v", err)
	}
}

func TestRunWithRetryRunScope(t *testing.T) {
	areas := newAreas(t)
	writeFile(t, areas.Landing, "page_views/page_view/a.json")
	tr := &countingTransformer{fail: 1}
	p := newPipeline(t, areas, tr, func(c *Config) {
		c.RetryScope = ScopeRun
		c.Rediscovery = RediscoveryManual
	})

	report, err := p.RunWithRetry(context.Background())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if report.Attempts != 2 || report.Rediscovered != 1 || report.Archived != 1 {
		t.Errorf("report = %+v", report)
	}
	if tr.calls.Load() != 2 {
		t.Errorf("transform calls = %d, want 2", tr.calls.Load())
	}
}

type queueCountingStore struct {
	rows map[string]int
}

func (s *queueCountingStore) InsertBatch(_ context.Context, batch map[string][]warehouse.Row) (map[string]int, error) {
	counts := make(map[string]int, len(batch))
	for q, rows := range batch {
		counts[q] = len(rows)
		s.rows[q] += len(rows)
	}
	return counts, nil
}

// A directory of a queue that is not configured is never staged by the
// pipeline, so the loader must not load it either.
func TestRunLoaderIgnoresUnconfiguredQueue(t *testing.T) {
	areas := newAreas(t)
	line := []byte(`{"type":"page_view","timestamp":"2026-03-14T09:00:00Z","sessionId":"s1"}` + "\n")
	put := func(root, rel string) string {
		path := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, line, 0o600); err != nil {
			t.Fatalf("write: %v", err)
		}
		return path
	}
	stray := put(areas.Processing, "legacy_queue/page_view/old.json")

	store := &queueCountingStore{rows: make(map[string]int)}
	loader := transform.NewLoader(store, transform.LoaderConfig{Strict: true, Queues: testQueues})
	p := newPipeline(t, areas, loader, nil)

	for i := 1; i <= 3; i++ {
		put(areas.Landing, fmt.Sprintf("page_views/page_view/e%d.json", i))
		report, err := p.Run(context.Background())
		if err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
		if report.Staged != 1 || report.Accepted != 1 || report.Archived != 1 {
			t.Errorf("run %d report = %+v", i, report)
		}
		if report.PerQueue["legacy_queue"] != 0 {
			t.Errorf("run %d loaded the unconfigured queue: %v", i, report.PerQueue)
		}
	}
	if store.rows["legacy_queue"] != 0 || store.rows["page_views"] != 3 {
		t.Errorf("inserted rows = %v", store.rows)
	}
	if !fileExists(t, stray) {
		t.Error("file of an unconfigured queue should stay where it is")
	}
}
