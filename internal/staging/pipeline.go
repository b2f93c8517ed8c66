// GadgetGrove - E-commerce Clickstream Analytics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gadgetgrove

package staging

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/tomtom215/gadgetgrove/internal/artifacts"
	"github.com/tomtom215/gadgetgrove/internal/logging"
	"github.com/tomtom215/gadgetgrove/internal/metrics"
	"github.com/tomtom215/gadgetgrove/internal/transform"
)

// Rediscovery controls whether a run revisits files left in the processing
// area by an earlier failed run.
type Rediscovery string

const (
	// RediscoveryAuto transforms leftover processing files with the next run.
	RediscoveryAuto Rediscovery = "auto"
	// RediscoveryManual refuses to run while leftovers exist.
	RediscoveryManual Rediscovery = "manual"
)

// ArtifactKey is the status artifact written after every run.
const ArtifactKey = "pipeline-run"

// Config configures a Pipeline.
type Config struct {
	Areas       Areas
	Queues      []string
	Extension   string // default ".json"
	Transformer transform.Transformer
	Retry       RetryPolicy
	RetryScope  RetryScope
	Rediscovery Rediscovery
	Artifacts   artifacts.Writer
}

// RunReport describes one pipeline run.
type RunReport struct {
	RunID        string         `json:"run_id"`
	Status       string         `json:"status"`
	StartedAt    time.Time      `json:"started_at"`
	Discovered   int            `json:"discovered"`
	Rediscovered int            `json:"rediscovered"`
	Staged       int            `json:"staged"`
	Accepted     int            `json:"accepted"`
	Rejected     int            `json:"rejected"`
	PerQueue     map[string]int `json:"per_queue,omitempty"`
	Archived     int            `json:"archived"`
	Attempts     int            `json:"attempts"`
	Duration     time.Duration  `json:"duration_ns"`
	Error        string         `json:"error,omitempty"`
}

// Pipeline runs discover, stage, transform and archive over the areas.
type Pipeline struct {
	cfg     Config
	running sync.Mutex
	now     func() time.Time
}

// New validates cfg and returns a Pipeline.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Areas.Landing == "" || cfg.Areas.Processing == "" || cfg.Areas.Archive == "" {
		return nil, errors.New("staging: landing, processing and archive roots are required")
	}
	if len(cfg.Queues) == 0 {
		return nil, errors.New("staging: at least one queue is required")
	}
	if cfg.Transformer == nil {
		return nil, errors.New("staging: transformer is required")
	}
	if cfg.Extension == "" {
		cfg.Extension = ".json"
	}
	if cfg.Retry.MaxAttempts < 1 {
		cfg.Retry = NoRetry()
	}
	switch cfg.RetryScope {
	case "":
		cfg.RetryScope = ScopeTransform
	case ScopeTransform, ScopeRun:
	default:
		return nil, fmt.Errorf("staging: unknown retry scope %q", cfg.RetryScope)
	}
	switch cfg.Rediscovery {
	case "":
		cfg.Rediscovery = RediscoveryAuto
	case RediscoveryAuto, RediscoveryManual:
	default:
		return nil, fmt.Errorf("staging: unknown rediscovery mode %q", cfg.Rediscovery)
	}
	if cfg.Artifacts == nil {
		cfg.Artifacts = artifacts.Discard{}
	}
	return &Pipeline{cfg: cfg, now: time.Now}, nil
}

// SetClock replaces the run clock (tests).
func (p *Pipeline) SetClock(now func() time.Time) {
	p.now = now
}

// Areas returns the configured area roots.
func (p *Pipeline) Areas() Areas {
	return p.cfg.Areas
}

// Discover lists event files in the landing area, plus the processing area
// in auto rediscovery mode. It has no side effects. Results are ordered by
// area, then relative path.
func (p *Pipeline) Discover(ctx context.Context) ([]File, error) {
	return p.discover(ctx, p.cfg.Rediscovery == RediscoveryAuto)
}

func (p *Pipeline) discover(ctx context.Context, withProcessing bool) ([]File, error) {
	areas := []Area{AreaLanding}
	if withProcessing {
		areas = append(areas, AreaProcessing)
	}

	var files []File
	for _, area := range areas {
		found, err := p.scan(ctx, area)
		if err != nil {
			return nil, err
		}
		files = append(files, found...)
	}
	sort.Slice(files, func(i, j int) bool {
		if files[i].Area != files[j].Area {
			return files[i].Area < files[j].Area
		}
		return files[i].Rel < files[j].Rel
	})
	return files, nil
}

func (p *Pipeline) scan(ctx context.Context, area Area) ([]File, error) {
	var files []File
	for _, q := range p.cfg.Queues {
		found, err := walkQueue(ctx, area, p.cfg.Areas.Root(area), q, p.cfg.Extension)
		if err != nil {
			return nil, err
		}
		files = append(files, found...)
	}
	return files, nil
}

// Stage renames landing files to the mirrored path under the processing
// root. Files already in the processing area pass through unchanged. On
// error the files staged so far are returned with it.
func (p *Pipeline) Stage(ctx context.Context, files []File) ([]File, error) {
	staged := make([]File, 0, len(files))
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return staged, err
		}
		if f.Area == AreaProcessing {
			staged = append(staged, f)
			continue
		}
		dst, err := relocate(f.Path, filepath.Join(p.cfg.Areas.Processing, f.Rel))
		if err != nil {
			return staged, fmt.Errorf("stage: %w", err)
		}
		rel, err := filepath.Rel(p.cfg.Areas.Processing, dst)
		if err != nil {
			return staged, err
		}
		staged = append(staged, File{Area: AreaProcessing, Queue: f.Queue, Rel: rel, Path: dst})
	}
	return staged, nil
}

// Transform invokes the transformer on the processing root, retrying per
// the policy when the retry scope is ScopeTransform. It returns the number
// of attempts made.
func (p *Pipeline) Transform(ctx context.Context) (transform.Result, int, error) {
	var res transform.Result
	op := func(ctx context.Context, attempt int) error {
		start := time.Now()
		r, err := p.cfg.Transformer.Transform(ctx, p.cfg.Areas.Processing)
		metrics.RecordTransform(time.Since(start), r.PerQueue, err)
		if err != nil {
			logging.Ctx(ctx).Warn().Err(err).Int("attempt", attempt).Msg("Transform attempt failed")
			return err
		}
		res = r
		return nil
	}

	policy := NoRetry()
	if p.cfg.RetryScope == ScopeTransform {
		policy = p.cfg.Retry
	}
	attempts, err := policy.Do(ctx, op)
	if err != nil {
		return transform.Result{}, attempts, &TransformError{Attempts: attempts, Err: err}
	}
	return res, attempts, nil
}

// Archive renames processing files to the mirrored path under the archive
// root. Files that no longer exist are skipped, so repeating a call is a
// no-op. It returns the number of files moved.
func (p *Pipeline) Archive(ctx context.Context, files []File) (int, error) {
	moved := 0
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return moved, err
		}
		ok, err := exists(f.Path)
		if err != nil {
			return moved, fmt.Errorf("archive: %w", err)
		}
		if !ok {
			logging.Ctx(ctx).Debug().Str("path", f.Path).Msg("Already archived, skipping")
			continue
		}
		if _, err := relocate(f.Path, filepath.Join(p.cfg.Areas.Archive, f.Rel)); err != nil {
			return moved, fmt.Errorf("archive: %w", err)
		}
		moved++
	}
	return moved, nil
}

// Run executes one discover, stage, transform, archive cycle. With nothing
// to process it logs and returns a report with status noop. A transform
// failure leaves staged files in the processing area and returns an error
// matching ErrTransformFailed.
func (p *Pipeline) Run(ctx context.Context) (*RunReport, error) {
	if !p.running.TryLock() {
		return nil, ErrRunInProgress
	}
	defer p.running.Unlock()
	return p.run(ctx, p.cfg.Rediscovery == RediscoveryAuto)
}

// RunWithRetry is Run with the retry policy applied to the whole run when
// the retry scope is ScopeRun; otherwise it is Run. Later attempts always
// pick up files the failed attempt left in processing.
func (p *Pipeline) RunWithRetry(ctx context.Context) (*RunReport, error) {
	if p.cfg.RetryScope != ScopeRun {
		return p.Run(ctx)
	}

	var report *RunReport
	attempts, err := p.cfg.Retry.Do(ctx, func(ctx context.Context, attempt int) error {
		if !p.running.TryLock() {
			return Permanent(ErrRunInProgress)
		}
		defer p.running.Unlock()

		r, err := p.run(ctx, attempt > 1 || p.cfg.Rediscovery == RediscoveryAuto)
		report = r
		if errors.Is(err, ErrStaleProcessing) {
			return Permanent(err)
		}
		return err
	})
	if report != nil {
		report.Attempts = attempts
	}
	return report, err
}

func (p *Pipeline) run(ctx context.Context, withProcessing bool) (*RunReport, error) {
	runID := logging.GenerateCorrelationID()
	ctx = logging.ContextWithRunID(ctx, runID)
	log := logging.Ctx(ctx)

	report := &RunReport{RunID: runID, StartedAt: p.now().UTC()}
	start := time.Now()

	if !withProcessing {
		leftover, err := p.scan(ctx, AreaProcessing)
		if err != nil {
			return p.finish(ctx, report, start, nil, err)
		}
		if len(leftover) > 0 {
			err := fmt.Errorf("%w: %d file(s) under %s", ErrStaleProcessing, len(leftover), p.cfg.Areas.Processing)
			return p.finish(ctx, report, start, leftover, err)
		}
	}

	files, err := p.discover(ctx, withProcessing)
	if err != nil {
		return p.finish(ctx, report, start, nil, err)
	}
	report.Discovered = len(files)
	for _, f := range files {
		if f.Area == AreaProcessing {
			report.Rediscovered++
		}
	}
	if len(files) == 0 {
		log.Info().Msg("No new files found to process")
		return p.finish(ctx, report, start, nil, nil)
	}

	staged, err := p.Stage(ctx, files)
	for i := range staged {
		if files[i].Area == AreaLanding {
			report.Staged++
		}
	}
	if err != nil {
		return p.finish(ctx, report, start, staged, err)
	}
	log.Info().
		Int("staged", report.Staged).
		Int("rediscovered", report.Rediscovered).
		Msg("Moved files to processing directory")

	res, attempts, err := p.Transform(ctx)
	report.Attempts = attempts
	if err != nil {
		return p.finish(ctx, report, start, staged, err)
	}
	report.Accepted = res.Accepted
	report.Rejected = res.Rejected
	report.PerQueue = res.PerQueue

	report.Archived, err = p.Archive(ctx, staged)
	if err != nil {
		return p.finish(ctx, report, start, staged, err)
	}
	log.Info().Int("archived", report.Archived).Msg("Archived processed files")

	return p.finish(ctx, report, start, nil, nil)
}

// finish records metrics, logs and writes the run artifact. pending are the
// files left in the processing area.
func (p *Pipeline) finish(ctx context.Context, report *RunReport, start time.Time, pending []File, runErr error) (*RunReport, error) {
	report.Duration = time.Since(start)
	log := logging.Ctx(ctx)

	switch {
	case runErr != nil:
		report.Status = artifacts.StatusFailure
		report.Error = runErr.Error()
		log.Error().Err(runErr).
			Int("pending", len(pending)).
			Dur("duration", report.Duration).
			Msg("Pipeline run failed")
	case report.Discovered == 0:
		report.Status = artifacts.StatusNoop
	default:
		report.Status = artifacts.StatusSuccess
		log.Info().
			Int("accepted", report.Accepted).
			Int("archived", report.Archived).
			Dur("duration", report.Duration).
			Msg("Pipeline completed successfully")
	}

	metrics.RecordPipelineRun(report.Status, report.Staged, report.Archived, report.Duration)
	metrics.ProcessingBacklog.Set(float64(len(pending)))

	if err := p.cfg.Artifacts.Write(ctx, runArtifact(report, pending)); err != nil {
		log.Warn().Err(err).Msg("Failed to write pipeline artifact")
	}
	return report, runErr
}

func runArtifact(r *RunReport, pending []File) artifacts.Artifact {
	a := artifacts.Artifact{
		Key:    ArtifactKey,
		Title:  "Pipeline run " + r.RunID,
		Status: r.Status,
		Fields: []artifacts.Field{
			{Name: "Started", Value: r.StartedAt.Format(time.RFC3339)},
			{Name: "Duration", Value: r.Duration.Round(time.Millisecond).String()},
			{Name: "Discovered", Value: strconv.Itoa(r.Discovered)},
			{Name: "Rediscovered", Value: strconv.Itoa(r.Rediscovered)},
			{Name: "Staged", Value: strconv.Itoa(r.Staged)},
			{Name: "Transform attempts", Value: strconv.Itoa(r.Attempts)},
			{Name: "Rows accepted", Value: strconv.Itoa(r.Accepted)},
			{Name: "Rows rejected", Value: strconv.Itoa(r.Rejected)},
			{Name: "Archived", Value: strconv.Itoa(r.Archived)},
		},
	}

	switch r.Status {
	case artifacts.StatusNoop:
		a.Summary = "No new files found to process."
	case artifacts.StatusFailure:
		a.Summary = fmt.Sprintf("%d file(s) remain in the processing area.", len(pending))
		a.Detail = r.Error
	}

	if len(r.PerQueue) > 0 {
		queues := make([]string, 0, len(r.PerQueue))
		for q := range r.PerQueue {
			queues = append(queues, q)
		}
		sort.Strings(queues)
		t := &artifacts.Table{Header: []string{"Queue", "Rows"}}
		for _, q := range queues {
			t.Rows = append(t.Rows, []string{q, strconv.Itoa(r.PerQueue[q])})
		}
		a.Table = t
	}
	return a
}
