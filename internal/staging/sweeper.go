// GadgetGrove - E-commerce Clickstream Analytics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gadgetgrove

package staging

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/tomtom215/gadgetgrove/internal/artifacts"
	"github.com/tomtom215/gadgetgrove/internal/logging"
	"github.com/tomtom215/gadgetgrove/internal/metrics"
)

// SweepArtifactKey is the status artifact written after every sweep.
const SweepArtifactKey = "sweep"

// RootGroup is the Deleted key for files directly under the archive root.
const RootGroup = "."

// SweepResult reports one retention sweep.
type SweepResult struct {
	Retention time.Duration  `json:"retention_ns"`
	Cutoff    time.Time      `json:"cutoff"`
	Deleted   map[string]int `json:"deleted"`
	Total     int            `json:"total"`
	Failed    int            `json:"failed"`
}

// Sweeper deletes archive files older than a retention window.
//
// Deletion is by age only. It assumes every archived file was already
// loaded into the warehouse, which holds because the pipeline archives only
// after a successful transform.
type Sweeper struct {
	root      string
	artifacts artifacts.Writer
	now       func() time.Time
}

// NewSweeper returns a sweeper over the archive root. w may be nil.
func NewSweeper(root string, w artifacts.Writer) *Sweeper {
	if w == nil {
		w = artifacts.Discard{}
	}
	return &Sweeper{root: root, artifacts: w, now: time.Now}
}

// SetClock replaces the sweep clock (tests).
func (s *Sweeper) SetClock(now func() time.Time) {
	s.now = now
}

// Sweep deletes every regular file under the archive root whose
// modification time is strictly before now minus retention. Counts are
// grouped by the top-level directory (the queue); files directly under the
// root count under RootGroup. A missing root is not an error. Files that
// cannot be deleted are logged and counted in Failed, and the sweep goes on;
// the returned error joins those failures.
func (s *Sweeper) Sweep(ctx context.Context, retention time.Duration) (*SweepResult, error) {
	if retention < 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRetention, retention)
	}

	now := s.now()
	res := &SweepResult{
		Retention: retention,
		Cutoff:    now.Add(-retention).UTC(),
		Deleted:   make(map[string]int),
	}
	log := logging.Ctx(ctx).With().Str("component", "sweeper").Logger()

	if ok, err := exists(s.root); err != nil {
		return nil, fmt.Errorf("stat archive root: %w", err)
	} else if !ok {
		log.Info().Str("root", s.root).Msg("Archive directory does not exist, nothing to sweep")
		s.finish(ctx, res, nil)
		return res, nil
	}

	var failures []error
	walkErr := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		if err != nil {
			return err
		}
		if !info.ModTime().Before(res.Cutoff) {
			return nil
		}

		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			log.Warn().Err(err).Str("path", path).Msg("Failed to delete archived file")
			failures = append(failures, err)
			res.Failed++
			return nil
		}
		res.Deleted[groupOf(s.root, path)]++
		res.Total++
		return nil
	})

	err := errors.Join(walkErr, errors.Join(failures...))
	s.finish(ctx, res, err)
	if err != nil {
		return res, fmt.Errorf("sweep %s: %w", s.root, err)
	}
	return res, nil
}

func groupOf(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return RootGroup
	}
	head, _, found := strings.Cut(filepath.ToSlash(rel), "/")
	if !found {
		return RootGroup
	}
	return head
}

func (s *Sweeper) finish(ctx context.Context, res *SweepResult, err error) {
	metrics.RecordSweep(res.Deleted, res.Failed)

	log := logging.Ctx(ctx)
	if res.Total > 0 || err != nil {
		log.Info().
			Int("deleted", res.Total).
			Int("failed", res.Failed).
			Dur("retention", res.Retention).
			Msg("Retention sweep finished")
	}

	status := artifacts.StatusSuccess
	switch {
	case err != nil:
		status = artifacts.StatusFailure
	case res.Total == 0:
		status = artifacts.StatusNoop
	}

	a := artifacts.Artifact{
		Key:    SweepArtifactKey,
		Title:  "Archive retention sweep",
		Status: status,
		Fields: []artifacts.Field{
			{Name: "Archive root", Value: s.root},
			{Name: "Retention", Value: res.Retention.String()},
			{Name: "Cutoff", Value: res.Cutoff.Format(time.RFC3339)},
			{Name: "Total deleted", Value: strconv.Itoa(res.Total)},
			{Name: "Failed deletions", Value: strconv.Itoa(res.Failed)},
		},
	}
	if err != nil {
		a.Detail = err.Error()
	}
	if len(res.Deleted) > 0 {
		groups := make([]string, 0, len(res.Deleted))
		for g := range res.Deleted {
			groups = append(groups, g)
		}
		sort.Strings(groups)
		a.Table = &artifacts.Table{Header: []string{"Queue", "Deleted"}}
		for _, g := range groups {
			a.Table.Rows = append(a.Table.Rows, []string{g, strconv.Itoa(res.Deleted[g])})
		}
	}
	if werr := s.artifacts.Write(ctx, a); werr != nil {
		log.Warn().Err(werr).Msg("Failed to write sweep artifact")
	}
}
