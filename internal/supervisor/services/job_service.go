// GadgetGrove - E-commerce Clickstream Analytics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gadgetgrove

package services

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/gadgetgrove/internal/logging"
)

// Job is one scheduled unit of work, such as a staging pipeline run or a
// retention sweep.
type Job func(ctx context.Context) error

// ScheduledJobService runs a Job every interval. Runs never overlap: the
// next tick is measured from the end of the previous run. A failing run is
// logged and the schedule continues; a panic is recovered and
// returned so that suture restarts the service with backoff.
type ScheduledJobService struct {
	name       string
	interval   time.Duration
	runOnStart bool
	job        Job
	logger     zerolog.Logger

	runs     atomic.Int64
	failures atomic.Int64
}

// NewScheduledJobService creates a scheduled job. With runOnStart the first
// run happens immediately rather than after one interval.
func NewScheduledJobService(name string, interval time.Duration, runOnStart bool, job Job) *ScheduledJobService {
	if interval <= 0 {
		interval = time.Minute
	}
	return &ScheduledJobService{
		name:       name,
		interval:   interval,
		runOnStart: runOnStart,
		job:        job,
		logger:     logging.WithComponent(name),
	}
}

// Serve implements suture.Service.
func (s *ScheduledJobService) Serve(ctx context.Context) error {
	s.logger.Info().Dur("interval", s.interval).Bool("run_on_start", s.runOnStart).Msg("Scheduled job started")

	if s.runOnStart {
		if err := s.runOnce(ctx); err != nil {
			return err
		}
	}

	timer := time.NewTimer(s.interval)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Int64("runs", s.runs.Load()).Msg("Scheduled job stopped")
			return ctx.Err()
		case <-timer.C:
			if err := s.runOnce(ctx); err != nil {
				return err
			}
			timer.Reset(s.interval)
		}
	}
}

// runOnce returns an error only for a panic.
func (s *ScheduledJobService) runOnce(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.failures.Add(1)
			s.logger.Error().
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Msg("Scheduled job panicked")
			err = fmt.Errorf("%s panicked: %v", s.name, r)
		}
	}()

	s.runs.Add(1)
	if jobErr := s.job(ctx); jobErr != nil && ctx.Err() == nil {
		s.failures.Add(1)
		s.logger.Error().Err(jobErr).Msg("Scheduled job failed")
	}
	return nil
}

// Runs is the number of runs started.
func (s *ScheduledJobService) Runs() int64 {
	return s.runs.Load()
}

// Failures is the number of runs that returned an error or panicked.
func (s *ScheduledJobService) Failures() int64 {
	return s.failures.Load()
}

// String names the service in supervisor logs.
func (s *ScheduledJobService) String() string {
	return s.name
}
