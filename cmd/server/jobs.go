// GadgetGrove - E-commerce Clickstream Analytics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gadgetgrove

package main

import (
	"context"
	"errors"

	"github.com/tomtom215/gadgetgrove/internal/config"
	"github.com/tomtom215/gadgetgrove/internal/logging"
	"github.com/tomtom215/gadgetgrove/internal/staging"
	"github.com/tomtom215/gadgetgrove/internal/supervisor/services"
)

// pipelineJob runs the staging pipeline once per tick. A run already in
// progress is not an error; afterRun is called after every run that loaded
// rows.
func pipelineJob(p *staging.Pipeline, afterRun func()) services.Job {
	return func(ctx context.Context) error {
		report, err := p.RunWithRetry(ctx)
		if errors.Is(err, staging.ErrRunInProgress) {
			logging.Ctx(ctx).Debug().Msg("Pipeline run skipped, previous run still active")
			return nil
		}
		if report != nil && report.Accepted > 0 && afterRun != nil {
			afterRun()
		}
		return err
	}
}

// sweepJob deletes archived files older than the retention window.
func sweepJob(s *staging.Sweeper, retention config.RetentionConfig) services.Job {
	return func(ctx context.Context) error {
		_, err := s.Sweep(ctx, retention.Window())
		return err
	}
}
