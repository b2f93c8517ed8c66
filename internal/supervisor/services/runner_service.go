// GadgetGrove - E-commerce Clickstream Analytics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gadgetgrove

package services

import (
	"context"
	"fmt"
)

// Runner is anything that works until its context is canceled, such as
// *emitter.Emitter.
type Runner interface {
	Run(ctx context.Context) error
}

// RunnerService supervises a Runner.
type RunnerService struct {
	runner Runner
	name   string
}

// NewRunnerService wraps runner under name.
func NewRunnerService(name string, runner Runner) *RunnerService {
	return &RunnerService{runner: runner, name: name}
}

// Serve implements suture.Service. A Runner that returns before its context
// is canceled is restarted.
func (s *RunnerService) Serve(ctx context.Context) error {
	if err := s.runner.Run(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("%s: %w", s.name, err)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fmt.Errorf("%s returned before shutdown", s.name)
}

// String names the service in supervisor logs.
func (s *RunnerService) String() string {
	return s.name
}
