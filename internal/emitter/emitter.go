// GadgetGrove - E-commerce Clickstream Analytics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gadgetgrove

package emitter

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"golang.org/x/time/rate"

	"github.com/tomtom215/gadgetgrove/internal/eventprocessor"
	"github.com/tomtom215/gadgetgrove/internal/logging"
	"github.com/tomtom215/gadgetgrove/internal/metrics"
)

// DefaultSessionsPerMinute paces Run when no rate is configured.
const DefaultSessionsPerMinute = 6.0

// Dispatcher routes and publishes one event.
type Dispatcher interface {
	Dispatch(ctx context.Context, e *eventprocessor.Event) (string, error)
}

// Config configures an Emitter.
type Config struct {
	SessionsPerMinute float64
	Burst             int
}

// Stats counts what an Emitter has sent.
type Stats struct {
	Sessions        int64 `json:"sessions"`
	Events          int64 `json:"events"`
	PublishFailures int64 `json:"publish_failures"`
}

// Emitter publishes generated sessions.
type Emitter struct {
	gen        *Generator
	dispatcher Dispatcher
	limiter    *rate.Limiter

	sessions atomic.Int64
	events   atomic.Int64
	failures atomic.Int64
}

// New creates an Emitter.
func New(gen *Generator, dispatcher Dispatcher, cfg Config) *Emitter {
	spm := cfg.SessionsPerMinute
	if spm <= 0 {
		spm = DefaultSessionsPerMinute
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	return &Emitter{
		gen:        gen,
		dispatcher: dispatcher,
		limiter:    rate.NewLimiter(rate.Limit(spm/60), burst),
	}
}

// EmitSession generates and publishes exactly one session. Every event is
// attempted; the returned error joins the publish failures, if any.
func (e *Emitter) EmitSession(ctx context.Context) (Session, error) {
	s := e.gen.Session()
	var errs []error
	for _, ev := range s.Events {
		if _, err := e.dispatcher.Dispatch(ctx, ev); err != nil {
			e.failures.Add(1)
			errs = append(errs, fmt.Errorf("%s #%d: %w", ev.Type, ev.Sequence, err))
			continue
		}
		e.events.Add(1)
	}
	e.sessions.Add(1)

	outcome := s.Outcome
	if len(errs) > 0 {
		outcome = "publish_failed"
	}
	metrics.EmitterSessionsTotal.WithLabelValues(outcome).Inc()
	return s, errors.Join(errs...)
}

// Run emits sessions at the configured pace until ctx is done. Publish
// failures are logged and do not stop the loop.
func (e *Emitter) Run(ctx context.Context) error {
	logger := logging.Ctx(ctx)
	logger.Info().
		Float64("sessions_per_second", float64(e.limiter.Limit())).
		Int("burst", e.limiter.Burst()).
		Msg("Event emitter started")

	for {
		if err := e.limiter.Wait(ctx); err != nil {
			// Wait also fails early when the deadline precedes the next token.
			<-ctx.Done()
			logger.Info().Int64("sessions", e.sessions.Load()).Msg("Event emitter stopped")
			return nil
		}
		s, err := e.EmitSession(ctx)
		if err != nil {
			logger.Warn().Err(err).Str("session_id", s.ID).Msg("Failed to publish part of a synthetic session")
			continue
		}
		logger.Debug().
			Str("session_id", s.ID).
			Int("events", len(s.Events)).
			Str("outcome", s.Outcome).
			Msg("Emitted synthetic session")
	}
}

// Stats returns the counters.
func (e *Emitter) Stats() Stats {
	return Stats{
		Sessions:        e.sessions.Load(),
		Events:          e.events.Load(),
		PublishFailures: e.failures.Load(),
	}
}
