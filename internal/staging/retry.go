// GadgetGrove - E-commerce Clickstream Analytics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gadgetgrove

package staging

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/tomtom215/gadgetgrove/internal/logging"
)

// RetryScope selects what a RetryPolicy wraps.
type RetryScope string

const (
	// ScopeTransform retries only the Transform Step.
	ScopeTransform RetryScope = "transform"
	// ScopeRun retries the whole run.
	ScopeRun RetryScope = "run"
)

// RetryPolicy runs an operation up to MaxAttempts times with a fixed Delay
// between attempts. There is no exponential growth and no jitter.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
}

// NoRetry runs an operation once.
func NoRetry() RetryPolicy {
	return RetryPolicy{MaxAttempts: 1}
}

// Permanent marks err as not worth retrying. Do returns the unwrapped error
// immediately.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Do runs op until it succeeds, returns a Permanent error, the attempts are
// exhausted, or ctx is done. It returns the number of attempts made and the
// last error.
func (p RetryPolicy) Do(ctx context.Context, op func(ctx context.Context, attempt int) error) (int, error) {
	attempts := max(p.MaxAttempts, 1)

	var b backoff.BackOff = backoff.NewConstantBackOff(p.Delay)
	b = backoff.WithMaxRetries(b, uint64(attempts-1))
	b = backoff.WithContext(b, ctx)

	made := 0
	err := backoff.RetryNotify(
		func() error {
			if err := ctx.Err(); err != nil {
				return backoff.Permanent(err)
			}
			made++
			return op(ctx, made)
		},
		b,
		func(err error, wait time.Duration) {
			logging.Ctx(ctx).Warn().Err(err).
				Int("attempt", made).
				Int("max_attempts", attempts).
				Dur("retry_in", wait).
				Msg("Attempt failed, retrying")
		},
	)
	return made, err
}
