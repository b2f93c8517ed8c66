// GadgetGrove - E-commerce Clickstream Analytics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gadgetgrove

package staging

import (
	"errors"
	"fmt"
)

var (
	// ErrRunInProgress is returned when a run is already executing.
	ErrRunInProgress = errors.New("pipeline run already in progress")

	// ErrStaleProcessing is returned in manual rediscovery mode when the
	// processing area still holds files from an earlier failed run.
	ErrStaleProcessing = errors.New("processing area holds files from a previous run")

	// ErrTransformFailed marks a failed Transform Step.
	ErrTransformFailed = errors.New("transform failed")

	// ErrInvalidRetention is returned for a negative retention window.
	ErrInvalidRetention = errors.New("retention must not be negative")
)

// TransformError is a failed transform after all attempts. It matches
// ErrTransformFailed and the underlying transformer error with errors.Is.
type TransformError struct {
	Attempts int
	Err      error
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("transform failed after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *TransformError) Unwrap() []error {
	return []error{ErrTransformFailed, e.Err}
}
