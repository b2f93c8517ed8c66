// GadgetGrove - E-commerce Clickstream Analytics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gadgetgrove

// Package transform is the Transform Step boundary: it loads every event
// file under a processing directory into the warehouse and reports how many
// rows were accepted.
//
// Two implementations exist. Loader is built in and writes straight to the
// warehouse package. ExecTransformer runs an external batch job (for example
// a spark-submit script) with the directory as its last argument.
package transform

import (
	"context"
	"fmt"
	"maps"
	"slices"
)

// Transformer processes every file below dir. A nil error means all rows
// were durably written.
type Transformer interface {
	Transform(ctx context.Context, dir string) (Result, error)
}

// Result summarizes a successful transform.
type Result struct {
	Accepted int            `json:"accepted"`
	Rejected int            `json:"rejected"`
	Files    int            `json:"files"`
	PerQueue map[string]int `json:"per_queue,omitempty"`
	Output   string         `json:"-"`
}

// Queues returns the queues in PerQueue, sorted.
func (r Result) Queues() []string {
	return slices.Sorted(maps.Keys(r.PerQueue))
}

// Error is a failed transform with its diagnostics.
type Error struct {
	Op         string // "exec", "decode", "load"
	Diagnostic string // stderr, or the offending file and line
	Err        error
}

func (e *Error) Error() string {
	if e.Diagnostic == "" {
		return fmt.Sprintf("transform %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("transform %s: %v: %s", e.Op, e.Err, e.Diagnostic)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Func adapts a function to Transformer.
type Func func(ctx context.Context, dir string) (Result, error)

// Transform implements Transformer.
func (f Func) Transform(ctx context.Context, dir string) (Result, error) {
	return f(ctx, dir)
}
