// GadgetGrove - E-commerce Clickstream Analytics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gadgetgrove

package transform

import (
	"fmt"

	"github.com/tomtom215/gadgetgrove/internal/artifacts"
	"github.com/tomtom215/gadgetgrove/internal/config"
)

// Transform modes.
const (
	ModeLoader = "loader"
	ModeExec   = "exec"
)

// FromConfig builds the configured Transform Step. The loader writes the
// given queues into store; exec runs the external command with the batch
// directory appended to its arguments.
func FromConfig(c config.TransformConfig, ext string, queues []string, store RowStore, w artifacts.Writer) (Transformer, error) {
	switch c.Mode {
	case ModeLoader, "":
		if store == nil {
			return nil, fmt.Errorf("transform: loader mode requires a warehouse")
		}
		return NewLoader(store, LoaderConfig{Extension: ext, Strict: c.Strict, Artifacts: w, Queues: queues}), nil
	case ModeExec:
		if c.Command == "" {
			return nil, ErrNoCommand
		}
		return &ExecTransformer{Command: c.Command, Args: c.Args, Timeout: c.Timeout}, nil
	default:
		return nil, fmt.Errorf("transform: unknown mode %q", c.Mode)
	}
}
