// GadgetGrove - E-commerce Clickstream Analytics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gadgetgrove

package staging

import (
	"fmt"

	"github.com/tomtom215/gadgetgrove/internal/artifacts"
	"github.com/tomtom215/gadgetgrove/internal/config"
	"github.com/tomtom215/gadgetgrove/internal/transform"
)

// ConfigFrom maps the application configuration onto a pipeline Config.
func ConfigFrom(c *config.Config, t transform.Transformer, w artifacts.Writer) Config {
	return Config{
		Areas: Areas{
			Landing:    c.Staging.RawDir,
			Processing: c.Staging.ProcessingDir,
			Archive:    c.Staging.ArchiveDir,
		},
		Queues:      c.Queues.Names,
		Extension:   c.Staging.Extension,
		Transformer: t,
		Retry: RetryPolicy{
			MaxAttempts: c.Staging.RetryAttempts,
			Delay:       c.Staging.RetryDelay,
		},
		RetryScope:  RetryScope(c.Staging.RetryScope),
		Rediscovery: Rediscovery(c.Staging.Rediscovery),
		Artifacts:   w,
	}
}

// FromConfig builds a pipeline with the configured Transform Step. store
// may be nil in exec mode.
func FromConfig(c *config.Config, store transform.RowStore, w artifacts.Writer) (*Pipeline, error) {
	t, err := transform.FromConfig(c.Transform, c.Staging.Extension, c.Queues.Names, store, w)
	if err != nil {
		return nil, err
	}
	p, err := New(ConfigFrom(c, t, w))
	if err != nil {
		return nil, fmt.Errorf("create staging pipeline: %w", err)
	}
	return p, nil
}
