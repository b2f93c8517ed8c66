// GadgetGrove - E-commerce Clickstream Analytics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gadgetgrove

package staging

import (
	"context"
	"testing"
	"time"

	"github.com/tomtom215/gadgetgrove/internal/config"
	"github.com/tomtom215/gadgetgrove/internal/transform"
)

func TestConfigFrom(t *testing.T) {
	areas := newAreas(t)
	c := &config.Config{
		Queues: config.QueuesConfig{Names: testQueues, Default: "event_queue"},
		Staging: config.StagingConfig{
			RawDir:        areas.Landing,
			ProcessingDir: areas.Processing,
			ArchiveDir:    areas.Archive,
			Extension:     ".json",
			Rediscovery:   "manual",
			RetryScope:    "run",
			RetryAttempts: 3,
			RetryDelay:    time.Second,
		},
	}
	noop := transform.Func(func(context.Context, string) (transform.Result, error) { return transform.Result{}, nil })

	cfg := ConfigFrom(c, noop, nil)
	if cfg.Areas != areas {
		t.Errorf("areas = %+v", cfg.Areas)
	}
	if cfg.RetryScope != ScopeRun || cfg.Rediscovery != RediscoveryManual {
		t.Errorf("scope=%s rediscovery=%s", cfg.RetryScope, cfg.Rediscovery)
	}
	if cfg.Retry.MaxAttempts != 3 || cfg.Retry.Delay != time.Second {
		t.Errorf("retry = %+v", cfg.Retry)
	}
	if _, err := New(cfg); err != nil {
		t.Fatalf("New: %v", err)
	}

	c.Staging.RetryScope = "everything"
	if _, err := New(ConfigFrom(c, noop, nil)); err == nil {
		t.Error("expected an unknown retry scope to be rejected")
	}
}

func TestFromConfig(t *testing.T) {
	areas := newAreas(t)
	c := &config.Config{
		Queues: config.QueuesConfig{Names: testQueues, Default: "event_queue"},
		Staging: config.StagingConfig{
			RawDir:        areas.Landing,
			ProcessingDir: areas.Processing,
			ArchiveDir:    areas.Archive,
			Extension:     ".json",
		},
		Transform: config.TransformConfig{Mode: "loader"},
	}

	if _, err := FromConfig(c, nil, nil); err == nil {
		t.Error("expected loader mode without a warehouse to fail")
	}

	c.Transform = config.TransformConfig{Mode: "exec", Command: "/bin/true"}
	p, err := FromConfig(c, nil, nil)
	if err != nil {
		t.Fatalf("FromConfig: %v", err)
	}
	if p.Areas() != areas {
		t.Errorf("areas = %+v", p.Areas())
	}
}
