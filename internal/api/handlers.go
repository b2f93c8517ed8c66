// GadgetGrove - E-commerce Clickstream Analytics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gadgetgrove

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/tomtom215/gadgetgrove/internal/emitter"
	"github.com/tomtom215/gadgetgrove/internal/eventprocessor"
	"github.com/tomtom215/gadgetgrove/internal/reporting"
)

// EventDispatcher routes and publishes one event, returning its queue.
type EventDispatcher interface {
	Dispatch(ctx context.Context, e *eventprocessor.Event) (string, error)
}

// SessionEmitter publishes one synthetic session on demand.
type SessionEmitter interface {
	EmitSession(ctx context.Context) (emitter.Session, error)
}

// Summarizer computes reporting summaries.
type Summarizer interface {
	Summary(ctx context.Context, since time.Time) (*reporting.Summary, error)
}

// QueueStatsFunc reports the broker backlog of every queue.
type QueueStatsFunc func(ctx context.Context) []eventprocessor.QueueStat

// HealthCheck is one named dependency check.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Dependencies are the services the handlers call. Nil members disable the
// endpoints that need them with a 503.
type Dependencies struct {
	Dispatcher   EventDispatcher
	Emitter      SessionEmitter
	Reports      Summarizer
	QueueStats   QueueStatsFunc
	HealthChecks []HealthCheck
	Version      string
}

// Handler holds the HTTP handlers.
type Handler struct {
	deps         Dependencies
	now          func() time.Time
	startTime    time.Time
	checkTimeout time.Duration
}

// NewHandler creates a Handler.
func NewHandler(deps Dependencies) *Handler {
	return &Handler{
		deps:         deps,
		now:          time.Now,
		startTime:    time.Now(),
		checkTimeout: 3 * time.Second,
	}
}

// SetClock replaces the clock used for server timestamps.
func (h *Handler) SetClock(now func() time.Time) {
	h.now = now
}

// Index greets the caller.
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "OK",
		"message": "Welcome to GadgetGrove Data Pipeline",
	})
}
