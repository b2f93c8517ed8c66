// GadgetGrove - E-commerce Clickstream Analytics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gadgetgrove

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/tomtom215/gadgetgrove/internal/eventprocessor"
	"github.com/tomtom215/gadgetgrove/internal/logging"
)

// DefaultSummaryHours is the report window when ?hours is absent.
const DefaultSummaryHours = 24

// maxSummaryHours caps ?hours at one year.
const maxSummaryHours = 24 * 366

// StatsResponse wraps the broker backlog.
type StatsResponse struct {
	Status string       `json:"status"`
	Stats  QueueSummary `json:"stats"`
}

// QueueSummary is the backlog of each queue at Timestamp.
type QueueSummary struct {
	Queues    map[string]eventprocessor.QueueStat `json:"queues"`
	Timestamp time.Time                           `json:"timestamp"`
}

// SimulateResponse acknowledges an on-demand synthetic session.
type SimulateResponse struct {
	Status          string `json:"status"`
	SessionID       string `json:"session_id"`
	Outcome         string `json:"outcome"`
	EventsGenerated int    `json:"events_generated"`
}

// QueueStats reports pending and unacknowledged messages per queue.
func (h *Handler) QueueStats(w http.ResponseWriter, r *http.Request) {
	if h.deps.QueueStats == nil {
		respondError(w, r, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "broker statistics are unavailable")
		return
	}
	stats := h.deps.QueueStats(r.Context())
	queues := make(map[string]eventprocessor.QueueStat, len(stats))
	for _, s := range stats {
		queues[s.Queue] = s
	}
	respondJSON(w, http.StatusOK, StatsResponse{
		Status: StatusSuccess,
		Stats:  QueueSummary{Queues: queues, Timestamp: h.now().UTC()},
	})
}

// Simulate emits one synthetic session.
func (h *Handler) Simulate(w http.ResponseWriter, r *http.Request) {
	if h.deps.Emitter == nil {
		respondError(w, r, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "event emitter is disabled")
		return
	}
	session, err := h.deps.Emitter.EmitSession(r.Context())
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Str("session_id", session.ID).Msg("Simulated session failed")
		respondError(w, r, http.StatusServiceUnavailable, ErrCodePublishFailed, "failed to publish simulated session")
		return
	}
	respondJSON(w, http.StatusOK, SimulateResponse{
		Status:          "simulation triggered",
		SessionID:       session.ID,
		Outcome:         session.Outcome,
		EventsGenerated: len(session.Events),
	})
}

// ReportSummary returns the funnel summary for the last ?hours hours.
// hours=0 summarizes the whole warehouse.
func (h *Handler) ReportSummary(w http.ResponseWriter, r *http.Request) {
	if h.deps.Reports == nil {
		respondError(w, r, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "reporting is unavailable")
		return
	}

	hours := DefaultSummaryHours
	if v := r.URL.Query().Get("hours"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > maxSummaryHours {
			respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, "hours must be an integer between 0 and "+strconv.Itoa(maxSummaryHours))
			return
		}
		hours = n
	}

	var since time.Time
	if hours > 0 {
		since = h.now().UTC().Add(-time.Duration(hours) * time.Hour)
	}
	summary, err := h.deps.Reports.Summary(r.Context(), since)
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Int("hours", hours).Msg("Failed to build report summary")
		respondError(w, r, http.StatusInternalServerError, ErrCodeDatabaseError, "failed to build report summary")
		return
	}
	respondJSON(w, http.StatusOK, summary)
}
