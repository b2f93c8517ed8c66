// GadgetGrove - E-commerce Clickstream Analytics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gadgetgrove

package api

import (
	"errors"
	"io"
	"net"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/tomtom215/gadgetgrove/internal/eventprocessor"
	"github.com/tomtom215/gadgetgrove/internal/logging"
)

// MaxEventBytes bounds the body of one ingested event.
const MaxEventBytes = 64 << 10

// IngestResponse acknowledges a published event.
type IngestResponse struct {
	Status string `json:"status"`
	Queue  string `json:"queue"`
}

// IngestEvent decodes one event, stamps the server-side fields and
// publishes it to the queue chosen by the routing table.
func (h *Handler) IngestEvent(w http.ResponseWriter, r *http.Request) {
	if h.deps.Dispatcher == nil {
		respondError(w, r, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "event publishing is disabled")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxEventBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, r, http.StatusRequestEntityTooLarge, ErrCodeBadRequest, "event body too large")
			return
		}
		respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, "failed to read request body")
		return
	}
	var event eventprocessor.Event
	if err := json.Unmarshal(body, &event); err != nil {
		respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, "invalid event JSON: "+err.Error())
		return
	}

	now := h.now().UTC()
	event.ServerTimestamp = &now
	event.ClientIP = clientIP(r)
	event.UserAgent = r.UserAgent()

	queue, err := h.deps.Dispatcher.Dispatch(r.Context(), &event)
	if err != nil {
		if errors.Is(err, eventprocessor.ErrInvalidEvent) {
			respondError(w, r, http.StatusBadRequest, ErrCodeValidationFailed, err.Error())
			return
		}
		logging.Ctx(r.Context()).Error().Err(err).
			Str("event_type", event.Type).
			Str("queue", queue).
			Msg("Failed to publish event")
		respondError(w, r, http.StatusServiceUnavailable, ErrCodePublishFailed, "failed to publish event")
		return
	}

	logging.Ctx(r.Context()).Debug().
		Str("event_type", event.Type).
		Str("session_id", event.SessionID).
		Str("queue", queue).
		Msg("Event published")
	respondJSON(w, http.StatusOK, IngestResponse{Status: StatusSuccess, Queue: queue})
}

// clientIP returns the host part of RemoteAddr, which chi's RealIP has
// already replaced with the forwarded address when present.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
