// GadgetGrove - E-commerce Clickstream Analytics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gadgetgrove

package api

import (
	"context"
	"net/http"
	"sync"
	"time"
)

// Health statuses.
const (
	HealthStatusHealthy   = "healthy"
	HealthStatusUnhealthy = "unhealthy"
)

// HealthResponse reports each dependency check.
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version,omitempty"`
	Uptime    float64           `json:"uptime_seconds"`
	Checks    map[string]string `json:"checks"`
	Timestamp time.Time         `json:"timestamp"`
}

// Health runs every check concurrently, each under its own timeout, and
// answers 503 if any fails.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string, len(h.deps.HealthChecks))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, c := range h.deps.HealthChecks {
		wg.Add(1)
		go func(c HealthCheck) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(r.Context(), h.checkTimeout)
			defer cancel()
			result := "ok"
			if err := c.Check(ctx); err != nil {
				result = err.Error()
			}
			mu.Lock()
			checks[c.Name] = result
			mu.Unlock()
		}(c)
	}
	wg.Wait()

	resp := HealthResponse{
		Status:    HealthStatusHealthy,
		Version:   h.deps.Version,
		Uptime:    time.Since(h.startTime).Seconds(),
		Checks:    checks,
		Timestamp: h.now().UTC(),
	}
	status := http.StatusOK
	for _, result := range checks {
		if result != "ok" {
			resp.Status = HealthStatusUnhealthy
			status = http.StatusServiceUnavailable
			break
		}
	}
	respondJSON(w, status, resp)
}
