// GadgetGrove - E-commerce Clickstream Analytics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gadgetgrove

package api

import (
	"net/http"

	"github.com/goccy/go-json"

	"github.com/tomtom215/gadgetgrove/internal/logging"
	"github.com/tomtom215/gadgetgrove/internal/middleware"
)

// Response statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Error codes for API responses.
const (
	ErrCodeBadRequest         = "BAD_REQUEST"
	ErrCodeValidationFailed   = "VALIDATION_FAILED"
	ErrCodeTooManyRequests    = "TOO_MANY_REQUESTS"
	ErrCodeInternalError      = "INTERNAL_ERROR"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	ErrCodePublishFailed      = "PUBLISH_FAILED"
	ErrCodeDatabaseError      = "DATABASE_ERROR"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Status    string `json:"status"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logging.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func respondError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Status:    StatusError,
		Code:      code,
		Message:   message,
		RequestID: middleware.GetRequestID(r.Context()),
	})
}
