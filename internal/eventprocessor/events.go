// GadgetGrove - E-commerce Clickstream Analytics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gadgetgrove

package eventprocessor

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/tomtom215/gadgetgrove/internal/validation"
)

// Well-known event types produced by the storefront.
const (
	EventPageView       = "page_view"
	EventProductView    = "product_view"
	EventAddToCart      = "add_to_cart"
	EventBeginCheckout  = "begin_checkout"
	EventCheckout       = "checkout"
	EventPurchase       = "purchase"
	EventCheckoutError  = "checkout_error"
	EventIdentify       = "identify"
	EventUserEngagement = "user_engagement"
	EventLogout         = "logout"
)

// Event is one clickstream event.
//
// Events are unique only by (SessionID, Timestamp, Sequence). The emitter
// creates them, the consumer stamps the receipt fields once, and after that
// they are never modified.
type Event struct {
	Type      string    `json:"type" validate:"required,eventtype"`
	Timestamp time.Time `json:"timestamp" validate:"required"`
	SessionID string    `json:"sessionId,omitempty" validate:"max=128"`
	UserID    string    `json:"userId,omitempty" validate:"max=128"`
	Sequence  int       `json:"sequence" validate:"gte=0"`

	// QueueName is an optional routing hint from the client.
	QueueName string `json:"queueName,omitempty"`

	URL   string `json:"url,omitempty"`
	Path  string `json:"path,omitempty"`
	Title string `json:"title,omitempty"`

	// Set by the ingest endpoint.
	ServerTimestamp *time.Time `json:"server_timestamp,omitempty"`
	ClientIP        string     `json:"client_ip,omitempty"`
	UserAgent       string     `json:"user_agent,omitempty"`

	Properties map[string]any `json:"properties,omitempty"`

	// Receipt metadata, set by the consumer.
	Queue      string     `json:"_queue,omitempty"`
	ReceivedAt *time.Time `json:"_processed_at,omitempty"`
	MessageID  string     `json:"_message_id,omitempty"`
}

// Key returns the (session, timestamp, sequence) identity of the event.
func (e *Event) Key() string {
	return fmt.Sprintf("%s|%s|%d", e.SessionID, e.Timestamp.UTC().Format(time.RFC3339Nano), e.Sequence)
}

// Validate checks required fields.
func (e *Event) Validate() error {
	if err := validation.ValidateStruct(e); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	return nil
}

// Property returns properties[key] or nil.
func (e *Event) Property(key string) any {
	if e.Properties == nil {
		return nil
	}
	return e.Properties[key]
}

// SetProperty sets properties[key], allocating the map on first use.
func (e *Event) SetProperty(key string, value any) {
	if e.Properties == nil {
		e.Properties = make(map[string]any)
	}
	e.Properties[key] = value
}

// knownKeys are decoded into struct fields; any other top-level key is
// folded into Properties. event_type and session_id are accepted as aliases
// because older storefront builds sent snake_case names.
var knownKeys = map[string]struct{}{
	"type": {}, "event_type": {}, "timestamp": {}, "sessionId": {}, "session_id": {},
	"userId": {}, "user_id": {}, "sequence": {}, "queueName": {}, "url": {}, "path": {},
	"title": {}, "server_timestamp": {}, "client_ip": {}, "user_agent": {}, "properties": {},
	"_queue": {}, "_processed_at": {}, "_message_id": {},
}

// UnmarshalJSON decodes an event leniently: timestamps may be RFC 3339,
// zone-less ISO 8601 (taken as UTC) or epoch milliseconds, and user IDs may
// be numbers.
func (e *Event) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var out Event
	var err error
	if out.Type, err = stringField(raw, "type", "event_type"); err != nil {
		return err
	}
	if out.SessionID, err = stringField(raw, "sessionId", "session_id"); err != nil {
		return err
	}
	if out.UserID, err = stringField(raw, "userId", "user_id"); err != nil {
		return err
	}
	if out.QueueName, err = stringField(raw, "queueName"); err != nil {
		return err
	}
	if out.URL, err = stringField(raw, "url"); err != nil {
		return err
	}
	if out.Path, err = stringField(raw, "path"); err != nil {
		return err
	}
	if out.Title, err = stringField(raw, "title"); err != nil {
		return err
	}
	if out.ClientIP, err = stringField(raw, "client_ip"); err != nil {
		return err
	}
	if out.UserAgent, err = stringField(raw, "user_agent"); err != nil {
		return err
	}
	if out.Queue, err = stringField(raw, "_queue"); err != nil {
		return err
	}
	if out.MessageID, err = stringField(raw, "_message_id"); err != nil {
		return err
	}

	if v, ok := raw["timestamp"]; ok && !isNull(v) {
		if out.Timestamp, err = parseTimestamp(v); err != nil {
			return fmt.Errorf("timestamp: %w", err)
		}
	}
	if v, ok := raw["server_timestamp"]; ok && !isNull(v) {
		ts, err := parseTimestamp(v)
		if err != nil {
			return fmt.Errorf("server_timestamp: %w", err)
		}
		out.ServerTimestamp = &ts
	}
	if v, ok := raw["_processed_at"]; ok && !isNull(v) {
		ts, err := parseTimestamp(v)
		if err != nil {
			return fmt.Errorf("_processed_at: %w", err)
		}
		out.ReceivedAt = &ts
	}
	if v, ok := raw["sequence"]; ok && !isNull(v) {
		if err := json.Unmarshal(v, &out.Sequence); err != nil {
			return fmt.Errorf("sequence: %w", err)
		}
	}
	if v, ok := raw["properties"]; ok && !isNull(v) {
		if err := json.Unmarshal(v, &out.Properties); err != nil {
			return fmt.Errorf("properties: %w", err)
		}
	}

	for key, v := range raw {
		if _, known := knownKeys[key]; known {
			continue
		}
		var val any
		if err := json.Unmarshal(v, &val); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		out.SetProperty(key, val)
	}

	*e = out
	return nil
}

func isNull(v json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(v), []byte("null"))
}

// stringField returns the first present key, accepting strings and numbers.
func stringField(raw map[string]json.RawMessage, keys ...string) (string, error) {
	for _, key := range keys {
		v, ok := raw[key]
		if !ok || isNull(v) {
			continue
		}
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			return s, nil
		}
		var n json.Number
		if err := json.Unmarshal(v, &n); err == nil {
			return n.String(), nil
		}
		return "", fmt.Errorf("%s: expected string, got %s", key, string(v))
	}
	return "", nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

func parseTimestamp(v json.RawMessage) (time.Time, error) {
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		var ms int64
		if err := json.Unmarshal(v, &ms); err != nil {
			return time.Time{}, fmt.Errorf("unsupported value %s", string(v))
		}
		return time.UnixMilli(ms).UTC(), nil
	}
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}
