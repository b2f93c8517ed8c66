// GadgetGrove - E-commerce Clickstream Analytics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gadgetgrove

package eventprocessor

import (
	"errors"
	"testing"
	"time"

	"github.com/goccy/go-json"
)

func TestEventUnmarshal(t *testing.T) {
	t.Run("canonical keys", func(t *testing.T) {
		data := `{"type":"page_view","timestamp":"2026-01-02T03:04:05.678Z","sessionId":"abc123",
			"userId":"u-1","sequence":2,"url":"http://shop/","path":"/","properties":{"category":"Audio"}}`
		var e Event
		if err := json.Unmarshal([]byte(data), &e); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if e.Type != "page_view" || e.SessionID != "abc123" || e.UserID != "u-1" || e.Sequence != 2 {
			t.Errorf("unexpected event: %+v", e)
		}
		want := time.Date(2026, 1, 2, 3, 4, 5, 678000000, time.UTC)
		if !e.Timestamp.Equal(want) {
			t.Errorf("Timestamp = %v, want %v", e.Timestamp, want)
		}
		if e.Property("category") != "Audio" {
			t.Errorf("properties = %v", e.Properties)
		}
	})

	t.Run("aliases and extra keys", func(t *testing.T) {
		data := `{"event_type":"purchase","timestamp":1767323045000,"session_id":"s-9",
			"user_id":42,"transaction_id":"T-1","value":199.99}`
		var e Event
		if err := json.Unmarshal([]byte(data), &e); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if e.Type != "purchase" || e.SessionID != "s-9" || e.UserID != "42" {
			t.Errorf("unexpected event: %+v", e)
		}
		if e.Property("transaction_id") != "T-1" {
			t.Errorf("transaction_id not folded into properties: %v", e.Properties)
		}
		if v, ok := e.Property("value").(float64); !ok || v != 199.99 {
			t.Errorf("value = %v", e.Property("value"))
		}
		if e.Timestamp.UnixMilli() != 1767323045000 {
			t.Errorf("Timestamp = %v", e.Timestamp)
		}
	})

	t.Run("zone-less timestamp is UTC", func(t *testing.T) {
		var e Event
		if err := json.Unmarshal([]byte(`{"type":"identify","timestamp":"2026-01-02T03:04:05.123456"}`), &e); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if e.Timestamp.Location() != time.UTC || e.Timestamp.Nanosecond() != 123456000 {
			t.Errorf("Timestamp = %v", e.Timestamp)
		}
	})

	t.Run("bad timestamp", func(t *testing.T) {
		var e Event
		if err := json.Unmarshal([]byte(`{"type":"identify","timestamp":"yesterday"}`), &e); err == nil {
			t.Fatal("expected error")
		}
	})
}

func TestSerializerRoundTripKeepsReceiptFields(t *testing.T) {
	received := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	in := &Event{
		Type:       EventAddToCart,
		Timestamp:  received.Add(-time.Second),
		SessionID:  "abc",
		Sequence:   3,
		Properties: map[string]any{"value": 12.5},
		Queue:      "ecommerce_events",
		ReceivedAt: &received,
		MessageID:  "m-1",
	}
	data, err := SerializeEvent(in)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	out, err := DeserializeEvent(data)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if out.Queue != "ecommerce_events" || out.MessageID != "m-1" || out.ReceivedAt == nil || !out.ReceivedAt.Equal(received) {
		t.Errorf("receipt metadata lost: %+v", out)
	}
	if out.Key() != in.Key() {
		t.Errorf("Key() = %q, want %q", out.Key(), in.Key())
	}
}

func TestDeserializeRejectsInvalidEvents(t *testing.T) {
	tests := map[string]string{
		"not json":      `{{`,
		"missing type":  `{"timestamp":"2026-01-01T00:00:00Z"}`,
		"bad type":      `{"type":"Page View","timestamp":"2026-01-01T00:00:00Z"}`,
		"missing time":  `{"type":"page_view"}`,
		"negative seq":  `{"type":"page_view","timestamp":"2026-01-01T00:00:00Z","sequence":-1}`,
		"array payload": `[1,2,3]`,
	}
	for name, payload := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := DeserializeEvent([]byte(payload))
			if !errors.Is(err, ErrInvalidEvent) {
				t.Errorf("expected ErrInvalidEvent, got %v", err)
			}
		})
	}
}

func TestMessageIDIsStable(t *testing.T) {
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	a := &Event{Type: EventPageView, Timestamp: ts, SessionID: "s", Sequence: 0}
	b := &Event{Type: EventPageView, Timestamp: ts, SessionID: "s", Sequence: 0, Path: "/different"}
	c := &Event{Type: EventPageView, Timestamp: ts, SessionID: "s", Sequence: 1}

	if MessageID(a) != MessageID(b) {
		t.Error("same identity should give the same message ID")
	}
	if MessageID(a) == MessageID(c) {
		t.Error("different sequence should give a different message ID")
	}
}
