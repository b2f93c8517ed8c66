// GadgetGrove - E-commerce Clickstream Analytics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gadgetgrove

package eventprocessor

import (
	"errors"
	"slices"
	"testing"
)

var allQueues = []string{"page_views", "user_events", "ecommerce_events", "analytics_events", "event_queue"}

func TestRoutingTable(t *testing.T) {
	table, err := NewRoutingTable(allQueues, "event_queue", nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	tests := []struct {
		event Event
		want  string
	}{
		{Event{Type: EventPageView}, "page_views"},
		{Event{Type: EventLogout}, "user_events"},
		{Event{Type: EventProductView}, "ecommerce_events"},
		{Event{Type: EventBeginCheckout}, "ecommerce_events"},
		{Event{Type: EventCheckoutError}, "ecommerce_events"},
		{Event{Type: "scroll", QueueName: "analytics_events"}, "analytics_events"},
		{Event{Type: "scroll", QueueName: "nonexistent"}, "event_queue"},
		{Event{Type: "scroll"}, "event_queue"},
		// the type table wins over the client hint
		{Event{Type: EventPageView, QueueName: "analytics_events"}, "page_views"},
	}
	for _, tt := range tests {
		if got := table.Route(&tt.event); got != tt.want {
			t.Errorf("Route(%s, hint=%q) = %q, want %q", tt.event.Type, tt.event.QueueName, got, tt.want)
		}
	}
}

func TestRoutingTableIgnoresUnconfiguredQueues(t *testing.T) {
	table, err := NewRoutingTable([]string{"page_views", "misc"}, "misc", nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got := table.Route(&Event{Type: EventPurchase}); got != "misc" {
		t.Errorf("purchase routed to %q, want misc", got)
	}
	if got := table.Queues(); !slices.Equal(got, []string{"misc", "page_views"}) {
		t.Errorf("Queues() = %v", got)
	}
}

func TestRoutingTableRequiresDefault(t *testing.T) {
	_, err := NewRoutingTable([]string{"page_views"}, "event_queue", nil)
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}
