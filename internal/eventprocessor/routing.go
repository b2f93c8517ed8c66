// GadgetGrove - E-commerce Clickstream Analytics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gadgetgrove

package eventprocessor

import (
	"fmt"
	"maps"
	"slices"
)

// DefaultRoutes maps event types to queues.
var DefaultRoutes = map[string]string{
	EventPageView:       "page_views",
	EventIdentify:       "user_events",
	EventUserEngagement: "user_events",
	EventLogout:         "user_events",
	EventPurchase:       "ecommerce_events",
	EventAddToCart:      "ecommerce_events",
	EventCheckout:       "ecommerce_events",
	EventProductView:    "ecommerce_events",
	EventBeginCheckout:  "ecommerce_events",
	EventCheckoutError:  "ecommerce_events",
}

// RoutingTable selects the queue an event is published to.
type RoutingTable struct {
	routes       map[string]string
	queues       map[string]struct{}
	defaultQueue string
}

// NewRoutingTable builds a table over the configured queues. Routes pointing
// at queues that are not configured are ignored. A nil routes map means
// DefaultRoutes.
func NewRoutingTable(queues []string, defaultQueue string, routes map[string]string) (*RoutingTable, error) {
	if routes == nil {
		routes = DefaultRoutes
	}
	t := &RoutingTable{
		routes:       make(map[string]string, len(routes)),
		queues:       make(map[string]struct{}, len(queues)),
		defaultQueue: defaultQueue,
	}
	for _, q := range queues {
		t.queues[q] = struct{}{}
	}
	if _, ok := t.queues[defaultQueue]; !ok {
		return nil, fmt.Errorf("%w: default queue %q is not configured", ErrInvalidConfig, defaultQueue)
	}
	for eventType, q := range routes {
		if _, ok := t.queues[q]; ok {
			t.routes[eventType] = q
		}
	}
	return t, nil
}

// Route returns the queue for e. The event type table wins; otherwise a
// configured queueName hint is honoured; otherwise the default queue.
func (t *RoutingTable) Route(e *Event) string {
	if q, ok := t.routes[e.Type]; ok {
		return q
	}
	if _, ok := t.queues[e.QueueName]; ok && e.QueueName != "" {
		return e.QueueName
	}
	return t.defaultQueue
}

// Has reports whether queue is configured.
func (t *RoutingTable) Has(queue string) bool {
	_, ok := t.queues[queue]
	return ok
}

// Queues returns the configured queues in sorted order.
func (t *RoutingTable) Queues() []string {
	return slices.Sorted(maps.Keys(t.queues))
}
