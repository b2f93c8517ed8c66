// GadgetGrove - E-commerce Clickstream Analytics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gadgetgrove

// Package emitter produces synthetic storefront sessions and publishes them
// through the Queue Publisher. It stands in for real browser traffic in the
// demo stack.
package emitter

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/gadgetgrove/internal/eventprocessor"
)

// Categories offered by the storefront.
var Categories = []string{"Smartphones", "Laptops", "Audio"}

// DefaultPurchaseRate is the share of sessions that end in a purchase.
const DefaultPurchaseRate = 0.9

// DeclinedReason is the checkout_error reason.
const DeclinedReason = "Payment Declined"

// Session is one generated visit.
type Session struct {
	ID        string                  `json:"session_id"`
	Category  string                  `json:"category"`
	ProductID string                  `json:"product_id"`
	Price     float64                 `json:"price"`
	Outcome   string                  `json:"outcome"` // purchase or checkout_error
	Events    []*eventprocessor.Event `json:"-"`
}

// Generator builds sessions. It is safe for concurrent use.
type Generator struct {
	mu           sync.Mutex
	rng          *rand.Rand
	purchaseRate float64
	now          func() time.Time
}

// NewGenerator creates a generator. A zero seed picks a random one;
// any other seed makes the sequence of sessions reproducible.
func NewGenerator(seed uint64, purchaseRate float64) *Generator {
	if seed == 0 {
		seed = rand.Uint64()
	}
	if purchaseRate < 0 || purchaseRate > 1 || math.IsNaN(purchaseRate) {
		purchaseRate = DefaultPurchaseRate
	}
	return &Generator{
		rng:          rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		purchaseRate: purchaseRate,
		now:          time.Now,
	}
}

// SetClock replaces the clock used for the first event of each session.
func (g *Generator) SetClock(now func() time.Time) {
	g.mu.Lock()
	g.now = now
	g.mu.Unlock()
}

// Session builds the next session: two page views, a product view, an add
// to cart and a checkout start, then a purchase or a checkout error.
func (g *Generator) Session() Session {
	g.mu.Lock()
	defer g.mu.Unlock()

	s := Session{
		ID:       g.uuid(),
		Category: Categories[g.rng.IntN(len(Categories))],
	}
	s.ProductID = fmt.Sprintf("%s%d", upperPrefix(s.Category), 100+g.rng.IntN(900))
	s.Price = float64(10000+g.rng.IntN(190001)) / 100

	ts := g.now().UTC()
	next := func(typ string) *eventprocessor.Event {
		e := &eventprocessor.Event{
			Type:      typ,
			Timestamp: ts,
			SessionID: s.ID,
			Sequence:  len(s.Events),
		}
		s.Events = append(s.Events, e)
		ts = ts.Add(time.Duration(500+g.rng.IntN(1500)) * time.Millisecond)
		return e
	}

	next(eventprocessor.EventPageView).Path = "/"
	next(eventprocessor.EventPageView).Path = "/category/" + s.Category

	view := next(eventprocessor.EventProductView)
	view.Path = "/category/" + s.Category + "/product/" + s.ProductID
	view.SetProperty("product_id", s.ProductID)

	cart := next(eventprocessor.EventAddToCart)
	cart.SetProperty("product_id", s.ProductID)
	cart.SetProperty("value", s.Price)

	next(eventprocessor.EventBeginCheckout).SetProperty("cart_value", s.Price)

	if g.rng.Float64() < g.purchaseRate {
		s.Outcome = eventprocessor.EventPurchase
		p := next(eventprocessor.EventPurchase)
		p.SetProperty("transaction_id", g.uuid())
		p.SetProperty("value", s.Price)
	} else {
		s.Outcome = eventprocessor.EventCheckoutError
		next(eventprocessor.EventCheckoutError).SetProperty("reason", DeclinedReason)
	}
	return s
}

// uuid draws a version 4 UUID from the seeded source.
func (g *Generator) uuid() string {
	var b [16]byte
	binary.BigEndian.PutUint64(b[:8], g.rng.Uint64())
	binary.BigEndian.PutUint64(b[8:], g.rng.Uint64())
	b[6] = (b[6] & 0x0f) | 0x40
	b[8] = (b[8] & 0x3f) | 0x80
	return uuid.UUID(b).String()
}

func upperPrefix(s string) string {
	if len(s) < 2 {
		return "XX"
	}
	p := []byte(s[:2])
	for i, c := range p {
		if c >= 'a' && c <= 'z' {
			p[i] = c - 'a' + 'A'
		}
	}
	return string(p)
}
