// GadgetGrove - E-commerce Clickstream Analytics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gadgetgrove

// Package reporting is the read-only Reporting Layer over the warehouse:
// traffic, funnel, conversion and revenue summaries for a time window,
// with a per-day breakdown and weekly visitor cohort retention.
//
// Rows are aggregated in Go rather than in SQL so the same code runs on
// DuckDB and PostgreSQL, whose JSON operators differ. Missing queue tables
// count as zero.
package reporting

import (
	"context"
	"database/sql"
	"fmt"
	"maps"
	"math"
	"slices"
	"sort"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/gadgetgrove/internal/cache"
	"github.com/tomtom215/gadgetgrove/internal/eventprocessor"
	"github.com/tomtom215/gadgetgrove/internal/logging"
	"github.com/tomtom215/gadgetgrove/internal/warehouse"
)

// Session outcomes, from best to worst.
const (
	OutcomePurchase        = "purchase"
	OutcomeCheckoutError   = "checkout_error"
	OutcomeCartAbandonment = "cart_abandonment"
	OutcomeBrowseOnly      = "browse_only"
	OutcomeBounce          = "bounce"
)

// DefaultTopProducts is how many products Summary ranks.
const DefaultTopProducts = 10

// MaxCohortWeeks is the last week after first visit that cohort retention
// reports.
const MaxCohortWeeks = 8

const dateLayout = "2006-01-02"

// Store is the read side of the warehouse.
type Store interface {
	Schema() string
	Tables(ctx context.Context) ([]string, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Funnel counts sessions reaching each stage.
type Funnel struct {
	Sessions int `json:"sessions"`
	Browse   int `json:"browse"`
	Product  int `json:"product"`
	Cart     int `json:"cart"`
	Checkout int `json:"checkout"`
	Purchase int `json:"purchase"`
}

// ProductStat is the activity of one product.
type ProductStat struct {
	ProductID  string `json:"product_id"`
	Views      int    `json:"views"`
	AddsToCart int    `json:"adds_to_cart"`
}

// DayStat is the activity of one UTC day.
type DayStat struct {
	Date      string  `json:"date"`
	Events    int     `json:"events"`
	Sessions  int     `json:"sessions"`
	Purchases int     `json:"purchases"`
	Revenue   float64 `json:"revenue"`
}

// Cohort groups visitors by the UTC day of their first event in the
// window. Retention[w] is the share of them active in week w after that
// day; Retention[0] is always 1. A visitor is the user id, or the session
// id for anonymous traffic.
type Cohort struct {
	Date      string    `json:"date"`
	Visitors  int       `json:"visitors"`
	Retention []float64 `json:"retention"`
}

// Summary aggregates the warehouse for events at or after Since.
type Summary struct {
	Since       time.Time `json:"since"`
	GeneratedAt time.Time `json:"generated_at"`

	TotalEvents int            `json:"total_events"`
	PerQueue    map[string]int `json:"per_queue"`
	PerType     map[string]int `json:"per_type"`

	Sessions         int     `json:"sessions"`
	PurchaseSessions int     `json:"purchase_sessions"`
	ConversionRate   float64 `json:"conversion_rate"`
	Purchases        int     `json:"purchases"`
	Revenue          float64 `json:"revenue"`
	AvgOrderValue    float64 `json:"avg_order_value"`
	CheckoutErrors   int     `json:"checkout_errors"`

	Funnel      Funnel         `json:"funnel"`
	Outcomes    map[string]int `json:"outcomes"`
	TopProducts []ProductStat  `json:"top_products"`

	Daily   []DayStat `json:"daily"`
	Cohorts []Cohort  `json:"cohorts"`
}

// Service computes summaries.
type Service struct {
	store Store
	cache *cache.TTL[*Summary]
	topN  int
	now   func() time.Time
}

// NewService creates a Service. A positive cacheTTL caches summaries per
// window start, truncated to the minute.
func NewService(store Store, cacheTTL time.Duration) *Service {
	s := &Service{store: store, topN: DefaultTopProducts, now: time.Now}
	if cacheTTL > 0 {
		s.cache = cache.New[*Summary](cacheTTL)
	}
	return s
}

// SetClock replaces the clock used for GeneratedAt.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Invalidate drops cached summaries, for example after a pipeline run.
func (s *Service) Invalidate() {
	if s.cache != nil {
		s.cache.Clear()
	}
}

// Summary reports on events whose timestamp is at or after since. A zero
// since covers the whole warehouse.
func (s *Service) Summary(ctx context.Context, since time.Time) (*Summary, error) {
	if s.cache == nil {
		return s.compute(ctx, since)
	}
	since = since.Truncate(time.Minute)
	s.cache.Prune()
	return s.cache.GetOrLoad(cache.Key("summary", since.Unix()), func() (*Summary, error) {
		st := s.cache.Stats()
		logging.Ctx(ctx).Debug().
			Int("cached_windows", st.Keys).
			Float64("hit_rate", st.HitRate()).
			Msg("Report cache miss, querying warehouse")
		return s.compute(ctx, since)
	})
}

type sessionState struct {
	types map[string]int
}

type dayState struct {
	stat     DayStat
	sessions map[string]struct{}
}

// tally accumulates one Summary across queue tables.
type tally struct {
	sum      *Summary
	sessions map[string]*sessionState
	products map[string]*ProductStat
	days     map[string]*dayState
	visitors map[string]map[time.Time]struct{}
}

func (s *Service) compute(ctx context.Context, since time.Time) (*Summary, error) {
	tables, err := s.store.Tables(ctx)
	if err != nil {
		return nil, err
	}

	sum := &Summary{
		Since:       since.UTC(),
		GeneratedAt: s.now().UTC(),
		PerQueue:    make(map[string]int),
		PerType:     make(map[string]int),
		Outcomes:    make(map[string]int),
	}
	tl := &tally{
		sum:      sum,
		sessions: make(map[string]*sessionState),
		products: make(map[string]*ProductStat),
		days:     make(map[string]*dayState),
		visitors: make(map[string]map[time.Time]struct{}),
	}
	sessions := tl.sessions

	for _, table := range tables {
		n, err := s.scanTable(ctx, table, since, tl)
		if err != nil {
			return nil, err
		}
		sum.PerQueue[table] = n
		sum.TotalEvents += n
	}

	sum.Sessions = len(sessions)
	sum.Funnel.Sessions = len(sessions)
	for _, st := range sessions {
		if st.types[eventprocessor.EventPageView] > 0 {
			sum.Funnel.Browse++
		}
		if st.types[eventprocessor.EventProductView] > 0 {
			sum.Funnel.Product++
		}
		if st.types[eventprocessor.EventAddToCart] > 0 {
			sum.Funnel.Cart++
		}
		if st.types[eventprocessor.EventBeginCheckout] > 0 || st.types[eventprocessor.EventCheckout] > 0 {
			sum.Funnel.Checkout++
		}
		if st.types[eventprocessor.EventPurchase] > 0 {
			sum.Funnel.Purchase++
		}
		sum.Outcomes[outcome(st)]++
	}
	sum.PurchaseSessions = sum.Funnel.Purchase
	if sum.Sessions > 0 {
		sum.ConversionRate = round(float64(sum.PurchaseSessions)/float64(sum.Sessions), 4)
	}
	sum.Revenue = round(sum.Revenue, 2)
	if sum.Purchases > 0 {
		sum.AvgOrderValue = round(sum.Revenue/float64(sum.Purchases), 2)
	}
	sum.TopProducts = topProducts(tl.products, s.topN)
	sum.Daily = daily(tl.days)
	sum.Cohorts = cohorts(tl.visitors)

	logging.Ctx(ctx).Debug().
		Int("events", sum.TotalEvents).
		Int("sessions", sum.Sessions).
		Msg("Computed reporting summary")
	return sum, nil
}

func (s *Service) scanTable(ctx context.Context, table string, since time.Time, tl *tally) (int, error) {
	name, err := warehouse.TableName(s.store.Schema(), table)
	if err != nil {
		return 0, err
	}
	query := `SELECT "type", "timestamp", "session_id", "user_id", "properties" FROM ` + name
	var args []any
	if !since.IsZero() {
		query += ` WHERE "timestamp" >= $1`
		args = append(args, since.UTC())
	}

	rows, err := s.store.QueryContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("query %s: %w", name, err)
	}
	defer rows.Close()

	n := 0
	for rows.Next() {
		var (
			typ     string
			ts      time.Time
			session sql.NullString
			user    sql.NullString
			props   sql.NullString
		)
		if err := rows.Scan(&typ, &ts, &session, &user, &props); err != nil {
			return 0, fmt.Errorf("scan %s: %w", name, err)
		}
		n++
		tl.sum.PerType[typ]++

		day := tl.day(ts)
		day.stat.Events++
		if session.String != "" {
			st := tl.sessions[session.String]
			if st == nil {
				st = &sessionState{types: make(map[string]int)}
				tl.sessions[session.String] = st
			}
			st.types[typ]++
			day.sessions[session.String] = struct{}{}
		}
		tl.visit(user.String, session.String, ts)

		p := parseProperties(props.String)
		switch typ {
		case eventprocessor.EventPurchase:
			value := numberOf(p["value"])
			tl.sum.Purchases++
			tl.sum.Revenue += value
			day.stat.Purchases++
			day.stat.Revenue += value
		case eventprocessor.EventCheckoutError:
			tl.sum.CheckoutErrors++
		case eventprocessor.EventProductView, eventprocessor.EventAddToCart:
			id := stringOf(p["product_id"])
			if id == "" {
				id = stringOf(p["productId"])
			}
			if id == "" {
				continue
			}
			ps := tl.products[id]
			if ps == nil {
				ps = &ProductStat{ProductID: id}
				tl.products[id] = ps
			}
			if typ == eventprocessor.EventProductView {
				ps.Views++
			} else {
				ps.AddsToCart++
			}
		}
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("read %s: %w", name, err)
	}
	return n, nil
}

func (tl *tally) day(ts time.Time) *dayState {
	key := ts.UTC().Format(dateLayout)
	d := tl.days[key]
	if d == nil {
		d = &dayState{stat: DayStat{Date: key}, sessions: make(map[string]struct{})}
		tl.days[key] = d
	}
	return d
}

// visit records the UTC day a visitor was active.
func (tl *tally) visit(user, session string, ts time.Time) {
	id := user
	if id == "" {
		id = session
	}
	if id == "" {
		return
	}
	active := tl.visitors[id]
	if active == nil {
		active = make(map[time.Time]struct{})
		tl.visitors[id] = active
	}
	t := ts.UTC()
	active[time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)] = struct{}{}
}

func daily(days map[string]*dayState) []DayStat {
	out := make([]DayStat, 0, len(days))
	for _, key := range slices.Sorted(maps.Keys(days)) {
		d := days[key]
		d.stat.Sessions = len(d.sessions)
		d.stat.Revenue = round(d.stat.Revenue, 2)
		out = append(out, d.stat)
	}
	return out
}

// cohorts builds weekly retention up to MaxCohortWeeks. Every cohort
// reports the same number of weeks: the furthest week any visitor reached.
func cohorts(visitors map[string]map[time.Time]struct{}) []Cohort {
	type group struct {
		size   int
		active [MaxCohortWeeks + 1]int
	}
	groups := make(map[time.Time]*group)
	weeks := 0
	for _, days := range visitors {
		first := slices.MinFunc(slices.Collect(maps.Keys(days)), func(a, b time.Time) int { return a.Compare(b) })
		g := groups[first]
		if g == nil {
			g = &group{}
			groups[first] = g
		}
		g.size++
		var seen [MaxCohortWeeks + 1]bool
		for d := range days {
			w := int(d.Sub(first).Hours()) / (24 * 7)
			if w > MaxCohortWeeks || seen[w] {
				continue
			}
			seen[w] = true
			g.active[w]++
			weeks = max(weeks, w)
		}
	}

	starts := slices.SortedFunc(maps.Keys(groups), func(a, b time.Time) int { return a.Compare(b) })
	out := make([]Cohort, 0, len(starts))
	for _, start := range starts {
		g := groups[start]
		c := Cohort{Date: start.Format(dateLayout), Visitors: g.size, Retention: make([]float64, weeks+1)}
		for w := range c.Retention {
			c.Retention[w] = round(float64(g.active[w])/float64(g.size), 4)
		}
		out = append(out, c)
	}
	return out
}

func outcome(st *sessionState) string {
	switch {
	case st.types[eventprocessor.EventPurchase] > 0:
		return OutcomePurchase
	case st.types[eventprocessor.EventCheckoutError] > 0:
		return OutcomeCheckoutError
	case st.types[eventprocessor.EventAddToCart] > 0:
		return OutcomeCartAbandonment
	}
	total := 0
	for _, n := range st.types {
		total += n
	}
	if total <= 1 {
		return OutcomeBounce
	}
	return OutcomeBrowseOnly
}

// topProducts ranks by views, then adds to cart, then id.
func topProducts(products map[string]*ProductStat, n int) []ProductStat {
	ids := slices.Collect(maps.Keys(products))
	out := make([]ProductStat, 0, len(ids))
	for _, id := range ids {
		out = append(out, *products[id])
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Views != out[j].Views {
			return out[i].Views > out[j].Views
		}
		if out[i].AddsToCart != out[j].AddsToCart {
			return out[i].AddsToCart > out[j].AddsToCart
		}
		return out[i].ProductID < out[j].ProductID
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func parseProperties(s string) map[string]any {
	if s == "" {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil
	}
	return m
}

// numberOf accepts JSON numbers and numeric strings.
func numberOf(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case string:
		f, err := strconv.ParseFloat(x, 64)
		if err == nil {
			return f
		}
	case json.Number:
		f, err := x.Float64()
		if err == nil {
			return f
		}
	}
	return 0
}

func stringOf(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	}
	return ""
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
