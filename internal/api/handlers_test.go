// GadgetGrove - E-commerce Clickstream Analytics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gadgetgrove

package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"

	"github.com/tomtom215/gadgetgrove/internal/emitter"
	"github.com/tomtom215/gadgetgrove/internal/eventprocessor"
	"github.com/tomtom215/gadgetgrove/internal/reporting"
)

var fixedNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

type capturePublisher struct {
	mu   sync.Mutex
	msgs map[string][]*message.Message
	err  error
}

func (p *capturePublisher) Publish(_ context.Context, topic string, msg *message.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	if p.msgs == nil {
		p.msgs = make(map[string][]*message.Message)
	}
	p.msgs[topic] = append(p.msgs[topic], msg)
	return nil
}

func newDispatcher(t *testing.T, pub eventprocessor.MessagePublisher) *eventprocessor.Dispatcher {
	t.Helper()
	routes, err := eventprocessor.NewRoutingTable(
		[]string{"page_views", "user_events", "ecommerce_events", "default"}, "default", nil)
	if err != nil {
		t.Fatalf("NewRoutingTable: %v", err)
	}
	return eventprocessor.NewDispatcher(routes, pub, "analytics")
}

func newTestRouter(t *testing.T, deps Dependencies) http.Handler {
	t.Helper()
	h := NewHandler(deps)
	h.SetClock(func() time.Time { return fixedNow })
	mc := DefaultChiMiddlewareConfig()
	mc.RateLimitDisabled = true
	return NewRouter(h, mc)
}

func do(t *testing.T, router http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	req.RemoteAddr = "203.0.113.7:51234"
	req.Header.Set("User-Agent", "gadgetgrove-test/1.0")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

func TestIndex(t *testing.T) {
	w := do(t, newTestRouter(t, Dependencies{}), http.MethodGet, "/", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	body := decode[map[string]string](t, w)
	if body["message"] != "Welcome to GadgetGrove Data Pipeline" {
		t.Errorf("body = %v", body)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID")
	}
}

func TestIngestEventRoutesAndEnriches(t *testing.T) {
	pub := &capturePublisher{}
	router := newTestRouter(t, Dependencies{Dispatcher: newDispatcher(t, pub)})

	tests := []struct {
		name  string
		body  string
		queue string
	}{
		{"page view", `{"type":"page_view","timestamp":"2026-05-01T11:59:00Z","sessionId":"s1","path":"/"}`, "page_views"},
		{"purchase", `{"type":"purchase","timestamp":1777636740000,"sessionId":"s1","properties":{"value":19.99}}`, "ecommerce_events"},
		{"identify", `{"type":"identify","timestamp":"2026-05-01T11:59:00","userId":42}`, "user_events"},
		{"unknown type", `{"type":"newsletter_signup","timestamp":"2026-05-01T11:59:00Z"}`, "default"},
		{"queue hint", `{"type":"newsletter_signup","timestamp":"2026-05-01T11:59:00Z","queueName":"user_events"}`, "user_events"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, router, http.MethodPost, "/api/analytics", tt.body)
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
			}
			resp := decode[IngestResponse](t, w)
			if resp.Status != StatusSuccess || resp.Queue != tt.queue {
				t.Errorf("response = %+v, want queue %s", resp, tt.queue)
			}
		})
	}

	msgs := pub.msgs[eventprocessor.Topic("analytics", "page_views")]
	if len(msgs) != 1 {
		t.Fatalf("page_views got %d messages", len(msgs))
	}
	e, err := eventprocessor.DeserializeEvent(msgs[0].Payload)
	if err != nil {
		t.Fatalf("DeserializeEvent: %v", err)
	}
	if e.ClientIP != "203.0.113.7" || e.UserAgent != "gadgetgrove-test/1.0" {
		t.Errorf("client fields = %q %q", e.ClientIP, e.UserAgent)
	}
	if e.ServerTimestamp == nil || !e.ServerTimestamp.Equal(fixedNow) {
		t.Errorf("server timestamp = %v", e.ServerTimestamp)
	}
}

func TestIngestEventRejects(t *testing.T) {
	pub := &capturePublisher{}
	router := newTestRouter(t, Dependencies{Dispatcher: newDispatcher(t, pub)})

	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"malformed JSON", `{"type":`, http.StatusBadRequest, ErrCodeBadRequest},
		{"missing timestamp", `{"type":"page_view"}`, http.StatusBadRequest, ErrCodeValidationFailed},
		{"bad type", `{"type":"Page View","timestamp":"2026-05-01T11:59:00Z"}`, http.StatusBadRequest, ErrCodeValidationFailed},
		{"too large", `{"type":"page_view","title":"` + strings.Repeat("x", MaxEventBytes) + `"}`, http.StatusRequestEntityTooLarge, ErrCodeBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, router, http.MethodPost, "/api/analytics", tt.body)
			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d, body = %s", w.Code, tt.status, w.Body.String())
			}
			resp := decode[ErrorResponse](t, w)
			if resp.Status != StatusError || resp.Code != tt.code {
				t.Errorf("response = %+v", resp)
			}
			if resp.RequestID == "" {
				t.Error("error response should carry the request id")
			}
		})
	}
	if len(pub.msgs) != 0 {
		t.Errorf("rejected events were published: %v", pub.msgs)
	}
}

func TestIngestEventPublishFailure(t *testing.T) {
	pub := &capturePublisher{err: errors.New("nats: no responders")}
	router := newTestRouter(t, Dependencies{Dispatcher: newDispatcher(t, pub)})

	w := do(t, router, http.MethodPost, "/api/analytics", `{"type":"page_view","timestamp":"2026-05-01T11:59:00Z"}`)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", w.Code)
	}
	if resp := decode[ErrorResponse](t, w); resp.Code != ErrCodePublishFailed {
		t.Errorf("code = %s", resp.Code)
	}
}

func TestIngestRateLimited(t *testing.T) {
	h := NewHandler(Dependencies{Dispatcher: newDispatcher(t, &capturePublisher{})})
	mc := DefaultChiMiddlewareConfig()
	mc.RateLimitRequests = 2
	mc.RateLimitWindow = time.Minute
	router := NewRouter(h, mc)

	body := `{"type":"page_view","timestamp":"2026-05-01T11:59:00Z"}`
	for i := 0; i < 2; i++ {
		if w := do(t, router, http.MethodPost, "/api/analytics", body); w.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d", i, w.Code)
		}
	}
	w := do(t, router, http.MethodPost, "/api/analytics", body)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	// Other routes are not limited.
	if w := do(t, router, http.MethodGet, "/", ""); w.Code != http.StatusOK {
		t.Errorf("index status = %d", w.Code)
	}
}

func TestQueueStats(t *testing.T) {
	stats := func(context.Context) []eventprocessor.QueueStat {
		return []eventprocessor.QueueStat{
			{Queue: "page_views", Durable: "page_views_consumer", Pending: 3, AckPending: 1},
			{Queue: "user_events", Durable: "user_events_consumer", Error: "consumer not found"},
		}
	}
	w := do(t, newTestRouter(t, Dependencies{QueueStats: stats}), http.MethodGet, "/api/analytics/stats", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	resp := decode[StatsResponse](t, w)
	if resp.Status != StatusSuccess || !resp.Stats.Timestamp.Equal(fixedNow) {
		t.Errorf("response = %+v", resp)
	}
	if q := resp.Stats.Queues["page_views"]; q.Pending != 3 || q.AckPending != 1 {
		t.Errorf("page_views = %+v", q)
	}
	if q := resp.Stats.Queues["user_events"]; q.Error == "" {
		t.Errorf("user_events = %+v", q)
	}
}

type fakeEmitter struct {
	err error
}

func (f fakeEmitter) EmitSession(context.Context) (emitter.Session, error) {
	s := emitter.Session{ID: "0b7e", Outcome: eventprocessor.EventPurchase, Events: make([]*eventprocessor.Event, 6)}
	return s, f.err
}

func TestSimulate(t *testing.T) {
	tests := []struct {
		name   string
		deps   Dependencies
		status int
	}{
		{"emits", Dependencies{Emitter: fakeEmitter{}}, http.StatusOK},
		{"publish failure", Dependencies{Emitter: fakeEmitter{err: errors.New("down")}}, http.StatusServiceUnavailable},
		{"disabled", Dependencies{}, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, newTestRouter(t, tt.deps), http.MethodGet, "/simulate", "")
			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d", w.Code, tt.status)
			}
			if tt.status != http.StatusOK {
				return
			}
			resp := decode[SimulateResponse](t, w)
			if resp.Status != "simulation triggered" || resp.SessionID != "0b7e" || resp.EventsGenerated != 6 {
				t.Errorf("response = %+v", resp)
			}
		})
	}
}

type fakeSummarizer struct {
	since time.Time
	calls int
	err   error
}

func (f *fakeSummarizer) Summary(_ context.Context, since time.Time) (*reporting.Summary, error) {
	f.calls++
	f.since = since
	if f.err != nil {
		return nil, f.err
	}
	return &reporting.Summary{Since: since, TotalEvents: 12, Sessions: 3}, nil
}

func TestReportSummary(t *testing.T) {
	tests := []struct {
		name      string
		query     string
		status    int
		wantSince time.Time
	}{
		{"default window", "", http.StatusOK, fixedNow.Add(-24 * time.Hour)},
		{"explicit hours", "?hours=2", http.StatusOK, fixedNow.Add(-2 * time.Hour)},
		{"all time", "?hours=0", http.StatusOK, time.Time{}},
		{"negative", "?hours=-1", http.StatusBadRequest, time.Time{}},
		{"not a number", "?hours=day", http.StatusBadRequest, time.Time{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &fakeSummarizer{}
			w := do(t, newTestRouter(t, Dependencies{Reports: s}), http.MethodGet, "/api/reports/summary"+tt.query, "")
			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d", w.Code, tt.status)
			}
			if tt.status != http.StatusOK {
				if s.calls != 0 {
					t.Error("summarizer called for a bad request")
				}
				return
			}
			if !s.since.Equal(tt.wantSince) {
				t.Errorf("since = %v, want %v", s.since, tt.wantSince)
			}
			if resp := decode[reporting.Summary](t, w); resp.TotalEvents != 12 {
				t.Errorf("summary = %+v", resp)
			}
		})
	}

	s := &fakeSummarizer{err: errors.New("catalog error")}
	w := do(t, newTestRouter(t, Dependencies{Reports: s}), http.MethodGet, "/api/reports/summary", "")
	if w.Code != http.StatusInternalServerError {
		t.Errorf("store failure status = %d", w.Code)
	}
}

func TestHealth(t *testing.T) {
	ok := HealthCheck{Name: "warehouse", Check: func(context.Context) error { return nil }}
	down := HealthCheck{Name: "broker", Check: func(context.Context) error { return errors.New("stream missing") }}

	tests := []struct {
		name   string
		checks []HealthCheck
		status int
		want   string
	}{
		{"healthy", []HealthCheck{ok}, http.StatusOK, HealthStatusHealthy},
		{"no checks", nil, http.StatusOK, HealthStatusHealthy},
		{"unhealthy", []HealthCheck{ok, down}, http.StatusServiceUnavailable, HealthStatusUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, newTestRouter(t, Dependencies{HealthChecks: tt.checks, Version: "test"}), http.MethodGet, "/api/health", "")
			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d", w.Code, tt.status)
			}
			resp := decode[HealthResponse](t, w)
			if resp.Status != tt.want || len(resp.Checks) != len(tt.checks) {
				t.Errorf("response = %+v", resp)
			}
			if tt.status != http.StatusOK && resp.Checks["broker"] != "stream missing" {
				t.Errorf("broker check = %q", resp.Checks["broker"])
			}
		})
	}
}

func TestHealthCheckTimeout(t *testing.T) {
	slow := HealthCheck{Name: "broker", Check: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}}
	h := NewHandler(Dependencies{HealthChecks: []HealthCheck{slow}})
	h.checkTimeout = 20 * time.Millisecond
	router := NewRouter(h, DefaultChiMiddlewareConfig())

	w := do(t, router, http.MethodGet, "/api/health", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d", w.Code)
	}
}

func TestUnknownRoute(t *testing.T) {
	router := newTestRouter(t, Dependencies{})
	if w := do(t, router, http.MethodGet, "/api/nope", ""); w.Code != http.StatusNotFound {
		t.Errorf("status = %d", w.Code)
	}
	if w := do(t, router, http.MethodDelete, "/api/analytics", ""); w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d", w.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	router := newTestRouter(t, Dependencies{})
	do(t, router, http.MethodGet, "/", "")
	w := do(t, router, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "gadgetgrove_") {
		t.Errorf("metrics status = %d", w.Code)
	}
}
