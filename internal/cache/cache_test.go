// GadgetGrove - E-commerce Clickstream Analytics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gadgetgrove

package cache

import (
	"errors"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestCache(ttl time.Duration) (*TTL[string], *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := New[string](ttl)
	c.SetClock(clock.now)
	return c, clock
}

func TestCacheBasicOperations(t *testing.T) {
	c, _ := newTestCache(time.Minute)

	c.Set("key1", "value1")
	value, ok := c.Get("key1")
	if !ok || value != "value1" {
		t.Errorf("Get(key1) = %q, %v", value, ok)
	}
	if _, ok := c.Get("key2"); ok {
		t.Error("Expected key2 to not exist")
	}

	c.Delete("key1")
	if _, ok := c.Get("key1"); ok {
		t.Error("Expected key1 to be deleted")
	}

	stats := c.Stats()
	if stats.Hits != 1 || stats.Misses != 2 || stats.Evictions != 1 || stats.Keys != 0 {
		t.Errorf("stats = %+v", stats)
	}
	if rate := stats.HitRate(); rate < 33 || rate > 34 {
		t.Errorf("HitRate() = %f", rate)
	}
}

func TestCacheExpiration(t *testing.T) {
	c, clock := newTestCache(time.Minute)
	c.Set("key1", "value1")

	clock.advance(59 * time.Second)
	if _, ok := c.Get("key1"); !ok {
		t.Error("Expected key1 inside its TTL")
	}
	clock.advance(time.Second)
	if _, ok := c.Get("key1"); ok {
		t.Error("Expected key1 to expire at its TTL")
	}
}

func TestCachePruneAndClear(t *testing.T) {
	c, clock := newTestCache(time.Minute)
	c.Set("old", "a")
	clock.advance(30 * time.Second)
	c.Set("new", "b")
	clock.advance(45 * time.Second)

	if n := c.Prune(); n != 1 {
		t.Errorf("Prune() = %d, want 1", n)
	}
	if c.Stats().Keys != 1 {
		t.Errorf("keys = %d, want 1", c.Stats().Keys)
	}
	c.Clear()
	if c.Stats().Keys != 0 {
		t.Error("Clear left entries behind")
	}
}

func TestCacheGetOrLoad(t *testing.T) {
	c, _ := newTestCache(time.Minute)
	calls := 0
	load := func() (string, error) {
		calls++
		return "loaded", nil
	}

	for i := 0; i < 3; i++ {
		v, err := c.GetOrLoad("k", load)
		if err != nil || v != "loaded" {
			t.Fatalf("GetOrLoad = %q, %v", v, err)
		}
	}
	if calls != 1 {
		t.Errorf("load called %d times, want 1", calls)
	}

	boom := errors.New("boom")
	if _, err := c.GetOrLoad("fail", func() (string, error) { return "", boom }); !errors.Is(err, boom) {
		t.Errorf("expected load error, got %v", err)
	}
	if _, ok := c.Get("fail"); ok {
		t.Error("failed loads must not be cached")
	}
}

func TestKey(t *testing.T) {
	a := Key("summary", map[string]int{"hours": 24})
	b := Key("summary", map[string]int{"hours": 24})
	c := Key("summary", map[string]int{"hours": 1})
	if a != b {
		t.Error("same params should give the same key")
	}
	if a == c {
		t.Error("different params should give different keys")
	}
}
