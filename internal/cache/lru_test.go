package cache

import (
	"testing"
	"time"
)

func TestLRUCacheEviction(t *testing.T) {
	c := NewLRUCache[int](2, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)
	if _, ok := c.Get("a"); !ok {
		t.Fatal("a should be cached")
	}
	c.Set("c", 3) // evicts b, the least recently used

	if _, ok := c.Get("b"); ok {
		t.Error("b should have been evicted")
	}
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Errorf("a = %v, %v", v, ok)
	}
	if c.Size() != 2 {
		t.Errorf("Size() = %d, want 2", c.Size())
	}
}

func TestLRUCacheExpiry(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	c := NewLRUCache[string](10, time.Minute)
	c.now = func() time.Time { return now }

	c.Set("k", "v")
	c.Set("j", "w")
	now = now.Add(2 * time.Minute)

	if _, ok := c.Get("k"); ok {
		t.Error("expired entry returned")
	}
	if n := c.CleanExpired(); n != 1 {
		t.Errorf("CleanExpired() = %d, want 1", n)
	}
	if c.Size() != 0 {
		t.Errorf("Size() = %d, want 0", c.Size())
	}
}

func TestManagerInvalidatePrefix(t *testing.T) {
	summaries := NewLRUCache[string](10, time.Minute)
	charts := NewLRUCache[[]byte](10, time.Minute)
	m := NewManager(nil)
	m.Register(summaries)
	m.Register(charts)

	summaries.Set("u1:summary:2025-01-01", "x")
	summaries.Set("u2:summary:2025-01-01", "y")
	charts.Set("u1:pie", []byte{1})

	if n := m.InvalidatePrefix("u1:"); n != 2 {
		t.Fatalf("InvalidatePrefix() = %d, want 2", n)
	}
	if _, ok := summaries.Get("u2:summary:2025-01-01"); !ok {
		t.Error("other user's entry should survive")
	}

	m.Purge()
	if summaries.Size()+charts.Size() != 0 {
		t.Error("Purge should empty every cache")
	}
}

func TestManagerStopWithoutStart(t *testing.T) {
	m := NewManager(nil)
	m.Stop()

	m = NewManager(nil)
	m.StartCleanup(10 * time.Millisecond)
	m.Stop()
}
