package cache

import (
	"errors"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time { return f.t }

func newTestCache(size int, ttl time.Duration) (*LRUCache[int], *fakeClock) {
	clk := &fakeClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewLRUCache[int](size, ttl)
	c.now = clk.now
	return c, clk
}

func TestLRUCache_Eviction(t *testing.T) {
	c, _ := newTestCache(2, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Get("a")
	c.Set("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Error("b should have been evicted as least recently used")
	}
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Errorf("a = %d, %v", v, ok)
	}
	if c.Size() != 2 {
		t.Errorf("size = %d", c.Size())
	}
	if s := c.Stats(); s.Evictions != 1 {
		t.Errorf("evictions = %d, want 1", s.Evictions)
	}
}

func TestLRUCache_TTL(t *testing.T) {
	c, clk := newTestCache(10, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)

	clk.t = clk.t.Add(30 * time.Second)
	c.Set("b", 3)
	clk.t = clk.t.Add(45 * time.Second)

	if _, ok := c.Get("a"); ok {
		t.Error("a should have expired")
	}
	if n := c.CleanExpired(); n != 0 {
		t.Errorf("CleanExpired removed %d, want 0 (a already dropped, b refreshed)", n)
	}
	clk.t = clk.t.Add(time.Minute)
	if n := c.CleanExpired(); n != 1 {
		t.Errorf("CleanExpired removed %d, want 1", n)
	}
}

func TestLRUCache_DeletePrefixAndStats(t *testing.T) {
	c, _ := newTestCache(10, time.Minute)
	c.Set(Key("u1", 1, "summary"), 1)
	c.Set(Key("u1", 2, "summary"), 2)
	c.Set(Key("u2", 1, "summary"), 3)

	if n := c.DeletePrefix(NamespacePrefix("u1")); n != 2 {
		t.Errorf("DeletePrefix removed %d", n)
	}
	c.Get(Key("u2", 1, "summary"))
	c.Get("missing")
	if s := c.Stats(); s.Size != 1 || s.Hits != 1 || s.Misses != 1 {
		t.Errorf("stats = %+v", s)
	}
}

func TestKey(t *testing.T) {
	if got := Key("local", 7, "breakdown", "2025-01"); got != "local@7|breakdown|2025-01" {
		t.Errorf("Key = %q", got)
	}
}

func TestGetOrCompute(t *testing.T) {
	c, _ := newTestCache(10, time.Minute)
	calls := 0
	compute := func() (int, error) { calls++; return 42, nil }

	v, hit, err := GetOrCompute[int](c, "k", compute)
	if err != nil || hit || v != 42 {
		t.Fatalf("first = %d, %v, %v", v, hit, err)
	}
	v, hit, _ = GetOrCompute[int](c, "k", compute)
	if !hit || v != 42 || calls != 1 {
		t.Fatalf("second = %d, hit=%v, calls=%d", v, hit, calls)
	}

	boom := errors.New("boom")
	if _, _, err := GetOrCompute[int](c, "e", func() (int, error) { return 0, boom }); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if _, ok := c.Get("e"); ok {
		t.Fatal("errors must not be cached")
	}
}

func TestManager(t *testing.T) {
	c, clk := newTestCache(10, time.Second)
	c.Set("a", 1)
	clk.t = clk.t.Add(2 * time.Second)

	m := NewManager(nil)
	m.Register(c)
	if n := m.CleanNow(); n != 1 {
		t.Errorf("CleanNow = %d", n)
	}
	m.StartCleanup(time.Hour)
	m.Stop()
	m.Stop()
}
