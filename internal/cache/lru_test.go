package cache

import (
	"testing"
	"time"
)

func TestLRUCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewLRUCache[int](2, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)
	if _, ok := c.Get("a"); !ok {
		t.Fatal("a should be present")
	}
	c.Set("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Fatal("b should have been evicted")
	}
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Fatalf("a = %v, %v", v, ok)
	}
	if c.Size() != 2 {
		t.Fatalf("size = %d, want 2", c.Size())
	}
}

func TestLRUCacheTTL(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewLRUCache[string](10, time.Minute)
	c.now = func() time.Time { return now }

	c.Set("k", "v")
	now = now.Add(30 * time.Second)
	if _, ok := c.Get("k"); !ok {
		t.Fatal("entry expired too early")
	}
	c.Set("other", "x")
	now = now.Add(45 * time.Second)
	if _, ok := c.Get("k"); ok {
		t.Fatal("entry should have expired")
	}
	if n := c.CleanExpired(); n != 0 {
		t.Fatalf("CleanExpired() = %d, want 0", n)
	}
	now = now.Add(time.Minute)
	if n := c.CleanExpired(); n != 1 {
		t.Fatalf("CleanExpired() = %d, want 1", n)
	}
}

func TestLRUCacheZeroTTLNeverExpires(t *testing.T) {
	now := time.Now()
	c := NewLRUCache[int](1, 0)
	c.now = func() time.Time { return now }
	c.Set("k", 1)
	now = now.Add(24 * time.Hour)
	if _, ok := c.Get("k"); !ok {
		t.Fatal("zero ttl entries should not expire")
	}
}

func TestLRUCacheDeletePrefix(t *testing.T) {
	c := NewLRUCache[int](10, time.Minute)
	c.Set("u1|3|3|true", 1)
	c.Set("u1|0|1|true", 2)
	c.Set("u10|3|3|true", 3)
	c.Set("u2|3|3|true", 4)

	if n := c.DeletePrefix("u1|"); n != 2 {
		t.Fatalf("DeletePrefix() = %d, want 2", n)
	}
	if _, ok := c.Get("u10|3|3|true"); !ok {
		t.Fatal("u10 must not match the u1| prefix")
	}
	if c.Size() != 2 {
		t.Fatalf("size = %d, want 2", c.Size())
	}
}

func TestManagerCleansRegisteredCaches(t *testing.T) {
	now := time.Now()
	c := NewLRUCache[int](10, time.Second)
	c.now = func() time.Time { return now }
	c.Set("k", 1)

	m := NewManager(nil)
	m.Register(c)
	now = now.Add(2 * time.Second)
	if n := m.CleanNow(); n != 1 {
		t.Fatalf("CleanNow() = %d, want 1", n)
	}

	m.StartCleanup(time.Millisecond)
	m.Stop()
	m.Stop()
}

func TestLRUCacheStats(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewLRUCache[int](2, time.Minute)
	c.now = func() time.Time { return now }

	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("c", 3) // evicts a
	c.Get("a")
	c.Get("c")
	now = now.Add(2 * time.Minute)
	c.Get("b")
	c.CleanExpired()

	got := c.Stats()
	want := Stats{Hits: 1, Misses: 2, Evicted: 1, Expired: 2, Entries: 0, MaxSize: 2}
	if got != want {
		t.Fatalf("Stats() = %+v, want %+v", got, want)
	}
}

type countingCleaner struct{ calls int }

func (c *countingCleaner) CleanExpired() int {
	c.calls++
	return 0
}

func TestManagerAcceptsCleanersWithoutStats(t *testing.T) {
	plain := &countingCleaner{}
	m := NewManager(nil)
	m.Register(plain)
	m.Register(NewLRUCache[int](1, time.Minute))

	if n := m.CleanNow(); n != 0 {
		t.Fatalf("CleanNow() = %d, want 0", n)
	}
	m.logStats()
	if plain.calls != 1 {
		t.Fatalf("cleaner calls = %d, want 1", plain.calls)
	}
}
