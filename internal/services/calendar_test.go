package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"cuzdan/internal/cache"
	"cuzdan/internal/core"
	"cuzdan/internal/highlight"
	"cuzdan/internal/metrics"
	"cuzdan/internal/store"
	"cuzdan/internal/store/memory"
)

var fixedNow = time.Date(2024, time.January, 15, 10, 0, 0, 0, time.UTC)

func newTestCalendar(t *testing.T, debounce time.Duration) (*CalendarService, *memory.Store, *metrics.Metrics) {
	t.Helper()
	s := memory.New()
	t.Cleanup(func() { _ = s.Close() })
	m := metrics.New()
	svc := NewCalendarService(s, cache.NewLRUCache[[]core.HighlightedDate](16, time.Minute), m, nil, CalendarConfig{
		Debounce: debounce,
		Now:      func() time.Time { return fixedNow },
	})
	return svc, s, m
}

func putTransaction(t *testing.T, s store.DocumentStore, userID string, tx core.Transaction) {
	t.Helper()
	c := store.NewCollection[core.Transaction](s, store.Transactions, nil)
	if _, err := c.Put(context.Background(), userID, "", tx); err != nil {
		t.Fatalf("put transaction: %v", err)
	}
}

func TestCalendarHighlightsUsesCache(t *testing.T) {
	svc, s, m := newTestCalendar(t, 0)
	ctx := context.Background()
	putTransaction(t, s, "alice", core.Transaction{Date: "2024-01-10", Type: core.Expense, Amount: 250, Description: "Market"})

	first, err := svc.Highlights(ctx, "alice", highlight.DefaultOptions())
	if err != nil {
		t.Fatalf("Highlights() error = %v", err)
	}
	if len(first) != 1 || first[0].Type != core.HighlightExpense {
		t.Fatalf("Highlights() = %+v, want one expense", first)
	}

	putTransaction(t, s, "alice", core.Transaction{Date: "2024-01-11", Type: core.Income, Amount: 1000, Description: "Maaş"})

	cached, err := svc.Highlights(ctx, "alice", highlight.DefaultOptions())
	if err != nil {
		t.Fatalf("Highlights() error = %v", err)
	}
	if len(cached) != 1 {
		t.Fatalf("expected cached result with 1 event, got %d", len(cached))
	}
	if hits := m.CounterValue("cache_hits", highlightCacheName); hits != 1 {
		t.Errorf("cache hits = %v, want 1", hits)
	}
	if misses := m.CounterValue("cache_misses", highlightCacheName); misses != 1 {
		t.Errorf("cache misses = %v, want 1", misses)
	}

	svc.Invalidate("alice")
	fresh, err := svc.Highlights(ctx, "alice", highlight.DefaultOptions())
	if err != nil {
		t.Fatalf("Highlights() error = %v", err)
	}
	if len(fresh) != 2 {
		t.Fatalf("expected 2 events after invalidation, got %d", len(fresh))
	}
}

func TestCalendarHighlightsReturnsCopy(t *testing.T) {
	svc, s, _ := newTestCalendar(t, 0)
	ctx := context.Background()
	putTransaction(t, s, "alice", core.Transaction{Date: "2024-01-10", Type: core.Expense, Amount: 250, Description: "Market"})

	first, _ := svc.Highlights(ctx, "alice", highlight.DefaultOptions())
	first[0].Description = "changed"

	second, _ := svc.Highlights(ctx, "alice", highlight.DefaultOptions())
	if second[0].Description == "changed" {
		t.Fatal("caller mutation leaked into the cache")
	}
}

func TestCalendarHighlightsKeysByOptions(t *testing.T) {
	svc, s, _ := newTestCalendar(t, 0)
	ctx := context.Background()
	cards := store.NewCollection[core.BankCard](s, store.Cards, nil)
	if _, err := cards.Put(ctx, "alice", "", core.BankCard{BankName: "Örnek Bank", StatementDate: "5", PaymentDueDate: "15"}); err != nil {
		t.Fatal(err)
	}

	withCards, _ := svc.Highlights(ctx, "alice", highlight.Options{PastMonths: 0, FutureMonths: 0, IncludeCards: true})
	withoutCards, _ := svc.Highlights(ctx, "alice", highlight.Options{PastMonths: 0, FutureMonths: 0, IncludeCards: false})

	if len(withCards) != 2 {
		t.Errorf("with cards: got %d events, want 2", len(withCards))
	}
	if len(withoutCards) != 0 {
		t.Errorf("without cards: got %d events, want 0", len(withoutCards))
	}
}

func TestCalendarWatch(t *testing.T) {
	svc, s, _ := newTestCalendar(t, 20*time.Millisecond)
	putTransaction(t, s, "alice", core.Transaction{Date: "2024-01-10", Type: core.Expense, Amount: 250, Description: "Market"})

	var (
		mu    sync.Mutex
		calls int
	)
	updates := make(chan []core.HighlightedDate, 64)
	stop, err := svc.Watch(context.Background(), "alice", highlight.DefaultOptions(), func(events []core.HighlightedDate) {
		mu.Lock()
		calls++
		mu.Unlock()
		select {
		case updates <- events:
		default:
		}
	})
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	defer stop()

	waitFor := func(n int) {
		t.Helper()
		deadline := time.After(2 * time.Second)
		for {
			select {
			case events := <-updates:
				if len(events) == n {
					return
				}
			case <-deadline:
				t.Fatalf("timed out waiting for %d events", n)
			}
		}
	}

	waitFor(1)

	for i := 0; i < 5; i++ {
		putTransaction(t, s, "alice", core.Transaction{Date: "2024-01-12", Type: core.Expense, Amount: 10, Description: "Simit"})
	}
	waitFor(6)

	// Let pending timers drain before stopping.
	time.Sleep(60 * time.Millisecond)
	stop()
	stop()

	mu.Lock()
	before := calls
	mu.Unlock()

	putTransaction(t, s, "alice", core.Transaction{Date: "2024-01-13", Type: core.Expense, Amount: 10, Description: "Çay"})
	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	after := calls
	mu.Unlock()
	if after != before {
		t.Fatalf("fn called %d more times after stop", after-before)
	}
}

func TestCalendarWatchStopsOnContextCancel(t *testing.T) {
	svc, s, _ := newTestCalendar(t, 10*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())

	updates := make(chan int, 16)
	if _, err := svc.Watch(ctx, "alice", highlight.DefaultOptions(), func(events []core.HighlightedDate) {
		updates <- len(events)
	}); err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	select {
	case <-updates:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for initial snapshot")
	}

	cancel()
	time.Sleep(30 * time.Millisecond)
	putTransaction(t, s, "alice", core.Transaction{Date: "2024-01-10", Type: core.Expense, Amount: 1, Description: "x"})

	select {
	case n := <-updates:
		t.Fatalf("unexpected update with %d events after cancel", n)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestCacheKeyPrefix(t *testing.T) {
	key := cacheKey("alice", fixedNow, highlight.DefaultOptions())
	if key != "alice|2024-01|3|3|true" {
		t.Fatalf("cacheKey() = %q", key)
	}
}
