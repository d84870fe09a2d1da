package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"cuzdan/internal/cache"
	"cuzdan/internal/core"
	"cuzdan/internal/highlight"
	"cuzdan/internal/log"
	"cuzdan/internal/metrics"
	"cuzdan/internal/store"
)

const highlightCacheName = "highlights"

// DefaultDebounce is the quiet period Watch waits for before recomputing.
const DefaultDebounce = 100 * time.Millisecond

// CalendarConfig holds the tunables of a CalendarService.
type CalendarConfig struct {
	Debounce time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

// CalendarService serves composed highlights for a user, from cache when it can.
type CalendarService struct {
	transactions *store.Collection[core.Transaction]
	payments     *store.Collection[core.Payment]
	cards        *store.Collection[core.BankCard]

	cache    cache.Cache[[]core.HighlightedDate]
	metrics  *metrics.Metrics
	logger   *log.Logger
	debounce time.Duration
	now      func() time.Time
}

// NewCalendarService wires the service. A nil cache disables caching and a
// nil metrics disables instrumentation.
func NewCalendarService(s store.DocumentStore, c cache.Cache[[]core.HighlightedDate], m *metrics.Metrics, logger *log.Logger, cfg CalendarConfig) *CalendarService {
	if logger == nil {
		logger = log.Discard()
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &CalendarService{
		transactions: store.NewCollection[core.Transaction](s, store.Transactions, logger),
		payments:     store.NewCollection[core.Payment](s, store.Payments, logger),
		cards:        store.NewCollection[core.BankCard](s, store.Cards, logger),
		cache:        c,
		metrics:      m,
		logger:       logger.WithComponent(log.ComponentCalendar),
		debounce:     cfg.Debounce,
		now:          cfg.Now,
	}
}

// Highlights returns the events of the window around the current month.
// The returned slice belongs to the caller.
func (s *CalendarService) Highlights(ctx context.Context, userID string, opts highlight.Options) ([]core.HighlightedDate, error) {
	now := s.now()
	opts = opts.Normalize()
	key := cacheKey(userID, now, opts)

	if s.cache != nil {
		if cached, ok := s.cache.Get(key); ok {
			s.metrics.IncrCacheHit(highlightCacheName)
			return append([]core.HighlightedDate(nil), cached...), nil
		}
		s.metrics.IncrCacheMiss(highlightCacheName)
	}

	var (
		transactions []core.Transaction
		payments     []core.Payment
		cards        []core.BankCard
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		transactions, err = s.transactions.List(gctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		payments, err = s.payments.List(gctx, userID)
		return err
	})
	if opts.IncludeCards {
		g.Go(func() error {
			var err error
			cards, err = s.cards.List(gctx, userID)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("load calendar data: %w", err)
	}

	events := s.compose(ctx, userID, now, transactions, payments, cards, opts)
	if s.cache != nil {
		s.cache.Set(key, events)
	}
	return append([]core.HighlightedDate(nil), events...), nil
}

// Invalidate drops every cached window of the user.
func (s *CalendarService) Invalidate(userID string) {
	if s.cache == nil {
		return
	}
	if n := s.cache.DeletePrefix(userID + "|"); n > 0 {
		s.logger.Debug("Invalidated highlight cache", log.FieldUserID, userID, "entries", n)
	}
}

// Watch calls fn with freshly composed highlights whenever the user's
// transactions, payments or cards change. Changes arriving closer together
// than the debounce period are folded into one recomputation. The watch ends
// when ctx is cancelled or the returned func is called.
func (s *CalendarService) Watch(ctx context.Context, userID string, opts highlight.Options, fn func([]core.HighlightedDate)) (func(), error) {
	opts = opts.Normalize()
	ctx, cancel := context.WithCancel(ctx)

	w := &calendarWatch{changed: make(chan struct{}, 1)}
	notify := func() {
		s.Invalidate(userID)
		select {
		case w.changed <- struct{}{}:
		default:
		}
	}

	if _, err := s.transactions.Watch(ctx, userID, func(v []core.Transaction) {
		w.set(func() { w.transactions = v })
		notify()
	}); err != nil {
		cancel()
		return nil, err
	}
	if _, err := s.payments.Watch(ctx, userID, func(v []core.Payment) {
		w.set(func() { w.payments = v })
		notify()
	}); err != nil {
		cancel()
		return nil, err
	}
	if opts.IncludeCards {
		if _, err := s.cards.Watch(ctx, userID, func(v []core.BankCard) {
			w.set(func() { w.cards = v })
			notify()
		}); err != nil {
			cancel()
			return nil, err
		}
	}

	s.metrics.WatchStarted()
	s.logger.InfoContext(ctx, "Calendar watch started",
		log.NewFields().WithUser(userID).WithWindow(opts.PastMonths, opts.FutureMonths).WithOperation(log.OpWatch).ToSlice()...)

	go s.runWatch(ctx, userID, opts, w, fn)
	return cancel, nil
}

type calendarWatch struct {
	mu           sync.Mutex
	transactions []core.Transaction
	payments     []core.Payment
	cards        []core.BankCard
	changed      chan struct{}
}

func (w *calendarWatch) set(f func()) {
	w.mu.Lock()
	f()
	w.mu.Unlock()
}

func (w *calendarWatch) snapshot() ([]core.Transaction, []core.Payment, []core.BankCard) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.transactions, w.payments, w.cards
}

func (s *CalendarService) runWatch(ctx context.Context, userID string, opts highlight.Options, w *calendarWatch, fn func([]core.HighlightedDate)) {
	defer s.metrics.WatchStopped()

	timer := time.NewTimer(s.debounce)
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("Calendar watch stopped", log.FieldUserID, userID)
			return
		case <-w.changed:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(s.debounce)
		case <-timer.C:
			transactions, payments, cards := w.snapshot()
			now := s.now()
			events := s.compose(ctx, userID, now, transactions, payments, cards, opts)
			if s.cache != nil {
				s.cache.Set(cacheKey(userID, now, opts), events)
			}
			if ctx.Err() != nil {
				return
			}
			fn(append([]core.HighlightedDate(nil), events...))
		}
	}
}

func (s *CalendarService) compose(ctx context.Context, userID string, now time.Time, transactions []core.Transaction, payments []core.Payment, cards []core.BankCard, opts highlight.Options) []core.HighlightedDate {
	start := time.Now()
	events := highlight.Compose(now, transactions, payments, cards, opts)
	elapsed := time.Since(start)

	counts := highlight.CountByType(events)
	byType := make(map[string]int, len(counts))
	for t, n := range counts {
		byType[string(t)] = n
	}
	s.metrics.ObserveCompose(elapsed, byType)

	s.logger.DebugContext(ctx, "Composed highlights",
		log.FieldUserID, userID,
		log.FieldHighlightCount, len(events),
		log.FieldDuration, elapsed.Milliseconds())
	return events
}

// cacheKey starts with the user id so Invalidate can drop all of a user's windows.
func cacheKey(userID string, now time.Time, opts highlight.Options) string {
	return fmt.Sprintf("%s|%04d-%02d|%d|%d|%t", userID, now.Year(), int(now.Month()), opts.PastMonths, opts.FutureMonths, opts.IncludeCards)
}
