package store

import (
	"context"
	"sync"
)

// Key addresses one user's collection.
type Key struct {
	Collection string
	UserID     string
}

// Hub fans collection snapshots out to watchers. Every watcher runs its own
// goroutine; a slow watcher only ever sees the latest snapshot, never a
// backlog. Publish never blocks.
type Hub struct {
	mu     sync.Mutex
	subs   map[Key]map[*subscriber]struct{}
	closed bool
}

func NewHub() *Hub {
	return &Hub{subs: make(map[Key]map[*subscriber]struct{})}
}

type subscriber struct {
	fn   WatchFunc
	wake chan struct{}
	done chan struct{}
	once sync.Once

	mu      sync.Mutex
	pending []Document
	has     bool
}

// Subscribe registers fn for key and schedules initial as its first delivery.
// Callers must hold whatever lock serialises their writes and Publish calls,
// so no change slips in between reading initial and subscribing.
func (h *Hub) Subscribe(ctx context.Context, key Key, initial []Document, fn WatchFunc) func() {
	s := &subscriber{
		fn:   fn,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	s.offer(initial)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		s.stop()
		return func() {}
	}
	set, ok := h.subs[key]
	if !ok {
		set = make(map[*subscriber]struct{})
		h.subs[key] = set
	}
	set[s] = struct{}{}
	h.mu.Unlock()

	unsubscribe := func() {
		h.mu.Lock()
		if set, ok := h.subs[key]; ok {
			delete(set, s)
			if len(set) == 0 {
				delete(h.subs, key)
			}
		}
		h.mu.Unlock()
		s.stop()
	}

	go s.run(ctx, unsubscribe)
	return unsubscribe
}

// Publish hands snapshot to every watcher of key.
func (h *Hub) Publish(key Key, snapshot []Document) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs[key] {
		s.offer(snapshot)
	}
}

// Watchers reports how many watchers key has.
func (h *Hub) Watchers(key Key) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[key])
}

// Close stops every watcher.
func (h *Hub) Close() {
	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[Key]map[*subscriber]struct{})
	h.closed = true
	h.mu.Unlock()
	for _, set := range subs {
		for s := range set {
			s.stop()
		}
	}
}

func (s *subscriber) offer(snapshot []Document) {
	s.mu.Lock()
	s.pending = snapshot
	s.has = true
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscriber) stop() {
	s.once.Do(func() { close(s.done) })
}

func (s *subscriber) run(ctx context.Context, unsubscribe func()) {
	for {
		select {
		case <-ctx.Done():
			unsubscribe()
			return
		case <-s.done:
			return
		case <-s.wake:
			s.mu.Lock()
			snapshot, has := s.pending, s.has
			s.pending, s.has = nil, false
			s.mu.Unlock()
			if !has {
				continue
			}
			select {
			case <-s.done:
				return
			default:
			}
			s.fn(snapshot)
		}
	}
}
