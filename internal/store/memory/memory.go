// Package memory is an in-process DocumentStore. Nothing survives a restart.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"cuzdan/internal/core"
	"cuzdan/internal/store"
)

type Store struct {
	mu   sync.Mutex
	docs map[store.Key]map[string]store.Document
	hub  *store.Hub
	now  func() time.Time
}

func New() *Store {
	return &Store{
		docs: make(map[store.Key]map[string]store.Document),
		hub:  store.NewHub(),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// NewFromFile seeds a store from a JSON file shaped as
// {"<user>": {"<collection>": [{...}, ...]}}. A missing file gives an empty store.
func NewFromFile(path string) (*Store, error) {
	s := New()
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var seed map[string]map[string][]json.RawMessage
	if err := json.Unmarshal(raw, &seed); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	for user, collections := range seed {
		for collection, items := range collections {
			for _, item := range items {
				var head struct {
					ID string `json:"id"`
				}
				_ = json.Unmarshal(item, &head)
				if _, err := s.Upsert(context.Background(), collection, user, store.Document{ID: head.ID, Data: item}); err != nil {
					return nil, fmt.Errorf("seed %s for %s: %w", collection, user, err)
				}
			}
		}
	}
	return s, nil
}

func (s *Store) List(_ context.Context, collection, userID string) ([]store.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot(store.Key{Collection: collection, UserID: userID}), nil
}

func (s *Store) Get(_ context.Context, collection, userID, id string) (store.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[store.Key{Collection: collection, UserID: userID}][id]
	if !ok {
		return store.Document{}, core.ErrNotFound
	}
	return doc, nil
}

func (s *Store) Users(_ context.Context, collection string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for key, docs := range s.docs {
		if key.Collection == collection && len(docs) > 0 {
			out = append(out, key.UserID)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Upsert stores the document and returns it with its id and timestamp set.
func (s *Store) Upsert(_ context.Context, collection, userID string, doc store.Document) (store.Document, error) {
	if err := store.ValidateData(doc.Data); err != nil {
		return store.Document{}, err
	}
	if doc.ID == "" {
		doc.ID = store.NewID()
	}
	doc.Data = append(json.RawMessage(nil), doc.Data...)

	s.mu.Lock()
	defer s.mu.Unlock()
	doc.UpdatedAt = s.now()
	key := store.Key{Collection: collection, UserID: userID}
	docs, ok := s.docs[key]
	if !ok {
		docs = make(map[string]store.Document)
		s.docs[key] = docs
	}
	docs[doc.ID] = doc
	s.hub.Publish(key, s.snapshot(key))
	return doc, nil
}

func (s *Store) Remove(_ context.Context, collection, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := store.Key{Collection: collection, UserID: userID}
	if _, ok := s.docs[key][id]; !ok {
		return core.ErrNotFound
	}
	delete(s.docs[key], id)
	s.hub.Publish(key, s.snapshot(key))
	return nil
}

func (s *Store) Watch(ctx context.Context, collection, userID string, fn store.WatchFunc) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := store.Key{Collection: collection, UserID: userID}
	return s.hub.Subscribe(ctx, key, s.snapshot(key), fn), nil
}

func (s *Store) Close() error {
	s.hub.Close()
	return nil
}

// snapshot must be called with s.mu held.
func (s *Store) snapshot(key store.Key) []store.Document {
	docs := s.docs[key]
	out := make([]store.Document, 0, len(docs))
	for _, d := range docs {
		out = append(out, d)
	}
	store.SortDocuments(out)
	return out
}
