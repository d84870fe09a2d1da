// Package local is the guest/offline DocumentStore: a single JSON file of
// string keys to string values, like a browser's local storage. Each
// collection is one key holding a JSON array; the guest user's transactions
// live under "transactions".
package local

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"cuzdan/internal/core"
	"cuzdan/internal/store"
)

const userSeparator = ":"

type Store struct {
	path string
	hub  *store.Hub

	mu    sync.Mutex
	docs  map[store.Key][]store.Document
	extra map[string]string // keys that do not hold a collection
}

// Open reads the whole file. A missing file is an empty store.
func Open(path string) (*Store, error) {
	s := &Store{
		path:  path,
		hub:   store.NewHub(),
		docs:  make(map[store.Key][]store.Document),
		extra: make(map[string]string),
	}

	raw, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read local store: %w", err)
	}
	if len(raw) == 0 {
		return s, nil
	}

	var values map[string]string
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, fmt.Errorf("parse local store: %w", err)
	}

	assigned := false
	for k, v := range values {
		items, ok := decodeArray(v)
		if !ok {
			s.extra[k] = v
			continue
		}
		key := keyOf(k)
		docs := make([]store.Document, 0, len(items))
		for _, item := range items {
			var head struct {
				ID string `json:"id"`
			}
			_ = json.Unmarshal(item, &head)
			if head.ID == "" {
				head.ID = store.NewID()
				assigned = true
			}
			docs = append(docs, store.Document{ID: head.ID, Data: store.WithID(item, head.ID)})
		}
		store.SortDocuments(docs)
		s.docs[key] = docs
	}
	if assigned {
		if err := s.flush(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Key returns the storage key of a user's collection.
func Key(collection, userID string) string {
	if userID == "" || userID == store.GuestUser {
		return collection
	}
	return userID + userSeparator + collection
}

func keyOf(k string) store.Key {
	if user, collection, ok := strings.Cut(k, userSeparator); ok {
		return store.Key{Collection: collection, UserID: user}
	}
	return store.Key{Collection: k, UserID: store.GuestUser}
}

func normalize(collection, userID string) store.Key {
	if userID == "" {
		userID = store.GuestUser
	}
	return store.Key{Collection: collection, UserID: userID}
}

func decodeArray(v string) ([]json.RawMessage, bool) {
	v = strings.TrimSpace(v)
	if !strings.HasPrefix(v, "[") {
		return nil, false
	}
	var items []json.RawMessage
	if err := json.Unmarshal([]byte(v), &items); err != nil {
		return nil, false
	}
	for _, item := range items {
		if store.ValidateData(item) != nil {
			return nil, false
		}
	}
	return items, true
}

func (s *Store) List(_ context.Context, collection, userID string) ([]store.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot(normalize(collection, userID)), nil
}

func (s *Store) Get(_ context.Context, collection, userID, id string) (store.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.docs[normalize(collection, userID)] {
		if d.ID == id {
			return d, nil
		}
	}
	return store.Document{}, core.ErrNotFound
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

func (s *Store) Upsert(_ context.Context, collection, userID string, doc store.Document) (store.Document, error) {
	if err := store.ValidateData(doc.Data); err != nil {
		return store.Document{}, err
	}
	if doc.ID == "" {
		doc.ID = store.NewID()
	}
	doc.Data = store.WithID(doc.Data, doc.ID)
	doc.UpdatedAt = time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()
	key := normalize(collection, userID)
	docs := s.docs[key]
	replaced := false
	for i := range docs {
		if docs[i].ID == doc.ID {
			docs[i] = doc
			replaced = true
			break
		}
	}
	if !replaced {
		docs = append(docs, doc)
		store.SortDocuments(docs)
	}
	s.docs[key] = docs
	if err := s.flush(); err != nil {
		return store.Document{}, err
	}
	s.hub.Publish(key, s.snapshot(key))
	return doc, nil
}

func (s *Store) Remove(_ context.Context, collection, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := normalize(collection, userID)
	docs := s.docs[key]
	for i := range docs {
		if docs[i].ID != id {
			continue
		}
		s.docs[key] = append(docs[:i:i], docs[i+1:]...)
		if err := s.flush(); err != nil {
			return err
		}
		s.hub.Publish(key, s.snapshot(key))
		return nil
	}
	return core.ErrNotFound
}

func (s *Store) Watch(ctx context.Context, collection, userID string, fn store.WatchFunc) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := normalize(collection, userID)
	return s.hub.Subscribe(ctx, key, s.snapshot(key), fn), nil
}

func (s *Store) Close() error {
	s.hub.Close()
	return nil
}

// snapshot must be called with s.mu held.
func (s *Store) snapshot(key store.Key) []store.Document {
	return append([]store.Document(nil), s.docs[key]...)
}

// flush rewrites the file through a temp file and rename. s.mu must be held.
func (s *Store) flush() error {
	values := make(map[string]string, len(s.docs)+len(s.extra))
	for k, v := range s.extra {
		values[k] = v
	}
	for key, docs := range s.docs {
		items := make([]json.RawMessage, len(docs))
		for i, d := range docs {
			items[i] = d.Data
		}
		encoded, err := json.Marshal(items)
		if err != nil {
			return fmt.Errorf("encode %s: %w", key.Collection, err)
		}
		values[Key(key.Collection, key.UserID)] = string(encoded)
	}
	raw, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return fmt.Errorf("encode local store: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("create local store directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".local-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("write local store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close local store: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace local store: %w", err)
	}
	return nil
}
