// Package storetest checks DocumentStore implementations against the
// behaviour the rest of the module relies on.
package storetest

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"cuzdan/internal/core"
	"cuzdan/internal/store"
)

// Run exercises a fresh store returned by open.
func Run(t *testing.T, open func(t *testing.T) store.DocumentStore) {
	t.Run("UpsertGetList", func(t *testing.T) { testUpsertGetList(t, open(t)) })
	t.Run("UsersAreIsolated", func(t *testing.T) { testUsersAreIsolated(t, open(t)) })
	t.Run("Remove", func(t *testing.T) { testRemove(t, open(t)) })
	t.Run("RejectsNonObjects", func(t *testing.T) { testRejectsNonObjects(t, open(t)) })
	t.Run("Watch", func(t *testing.T) { testWatch(t, open(t)) })
}

func testUpsertGetList(t *testing.T, s store.DocumentStore) {
	ctx := context.Background()
	saved, err := s.Upsert(ctx, store.Transactions, "u1", store.Document{Data: json.RawMessage(`{"description":"Market"}`)})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if saved.ID == "" {
		t.Fatal("expected a generated id")
	}
	if _, err := s.Upsert(ctx, store.Transactions, "u1", store.Document{ID: "b", Data: json.RawMessage(`{"description":"b"}`)}); err != nil {
		t.Fatalf("upsert with id: %v", err)
	}
	if _, err := s.Upsert(ctx, store.Transactions, "u1", store.Document{ID: "b", Data: json.RawMessage(`{"description":"b2"}`)}); err != nil {
		t.Fatalf("overwrite: %v", err)
	}

	got, err := s.Get(ctx, store.Transactions, "u1", "b")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	var body map[string]string
	if err := json.Unmarshal(got.Data, &body); err != nil || body["description"] != "b2" {
		t.Fatalf("unexpected body %s (%v)", got.Data, err)
	}

	docs, err := s.List(ctx, store.Transactions, "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 documents, got %d", len(docs))
	}
	if docs[0].ID > docs[1].ID {
		t.Fatalf("documents not ordered by id: %s, %s", docs[0].ID, docs[1].ID)
	}

	if _, err := s.Get(ctx, store.Transactions, "u1", "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func testUsersAreIsolated(t *testing.T, s store.DocumentStore) {
	ctx := context.Background()
	mustUpsert(t, s, store.Payments, "alice", "p1")
	mustUpsert(t, s, store.Payments, "bob", "p1")
	mustUpsert(t, s, store.Cards, "carol", "c1")

	docs, _ := s.List(ctx, store.Payments, "alice")
	if len(docs) != 1 {
		t.Fatalf("alice should see one payment, got %d", len(docs))
	}
	users, err := s.Users(ctx, store.Payments)
	if err != nil {
		t.Fatalf("users: %v", err)
	}
	if len(users) != 2 || users[0] != "alice" || users[1] != "bob" {
		t.Fatalf("unexpected users %v", users)
	}
}

func testRemove(t *testing.T, s store.DocumentStore) {
	ctx := context.Background()
	mustUpsert(t, s, store.Cards, "u1", "c1")
	if err := s.Remove(ctx, store.Cards, "u1", "c1"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := s.Remove(ctx, store.Cards, "u1", "c1"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("second remove should report ErrNotFound, got %v", err)
	}
	if docs, _ := s.List(ctx, store.Cards, "u1"); len(docs) != 0 {
		t.Fatalf("expected empty collection, got %d", len(docs))
	}
}

func testRejectsNonObjects(t *testing.T, s store.DocumentStore) {
	for _, body := range []string{``, `[]`, `"x"`, `{"broken":`} {
		if _, err := s.Upsert(context.Background(), store.Cards, "u1", store.Document{Data: json.RawMessage(body)}); err == nil {
			t.Errorf("body %q should be rejected", body)
		}
	}
}

func testWatch(t *testing.T, s store.DocumentStore) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	mustUpsert(t, s, store.Payments, "u1", "existing")

	snapshots := make(chan []store.Document, 16)
	stop, err := s.Watch(ctx, store.Payments, "u1", func(docs []store.Document) { snapshots <- docs })
	if err != nil {
		t.Fatalf("watch: %v", err)
	}

	if first := next(t, snapshots); len(first) != 1 || first[0].ID != "existing" {
		t.Fatalf("initial snapshot = %+v", first)
	}

	mustUpsert(t, s, store.Payments, "u1", "added")
	waitFor(t, snapshots, 2)

	mustUpsert(t, s, store.Payments, "someone-else", "x")
	if err := s.Remove(ctx, store.Payments, "u1", "existing"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	waitFor(t, snapshots, 1)

	stop()
	stop()
	mustUpsert(t, s, store.Payments, "u1", "after-stop")
	select {
	case docs := <-snapshots:
		t.Fatalf("received snapshot after stop: %+v", docs)
	case <-time.After(50 * time.Millisecond):
	}
}

func mustUpsert(t *testing.T, s store.DocumentStore, collection, user, id string) {
	t.Helper()
	if _, err := s.Upsert(context.Background(), collection, user, store.Document{ID: id, Data: json.RawMessage(`{"name":"` + id + `"}`)}); err != nil {
		t.Fatalf("upsert %s/%s/%s: %v", collection, user, id, err)
	}
}

func next(t *testing.T, ch <-chan []store.Document) []store.Document {
	t.Helper()
	select {
	case docs := <-ch:
		return docs
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
		return nil
	}
}

// waitFor drains snapshots until one holds n documents. Intermediate
// snapshots may be coalesced.
func waitFor(t *testing.T, ch <-chan []store.Document, n int) {
	t.Helper()
	for {
		if docs := next(t, ch); len(docs) == n {
			return
		}
	}
}
