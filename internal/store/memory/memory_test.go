package memory

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"cuzdan/internal/store"
	"cuzdan/internal/store/storetest"
)

func TestStoreConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.DocumentStore {
		s := New()
		t.Cleanup(func() { s.Close() })
		return s
	})
}

func TestNewFromFileSeeds(t *testing.T) {
	dir := t.TempDir()

	s, err := NewFromFile(filepath.Join(dir, "missing.json"))
	if err != nil {
		t.Fatalf("missing seed file should give an empty store: %v", err)
	}
	if users, _ := s.Users(context.Background(), store.Transactions); len(users) != 0 {
		t.Fatalf("expected no users, got %v", users)
	}

	path := filepath.Join(dir, "seed.json")
	seed := `{"u1": {"transactions": [{"id": "t1", "date": "2024-01-05", "type": "gider", "amount": 250, "description": "Market"}, {"date": "2024-01-06", "type": "gelir", "amount": 10, "description": "x"}]}}`
	if err := os.WriteFile(path, []byte(seed), 0o644); err != nil {
		t.Fatalf("write seed: %v", err)
	}
	s, err = NewFromFile(path)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	docs, _ := s.List(context.Background(), store.Transactions, "u1")
	if len(docs) != 2 {
		t.Fatalf("expected 2 seeded transactions, got %d", len(docs))
	}
	if _, err := s.Get(context.Background(), store.Transactions, "u1", "t1"); err != nil {
		t.Fatalf("seed id not kept: %v", err)
	}

	if err := os.WriteFile(path, []byte(`{not json`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewFromFile(path); err == nil {
		t.Fatal("expected error for malformed seed file")
	}
}
