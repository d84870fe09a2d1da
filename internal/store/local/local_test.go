package local

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"cuzdan/internal/core"
	"cuzdan/internal/store"
	"cuzdan/internal/store/storetest"
)

func TestStoreConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.DocumentStore {
		s, err := Open(filepath.Join(t.TempDir(), "local.json"))
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		t.Cleanup(func() { s.Close() })
		return s
	})
}

func TestOpenReadsGuestTransactions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "local.json")
	txs := `[{"date":"2024-01-05","type":"gider","amount":250,"description":"Market"}]`
	values := map[string]string{
		"transactions": txs,
		"settings":     `{"pastMonths":2}`,
	}
	raw, _ := json.Marshal(values)
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	collection := store.NewCollection[core.Transaction](s, store.Transactions, nil)
	got, err := collection.List(context.Background(), store.GuestUser)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].Description != "Market" || got[0].ID == "" {
		t.Fatalf("unexpected transactions %+v", got)
	}

	// The generated id was written back and unrelated keys survived.
	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	if _, err := reopened.Get(context.Background(), store.Transactions, store.GuestUser, got[0].ID); err != nil {
		t.Fatalf("id not persisted: %v", err)
	}
	raw, _ = os.ReadFile(path)
	var after map[string]string
	if err := json.Unmarshal(raw, &after); err != nil {
		t.Fatalf("file is not a string map: %v", err)
	}
	if after["settings"] != `{"pastMonths":2}` {
		t.Fatalf("settings key lost: %q", after["settings"])
	}
}

func TestKeys(t *testing.T) {
	if got := Key(store.Transactions, store.GuestUser); got != "transactions" {
		t.Fatalf("guest key = %q", got)
	}
	if got := Key(store.Cards, "u1"); got != "u1:cards" {
		t.Fatalf("user key = %q", got)
	}
	if k := keyOf("u1:cards"); k.UserID != "u1" || k.Collection != store.Cards {
		t.Fatalf("keyOf = %+v", k)
	}
}

func TestOpenRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "local.json")
	if err := os.WriteFile(path, []byte("[1,2"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(path); err == nil {
		t.Fatal("expected error")
	}
}
