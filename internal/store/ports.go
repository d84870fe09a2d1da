// Package store defines the per-user document collections the calendar reads
// and the HTTP API writes.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Collection names.
const (
	Transactions  = "transactions"
	Payments      = "payments"
	Cards         = "cards"
	Installments  = "installments"
	Notifications = "notifications"
	Reminders     = "reminders"
)

// GuestUser owns the data of the local fallback store.
const GuestUser = "guest"

// Document is one JSON object in a collection.
type Document struct {
	ID        string          `json:"id"`
	Data      json.RawMessage `json:"data"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// WatchFunc receives the full current contents of a collection.
type WatchFunc func(docs []Document)

// Ports for document storage backends.
type (
	DocumentReader interface {
		// List returns every document of the user's collection ordered by id.
		List(ctx context.Context, collection, userID string) ([]Document, error)
		// Get returns core.ErrNotFound when the document does not exist.
		Get(ctx context.Context, collection, userID, id string) (Document, error)
		// Users lists the users that own at least one document in collection.
		Users(ctx context.Context, collection string) ([]string, error)
	}

	DocumentWriter interface {
		// Upsert stores doc, generating an id when doc.ID is empty.
		Upsert(ctx context.Context, collection, userID string, doc Document) (Document, error)
		// Remove returns core.ErrNotFound when the document does not exist.
		Remove(ctx context.Context, collection, userID, id string) error
	}

	DocumentWatcher interface {
		// Watch calls fn with the current snapshot and again after every change.
		// The returned func stops the watch and may be called more than once.
		Watch(ctx context.Context, collection, userID string, fn WatchFunc) (func(), error)
	}

	DocumentStore interface {
		DocumentReader
		DocumentWriter
		DocumentWatcher
		Close() error
	}
)

// NewID returns a fresh document id.
func NewID() string {
	return uuid.NewString()
}

// ErrInvalidDocument is returned when a document body is not a JSON object.
var ErrInvalidDocument = errors.New("document must be a JSON object")

// ValidateData reports whether data can be stored as a document body.
func ValidateData(data json.RawMessage) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' || !json.Valid(trimmed) {
		return ErrInvalidDocument
	}
	return nil
}

// SortDocuments orders docs by id.
func SortDocuments(docs []Document) {
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
}
