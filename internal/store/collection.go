package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"cuzdan/internal/log"
)

// Collection is a typed view over one collection of a DocumentStore.
// Documents that do not decode into T are skipped with a warning.
type Collection[T any] struct {
	store  DocumentStore
	name   string
	logger *log.Logger
}

func NewCollection[T any](s DocumentStore, name string, logger *log.Logger) *Collection[T] {
	if logger == nil {
		logger = log.Discard()
	}
	return &Collection[T]{store: s, name: name, logger: logger.WithComponent(log.ComponentStore)}
}

// Name is the collection name.
func (c *Collection[T]) Name() string {
	return c.name
}

func (c *Collection[T]) List(ctx context.Context, userID string) ([]T, error) {
	docs, err := c.store.List(ctx, c.name, userID)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", c.name, err)
	}
	return c.decodeAll(ctx, userID, docs), nil
}

func (c *Collection[T]) Get(ctx context.Context, userID, id string) (T, error) {
	var zero T
	doc, err := c.store.Get(ctx, c.name, userID, id)
	if err != nil {
		return zero, fmt.Errorf("get %s/%s: %w", c.name, id, err)
	}
	v, err := decode[T](doc)
	if err != nil {
		return zero, fmt.Errorf("decode %s/%s: %w", c.name, id, err)
	}
	return v, nil
}

// Put stores v under id, or under a new id when id is empty, and returns the
// stored value with its id filled in.
func (c *Collection[T]) Put(ctx context.Context, userID, id string, v T) (T, error) {
	var zero T
	raw, err := json.Marshal(v)
	if err != nil {
		return zero, fmt.Errorf("encode %s: %w", c.name, err)
	}
	saved, err := c.store.Upsert(ctx, c.name, userID, Document{ID: id, Data: raw})
	if err != nil {
		return zero, fmt.Errorf("upsert %s: %w", c.name, err)
	}
	out, err := decode[T](saved)
	if err != nil {
		return zero, fmt.Errorf("decode %s/%s: %w", c.name, saved.ID, err)
	}
	return out, nil
}

func (c *Collection[T]) Remove(ctx context.Context, userID, id string) error {
	if err := c.store.Remove(ctx, c.name, userID, id); err != nil {
		return fmt.Errorf("remove %s/%s: %w", c.name, id, err)
	}
	return nil
}

// Watch calls fn with the decoded collection, first immediately and then
// after every change.
func (c *Collection[T]) Watch(ctx context.Context, userID string, fn func([]T)) (func(), error) {
	stop, err := c.store.Watch(ctx, c.name, userID, func(docs []Document) {
		fn(c.decodeAll(ctx, userID, docs))
	})
	if err != nil {
		return nil, fmt.Errorf("watch %s: %w", c.name, err)
	}
	return stop, nil
}

func (c *Collection[T]) decodeAll(ctx context.Context, userID string, docs []Document) []T {
	out := make([]T, 0, len(docs))
	for _, doc := range docs {
		v, err := decode[T](doc)
		if err != nil {
			c.logger.WarnContext(ctx, "Skipping malformed document",
				log.NewFields().WithDocument(c.name, userID, doc.ID).WithError(err).WithOperation(log.OpDecode).ToSlice()...)
			continue
		}
		out = append(out, v)
	}
	return out
}

// decode unmarshals doc into T with the document id set as its "id" field.
func decode[T any](doc Document) (T, error) {
	var v T
	err := json.Unmarshal(WithID(doc.Data, doc.ID), &v)
	return v, err
}

// WithID returns data with its "id" member set to id. Data that is not a
// JSON object is returned unchanged.
func WithID(data json.RawMessage, id string) json.RawMessage {
	trimmed := bytes.TrimSpace(data)
	if id == "" || len(trimmed) == 0 || trimmed[0] != '{' {
		return data
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return data
	}
	idJSON, _ := json.Marshal(id)
	fields["id"] = idJSON
	out, err := json.Marshal(fields)
	if err != nil {
		return data
	}
	return out
}
