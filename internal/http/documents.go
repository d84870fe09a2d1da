package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"cuzdan/internal/log"
	"cuzdan/internal/store"
)

// entity is a document type that checks itself before it is written.
type entity interface {
	Validate() error
}

// resource is the CRUD surface of one collection.
type resource interface {
	name() string
	list(ctx context.Context, userID string) (any, error)
	get(ctx context.Context, userID, id string) (any, error)
	put(w http.ResponseWriter, r *http.Request, userID, id string) (any, error)
	remove(ctx context.Context, userID, id string) error
	// calendar reports whether writes change the composed highlights.
	calendar() bool
}

type documentResource[T entity] struct {
	coll          *store.Collection[T]
	feedsCalendar bool
}

func newResource[T entity](s store.DocumentStore, collection string, logger *log.Logger, feedsCalendar bool) resource {
	return documentResource[T]{coll: store.NewCollection[T](s, collection, logger), feedsCalendar: feedsCalendar}
}

func (d documentResource[T]) name() string { return d.coll.Name() }

func (d documentResource[T]) calendar() bool { return d.feedsCalendar }

func (d documentResource[T]) list(ctx context.Context, userID string) (any, error) {
	return d.coll.List(ctx, userID)
}

func (d documentResource[T]) get(ctx context.Context, userID, id string) (any, error) {
	return d.coll.Get(ctx, userID, id)
}

func (d documentResource[T]) put(w http.ResponseWriter, r *http.Request, userID, id string) (any, error) {
	var v T
	if err := decodeBody(w, r, &v); err != nil {
		return nil, err
	}
	if err := v.Validate(); err != nil {
		return nil, err
	}
	return d.coll.Put(r.Context(), userID, id, v)
}

func (d documentResource[T]) remove(ctx context.Context, userID, id string) error {
	return d.coll.Remove(ctx, userID, id)
}

// mountResource registers list, create, read, replace and delete routes for res.
func (s *Server) mountResource(r chi.Router, res resource) {
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		items, err := res.list(r.Context(), chi.URLParam(r, "userID"))
		if err != nil {
			handleServiceError(w, r, err, log.OpList)
			return
		}
		writeJSON(w, http.StatusOK, items)
	})
	r.Get("/{id}", func(w http.ResponseWriter, r *http.Request) {
		item, err := res.get(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "id"))
		if err != nil {
			handleServiceError(w, r, err, log.OpRead)
			return
		}
		writeJSON(w, http.StatusOK, item)
	})
	r.With(s.writeLimit).Post("/", func(w http.ResponseWriter, r *http.Request) {
		s.writeDocument(w, r, res, "", log.OpCreate, http.StatusCreated)
	})
	r.With(s.writeLimit).Put("/{id}", func(w http.ResponseWriter, r *http.Request) {
		s.writeDocument(w, r, res, chi.URLParam(r, "id"), log.OpUpdate, http.StatusOK)
	})
	r.With(s.writeLimit).Delete("/{id}", func(w http.ResponseWriter, r *http.Request) {
		userID, id := chi.URLParam(r, "userID"), chi.URLParam(r, "id")
		if err := res.remove(r.Context(), userID, id); err != nil {
			handleServiceError(w, r, err, log.OpDelete)
			return
		}
		s.documentWritten(r, res, log.OpDelete, userID, id)
		w.WriteHeader(http.StatusNoContent)
	})
}

func (s *Server) writeDocument(w http.ResponseWriter, r *http.Request, res resource, id, op string, status int) {
	userID := chi.URLParam(r, "userID")
	saved, err := res.put(w, r, userID, id)
	if err != nil {
		handleServiceError(w, r, err, op)
		return
	}
	s.documentWritten(r, res, op, userID, id)
	writeJSON(w, status, saved)
}

func (s *Server) documentWritten(r *http.Request, res resource, op, userID, id string) {
	if res.calendar() && s.calendar != nil {
		s.calendar.Invalidate(userID)
	}
	s.metrics.IncrDocumentWrite(res.name(), op)
	log.NewStructuredLogger(log.FromContext(r.Context())).LogDocumentWritten(r.Context(), op, res.name(), userID, id)
}
