package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"cuzdan/internal/core"
	"cuzdan/internal/log"
	"cuzdan/internal/store"

	_ "modernc.org/sqlite"
)

// SQLiteRepository keeps every collection in one documents table.
type SQLiteRepository struct {
	db     *sql.DB
	hub    *store.Hub
	logger *log.Logger

	// writeMu serialises writes with the snapshot published after them.
	writeMu sync.Mutex
	now     func() time.Time
}

func NewSQLiteRepository(dbPath string, logger *log.Logger) (*SQLiteRepository, error) {
	if logger == nil {
		logger = log.Discard()
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// A single connection keeps writes ordered and avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	version, err := RunMigrations(dbPath)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	logger = logger.WithComponent(log.ComponentStorage)
	logger.Info("SQLite document store ready", "path", dbPath, "schema_version", version)

	return &SQLiteRepository{
		db:     db,
		hub:    store.NewHub(),
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

func (r *SQLiteRepository) Close() error {
	r.hub.Close()
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database answers.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) List(ctx context.Context, collection, userID string) ([]store.Document, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, data, updated_at FROM documents WHERE collection = ? AND user_id = ? ORDER BY id`,
		collection, userID)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	var out []store.Document
	for rows.Next() {
		var (
			doc     store.Document
			data    string
			updated int64
		)
		if err := rows.Scan(&doc.ID, &data, &updated); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		doc.Data = []byte(data)
		doc.UpdatedAt = time.UnixMilli(updated).UTC()
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return out, nil
}

func (r *SQLiteRepository) Get(ctx context.Context, collection, userID, id string) (store.Document, error) {
	var (
		doc     = store.Document{ID: id}
		data    string
		updated int64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT data, updated_at FROM documents WHERE collection = ? AND user_id = ? AND id = ?`,
		collection, userID, id).Scan(&data, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Document{}, core.ErrNotFound
	}
	if err != nil {
		return store.Document{}, fmt.Errorf("get document: %w", err)
	}
	doc.Data = []byte(data)
	doc.UpdatedAt = time.UnixMilli(updated).UTC()
	return doc, nil
}

func (r *SQLiteRepository) Users(ctx context.Context, collection string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT user_id FROM documents WHERE collection = ? ORDER BY user_id`, collection)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) Upsert(ctx context.Context, collection, userID string, doc store.Document) (store.Document, error) {
	if err := store.ValidateData(doc.Data); err != nil {
		return store.Document{}, err
	}
	if doc.ID == "" {
		doc.ID = store.NewID()
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	doc.UpdatedAt = r.now().Truncate(time.Millisecond)
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO documents (collection, user_id, id, data, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(collection, user_id, id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		collection, userID, doc.ID, string(doc.Data), doc.UpdatedAt.UnixMilli())
	if err != nil {
		return store.Document{}, fmt.Errorf("upsert document: %w", err)
	}

	r.logger.DebugContext(ctx, "Document saved to SQLite",
		log.NewFields().WithDocument(collection, userID, doc.ID).WithOperation(log.OpUpdate).ToSlice()...)
	r.publish(ctx, collection, userID)
	return doc, nil
}

func (r *SQLiteRepository) Remove(ctx context.Context, collection, userID, id string) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	res, err := r.db.ExecContext(ctx,
		`DELETE FROM documents WHERE collection = ? AND user_id = ? AND id = ?`, collection, userID, id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return core.ErrNotFound
	}
	r.publish(ctx, collection, userID)
	return nil
}

func (r *SQLiteRepository) Watch(ctx context.Context, collection, userID string, fn store.WatchFunc) (func(), error) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	initial, err := r.List(ctx, collection, userID)
	if err != nil {
		return nil, err
	}
	return r.hub.Subscribe(ctx, store.Key{Collection: collection, UserID: userID}, initial, fn), nil
}

// publish must be called with writeMu held.
func (r *SQLiteRepository) publish(ctx context.Context, collection, userID string) {
	key := store.Key{Collection: collection, UserID: userID}
	if r.hub.Watchers(key) == 0 {
		return
	}
	snapshot, err := r.List(context.WithoutCancel(ctx), collection, userID)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to load snapshot for watchers",
			log.NewFields().WithDocument(collection, userID, "").WithError(err).ToSlice()...)
		return
	}
	r.hub.Publish(key, snapshot)
}
