// Package sqlitestore keeps cloudsync items in a SQLite database.
package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/go-go-golems/arbor/pkg/cloudsync"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

const sqliteItemsSchemaV1 = `
CREATE TABLE IF NOT EXISTS cloud_items (
    id TEXT PRIMARY KEY,
    collection TEXT NOT NULL,
    user_id TEXT NOT NULL,
    name TEXT NOT NULL,
    payload BLOB NOT NULL,
    created_at_ms INTEGER NOT NULL,
    updated_at_ms INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS cloud_items_user ON cloud_items (collection, user_id, created_at_ms);
`

// Store is one collection of the items table. Payloads live in the row.
type Store struct {
	mu         sync.RWMutex
	dsn        string
	collection string
	db         *sql.DB
	closed     bool
}

var _ cloudsync.Store = (*Store)(nil)

// DSNForFile returns a DSN opening path in WAL mode.
func DSNForFile(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("sqlite item store: empty path")
	}
	return fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", path), nil
}

func Open(dsn string, collection string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("sqlite item store: empty dsn")
	}
	if collection == "" {
		return nil, fmt.Errorf("sqlite item store: empty collection")
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}

	s := &Store{
		dsn:        dsn,
		collection: collection,
		db:         db,
	}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(sqliteItemsSchemaV1); err != nil {
		return errors.Wrap(err, "sqlite item store: migrate")
	}
	return nil
}

func (s *Store) ensureOpen() error {
	if s.closed {
		return fmt.Errorf("sqlite item store closed")
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func (s *Store) getLocked(ctx context.Context, itemID string) (*cloudsync.Item, error) {
	var item cloudsync.Item
	var createdMs, updatedMs int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, name, length(payload), created_at_ms, updated_at_ms
		 FROM cloud_items WHERE collection = ? AND id = ?`,
		s.collection, itemID,
	).Scan(&item.ID, &item.UserID, &item.Name, &item.Size, &createdMs, &updatedMs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(cloudsync.ErrDocumentNotFound, "item %s", itemID)
	}
	if err != nil {
		return nil, err
	}
	item.CreatedAt = fromMillis(createdMs)
	item.UpdatedAt = fromMillis(updatedMs)
	return &item, nil
}

func (s *Store) GetFirst(ctx context.Context, userID string) (*cloudsync.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}

	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM cloud_items WHERE collection = ? AND user_id = ?
		 ORDER BY created_at_ms ASC, rowid ASC LIMIT 1`,
		s.collection, userID,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(cloudsync.ErrDocumentNotFound, "user %s", userID)
	}
	if err != nil {
		return nil, err
	}
	return s.getLocked(ctx, id)
}

func (s *Store) Create(ctx context.Context, userID string, name string, payload []byte) (*cloudsync.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	now := time.Now().UnixMilli()
	if payload == nil {
		payload = []byte{}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cloud_items (id, collection, user_id, name, payload, created_at_ms, updated_at_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, s.collection, userID, name, payload, now, now,
	)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite item store: insert")
	}
	return s.getLocked(ctx, id)
}

func (s *Store) Update(ctx context.Context, itemID string, payload []byte) (*cloudsync.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}

	if payload == nil {
		payload = []byte{}
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE cloud_items SET payload = ?, updated_at_ms = ? WHERE collection = ? AND id = ?`,
		payload, time.Now().UnixMilli(), s.collection, itemID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite item store: update")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, errors.Wrapf(cloudsync.ErrDocumentNotFound, "item %s", itemID)
	}
	return s.getLocked(ctx, itemID)
}

func (s *Store) URL(ctx context.Context, itemID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ensureOpen(); err != nil {
		return "", err
	}
	if _, err := s.getLocked(ctx, itemID); err != nil {
		return "", err
	}
	return fmt.Sprintf("sqlite://%s/%s", s.collection, itemID), nil
}

func (s *Store) Download(ctx context.Context, itemID string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}

	var payload []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM cloud_items WHERE collection = ? AND id = ?`,
		s.collection, itemID,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(cloudsync.ErrDocumentNotFound, "item %s", itemID)
	}
	if err != nil {
		return nil, err
	}
	return payload, nil
}
