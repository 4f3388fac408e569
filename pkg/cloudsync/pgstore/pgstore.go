// Package pgstore keeps cloudsync items in PostgreSQL.
package pgstore

import (
	"context"
	"embed"
	"fmt"
	"io/fs"

	"github.com/go-go-golems/arbor/pkg/cloudsync"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type Store struct {
	pool       *pgxpool.Pool
	collection string
}

var _ cloudsync.Store = (*Store)(nil)

func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse database config")
	}

	config.MaxConns = 4

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, errors.Wrap(err, "create connection pool")
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "ping database")
	}

	return pool, nil
}

// RunMigrations brings the schema at databaseURL up to date.
func RunMigrations(databaseURL string) error {
	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return err
	}
	d, err := iofs.New(sub, ".")
	if err != nil {
		return errors.Wrap(err, "create migration source")
	}

	m, err := migrate.NewWithSourceInstance("iofs", d, databaseURL)
	if err != nil {
		return errors.Wrap(err, "create migrate instance")
	}
	defer func() {
		_, _ = m.Close()
	}()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return errors.Wrap(err, "run migrations")
	}

	version, dirty, _ := m.Version()
	log.Debug().Uint("version", version).Bool("dirty", dirty).Msg("Migrations applied")
	return nil
}

// Open migrates the database and returns the store of one collection.
func Open(ctx context.Context, databaseURL string, collection string) (*Store, error) {
	if collection == "" {
		return nil, fmt.Errorf("postgres item store: empty collection")
	}
	if err := RunMigrations(databaseURL); err != nil {
		return nil, err
	}
	pool, err := NewPool(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	return New(pool, collection), nil
}

// New uses an existing pool, whose schema must be migrated.
func New(pool *pgxpool.Pool, collection string) *Store {
	return &Store{pool: pool, collection: collection}
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

const itemColumns = `id::text, user_id, name, octet_length(payload), created_at, updated_at`

func scanItem(row pgx.Row, what string) (*cloudsync.Item, error) {
	var item cloudsync.Item
	err := row.Scan(&item.ID, &item.UserID, &item.Name, &item.Size, &item.CreatedAt, &item.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.Wrap(cloudsync.ErrDocumentNotFound, what)
	}
	if err != nil {
		return nil, err
	}
	item.CreatedAt = item.CreatedAt.UTC()
	item.UpdatedAt = item.UpdatedAt.UTC()
	return &item, nil
}

func parseID(itemID string) (uuid.UUID, error) {
	id, err := uuid.Parse(itemID)
	if err != nil {
		return uuid.Nil, errors.Wrapf(cloudsync.ErrDocumentNotFound, "item %s", itemID)
	}
	return id, nil
}

func (s *Store) GetFirst(ctx context.Context, userID string) (*cloudsync.Item, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+itemColumns+` FROM cloud_items
		 WHERE collection = $1 AND user_id = $2
		 ORDER BY created_at ASC, id ASC LIMIT 1`,
		s.collection, userID,
	)
	return scanItem(row, "user "+userID)
}

func (s *Store) Create(ctx context.Context, userID string, name string, payload []byte) (*cloudsync.Item, error) {
	if payload == nil {
		payload = []byte{}
	}
	row := s.pool.QueryRow(ctx,
		`INSERT INTO cloud_items (id, collection, user_id, name, payload)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING `+itemColumns,
		uuid.New(), s.collection, userID, name, payload,
	)
	return scanItem(row, "insert")
}

func (s *Store) Update(ctx context.Context, itemID string, payload []byte) (*cloudsync.Item, error) {
	id, err := parseID(itemID)
	if err != nil {
		return nil, err
	}
	if payload == nil {
		payload = []byte{}
	}
	row := s.pool.QueryRow(ctx,
		`UPDATE cloud_items SET payload = $1, updated_at = now()
		 WHERE collection = $2 AND id = $3
		 RETURNING `+itemColumns,
		payload, s.collection, id,
	)
	return scanItem(row, "item "+itemID)
}

func (s *Store) URL(ctx context.Context, itemID string) (string, error) {
	id, err := parseID(itemID)
	if err != nil {
		return "", err
	}
	var exists bool
	err = s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM cloud_items WHERE collection = $1 AND id = $2)`,
		s.collection, id,
	).Scan(&exists)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", errors.Wrapf(cloudsync.ErrDocumentNotFound, "item %s", itemID)
	}
	return fmt.Sprintf("postgres://%s/%s", s.collection, itemID), nil
}

func (s *Store) Download(ctx context.Context, itemID string) ([]byte, error) {
	id, err := parseID(itemID)
	if err != nil {
		return nil, err
	}
	var payload []byte
	err = s.pool.QueryRow(ctx,
		`SELECT payload FROM cloud_items WHERE collection = $1 AND id = $2`,
		s.collection, id,
	).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.Wrapf(cloudsync.ErrDocumentNotFound, "item %s", itemID)
	}
	if err != nil {
		return nil, err
	}
	return payload, nil
}
