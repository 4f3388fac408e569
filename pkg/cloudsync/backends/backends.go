// Package backends opens the configured cloudsync store.
package backends

import (
	"context"
	"path/filepath"

	"github.com/go-go-golems/arbor/pkg/cloudsync"
	"github.com/go-go-golems/arbor/pkg/cloudsync/fsstore"
	"github.com/go-go-golems/arbor/pkg/cloudsync/memstore"
	"github.com/go-go-golems/arbor/pkg/cloudsync/pgstore"
	"github.com/go-go-golems/arbor/pkg/cloudsync/sqlitestore"
	"github.com/pkg/errors"
)

type Kind string

const (
	// KindMemory lives as long as the process, so only tests and long
	// running embedders can use it.
	KindMemory   Kind = "memory"
	KindFS       Kind = "fs"
	KindSQLite   Kind = "sqlite"
	KindPostgres Kind = "postgres"
)

const (
	CollectionTrees   = "trees"
	CollectionUploads = "uploads"
)

type Config struct {
	Backend Kind   `yaml:"backend" mapstructure:"backend"`
	// Dir is the root of the fs backend and the location of the default
	// sqlite database.
	Dir string `yaml:"dir" mapstructure:"dir"`
	// DSN is the sqlite DSN or the postgres URL.
	DSN string `yaml:"dsn" mapstructure:"dsn"`
}

// Handle is an opened store and its cleanup.
type Handle struct {
	cloudsync.Store
	close func() error
}

func (h *Handle) Close() error {
	if h.close == nil {
		return nil
	}
	return h.close()
}

func nopClose() error { return nil }

func Open(ctx context.Context, cfg Config, collection string) (*Handle, error) {
	switch cfg.Backend {
	case KindMemory:
		return &Handle{Store: memstore.New(collection), close: nopClose}, nil

	case KindFS, "":
		if cfg.Dir == "" {
			return nil, errors.New("sync.dir is required for the fs backend")
		}
		s, err := fsstore.New(cfg.Dir, collection)
		if err != nil {
			return nil, err
		}
		return &Handle{Store: s, close: nopClose}, nil

	case KindSQLite:
		dsn := cfg.DSN
		if dsn == "" {
			if cfg.Dir == "" {
				return nil, errors.New("sync.dsn or sync.dir is required for the sqlite backend")
			}
			var err error
			dsn, err = sqlitestore.DSNForFile(filepath.Join(cfg.Dir, "arbor-sync.db"))
			if err != nil {
				return nil, err
			}
		}
		s, err := sqlitestore.Open(dsn, collection)
		if err != nil {
			return nil, err
		}
		return &Handle{Store: s, close: s.Close}, nil

	case KindPostgres:
		if cfg.DSN == "" {
			return nil, errors.New("sync.dsn is required for the postgres backend")
		}
		s, err := pgstore.Open(ctx, cfg.DSN, collection)
		if err != nil {
			return nil, err
		}
		return &Handle{Store: s, close: s.Close}, nil
	}

	return nil, errors.Errorf("unknown sync backend %q", cfg.Backend)
}
