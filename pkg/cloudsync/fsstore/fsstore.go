// Package fsstore keeps cloudsync items as files below a directory, one
// subdirectory per collection. It serves a shared or mounted folder as the
// remote.
package fsstore

import (
	"context"
	"encoding/json"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/go-go-golems/arbor/pkg/cloudsync"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const metaSuffix = ".meta.json"

type Store struct {
	mu  sync.Mutex
	dir string
}

var _ cloudsync.Store = (*Store)(nil)

func New(root string, collection string) (*Store, error) {
	if root == "" {
		return nil, errors.New("fsstore: root directory is required")
	}
	if collection == "" {
		return nil, errors.New("fsstore: collection is required")
	}
	dir := filepath.Join(root, collection)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "fsstore: could not create collection directory")
	}
	return &Store{dir: dir}, nil
}

func validID(itemID string) bool {
	_, err := uuid.Parse(itemID)
	return err == nil
}

func (s *Store) blobPath(itemID string) string {
	return filepath.Join(s.dir, itemID)
}

func (s *Store) metaPath(itemID string) string {
	return filepath.Join(s.dir, itemID+metaSuffix)
}

func (s *Store) readMeta(itemID string) (*cloudsync.Item, error) {
	if !validID(itemID) {
		return nil, errors.Wrapf(cloudsync.ErrDocumentNotFound, "item %s", itemID)
	}
	b, err := os.ReadFile(s.metaPath(itemID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(cloudsync.ErrDocumentNotFound, "item %s", itemID)
		}
		return nil, err
	}
	var item cloudsync.Item
	if err := json.Unmarshal(b, &item); err != nil {
		return nil, errors.Wrapf(err, "fsstore: corrupt metadata for %s", itemID)
	}
	return &item, nil
}

func writeAtomic(path string, data []byte) error {
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

// write stores the payload before the metadata, so an item is only listed
// once its payload is complete.
func (s *Store) write(item *cloudsync.Item, payload []byte) error {
	if err := writeAtomic(s.blobPath(item.ID), payload); err != nil {
		return err
	}
	b, err := json.MarshalIndent(item, "", "  ")
	if err != nil {
		return err
	}
	return writeAtomic(s.metaPath(item.ID), b)
}

func (s *Store) GetFirst(_ context.Context, userID string) (*cloudsync.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	matches, err := filepath.Glob(filepath.Join(s.dir, "*"+metaSuffix))
	if err != nil {
		return nil, err
	}
	var items []*cloudsync.Item
	for _, m := range matches {
		id := filepath.Base(m)
		id = id[:len(id)-len(metaSuffix)]
		item, err := s.readMeta(id)
		if err != nil {
			return nil, err
		}
		if item.UserID == userID {
			items = append(items, item)
		}
	}
	if len(items) == 0 {
		return nil, errors.Wrapf(cloudsync.ErrDocumentNotFound, "user %s", userID)
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].ID < items[j].ID
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	return items[0], nil
}

func (s *Store) Create(_ context.Context, userID string, name string, payload []byte) (*cloudsync.Item, error) {
	now := time.Now().UTC()
	item := &cloudsync.Item{
		ID:        uuid.NewString(),
		UserID:    userID,
		Name:      name,
		Size:      int64(len(payload)),
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.write(item, payload); err != nil {
		return nil, errors.Wrap(err, "fsstore: could not create item")
	}
	return item, nil
}

func (s *Store) Update(_ context.Context, itemID string, payload []byte) (*cloudsync.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, err := s.readMeta(itemID)
	if err != nil {
		return nil, err
	}
	item.Size = int64(len(payload))
	item.UpdatedAt = time.Now().UTC()
	if err := s.write(item, payload); err != nil {
		return nil, errors.Wrap(err, "fsstore: could not update item")
	}
	return item, nil
}

func (s *Store) URL(_ context.Context, itemID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.readMeta(itemID); err != nil {
		return "", err
	}
	abs, err := filepath.Abs(s.blobPath(itemID))
	if err != nil {
		return "", err
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}
	return u.String(), nil
}

func (s *Store) Download(_ context.Context, itemID string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.readMeta(itemID); err != nil {
		return nil, err
	}
	b, err := os.ReadFile(s.blobPath(itemID))
	if err != nil {
		return nil, errors.Wrap(err, "fsstore: could not read item")
	}
	return b, nil
}
