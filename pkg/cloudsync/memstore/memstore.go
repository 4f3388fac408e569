// Package memstore is an in-memory cloudsync.Store for tests and offline use.
package memstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-go-golems/arbor/pkg/cloudsync"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

type entry struct {
	item    cloudsync.Item
	payload []byte
}

type Store struct {
	mu         sync.RWMutex
	collection string
	entries    map[string]*entry
	order      []string
}

var _ cloudsync.Store = (*Store)(nil)

func New(collection string) *Store {
	return &Store{
		collection: collection,
		entries:    map[string]*entry{},
	}
}

func notFound(itemID string) error {
	return errors.Wrapf(cloudsync.ErrDocumentNotFound, "item %s", itemID)
}

func (s *Store) GetFirst(_ context.Context, userID string) (*cloudsync.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range s.order {
		if e := s.entries[id]; e.item.UserID == userID {
			item := e.item
			return &item, nil
		}
	}
	return nil, errors.Wrapf(cloudsync.ErrDocumentNotFound, "user %s", userID)
}

func (s *Store) Create(_ context.Context, userID string, name string, payload []byte) (*cloudsync.Item, error) {
	now := time.Now().UTC()
	e := &entry{
		item: cloudsync.Item{
			ID:        uuid.NewString(),
			UserID:    userID,
			Name:      name,
			Size:      int64(len(payload)),
			CreatedAt: now,
			UpdatedAt: now,
		},
		payload: append([]byte{}, payload...),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[e.item.ID] = e
	s.order = append(s.order, e.item.ID)
	item := e.item
	return &item, nil
}

func (s *Store) Update(_ context.Context, itemID string, payload []byte) (*cloudsync.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[itemID]
	if !ok {
		return nil, notFound(itemID)
	}
	e.payload = append([]byte{}, payload...)
	e.item.Size = int64(len(payload))
	e.item.UpdatedAt = time.Now().UTC()
	item := e.item
	return &item, nil
}

func (s *Store) URL(_ context.Context, itemID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.entries[itemID]; !ok {
		return "", notFound(itemID)
	}
	return fmt.Sprintf("mem://%s/%s", s.collection, itemID), nil
}

func (s *Store) Download(_ context.Context, itemID string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[itemID]
	if !ok {
		return nil, notFound(itemID)
	}
	return append([]byte{}, e.payload...), nil
}

// Len returns the number of stored items.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
