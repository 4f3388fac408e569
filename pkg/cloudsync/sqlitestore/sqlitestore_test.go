package sqlitestore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/go-go-golems/arbor/pkg/cloudsync"
	"github.com/go-go-golems/arbor/pkg/cloudsync/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T, collection string) *Store {
	dsn, err := DSNForFile(filepath.Join(t.TempDir(), "sync.db"))
	require.NoError(t, err)
	s, err := Open(dsn, collection)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) cloudsync.Store {
		return openTemp(t, "trees")
	})
}

func TestReopenKeepsItems(t *testing.T) {
	ctx := context.Background()
	dsn, err := DSNForFile(filepath.Join(t.TempDir(), "sync.db"))
	require.NoError(t, err)

	s, err := Open(dsn, "trees")
	require.NoError(t, err)
	item, err := s.Create(ctx, "u1", "tree", []byte("persisted"))
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err = s.GetFirst(ctx, "u1")
	require.Error(t, err)

	s, err = Open(dsn, "trees")
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	got, err := s.GetFirst(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, item.ID, got.ID)

	other, err := Open(dsn, "uploads")
	require.NoError(t, err)
	defer func() { _ = other.Close() }()
	_, err = other.GetFirst(ctx, "u1")
	require.ErrorIs(t, err, cloudsync.ErrDocumentNotFound)
}

func TestOpenValidates(t *testing.T) {
	_, err := Open("", "trees")
	require.Error(t, err)
	_, err = DSNForFile("")
	require.Error(t, err)
}
