// Package storetest checks that a cloudsync.Store behaves like the others.
package storetest

import (
	"context"
	"strings"
	"testing"

	"github.com/go-go-golems/arbor/pkg/cloudsync"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run exercises the Store contract against stores returned by newStore. Each
// call must return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) cloudsync.Store) {
	ctx := context.Background()

	t.Run("missing user", func(t *testing.T) {
		s := newStore(t)
		_, err := s.GetFirst(ctx, "nobody")
		require.ErrorIs(t, err, cloudsync.ErrDocumentNotFound)
	})

	t.Run("create and download", func(t *testing.T) {
		s := newStore(t)
		item, err := s.Create(ctx, "u1", "tree.json.gz", []byte("payload"))
		require.NoError(t, err)
		assert.NotEmpty(t, item.ID)
		assert.Equal(t, "u1", item.UserID)
		assert.Equal(t, "tree.json.gz", item.Name)
		assert.Equal(t, int64(7), item.Size)

		first, err := s.GetFirst(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, item.ID, first.ID)

		b, err := s.Download(ctx, item.ID)
		require.NoError(t, err)
		assert.Equal(t, []byte("payload"), b)

		u, err := s.URL(ctx, item.ID)
		require.NoError(t, err)
		assert.True(t, strings.Contains(u, item.ID), u)
	})

	t.Run("first item wins", func(t *testing.T) {
		s := newStore(t)
		first, err := s.Create(ctx, "u1", "a", []byte("a"))
		require.NoError(t, err)
		_, err = s.Create(ctx, "u1", "b", []byte("b"))
		require.NoError(t, err)
		_, err = s.Create(ctx, "u2", "c", []byte("c"))
		require.NoError(t, err)

		got, err := s.GetFirst(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, first.ID, got.ID)
	})

	t.Run("update replaces payload", func(t *testing.T) {
		s := newStore(t)
		item, err := s.Create(ctx, "u1", "tree", []byte("old"))
		require.NoError(t, err)

		updated, err := s.Update(ctx, item.ID, []byte("newer"))
		require.NoError(t, err)
		assert.Equal(t, item.ID, updated.ID)
		assert.Equal(t, int64(5), updated.Size)
		assert.False(t, updated.UpdatedAt.Before(item.UpdatedAt))

		b, err := s.Download(ctx, item.ID)
		require.NoError(t, err)
		assert.Equal(t, []byte("newer"), b)
	})

	t.Run("unknown item", func(t *testing.T) {
		s := newStore(t)
		const missing = "00000000-0000-4000-8000-000000000000"
		_, err := s.Update(ctx, missing, []byte("x"))
		require.ErrorIs(t, err, cloudsync.ErrDocumentNotFound)
		_, err = s.Download(ctx, missing)
		require.ErrorIs(t, err, cloudsync.ErrDocumentNotFound)
		_, err = s.URL(ctx, missing)
		require.ErrorIs(t, err, cloudsync.ErrDocumentNotFound)
		_, err = s.Download(ctx, "../../etc/passwd")
		require.ErrorIs(t, err, cloudsync.ErrDocumentNotFound)
	})

	t.Run("empty payload", func(t *testing.T) {
		s := newStore(t)
		item, err := s.Create(ctx, "u1", "empty", nil)
		require.NoError(t, err)
		b, err := s.Download(ctx, item.ID)
		require.NoError(t, err)
		assert.Empty(t, b)
	})
}
