//go:build integration

package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectStore(t *testing.T) {
	ctx := context.Background()

	t.Run("should round-trip an object through store and fetch", func(t *testing.T) {
		// --- Arrange ---
		s := newTestStore(t)
		src := filepath.Join(t.TempDir(), "output.zip")
		require.NoError(t, os.WriteFile(src, []byte("PK-archive"), 0o600))

		// --- Act ---
		ref, err := s.Store(ctx, src, "videos/owner-1/job-1/output.zip")
		require.NoError(t, err)
		local, err := s.Fetch(ctx, ref, t.TempDir())

		// --- Assert ---
		require.NoError(t, err)
		assert.Equal(t, ".zip", filepath.Ext(local))
		got, err := os.ReadFile(local)
		require.NoError(t, err)
		assert.Equal(t, "PK-archive", string(got))
	})

	t.Run("should fail to fetch a missing object", func(t *testing.T) {
		s := newTestStore(t)

		_, err := s.Fetch(ctx, "uploads/nobody/missing.mp4", t.TempDir())

		assert.Error(t, err)
	})

	t.Run("should treat removing a missing object as success", func(t *testing.T) {
		s := newTestStore(t)
		src := filepath.Join(t.TempDir(), "output.zip")
		require.NoError(t, os.WriteFile(src, []byte("x"), 0o600))
		ref, err := s.Store(ctx, src, "videos/owner-2/job-2/output.zip")
		require.NoError(t, err)

		require.NoError(t, s.Remove(ctx, ref))
		require.NoError(t, s.Remove(ctx, ref))

		_, err = s.Fetch(ctx, ref, t.TempDir())
		assert.Error(t, err)
	})

	t.Run("should tolerate creating the bucket twice", func(t *testing.T) {
		s := newTestStore(t)

		assert.NoError(t, s.EnsureBucket(ctx))
		assert.NoError(t, s.Ping(ctx))
	})
}
