package embedcache_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/embedcache"
	"github.com/hupe1980/embedcache/blobstore"
	"github.com/hupe1980/embedcache/testutil"
)

func TestArchiveRestoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	bs := blobstore.NewMemoryStore()
	dir := t.TempDir()
	rng := testutil.NewRNG(11)

	store, err := embedcache.Open(filepath.Join(dir, "warm.emc"), 8)
	require.NoError(t, err)

	vectors := make(map[string][]float32)
	for _, key := range []string{"alpha", "beta", "gamma"} {
		vectors[key] = rng.Vector(8)
		require.NoError(t, store.Insert(key, vectors[key]))
	}

	require.NoError(t, store.Archive(ctx, bs, "archives/warm.emc"))
	require.NoError(t, store.Close())

	// A "fresh container" restores and opens the archived cache. The
	// archive carries no snapshot, so this open replays the log.
	coldPath := filepath.Join(dir, "cold.emc")
	require.NoError(t, embedcache.Restore(ctx, bs, "archives/warm.emc", coldPath, nil))

	restored, err := embedcache.Open(coldPath, 8)
	require.NoError(t, err)
	defer restored.Close()

	for key, want := range vectors {
		got, err := restored.Get(key)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestArchiveWithIOLimit(t *testing.T) {
	ctx := context.Background()
	bs := blobstore.NewMemoryStore()

	// A generous limit so the test stays fast; the point is that the
	// throttled path uploads the identical bytes.
	store, _ := openTemp(t, 4, embedcache.WithIOLimit(1<<30))
	require.NoError(t, store.Insert("k", []float32{1, 2, 3, 4}))

	require.NoError(t, store.Archive(ctx, bs, "cache.emc"))

	blob, err := bs.Open(ctx, "cache.emc")
	require.NoError(t, err)
	defer blob.Close()

	stats, err := store.Stats()
	require.NoError(t, err)
	assert.Equal(t, stats.FileSize, blob.Size())
}

func TestArchiveAfterClose(t *testing.T) {
	store, err := embedcache.Open(filepath.Join(t.TempDir(), "cache.emc"), 2)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	err = store.Archive(context.Background(), blobstore.NewMemoryStore(), "cache.emc")
	assert.ErrorIs(t, err, embedcache.ErrClosed)
}

func TestRestoreMissingArchive(t *testing.T) {
	err := embedcache.Restore(context.Background(), blobstore.NewMemoryStore(),
		"no-such-archive", filepath.Join(t.TempDir(), "cache.emc"), nil)
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}

func TestRestoreRefusesOverwrite(t *testing.T) {
	ctx := context.Background()
	bs := blobstore.NewMemoryStore()
	require.NoError(t, bs.Put(ctx, "archive", []byte("stale bytes")))

	path := filepath.Join(t.TempDir(), "cache.emc")
	store, err := embedcache.Open(path, 2)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	// The local file is assumed fresher than any archive.
	err = embedcache.Restore(ctx, bs, "archive", path, nil)
	assert.Error(t, err)
}
