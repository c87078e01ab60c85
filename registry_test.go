package embedcache_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/embedcache"
)

func TestRegistryOpenGetClose(t *testing.T) {
	r := embedcache.NewRegistry()
	path := filepath.Join(t.TempDir(), "cache.emc")

	h, err := r.Open(path, 4)
	require.NoError(t, err)
	assert.Equal(t, 1, r.Len())

	store, err := r.Get(h)
	require.NoError(t, err)
	require.NoError(t, store.Insert("k", []float32{1, 2, 3, 4}))

	require.NoError(t, r.Close(h))
	assert.Equal(t, 0, r.Len())

	_, err = r.Get(h)
	assert.ErrorIs(t, err, embedcache.ErrInvalidHandle)
	assert.ErrorIs(t, r.Close(h), embedcache.ErrInvalidHandle)
}

func TestRegistryUnknownHandle(t *testing.T) {
	r := embedcache.NewRegistry()

	_, err := r.Get(embedcache.Handle(12345))
	assert.ErrorIs(t, err, embedcache.ErrInvalidHandle)
}

func TestRegistryStaleHandleAfterSlotReuse(t *testing.T) {
	r := embedcache.NewRegistry()
	dir := t.TempDir()

	h1, err := r.Open(filepath.Join(dir, "a.emc"), 2)
	require.NoError(t, err)
	require.NoError(t, r.Close(h1))

	// The slot is reused but the generation advances, so the old handle
	// must keep failing.
	h2, err := r.Open(filepath.Join(dir, "b.emc"), 2)
	require.NoError(t, err)
	defer r.Close(h2)

	assert.NotEqual(t, h1, h2)

	_, err = r.Get(h1)
	assert.ErrorIs(t, err, embedcache.ErrInvalidHandle)

	_, err = r.Get(h2)
	assert.NoError(t, err)
}

func TestRegistryIndependentStores(t *testing.T) {
	r := embedcache.NewRegistry()
	dir := t.TempDir()

	h1, err := r.Open(filepath.Join(dir, "a.emc"), 2)
	require.NoError(t, err)
	h2, err := r.Open(filepath.Join(dir, "b.emc"), 2)
	require.NoError(t, err)
	defer r.Close(h2)

	s1, err := r.Get(h1)
	require.NoError(t, err)
	require.NoError(t, s1.Insert("only-in-a", []float32{1, 0}))

	require.NoError(t, r.Close(h1))

	s2, err := r.Get(h2)
	require.NoError(t, err)
	_, err = s2.Get("only-in-a")
	assert.ErrorIs(t, err, embedcache.ErrNotFound)
}

func TestRegistryDirectStoreCloseReleasesHandle(t *testing.T) {
	r := embedcache.NewRegistry()

	h, err := r.Open(filepath.Join(t.TempDir(), "cache.emc"), 2)
	require.NoError(t, err)

	store, err := r.Get(h)
	require.NoError(t, err)

	// Closing the store directly must also invalidate its handle.
	require.NoError(t, store.Close())
	_, err = r.Get(h)
	assert.ErrorIs(t, err, embedcache.ErrInvalidHandle)
	assert.Equal(t, 0, r.Len())
}

func TestDefaultRegistryHandleAPI(t *testing.T) {
	h, err := embedcache.OpenHandle(filepath.Join(t.TempDir(), "cache.emc"), 2)
	require.NoError(t, err)

	store, err := embedcache.HandleStore(h)
	require.NoError(t, err)
	require.NoError(t, store.Insert("k", []float32{1, 2}))

	require.NoError(t, embedcache.CloseHandle(h))
	_, err = embedcache.HandleStore(h)
	assert.ErrorIs(t, err, embedcache.ErrInvalidHandle)
}
