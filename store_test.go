package embedcache_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/embedcache"
	"github.com/hupe1980/embedcache/internal/fs"
	"github.com/hupe1980/embedcache/reclog"
	"github.com/hupe1980/embedcache/testutil"
)

func openTemp(t *testing.T, dimension int, optFns ...embedcache.Option) (*embedcache.Store, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "cache.emc")
	store, err := embedcache.Open(path, dimension, optFns...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store, path
}

func TestRoundTrip(t *testing.T) {
	store, _ := openTemp(t, 8)
	rng := testutil.NewRNG(42)

	vectors := make(map[string][]float32)
	for i := range 50 {
		key := fmt.Sprintf("key-%d", i)
		vectors[key] = rng.Vector(8)
		require.NoError(t, store.Insert(key, vectors[key]))
	}

	for key, want := range vectors {
		got, err := store.Get(key)
		require.NoError(t, err)
		require.Len(t, got, 8)
		for i := range want {
			assert.InDelta(t, want[i], got[i], 1e-6)
		}
	}
}

func TestGetMissing(t *testing.T) {
	store, _ := openTemp(t, 4)

	_, err := store.Get("never-inserted")
	assert.ErrorIs(t, err, embedcache.ErrNotFound)
}

func TestPersistenceAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.emc")
	vector := []float32{1, 2, 3, 4}

	store, err := embedcache.Open(path, 4)
	require.NoError(t, err)
	require.NoError(t, store.Insert("k", vector))
	require.NoError(t, store.Close())

	reopened, err := embedcache.Open(path, 4)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get("k")
	require.NoError(t, err)
	assert.Equal(t, vector, got)
}

func TestRecoveryEquivalence(t *testing.T) {
	// The same data opened via snapshot load and via full log replay
	// must answer every get identically.
	dir := t.TempDir()
	cleanPath := filepath.Join(dir, "clean.emc")
	rng := testutil.NewRNG(7)

	store, err := embedcache.Open(cleanPath, 16)
	require.NoError(t, err)
	keys := make([]string, 0, 30)
	for i := range 30 {
		key := fmt.Sprintf("key-%d", i%20) // some overwrites
		keys = append(keys, key)
		require.NoError(t, store.Insert(key, rng.Vector(16)))
	}
	require.NoError(t, store.Close())

	// Replay path: a copy with a damaged snapshot checksum, so load
	// falls back to a full log scan. Copied before the reopen below,
	// which drops the clean file's snapshot tail.
	dirtyPath := filepath.Join(dir, "dirty.emc")
	copyFile(t, cleanPath, dirtyPath)
	flipLastByte(t, dirtyPath)

	// Snapshot path.
	viaSnapshot, err := embedcache.Open(cleanPath, 16)
	require.NoError(t, err)
	defer viaSnapshot.Close()

	viaReplay, err := embedcache.Open(dirtyPath, 16)
	require.NoError(t, err)
	defer viaReplay.Close()

	for _, key := range keys {
		want, err := viaSnapshot.Get(key)
		require.NoError(t, err)
		got, err := viaReplay.Get(key)
		require.NoError(t, err)
		assert.Equal(t, want, got, "key %q", key)
	}

	snapStats, err := viaSnapshot.Stats()
	require.NoError(t, err)
	replayStats, err := viaReplay.Stats()
	require.NoError(t, err)
	assert.Equal(t, snapStats.Records, replayStats.Records)
}

func TestDimensionEnforcement(t *testing.T) {
	store, _ := openTemp(t, 4)
	require.NoError(t, store.Insert("ok", []float32{1, 2, 3, 4}))

	err := store.Insert("bad", []float32{1, 2})
	var dm *embedcache.ErrDimensionMismatch
	require.ErrorAs(t, err, &dm)
	assert.Equal(t, 4, dm.Expected)
	assert.Equal(t, 2, dm.Actual)

	stats, err := store.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Records, "failed insert must not change records")

	_, err = store.FindSimilar([]float32{1, 2}, 0.5)
	require.ErrorAs(t, err, &dm)
}

func TestOpenExistingDimensionMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.emc")

	store, err := embedcache.Open(path, 4)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	_, err = embedcache.Open(path, 8)
	var dm *embedcache.ErrDimensionMismatch
	require.ErrorAs(t, err, &dm)
	assert.Equal(t, 4, dm.Expected)
	assert.Equal(t, 8, dm.Actual)
}

func TestOpenInvalidDimension(t *testing.T) {
	_, err := embedcache.Open(filepath.Join(t.TempDir(), "cache.emc"), 0)
	var id *embedcache.ErrInvalidDimension
	assert.ErrorAs(t, err, &id)
}

func TestEvictedKeysRemainRetrievable(t *testing.T) {
	store, _ := openTemp(t, 2, embedcache.WithCacheCapacity(2))

	require.NoError(t, store.Insert("a", []float32{1, 0}))
	require.NoError(t, store.Insert("b", []float32{0, 1}))
	require.NoError(t, store.Insert("c", []float32{1, 1})) // evicts "a"

	stats, err := store.Stats()
	require.NoError(t, err)
	assert.Equal(t, 2, stats.CacheSize)
	assert.Equal(t, 3, stats.Records)

	// Eviction only changes promotion behavior, never retrievability.
	got, err := store.Get("a")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0}, got)
}

func TestFindSimilar(t *testing.T) {
	store, _ := openTemp(t, 3)

	require.NoError(t, store.Insert("hello", []float32{1, 0, 0}))
	require.NoError(t, store.Insert("world", []float32{0, 1, 0}))

	match, err := store.FindSimilar([]float32{0.95, 0.1, 0.05}, 0.90)
	require.NoError(t, err)
	assert.Equal(t, "hello", match.Key)
	assert.InDelta(t, 0.9939, match.Score, 0.001)
	assert.Equal(t, []float32{1, 0, 0}, match.Vector)

	_, err = store.FindSimilar([]float32{0, 0, 1}, 0.99)
	assert.ErrorIs(t, err, embedcache.ErrNotFound)
}

func TestFindSimilarTieKeepsEarliest(t *testing.T) {
	store, _ := openTemp(t, 2)

	require.NoError(t, store.Insert("first", []float32{2, 0}))
	require.NoError(t, store.Insert("second", []float32{4, 0})) // same direction, same score

	match, err := store.FindSimilar([]float32{1, 0}, 0.5)
	require.NoError(t, err)
	assert.Equal(t, "first", match.Key)
}

func TestFindSimilarSkipsZeroNorm(t *testing.T) {
	store, _ := openTemp(t, 2)

	require.NoError(t, store.Insert("zero", []float32{0, 0}))
	require.NoError(t, store.Insert("axis", []float32{0, 1}))

	match, err := store.FindSimilar([]float32{0, 2}, 0.9)
	require.NoError(t, err)
	assert.Equal(t, "axis", match.Key)

	// A zero-norm query has undefined similarity against everything.
	_, err = store.FindSimilar([]float32{0, 0}, 0.0)
	assert.ErrorIs(t, err, embedcache.ErrNotFound)
}

func TestOverwriteKeepsOneLiveEntry(t *testing.T) {
	store, _ := openTemp(t, 2)

	require.NoError(t, store.Insert("k", []float32{1, 1}))
	require.NoError(t, store.Insert("k", []float32{2, 2}))

	got, err := store.Get("k")
	require.NoError(t, err)
	assert.Equal(t, []float32{2, 2}, got)

	stats, err := store.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Records)
}

func TestStatsAccounting(t *testing.T) {
	const dim = 6
	store, _ := openTemp(t, dim, embedcache.WithCacheCapacity(4))
	rng := testutil.NewRNG(1)

	for i := range 10 {
		require.NoError(t, store.Insert(fmt.Sprintf("key-%d", i), rng.Vector(dim)))
	}

	stats, err := store.Stats()
	require.NoError(t, err)
	assert.Equal(t, 10, stats.Records)
	assert.Equal(t, dim, stats.Dimension)
	assert.Equal(t, 10, stats.IndexSize)
	assert.Equal(t, 4, stats.CacheSize)
	assert.Equal(t, 4, stats.CacheCapacity)
	assert.Equal(t, int64(10*16), stats.IndexMemoryBytes)
	assert.Equal(t, int64(4*dim*4), stats.CacheMemoryBytes)
	assert.Equal(t, stats.IndexMemoryBytes+stats.CacheMemoryBytes, stats.MemoryUsageBytes)
	assert.Greater(t, stats.FileSize, int64(0))
}

func TestStatsJSON(t *testing.T) {
	store, _ := openTemp(t, 2)
	require.NoError(t, store.Insert("k", []float32{1, 2}))

	stats, err := store.Stats()
	require.NoError(t, err)
	payload, err := stats.JSON()
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(payload), &decoded))
	assert.EqualValues(t, 1, decoded["records"])
	assert.Contains(t, decoded, "index_memory_bytes")
	assert.Contains(t, decoded, "cache_hits")
}

func TestCacheHitCounters(t *testing.T) {
	store, _ := openTemp(t, 2)
	require.NoError(t, store.Insert("k", []float32{1, 2}))

	_, err := store.Get("k") // hot, inserted fresh
	require.NoError(t, err)
	_, _ = store.Get("missing")

	stats, err := store.Stats()
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.CacheHits)
	assert.Equal(t, int64(1), stats.CacheMisses)
}

func TestOperationsAfterClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.emc")
	store, err := embedcache.Open(path, 2)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	assert.ErrorIs(t, store.Insert("k", []float32{1, 2}), embedcache.ErrClosed)
	_, err = store.Get("k")
	assert.ErrorIs(t, err, embedcache.ErrClosed)
	_, err = store.FindSimilar([]float32{1, 2}, 0.5)
	assert.ErrorIs(t, err, embedcache.ErrClosed)
	_, err = store.Stats()
	assert.ErrorIs(t, err, embedcache.ErrClosed)
	assert.ErrorIs(t, store.Close(), embedcache.ErrClosed)
}

func TestSnapshotCompressionSchemes(t *testing.T) {
	for _, scheme := range []reclog.Compression{reclog.CompressionNone, reclog.CompressionZstd, reclog.CompressionLZ4} {
		t.Run(scheme.String(), func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "cache.emc")
			rng := testutil.NewRNG(3)

			store, err := embedcache.Open(path, 8, embedcache.WithSnapshotCompression(scheme))
			require.NoError(t, err)
			want := rng.Vector(8)
			require.NoError(t, store.Insert("k", want))
			require.NoError(t, store.Close())

			reopened, err := embedcache.Open(path, 8)
			require.NoError(t, err)
			defer reopened.Close()

			got, err := reopened.Get("k")
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestInsertIOErrorLeavesStoreUsable(t *testing.T) {
	faulty := fs.NewFaultyFS(fs.LocalFS{})
	// The header is written twice (create, then the dirty mark); leave
	// room for one small record after that and the disk is "full".
	faulty.AddRule(".emc", fs.Fault{FailAfterBytes: reclog.HeaderSize*2 + 32})

	store, _ := openTemp(t, 2, embedcache.WithFileSystem(faulty))

	require.NoError(t, store.Insert("a", []float32{1, 2}))

	err := store.Insert("big-key-that-does-not-fit-the-remaining-budget-anymore", []float32{3, 4})
	require.Error(t, err)
	var dm *embedcache.ErrDimensionMismatch
	assert.False(t, errors.As(err, &dm))

	// The failed append changed nothing; cached reads still work.
	got, err := store.Get("a")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2}, got)

	stats, err := store.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Records)
}

func TestBasicMetricsCollector(t *testing.T) {
	metrics := &embedcache.BasicMetricsCollector{}
	store, _ := openTemp(t, 2, embedcache.WithMetricsCollector(metrics))

	require.NoError(t, store.Insert("k", []float32{1, 0}))
	_, err := store.Get("k")
	require.NoError(t, err)
	_, err = store.FindSimilar([]float32{1, 0}, 0.5)
	require.NoError(t, err)
	_, _ = store.Get("missing")

	stats := metrics.GetStats()
	assert.Equal(t, int64(1), stats.InsertCount)
	assert.Equal(t, int64(2), stats.GetCount)
	assert.Equal(t, int64(1), stats.GetCacheHits)
	assert.Equal(t, int64(1), stats.GetErrors) // the miss
	assert.Equal(t, int64(1), stats.SearchCount)
	assert.Equal(t, int64(1), stats.SearchScanned)
}

func copyFile(t *testing.T, src, dst string) {
	t.Helper()

	data, err := os.ReadFile(src)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(dst, data, 0o600))
}

func flipLastByte(t *testing.T, path string) {
	t.Helper()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NotEmpty(t, data)
	data[len(data)-1] ^= 0xFF
	require.NoError(t, os.WriteFile(path, data, 0o600))
}
