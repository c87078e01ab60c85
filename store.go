package embedcache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/embedcache/distance"
	"github.com/hupe1980/embedcache/index"
	"github.com/hupe1980/embedcache/internal/cache"
	"github.com/hupe1980/embedcache/internal/fs"
	"github.com/hupe1980/embedcache/internal/resource"
	"github.com/hupe1980/embedcache/reclog"
)

// Match is a similarity-search result.
type Match struct {
	Key    string
	Vector []float32
	Score  float32
}

// Store is one open embedding cache: a record log, its in-memory index,
// and a bounded hot cache of decoded vectors. A single lock serializes
// all operations on the store; distinct stores never contend.
type Store struct {
	mu sync.RWMutex

	log       *reclog.Log
	ix        *index.Index
	hot       *cache.VectorCache
	rc        *resource.Controller
	fsys      fs.FileSystem
	dimension int
	closed    bool

	compression reclog.Compression
	metrics     MetricsCollector
	logger      *Logger
	onClose     func() // registry removal hook
}

// Open opens the embedding cache at path, creating the file if absent.
// The dimension is fixed at creation; opening an existing file with a
// different dimension fails with ErrDimensionMismatch.
//
// If the file carries a clean index snapshot it is loaded directly;
// otherwise (unclean shutdown, damaged snapshot) the index is rebuilt by
// replaying the log, dropping a truncated trailing record if one exists.
func Open(path string, dimension int, optFns ...Option) (*Store, error) {
	if dimension <= 0 {
		return nil, &ErrInvalidDimension{Dimension: dimension}
	}

	opts := applyOptions(optFns)

	var rc *resource.Controller
	if opts.memoryLimitBytes > 0 || opts.ioLimitBytesPerSec > 0 {
		rc = resource.NewController(resource.Config{
			MemoryLimitBytes:   opts.memoryLimitBytes,
			IOLimitBytesPerSec: opts.ioLimitBytesPerSec,
		})
	}

	l, err := reclog.Open(opts.fsys, path, dimension)
	if err != nil {
		return nil, translateError(err)
	}

	s := &Store{
		log:         l,
		ix:          index.New(),
		hot:         cache.New(opts.cacheCapacity, rc),
		rc:          rc,
		fsys:        opts.fsys,
		dimension:   dimension,
		compression: opts.compression,
		metrics:     opts.metricsCollector,
		logger:      opts.logger.WithPath(path),
	}

	if err := s.recover(); err != nil {
		_ = l.Close()
		return nil, err
	}

	// From here on the file is dirty: a crash before Close leaves no
	// snapshot and forces a rebuild on the next open.
	if err := l.MarkDirty(); err != nil {
		_ = l.Close()
		return nil, fmt.Errorf("failed to mark log dirty: %w", err)
	}

	return s, nil
}

// recover populates the index from the snapshot if one is present and
// usable, or by replaying the log.
func (s *Store) recover() error {
	ctx := context.Background()

	if s.log.HasSnapshot() {
		entries, err := s.log.LoadSnapshot()
		if err == nil {
			s.ix.Load(entries)
			s.logger.DebugContext(ctx, "index snapshot loaded", "entries", len(entries))
			return nil
		}
		s.logger.WarnContext(ctx, "index snapshot unusable, replaying log", "error", err)
	}

	start := time.Now()
	stopped, err := s.ix.Rebuild(s.log)
	if err != nil {
		s.logger.LogRecovery(ctx, s.ix.Len(), 0, err)
		return fmt.Errorf("failed to rebuild index: %w", translateError(err))
	}

	truncated := s.log.DataEnd() - stopped
	if truncated > 0 {
		// Torn trailing record from a crash mid-append. Drop it.
		if err := s.log.TruncateTo(stopped); err != nil {
			return fmt.Errorf("failed to drop truncated tail: %w", err)
		}
	}

	s.logger.LogRecovery(ctx, s.ix.Len(), truncated, nil)
	s.metrics.RecordRecovery(s.ix.Len(), time.Since(start))
	return nil
}

// Dimension returns the store's fixed vector dimension.
func (s *Store) Dimension() int { return s.dimension }

// Path returns the record log file path.
func (s *Store) Path() string { return s.log.Path() }

// Insert appends a (key, vector) record and makes it the freshest hot
// cache entry. Inserting an existing key appends a new record and
// repoints the index; the old bytes become unreachable garbage.
func (s *Store) Insert(key string, vector []float32) error {
	ctx := context.Background()
	start := time.Now()

	err := s.insert(key, vector)

	s.metrics.RecordInsert(time.Since(start), err)
	s.logger.LogInsert(ctx, key, len(vector), err)
	return err
}

func (s *Store) insert(key string, vector []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if len(vector) != s.dimension {
		return &ErrDimensionMismatch{Expected: s.dimension, Actual: len(vector)}
	}

	off, err := s.log.Append([]byte(key), vector)
	if err != nil {
		return fmt.Errorf("failed to append record: %w", translateError(err))
	}

	hash := index.HashKey([]byte(key))
	s.ix.Put(hash, off)

	// The cache owns its copy; the caller keeps mutating rights on vector.
	owned := make([]float32, len(vector))
	copy(owned, vector)
	s.hot.Put(hash, key, owned)

	return nil
}

// Get returns the newest vector stored for key, or ErrNotFound. A hot
// cache hit returns immediately; a miss reads the log and promotes the
// vector into the cache.
func (s *Store) Get(key string) ([]float32, error) {
	ctx := context.Background()
	start := time.Now()

	vector, cacheHit, err := s.get(key)

	s.metrics.RecordGet(time.Since(start), cacheHit, err)
	if err != ErrNotFound {
		s.logger.LogGet(ctx, key, cacheHit, err)
	}
	return vector, err
}

func (s *Store) get(key string) (vector []float32, cacheHit bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, false, ErrClosed
	}

	hash := index.HashKey([]byte(key))

	if v, ok := s.hot.Get(hash, key); ok {
		out := make([]float32, len(v))
		copy(out, v)
		return out, true, nil
	}

	off, ok := s.ix.Get(hash)
	if !ok {
		return nil, false, ErrNotFound
	}

	storedKey, v, err := s.log.ReadAt(off)
	if err != nil {
		return nil, false, translateError(err)
	}
	// Hash collision guard: the index maps hashes, so the decoded key is
	// the authority.
	if string(storedKey) != key {
		return nil, false, ErrNotFound
	}

	s.hot.Put(hash, key, v)

	out := make([]float32, len(v))
	copy(out, v)
	return out, false, nil
}

// FindSimilar scans every live vector and returns the one with the
// highest cosine similarity to query, provided it reaches threshold.
// Vectors are visited in ascending log-offset order and ties keep the
// earliest entry. Zero-norm vectors (and a zero-norm query) never match.
// Returns ErrNotFound when nothing qualifies.
//
// The hot cache is neither consulted nor updated: the scan must compare
// against all vectors, not just hot ones.
func (s *Store) FindSimilar(query []float32, threshold float32) (Match, error) {
	ctx := context.Background()
	start := time.Now()

	match, scanned, err := s.findSimilar(query)
	if err == nil && (!match.found || match.score < threshold) {
		err = ErrNotFound
	}

	s.metrics.RecordFindSimilar(scanned, time.Since(start), err)
	s.logger.LogFindSimilar(ctx, threshold, scanned, err == nil, translateFindErr(err))

	if err != nil {
		return Match{}, err
	}
	return Match{Key: match.key, Vector: match.vector, Score: match.score}, nil
}

func translateFindErr(err error) error {
	if err == ErrNotFound {
		return nil // empty result, not a fault
	}
	return err
}

type bestMatch struct {
	key    string
	vector []float32
	score  float32
	found  bool
}

func (s *Store) findSimilar(query []float32) (bestMatch, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return bestMatch{}, 0, ErrClosed
	}
	if len(query) != s.dimension {
		return bestMatch{}, 0, &ErrDimensionMismatch{Expected: s.dimension, Actual: len(query)}
	}

	var best bestMatch
	scanned := 0

	for _, off := range s.ix.Offsets() {
		key, vector, err := s.log.ReadAt(off)
		if err != nil {
			return bestMatch{}, scanned, translateError(err)
		}
		scanned++

		score, ok := distance.Cosine(query, vector)
		if !ok {
			continue // undefined similarity for zero-norm pairs
		}

		if !best.found || score > best.score {
			best = bestMatch{key: string(key), vector: vector, score: score, found: true}
		}
	}

	return best, scanned, nil
}

// Stats holds the derived counters reported by Store.Stats. All values
// are recomputed per call, never cached.
type Stats struct {
	Records          int   `json:"records"`
	Dimension        int   `json:"dimension"`
	FileSize         int64 `json:"file_size"`
	IndexSize        int   `json:"index_size"`
	CacheSize        int   `json:"cache_size"`
	CacheCapacity    int   `json:"cache_capacity"`
	CacheHits        int64 `json:"cache_hits"`
	CacheMisses      int64 `json:"cache_misses"`
	IndexMemoryBytes int64 `json:"index_memory_bytes"`
	CacheMemoryBytes int64 `json:"cache_memory_bytes"`
	MemoryUsageBytes int64 `json:"memory_usage_bytes"`
}

// JSON returns the stats serialized as a JSON object, the form consumed
// across the C boundary.
func (st Stats) JSON() (string, error) {
	payload, err := json.Marshal(st)
	if err != nil {
		return "", err
	}
	return string(payload), nil
}

// Stats returns current store counters. FileSize includes garbage bytes
// left behind by overwritten keys; Records counts live keys only.
func (s *Store) Stats() (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return Stats{}, ErrClosed
	}

	fileSize, err := s.log.FileSize()
	if err != nil {
		return Stats{}, fmt.Errorf("failed to stat record log: %w", err)
	}

	hits, misses := s.hot.Stats()

	st := Stats{
		Records:          s.ix.Len(),
		Dimension:        s.dimension,
		FileSize:         fileSize,
		IndexSize:        s.ix.Len(),
		CacheSize:        s.hot.Len(),
		CacheCapacity:    s.hot.Capacity(),
		CacheHits:        hits,
		CacheMisses:      misses,
		IndexMemoryBytes: s.ix.MemoryBytes(),
		CacheMemoryBytes: int64(s.hot.Len()) * int64(s.dimension) * 4,
	}
	st.MemoryUsageBytes = st.IndexMemoryBytes + st.CacheMemoryBytes

	return st, nil
}

// Close persists the index snapshot, flushes and releases the log file,
// and drops the hot cache. Further operations return ErrClosed. A failed
// snapshot write still closes the file; the next open rebuilds instead.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	s.closed = true

	ctx := context.Background()

	entries := s.ix.Entries()
	snapErr := s.log.WriteSnapshot(entries, s.compression)
	s.logger.LogSnapshot(ctx, len(entries), snapErr)

	closeErr := s.log.Close()

	s.hot.Purge()
	if s.onClose != nil {
		s.onClose()
	}

	if snapErr != nil {
		return fmt.Errorf("failed to persist index snapshot: %w", snapErr)
	}
	return closeErr
}
