// Package index provides the in-memory key directory over the record log:
// an expected-O(1) mapping from 64-bit key hashes to the log offset of the
// key's newest record.
//
// The index is rebuildable state, not a system of record. It is restored
// from a persisted snapshot on a clean open, or rebuilt by replaying the
// log after an unclean shutdown.
//
// Hashes, not keys, are stored (16 bytes per entry). Two distinct keys can
// collide in the hash, so lookups must verify the decoded key of the record
// behind the returned offset before trusting a hit.
package index

import (
	"hash/fnv"
	"sort"

	"github.com/hupe1980/embedcache/reclog"
)

// HashKey returns the FNV-64a hash of key.
func HashKey(key []byte) uint64 {
	h := fnv.New64a()
	_, _ = h.Write(key)
	return h.Sum64()
}

// Index maps key hashes to record log offsets.
//
// Index performs no internal locking; the owning store serializes access.
type Index struct {
	m map[uint64]int64
}

// New creates an empty Index.
func New() *Index {
	return &Index{m: make(map[uint64]int64)}
}

// Put inserts or overwrites the entry for hash.
func (ix *Index) Put(hash uint64, offset int64) {
	ix.m[hash] = offset
}

// Get returns the newest offset for hash.
func (ix *Index) Get(hash uint64) (int64, bool) {
	off, ok := ix.m[hash]
	return off, ok
}

// Len returns the number of live entries.
func (ix *Index) Len() int {
	return len(ix.m)
}

// MemoryBytes returns the accounted in-memory footprint: 16 bytes per
// entry (8-byte hash, 8-byte offset).
func (ix *Index) MemoryBytes() int64 {
	return int64(len(ix.m)) * reclog.IndexEntrySize
}

// Rebuild replays the record log in order, overwriting earlier entries
// with later ones so the final state reflects only live data. It returns
// the offset the replay stopped at; a value before the log's DataEnd
// means a truncated trailing record was skipped (the caller decides
// whether to truncate the file there).
func (ix *Index) Rebuild(l *reclog.Log) (int64, error) {
	ix.m = make(map[uint64]int64)
	return l.Scan(func(off int64, key []byte, _ []float32) error {
		ix.m[HashKey(key)] = off
		return nil
	})
}

// Load replaces the index contents with the given snapshot entries.
func (ix *Index) Load(entries []reclog.IndexEntry) {
	ix.m = make(map[uint64]int64, len(entries))
	for _, e := range entries {
		ix.m[e.Hash] = e.Offset
	}
}

// Entries returns all live entries ordered by ascending log offset.
// The order makes snapshots and exhaustive scans deterministic.
func (ix *Index) Entries() []reclog.IndexEntry {
	entries := make([]reclog.IndexEntry, 0, len(ix.m))
	for h, off := range ix.m {
		entries = append(entries, reclog.IndexEntry{Hash: h, Offset: off})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Offset < entries[j].Offset })
	return entries
}

// Offsets returns all live offsets in ascending log order.
func (ix *Index) Offsets() []int64 {
	offsets := make([]int64, 0, len(ix.m))
	for _, off := range ix.m {
		offsets = append(offsets, off)
	}
	sort.Slice(offsets, func(i, j int) bool { return offsets[i] < offsets[j] })
	return offsets
}
