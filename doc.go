// Package embedcache is a process-local, file-backed embedding cache.
//
// It maps opaque string keys to fixed-dimension float32 vectors so that
// expensive externally-computed embeddings are paid for once per key and
// survive process restarts. Storage is a single append-only record log
// with an in-memory hash index, fronted by a bounded LRU cache of hot
// vectors, plus an exhaustive cosine-similarity search over all stored
// vectors.
//
// Example:
//
//	store, err := embedcache.Open("cache.emc", 1536,
//		embedcache.WithCacheCapacity(4096),
//	)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer store.Close()
//
//	if err := store.Insert("hello world", vec); err != nil {
//		log.Fatal(err)
//	}
//
//	match, err := store.FindSimilar(query, 0.90)
//	if err == nil {
//		fmt.Println(match.Key, match.Score)
//	}
//
// A clean Close persists an index snapshot into the file tail so the
// next Open skips the log replay; after a crash the index is rebuilt by
// scanning the log. Stores can also be addressed through small integer
// handles (see Registry), which is how the C boundary in
// cmd/libembedcache references them.
package embedcache
