// Package testutil provides testing utilities for embedcache.
//
// This package is intended for use in tests and benchmarks only. It
// provides deterministic random-vector fixtures:
//
//	rng := testutil.NewRNG(seed)
//	vec := rng.Vector(128)      // uniform [0, 1)
//	vecs := rng.Vectors(100, 128)
package testutil

import (
	"math/rand"
	"sync"
)

// RNG encapsulates a seeded random number generator. It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Float32 returns a pseudo-random float32 in [0, 1).
func (r *RNG) Float32() float32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Float32()
}

// Intn returns a non-negative pseudo-random number in [0, n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Vector returns a fresh vector of the given dimension with uniform
// [0, 1) components.
func (r *RNG) Vector(dimension int) []float32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	v := make([]float32, dimension)
	for i := range v {
		v[i] = r.rand.Float32()
	}
	return v
}

// Vectors returns count vectors of the given dimension.
func (r *RNG) Vectors(count, dimension int) [][]float32 {
	vecs := make([][]float32, count)
	for i := range vecs {
		vecs[i] = r.Vector(dimension)
	}
	return vecs
}
