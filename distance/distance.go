// Package distance provides float32 vector distance calculations.
package distance

import "math"

// Dot calculates the dot product of two vectors.
//
// SAFETY: This function assumes len(a) == len(b).
// It does NOT perform bounds checks; callers must ensure lengths match.
func Dot(a, b []float32) float32 {
	var ret float32
	for i := range a {
		ret += a[i] * b[i]
	}

	return ret
}

// Norm calculates the L2 norm (magnitude) of v.
func Norm(v []float32) float32 {
	return float32(math.Sqrt(float64(Dot(v, v))))
}

// Cosine calculates the cosine similarity of two vectors,
// dot(a, b) / (|a| * |b|), in the range [-1, 1].
//
// ok is false when either vector has zero norm; cosine similarity is
// undefined there and the score must not be used for ranking.
func Cosine(a, b []float32) (score float32, ok bool) {
	var dot, na, nb float32
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}

	if na == 0 || nb == 0 {
		return 0, false
	}

	return dot / (float32(math.Sqrt(float64(na))) * float32(math.Sqrt(float64(nb)))), true
}
