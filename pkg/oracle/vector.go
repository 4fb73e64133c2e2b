package oracle

import "math"

const epsilon = 1e-8

// Cosine returns the cosine similarity of two equal-length vectors,
// or 0 when either vector is (near) zero or lengths differ.
func Cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na < epsilon || nb < epsilon {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// normalize scales v to unit length in place. Near-zero vectors are
// left untouched.
func normalize(v []float64) {
	var norm float64
	for _, x := range v {
		norm += x * x
	}
	if norm <= epsilon {
		return
	}
	inv := 1.0 / math.Sqrt(norm)
	for i := range v {
		v[i] *= inv
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
