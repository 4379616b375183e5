package cluster

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// unit converts v to float64 and scales it to unit length. A zero vector
// stays zero.
func unit(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	if norm := floats.Norm(out, 2); norm > 0 {
		floats.Scale(1/norm, out)
	}
	return out
}

// cosineDistance of two unit vectors, clamped to [0, 2].
func cosineDistance(a, b []float64) float64 {
	return math.Max(0, math.Min(2, 1-floats.Dot(a, b)))
}

func euclidean(a, b []float64) float64 {
	return floats.Distance(a, b, 2)
}

func centroid(vecs [][]float64, idx []int) []float32 {
	if len(idx) == 0 {
		return nil
	}
	sum := make([]float64, len(vecs[idx[0]]))
	for _, i := range idx {
		floats.Add(sum, vecs[i])
	}
	floats.Scale(1/float64(len(idx)), sum)
	out := make([]float32, len(sum))
	for i, x := range sum {
		out[i] = float32(x)
	}
	return out
}
