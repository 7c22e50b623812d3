// Package vector implements the similarity arithmetic used by retrieval.
// Accumulation is done in float64 regardless of the float32 storage type.
package vector

import (
	"errors"
	"fmt"
	"math"
)

// ErrDimensionMismatch is returned when two vectors have different lengths
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// Dot returns the sum of elementwise products
func Dot(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d != %d", ErrDimensionMismatch, len(a), len(b))
	}

	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum, nil
}

// Norm returns the Euclidean length of a
func Norm(a []float32) float64 {
	var sum float64
	for _, v := range a {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}

// Cosine returns dot(a,b) / (|a|*|b|).
// A zero vector on either side yields 0 rather than NaN.
func Cosine(a, b []float32) (float64, error) {
	dot, err := Dot(a, b)
	if err != nil {
		return 0, err
	}

	denom := Norm(a) * Norm(b)
	if denom == 0 {
		return 0, nil
	}
	return dot / denom, nil
}
