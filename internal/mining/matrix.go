// Package mining selects informative negatives for triplet training from a
// pairwise similarity matrix over the current embeddings.
package mining

import (
	"errors"
	"fmt"
	"math"

	"github.com/matsen/simlearn/internal/parallel"
)

// Errors returned by mining operations.
var (
	ErrShapeMismatch = errors.New("shape mismatch")
	ErrNoNegative    = errors.New("no item with a different label")
)

// Matrix is a dense row-major n x n similarity matrix.
type Matrix struct {
	N    int
	Data []float32
}

// At returns S[i, j].
func (m *Matrix) At(i, j int) float32 {
	return m.Data[i*m.N+j]
}

// Row returns row i. The slice aliases the matrix.
func (m *Matrix) Row(i int) []float32 {
	return m.Data[i*m.N : (i+1)*m.N]
}

// Normalize returns v scaled to unit L2 norm. A zero vector is returned unchanged.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	out := make([]float32, len(v))
	if sum == 0 {
		copy(out, v)
		return out
	}
	inv := float32(1 / math.Sqrt(sum))
	for i, x := range v {
		out[i] = x * inv
	}
	return out
}

// Dot returns the inner product of a and b, which must have equal length.
func Dot(a, b []float32) float32 {
	var s float32
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

// SimilarityMatrix L2-normalizes every vector and returns all pairwise dot
// products, so entries are cosine similarities in [-1, 1]. Rows are computed
// on up to workers goroutines; workers <= 0 uses GOMAXPROCS.
func SimilarityMatrix(vectors [][]float32, workers int) (*Matrix, error) {
	n := len(vectors)
	if n == 0 {
		return &Matrix{}, nil
	}
	dim := len(vectors[0])
	normed := make([][]float32, n)
	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("%w: vector %d has %d dimensions, want %d", ErrShapeMismatch, i, len(v), dim)
		}
		normed[i] = Normalize(v)
	}

	m := &Matrix{N: n, Data: make([]float32, n*n)}
	// Each row i fills only entries (i, j>=i) and their mirrors (j, i), so
	// rows never write the same cell.
	parallel.ForEach(n, workers, func(i int) {
		for j := i; j < n; j++ {
			s := Dot(normed[i], normed[j])
			m.Data[i*n+j] = s
			m.Data[j*n+i] = s
		}
	})
	return m, nil
}
