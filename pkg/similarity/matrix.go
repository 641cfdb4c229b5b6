package similarity

import (
	"fmt"
	"math"
)

// Matrix is an immutable, row-major set of embedding vectors.
type Matrix struct {
	data []float64
	rows int
	cols int
}

// NewMatrix validates vectors and copies them into a Matrix. Every row must
// have the same non-zero length and hold only finite values.
func NewMatrix[T ~float32 | ~float64](vectors [][]T) (Matrix, error) {
	if len(vectors) == 0 {
		return Matrix{}, ErrEmptyInput
	}
	cols := len(vectors[0])
	if cols == 0 {
		return Matrix{}, fmt.Errorf("row 0: %w", ErrEmptyInput)
	}

	data := make([]float64, 0, len(vectors)*cols)
	for i, row := range vectors {
		if len(row) != cols {
			return Matrix{}, fmt.Errorf("row %d has %d values, want %d: %w", i, len(row), cols, ErrRaggedInput)
		}
		for j, v := range row {
			f := float64(v)
			if math.IsNaN(f) || math.IsInf(f, 0) {
				return Matrix{}, fmt.Errorf("row %d col %d: %w", i, j, ErrNonFinite)
			}
			data = append(data, f)
		}
	}

	return Matrix{data: data, rows: len(vectors), cols: cols}, nil
}

// Rows returns the number of vectors.
func (m Matrix) Rows() int { return m.rows }

// Cols returns the vector dimensionality.
func (m Matrix) Cols() int { return m.cols }

// Row returns row i. The slice aliases the matrix and must not be modified.
func (m Matrix) Row(i int) []float64 {
	return m.data[i*m.cols : (i+1)*m.cols]
}

// Distance returns the Euclidean distance between rows i and j.
func (m Matrix) Distance(i, j int) float64 {
	return euclidean(m.Row(i), m.Row(j))
}

func euclidean(a, b []float64) float64 {
	var sum float64
	for k := range a {
		d := a[k] - b[k]
		sum += d * d
	}
	return math.Sqrt(sum)
}

// pairwise returns the dense n*n Euclidean distance matrix.
func (m Matrix) pairwise() []float64 {
	n := m.rows
	dist := make([]float64, n*n)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d := m.Distance(i, j)
			dist[i*n+j] = d
			dist[j*n+i] = d
		}
	}
	return dist
}
