// Package data provides row-oriented datasets and a minibatch loader.
package data

import (
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/gmmsgd/pkg/errors"
)

// Dataset is a fixed-size collection of D-dimensional samples.
type Dataset interface {
	// Len returns the number of samples.
	Len() int

	// Dim returns the number of features per sample.
	Dim() int

	// Row copies sample i into dst, which has length Dim().
	Row(i int, dst []float64) error
}

// MatrixDataset serves the rows of an in-memory matrix.
type MatrixDataset struct {
	m    mat.Matrix
	rows int
	cols int
}

// NewMatrixDataset wraps X (n_samples x n_features). X is not copied and
// must not be modified while the dataset is in use.
func NewMatrixDataset(X mat.Matrix) *MatrixDataset {
	r, c := X.Dims()
	return &MatrixDataset{m: X, rows: r, cols: c}
}

// Len implements Dataset.
func (d *MatrixDataset) Len() int { return d.rows }

// Dim implements Dataset.
func (d *MatrixDataset) Dim() int { return d.cols }

// Row implements Dataset.
func (d *MatrixDataset) Row(i int, dst []float64) error {
	if i < 0 || i >= d.rows {
		return errors.NewValueError("MatrixDataset.Row", "row index out of range")
	}
	if len(dst) != d.cols {
		return errors.NewDimensionError("MatrixDataset.Row", d.cols, len(dst), 1)
	}
	if rv, ok := d.m.(mat.RawRowViewer); ok {
		copy(dst, rv.RawRowView(i))
		return nil
	}
	for j := range dst {
		dst[j] = d.m.At(i, j)
	}
	return nil
}

// Gather copies the rows listed in idx into a new matrix.
func Gather(ds Dataset, idx []int) (*mat.Dense, error) {
	if len(idx) == 0 {
		return nil, errors.ErrEmptyData
	}
	batch := mat.NewDense(len(idx), ds.Dim(), nil)
	for r, i := range idx {
		if err := ds.Row(i, batch.RawRowView(r)); err != nil {
			return nil, err
		}
	}
	return batch, nil
}

// Materialize copies every row of ds into memory.
func Materialize(ds Dataset) (*mat.Dense, error) {
	idx := make([]int, ds.Len())
	for i := range idx {
		idx[i] = i
	}
	return Gather(ds, idx)
}
