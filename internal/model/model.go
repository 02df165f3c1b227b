// Package model implements the least-squares loss, its analytic gradient and
// a finite-difference Hessian, and binds them to a fixed (response, design)
// pair behind the Scorable contract used by optimization engines.
//
// Orientation convention: engines exchange parameter and gradient vectors as
// plain []float64 (row vectors). The math in this package works on column
// vectors (*mat.VecDense). LeastSquares is the only place that converts
// between the two.
package model

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Scorable is a model an optimization engine can minimize. Gradient entries
// must be aligned index for index with params.
type Scorable interface {
	// NumParams returns the length of the parameter vector.
	NumParams() int

	// Loss evaluates the model loss at params.
	Loss(params []float64) (float64, error)

	// Gradient returns a freshly allocated gradient of Loss at params.
	Gradient(params []float64) ([]float64, error)
}

// LeastSquares is a linear regression model with a fixed response vector and
// design matrix. Its methods do not mutate any state and are safe for
// concurrent use.
type LeastSquares struct {
	y *mat.VecDense
	x *mat.Dense
}

var _ Scorable = (*LeastSquares)(nil)

// NewLeastSquares binds private copies of y and x. x must have len(y) rows.
func NewLeastSquares(y []float64, x mat.Matrix) (*LeastSquares, error) {
	rows, cols := x.Dims()
	if rows != len(y) {
		return nil, &ShapeError{Op: "bind", What: "design rows vs response", Want: rows, Got: len(y)}
	}
	if rows == 0 || cols == 0 {
		return nil, &ShapeError{Op: "bind", What: "design size", Want: 1, Got: 0}
	}

	yc := make([]float64, len(y))
	copy(yc, y)

	return &LeastSquares{
		y: mat.NewVecDense(len(yc), yc),
		x: mat.DenseCopyOf(x),
	}, nil
}

// NumParams returns the number of design columns.
func (m *LeastSquares) NumParams() int {
	_, cols := m.x.Dims()
	return cols
}

// NumObs returns the sample size N.
func (m *LeastSquares) NumObs() int {
	return m.y.Len()
}

// column converts an engine row vector into a column vector that owns its data.
func (m *LeastSquares) column(params []float64) (*mat.VecDense, error) {
	if len(params) != m.NumParams() {
		return nil, &ShapeError{Op: "adapter", What: "parameters", Want: m.NumParams(), Got: len(params)}
	}
	data := make([]float64, len(params))
	copy(data, params)
	return mat.NewVecDense(len(data), data), nil
}

// row converts a column vector back to the engine's convention.
func row(v mat.Vector) []float64 {
	out := make([]float64, v.Len())
	for i := range out {
		out[i] = v.AtVec(i)
	}
	return out
}

// Loss returns (y-Xb)'(y-Xb) / (2N).
func (m *LeastSquares) Loss(params []float64) (float64, error) {
	b, err := m.column(params)
	if err != nil {
		return 0, err
	}
	return Loss(b, m.y, m.x)
}

// Gradient returns (X'Xb - X'y) / N.
func (m *LeastSquares) Gradient(params []float64) ([]float64, error) {
	b, err := m.column(params)
	if err != nil {
		return nil, err
	}
	g, err := Gradient(b, m.y, m.x)
	if err != nil {
		return nil, err
	}
	return row(g), nil
}

// Hessian approximates the curvature of the loss at params with step eps.
func (m *LeastSquares) Hessian(params []float64, eps float64) (*mat.SymDense, error) {
	b, err := m.column(params)
	if err != nil {
		return nil, err
	}
	return Hessian(b, m.y, m.x, eps)
}

// Predict returns X*params.
func (m *LeastSquares) Predict(params []float64) ([]float64, error) {
	b, err := m.column(params)
	if err != nil {
		return nil, err
	}
	var fitted mat.VecDense
	fitted.MulVec(m.x, b)
	return row(&fitted), nil
}

// ScorableHessian approximates the Hessian of any Scorable from its
// gradient. It is used for models that do not provide their own curvature.
func ScorableHessian(s Scorable, params []float64, eps float64) (*mat.SymDense, error) {
	if len(params) != s.NumParams() {
		return nil, &ShapeError{Op: "hessian", What: "parameters", Want: s.NumParams(), Got: len(params)}
	}
	if len(params) == 0 {
		return nil, &ShapeError{Op: "hessian", What: "parameters", Want: 1, Got: 0}
	}
	grad := func(b *mat.VecDense) (*mat.VecDense, error) {
		g, err := s.Gradient(row(b))
		if err != nil {
			return nil, fmt.Errorf("gradient: %w", err)
		}
		if len(g) != b.Len() {
			return nil, &ShapeError{Op: "hessian", What: "gradient length", Want: b.Len(), Got: len(g)}
		}
		return mat.NewVecDense(len(g), g), nil
	}
	return ApproximateHessian(grad, mat.NewVecDense(len(params), append([]float64(nil), params...)), eps)
}
