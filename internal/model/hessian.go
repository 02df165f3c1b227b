package model

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// stencil holds the offsets (in multiples of eps) and weights of the
// five-point central difference. The weight of the centre point is zero.
var stencil = [4]struct {
	step   float64
	weight float64
}{
	{-2, 1},
	{-1, -8},
	{1, 8},
	{2, -1},
}

// ApproximateHessian approximates the Hessian at b by applying the five-point
// central-difference stencil to grad, one parameter at a time:
//
//	H[:,p] = (g(b-2e) - 8 g(b-e) + 8 g(b+e) - g(b+2e)) / (12 eps)
//
// where e is eps times the p-th unit vector. The result is symmetrized as
// (H + H')/2. b is never modified; each perturbation works on its own copy.
func ApproximateHessian(grad GradientFunc, b mat.Vector, eps float64) (*mat.SymDense, error) {
	if !(eps > 0) || math.IsInf(eps, 1) {
		return nil, &StepSizeError{Eps: eps}
	}

	n := b.Len()
	if n == 0 {
		return nil, &ShapeError{Op: "hessian", What: "parameters", Want: 1, Got: 0}
	}

	raw := mat.NewDense(n, n, nil)
	col := mat.NewVecDense(n, nil)
	for p := 0; p < n; p++ {
		col.Zero()
		for _, s := range stencil {
			shifted := mat.VecDenseCopyOf(b)
			shifted.SetVec(p, shifted.AtVec(p)+s.step*eps)

			g, err := grad(shifted)
			if err != nil {
				return nil, err
			}
			if g.Len() != n {
				return nil, &ShapeError{Op: "hessian", What: "gradient length", Want: n, Got: g.Len()}
			}
			col.AddScaledVec(col, s.weight, g)
		}
		col.ScaleVec(1/(12*eps), col)
		raw.SetCol(p, col.RawVector().Data)
	}

	h := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			h.SetSym(i, j, (raw.At(i, j)+raw.At(j, i))/2)
		}
	}
	return h, nil
}

// Hessian approximates the curvature of Loss at b using the analytic
// Gradient and step size eps.
func Hessian(b, y mat.Vector, x mat.Matrix, eps float64) (*mat.SymDense, error) {
	if err := checkShapes("hessian", b, y, x); err != nil {
		return nil, err
	}
	return ApproximateHessian(func(v *mat.VecDense) (*mat.VecDense, error) {
		return Gradient(v, y, x)
	}, b, eps)
}
