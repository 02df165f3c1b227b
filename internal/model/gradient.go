package model

import "gonum.org/v1/gonum/mat"

// GradientFunc evaluates the gradient of a loss at b. The returned vector
// must have the same length as b, entry i being the derivative with respect
// to b[i].
type GradientFunc func(b *mat.VecDense) (*mat.VecDense, error)

// Gradient computes the analytic gradient of Loss, (X'Xb - X'y) / N.
//
// It is evaluated as -X'(y-Xb)/N, which is the same quantity with one
// matrix product fewer.
func Gradient(b, y mat.Vector, x mat.Matrix) (*mat.VecDense, error) {
	if err := checkShapes("gradient", b, y, x); err != nil {
		return nil, err
	}
	r := residual(b, y, x)
	g := mat.NewVecDense(b.Len(), nil)
	g.MulVec(x.T(), r)
	g.ScaleVec(-1/float64(y.Len()), g)
	return g, nil
}
