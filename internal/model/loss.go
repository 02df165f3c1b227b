package model

import "gonum.org/v1/gonum/mat"

// checkShapes verifies that X is len(y)×len(b).
func checkShapes(op string, b, y mat.Vector, x mat.Matrix) error {
	rows, cols := x.Dims()
	if cols != b.Len() {
		return &ShapeError{Op: op, What: "design columns vs parameters", Want: cols, Got: b.Len()}
	}
	if rows != y.Len() {
		return &ShapeError{Op: op, What: "design rows vs response", Want: rows, Got: y.Len()}
	}
	if rows == 0 {
		return &ShapeError{Op: op, What: "sample size", Want: 1, Got: 0}
	}
	return nil
}

// residual returns y - X*b.
func residual(b, y mat.Vector, x mat.Matrix) *mat.VecDense {
	r := mat.NewVecDense(y.Len(), nil)
	r.MulVec(x, b)
	r.SubVec(y, r)
	return r
}

// Loss computes the scaled sum of squared errors (y-Xb)'(y-Xb) / (2N).
//
// The 1/(2N) factor matches glmnet-style packages so that penalty strengths
// are comparable across sample sizes.
func Loss(b, y mat.Vector, x mat.Matrix) (float64, error) {
	if err := checkShapes("loss", b, y, x); err != nil {
		return 0, err
	}
	r := residual(b, y, x)
	return mat.Dot(r, r) / (2 * float64(y.Len())), nil
}
