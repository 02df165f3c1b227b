package penalty

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Smoothed evaluates a Spec at one grid point with the absolute value
// replaced by the pseudo-Huber function sqrt(b^2 + delta^2) - delta, so that
// smooth optimizers can consume it. Delta must be positive.
type Smoothed struct {
	Kinds []Kind
	Point Point
	Delta float64
}

// weights returns the lasso and ridge coefficients for kind k.
func (s Smoothed) weights(k Kind) (l1, l2 float64) {
	lambda := s.Point.Lambda
	switch k {
	case Lasso:
		return lambda, 0
	case Ridge:
		return 0, lambda
	case ElasticNet:
		return lambda * s.Point.Theta, lambda * (1 - s.Point.Theta)
	}
	return 0, 0
}

// Value returns the smoothed penalty at b.
func (s Smoothed) Value(b []float64) float64 {
	var total float64
	for i, k := range s.Kinds {
		l1, l2 := s.weights(k)
		if l1 != 0 {
			total += l1 * (math.Hypot(b[i], s.Delta) - s.Delta)
		}
		total += l2 * b[i] * b[i]
	}
	return total
}

// Exact returns the unsmoothed penalty at b.
func (s Smoothed) Exact(b []float64) float64 {
	var total float64
	for i, k := range s.Kinds {
		l1, l2 := s.weights(k)
		total += l1*math.Abs(b[i]) + l2*b[i]*b[i]
	}
	return total
}

// AddGradient adds the gradient of Value at b to grad.
func (s Smoothed) AddGradient(grad, b []float64) {
	for i, k := range s.Kinds {
		l1, l2 := s.weights(k)
		if l1 != 0 {
			grad[i] += l1 * b[i] / math.Hypot(b[i], s.Delta)
		}
		grad[i] += 2 * l2 * b[i]
	}
}

// AddCurvature adds the (diagonal) Hessian of Value at b to hess.
func (s Smoothed) AddCurvature(hess *mat.SymDense, b []float64) {
	for i, k := range s.Kinds {
		l1, l2 := s.weights(k)
		var d float64
		if l1 != 0 {
			r := math.Hypot(b[i], s.Delta)
			d += l1 * s.Delta * s.Delta / (r * r * r)
		}
		d += 2 * l2
		if d != 0 {
			hess.SetSym(i, i, hess.At(i, i)+d)
		}
	}
}

// Sparsify sets parameters with a sparse penalty and magnitude at or below
// threshold to exactly zero. It returns the number of zeroed parameters.
func (s Smoothed) Sparsify(b []float64, threshold float64) int {
	zeroed := 0
	for i, k := range s.Kinds {
		if l1, _ := s.weights(k); l1 > 0 && b[i] != 0 && math.Abs(b[i]) <= threshold {
			b[i] = 0
			zeroed++
		}
	}
	return zeroed
}
