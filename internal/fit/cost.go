package fit

import (
	"math"

	"github.com/cwbudde/penreg/internal/model"
	"github.com/cwbudde/penreg/internal/penalty"
)

// CostFunc evaluates a parameter vector
type CostFunc func(params []float64) float64

// PenalizedCost returns the exact (unsmoothed) penalized objective of m at
// one grid point. Model errors evaluate to +Inf so that derivative-free
// searches simply avoid the point.
func PenalizedCost(m model.Scorable, spec penalty.Spec, point penalty.Point) CostFunc {
	pen := penalty.Smoothed{Kinds: spec.Kinds, Point: point}
	return func(params []float64) float64 {
		loss, err := m.Loss(params)
		if err != nil || math.IsNaN(loss) {
			return math.Inf(1)
		}
		return loss + pen.Exact(params)
	}
}
