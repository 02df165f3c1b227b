package opt

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/cwbudde/mayfly"
)

// minMayflyPopulation is the smallest population mayfly v0.1.0 accepts.
const minMayflyPopulation = 20

// MayflyAdapter wraps the external Mayfly library to conform to our Optimizer interface
type MayflyAdapter struct {
	maxIters int
	popSize  int
	seed     int64
}

// NewMayfly creates a new Mayfly optimizer adapter
func NewMayfly(maxIters, popSize int, seed int64) *MayflyAdapter {
	if popSize < minMayflyPopulation {
		popSize = minMayflyPopulation
	}
	return &MayflyAdapter{
		maxIters: maxIters,
		popSize:  popSize,
		seed:     seed,
	}
}

// Run executes the Mayfly optimization using the external library.
// Mayfly uses scalar bounds, so the search box is the smallest cube
// containing [lower, upper].
func (m *MayflyAdapter) Run(eval func([]float64) float64, lower, upper []float64) ([]float64, float64, error) {
	dim := len(lower)
	if dim == 0 || len(upper) != dim {
		return nil, 0, fmt.Errorf("mayfly: bounds must be non-empty and of equal length (got %d and %d)", len(lower), len(upper))
	}

	lo, hi := math.Inf(1), math.Inf(-1)
	for i := range lower {
		lo = math.Min(lo, lower[i])
		hi = math.Max(hi, upper[i])
	}
	if !(lo < hi) {
		return nil, 0, fmt.Errorf("mayfly: empty search box [%g, %g]", lo, hi)
	}

	config := mayfly.NewDefaultConfig()
	config.ObjectiveFunc = eval
	config.ProblemSize = dim
	config.MaxIterations = m.maxIters
	config.NPop = m.popSize
	config.LowerBound = lo
	config.UpperBound = hi
	config.Rand = rand.New(rand.NewSource(m.seed))

	result, err := mayfly.Optimize(config)
	if err != nil {
		return nil, 0, fmt.Errorf("mayfly: %w", err)
	}

	best := make([]float64, dim)
	copy(best, result.GlobalBest.Position)
	return best, result.GlobalBest.Cost, nil
}
