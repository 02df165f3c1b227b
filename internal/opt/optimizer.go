package opt

// Optimizer is a derivative-free box-constrained search. It only sees the
// objective value, so it can minimize non-smooth penalized objectives as
// they are.
type Optimizer interface {
	// Run minimizes eval within [lower, upper] (one entry per dimension)
	// and returns the best point found and its objective value.
	Run(eval func([]float64) float64, lower, upper []float64) ([]float64, float64, error)
}
