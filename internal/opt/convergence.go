package opt

import (
	"log/slog"
	"math"

	"gonum.org/v1/gonum/optimize"
)

// ConvergenceConfig defines when an engine run counts as stalled
type ConvergenceConfig struct {
	// Enabled controls whether stall detection is active
	Enabled bool

	// Patience is the number of major iterations with no significant
	// improvement of the objective before stopping
	Patience int

	// Threshold is the minimum relative improvement required to count as progress
	// Relative improvement = (lastSignificant - objective) / |lastSignificant|
	Threshold float64
}

// DefaultConvergenceConfig returns sensible defaults for stall detection
func DefaultConvergenceConfig() ConvergenceConfig {
	return ConvergenceConfig{
		Enabled:   true,
		Patience:  20,
		Threshold: 1e-12,
	}
}

// StallConverger implements optimize.Converger by tracking the objective
// history and reporting convergence once Patience major iterations pass
// without a significant relative improvement.
type StallConverger struct {
	config          ConvergenceConfig
	history         []float64
	best            float64
	lastSignificant float64
	staleCount      int
}

var _ optimize.Converger = (*StallConverger)(nil)

// NewStallConverger creates a converger with the given config
func NewStallConverger(config ConvergenceConfig) *StallConverger {
	c := &StallConverger{config: config}
	c.Init(0)
	return c
}

// Init resets the converger at the start of a run.
func (c *StallConverger) Init(dim int) {
	c.history = c.history[:0]
	c.best = math.Inf(1)
	c.lastSignificant = math.Inf(1)
	c.staleCount = 0
}

// Converged records the objective at loc and returns FunctionConvergence
// when the run has stalled, NotTerminated otherwise.
func (c *StallConverger) Converged(loc *optimize.Location) optimize.Status {
	if c.Update(loc.F) {
		return optimize.FunctionConvergence
	}
	return optimize.NotTerminated
}

// Update records a new objective value and returns true if the run has stalled
func (c *StallConverger) Update(objective float64) bool {
	if !c.config.Enabled {
		return false
	}

	c.history = append(c.history, objective)
	if objective < c.best {
		c.best = objective
	}

	if len(c.history) == 1 {
		c.lastSignificant = objective
		return false
	}

	improvement := c.lastSignificant - objective
	if scale := math.Abs(c.lastSignificant); scale > 0 {
		improvement /= scale
	}

	if improvement > 0 && improvement >= c.config.Threshold {
		c.lastSignificant = objective
		c.staleCount = 0
		return false
	}

	c.staleCount++
	slog.Debug("No significant objective improvement",
		"objective", objective,
		"last_significant", c.lastSignificant,
		"relative_improvement", improvement,
		"stale_count", c.staleCount,
		"patience", c.config.Patience,
	)

	if c.staleCount >= c.config.Patience {
		slog.Debug("Engine stalled - stopping early",
			"stale_count", c.staleCount,
			"best_objective", c.best,
		)
		return true
	}
	return false
}

// Best returns the best objective seen so far
func (c *StallConverger) Best() float64 {
	return c.best
}

// History returns the full objective history
func (c *StallConverger) History() []float64 {
	return append([]float64{}, c.history...)
}

// StaleCount returns the current number of iterations without improvement
func (c *StallConverger) StaleCount() int {
	return c.staleCount
}
