// Package fit drives a penalized regression fit: it computes the warm-start
// Hessian once, optionally searches for start values, and runs an engine
// over every point of the penalty grid.
package fit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cwbudde/penreg/internal/model"
	"github.com/cwbudde/penreg/internal/opt"
	"github.com/cwbudde/penreg/internal/penalty"
	"github.com/cwbudde/penreg/internal/store"
	"gonum.org/v1/gonum/mat"
)

// Model is a Scorable that can approximate its own curvature.
type Model interface {
	model.Scorable
	Hessian(params []float64, eps float64) (*mat.SymDense, error)
}

// Config holds the settings of a fit
type Config struct {
	// Start holds the initial parameters; nil means all zeros.
	Start []float64

	// HessianStep is the finite-difference step of the warm-start Hessian.
	HessianStep float64

	// GlobalSearch enables a derivative-free start-value search before the
	// first grid point.
	GlobalSearch bool

	// SearchRadius is the half-width of the search box around Start.
	SearchRadius float64
}

// DefaultConfig returns sensible defaults for a fit
func DefaultConfig() Config {
	return Config{
		HessianStep:  1e-7,
		SearchRadius: 10,
	}
}

// Validate checks the config against a model with p parameters
func (c Config) Validate(p int) error {
	if c.Start != nil && len(c.Start) != p {
		return &model.ShapeError{Op: "fit", What: "start values", Want: p, Got: len(c.Start)}
	}
	if !(c.HessianStep > 0) {
		return &model.StepSizeError{Eps: c.HessianStep}
	}
	if c.GlobalSearch && !(c.SearchRadius > 0) {
		return fmt.Errorf("search radius must be positive, got %g", c.SearchRadius)
	}
	return nil
}

// OptimizationResult holds the output of a fit over the penalty grid
type OptimizationResult struct {
	Engine         string
	Start          []float64
	InitialLoss    float64
	InitialHessian *mat.SymDense
	Fits           []opt.Result
	Elapsed        time.Duration
}

// Final returns the fit of the last grid point.
func (r *OptimizationResult) Final() opt.Result {
	return r.Fits[len(r.Fits)-1]
}

// Summaries converts the fits for persistence.
func (r *OptimizationResult) Summaries() []store.FitSummary {
	out := make([]store.FitSummary, len(r.Fits))
	for i, res := range r.Fits {
		out[i] = store.FitSummary{
			Lambda:     res.Point.Lambda,
			Theta:      res.Point.Theta,
			Params:     res.Params,
			Loss:       res.Loss,
			Objective:  res.Objective,
			Iterations: res.Iterations,
			Status:     res.Status,
		}
	}
	return out
}

// Run fits m for every point of spec's grid in order. Each point is
// warm-started from the previous solution. Any failure aborts the run;
// no partial result is returned.
func Run(ctx context.Context, m Model, engine opt.Engine, search opt.Optimizer, spec penalty.Spec, cfg Config) (*OptimizationResult, error) {
	p := m.NumParams()
	if err := cfg.Validate(p); err != nil {
		return nil, err
	}
	if err := spec.Validate(p); err != nil {
		return nil, err
	}

	begin := time.Now()
	grid := spec.Grid()

	start := make([]float64, p)
	copy(start, cfg.Start)

	if cfg.GlobalSearch {
		if search == nil {
			return nil, fmt.Errorf("global search requested without an optimizer")
		}
		found, err := SearchStart(m, search, spec, grid[0], start, cfg.SearchRadius)
		if err != nil {
			return nil, err
		}
		start = found
	}

	initialLoss, err := m.Loss(start)
	if err != nil {
		return nil, fmt.Errorf("initial loss: %w", err)
	}

	hessian, err := m.Hessian(start, cfg.HessianStep)
	if err != nil {
		return nil, fmt.Errorf("warm-start hessian: %w", err)
	}

	slog.Info("Starting fit",
		"engine", engine.Name(),
		"params", p,
		"grid_points", len(grid),
		"initial_loss", initialLoss,
	)

	result := &OptimizationResult{
		Engine:         engine.Name(),
		Start:          append([]float64(nil), start...),
		InitialLoss:    initialLoss,
		InitialHessian: hessian,
		Fits:           make([]opt.Result, 0, len(grid)),
	}

	current := start
	for i, point := range grid {
		res, err := engine.Minimize(ctx, m, opt.Problem{
			Start:          current,
			Penalty:        spec,
			Point:          point,
			InitialHessian: hessian,
		})
		if err != nil {
			return nil, fmt.Errorf("grid point %d (lambda=%g, theta=%g): %w", i, point.Lambda, point.Theta, err)
		}

		slog.Info("Grid point complete",
			"index", i,
			"lambda", point.Lambda,
			"theta", point.Theta,
			"loss", res.Loss,
			"objective", res.Objective,
			"zeroed", res.Zeroed,
			"iterations", res.Iterations,
			"status", res.Status,
		)

		result.Fits = append(result.Fits, *res)
		current = res.Params
	}

	result.Elapsed = time.Since(begin)
	slog.Info("Fit complete", "engine", engine.Name(), "elapsed", result.Elapsed)
	return result, nil
}

// SearchStart runs a derivative-free search for start values inside a box
// of the given radius around center, scoring points by the exact penalized
// objective at point.
func SearchStart(m model.Scorable, search opt.Optimizer, spec penalty.Spec, point penalty.Point, center []float64, radius float64) ([]float64, error) {
	bounds, err := NewBounds(center, radius)
	if err != nil {
		return nil, err
	}

	cost := PenalizedCost(m, spec, point)
	best, bestCost, err := search.Run(cost, bounds.Lower, bounds.Upper)
	if err != nil {
		return nil, fmt.Errorf("start search: %w", err)
	}
	if len(best) != bounds.Dim() {
		return nil, &model.ShapeError{Op: "start search", What: "result", Want: bounds.Dim(), Got: len(best)}
	}

	// Mayfly only supports a cube, which can exceed the requested box.
	bounds.ClampVector(best)
	bestCost = cost(best)

	centerCost := cost(center)
	if centerCost <= bestCost {
		slog.Info("Start search did not improve on the initial values", "initial_cost", centerCost, "search_cost", bestCost)
		return append([]float64(nil), center...), nil
	}

	slog.Info("Start search complete", "initial_cost", centerCost, "search_cost", bestCost)
	return best, nil
}
