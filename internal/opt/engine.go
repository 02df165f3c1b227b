// Package opt adapts third-party optimization libraries to the narrow
// contract a model exposes (loss and gradient of a parameter vector).
//
// Two penalized engines are available by name: "glmnet", a Newton-style
// engine that takes a warm-start Hessian, and "ista", a gradient-only
// engine. Both are backed by gonum/optimize. A derivative-free Optimizer
// backed by Mayfly is used for global start-value search.
package opt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/cwbudde/penreg/internal/model"
	"github.com/cwbudde/penreg/internal/penalty"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

// Engine minimizes a penalized model objective.
type Engine interface {
	// Name returns the token the engine is selected by.
	Name() string

	// Minimize fits m for a single point of the penalty grid.
	Minimize(ctx context.Context, m model.Scorable, p Problem) (*Result, error)
}

// Problem is the input of one engine run.
type Problem struct {
	Start   []float64
	Penalty penalty.Spec
	Point   penalty.Point

	// InitialHessian is an optional curvature estimate of the unpenalized
	// loss. Only Newton-style engines use it.
	InitialHessian *mat.SymDense
}

// Result is the outcome of one engine run.
type Result struct {
	Params      []float64     `json:"params"`
	Point       penalty.Point `json:"point"`
	Loss        float64       `json:"loss"`
	Objective   float64       `json:"objective"`
	Zeroed      int           `json:"zeroed"`
	Iterations  int           `json:"iterations"`
	Evaluations int           `json:"evaluations"`
	Status      string        `json:"status"`
}

// Config holds the settings shared by all engines.
type Config struct {
	// Smoothing is the pseudo-Huber delta used for absolute-value terms.
	Smoothing float64

	// ZeroThreshold is the magnitude at or below which parameters with a
	// sparse penalty are reported as exactly zero.
	ZeroThreshold float64

	// GradientThreshold stops a run once the gradient norm drops below it.
	GradientThreshold float64

	// MaxIterations bounds the number of major iterations (0 = unlimited).
	MaxIterations int

	// HessianStep is the finite-difference step used when a Newton-style
	// engine has to compute its own curvature.
	HessianStep float64

	Convergence ConvergenceConfig

	// OnIteration, if set, observes every major iteration.
	OnIteration IterationFunc
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		Smoothing:         1e-5,
		ZeroThreshold:     1e-4,
		GradientThreshold: 1e-7,
		MaxIterations:     1000,
		HessianStep:       1e-5,
		Convergence:       DefaultConvergenceConfig(),
	}
}

// Validate checks the config for values no engine can work with.
func (c Config) Validate() error {
	if !(c.Smoothing > 0) {
		return fmt.Errorf("smoothing must be positive, got %g", c.Smoothing)
	}
	if c.ZeroThreshold < 0 {
		return fmt.Errorf("zero threshold must be non-negative, got %g", c.ZeroThreshold)
	}
	if c.GradientThreshold < 0 {
		return fmt.Errorf("gradient threshold must be non-negative, got %g", c.GradientThreshold)
	}
	if c.MaxIterations < 0 {
		return fmt.Errorf("max iterations must be non-negative, got %d", c.MaxIterations)
	}
	if !(c.HessianStep > 0) {
		return fmt.Errorf("hessian step must be positive, got %g", c.HessianStep)
	}
	return nil
}

// ErrUnknownEngine is returned by New for an unrecognized token.
var ErrUnknownEngine = errors.New("unknown optimizer")

var registry = map[string]func(Config) Engine{
	"glmnet": func(c Config) Engine { return NewNewton(c) },
	"ista":   func(c Config) Engine { return NewGradient(c) },
}

// Names returns the recognized engine tokens in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New returns the engine registered under name.
func New(name string, cfg Config) (Engine, error) {
	ctor, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w %q (available: %s)", ErrUnknownEngine, name, strings.Join(Names(), ", "))
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("engine config: %w", err)
	}
	return ctor(cfg), nil
}

// objective is the smoothed penalized objective of a model. Model errors
// cannot pass through gonum's callbacks, so the first one is kept in err
// and the callbacks return NaN from then on.
type objective struct {
	model   model.Scorable
	penalty penalty.Smoothed
	err     error
}

func newObjective(m model.Scorable, p Problem, cfg Config) (*objective, error) {
	n := m.NumParams()
	if len(p.Start) != n {
		return nil, &model.ShapeError{Op: "engine", What: "start values", Want: n, Got: len(p.Start)}
	}
	if err := p.Penalty.Validate(n); err != nil {
		return nil, err
	}
	return &objective{
		model: m,
		penalty: penalty.Smoothed{
			Kinds: p.Penalty.Kinds,
			Point: p.Point,
			Delta: cfg.Smoothing,
		},
	}, nil
}

func (o *objective) fail(err error) {
	if o.err == nil {
		o.err = err
	}
}

func (o *objective) Func(x []float64) float64 {
	loss, err := o.model.Loss(x)
	if err != nil {
		o.fail(err)
		return math.NaN()
	}
	return loss + o.penalty.Value(x)
}

func (o *objective) Grad(grad, x []float64) {
	g, err := o.model.Gradient(x)
	if err != nil {
		o.fail(err)
		for i := range grad {
			grad[i] = math.NaN()
		}
		return
	}
	copy(grad, g)
	o.penalty.AddGradient(grad, x)
}

// settings builds the gonum settings shared by all engines.
func settings(ctx context.Context, cfg Config, point penalty.Point) *optimize.Settings {
	return &optimize.Settings{
		GradientThreshold: cfg.GradientThreshold,
		MajorIterations:   cfg.MaxIterations,
		Converger:         NewStallConverger(cfg.Convergence),
		Recorder:          &recorder{ctx: ctx, point: point, observe: cfg.OnIteration},
	}
}

// minimize runs method on o and turns the gonum result into a Result.
func minimize(ctx context.Context, name string, o *objective, p Problem, problem optimize.Problem, s *optimize.Settings, method optimize.Method, cfg Config) (*Result, error) {
	res, err := optimize.Minimize(problem, p.Start, s, method)
	if o.err != nil {
		return nil, fmt.Errorf("%s: %w", name, o.err)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if err != nil {
		// At a lasso kink the smoothed objective is too flat for the line
		// search; the best location found so far is still the minimizer.
		if !errors.Is(err, optimize.ErrLinesearcherFailure) || res == nil || len(res.X) != len(p.Start) {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		slog.Debug("Line search stalled, keeping best location", "engine", name, "lambda", p.Point.Lambda, "objective", res.F)
	}

	params := append([]float64(nil), res.X...)
	zeroed := o.penalty.Sparsify(params, cfg.ZeroThreshold)

	loss, err := o.model.Loss(params)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	return &Result{
		Params:      params,
		Point:       p.Point,
		Loss:        loss,
		Objective:   loss + o.penalty.Exact(params),
		Zeroed:      zeroed,
		Iterations:  res.Stats.MajorIterations,
		Evaluations: res.Stats.FuncEvaluations,
		Status:      res.Status.String(),
	}, nil
}
