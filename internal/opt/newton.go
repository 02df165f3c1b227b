package opt

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cwbudde/penreg/internal/model"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

// curvatureModel is implemented by models that can approximate their own Hessian.
type curvatureModel interface {
	Hessian(params []float64, eps float64) (*mat.SymDense, error)
}

// Newton is the "glmnet" engine. It runs gonum's modified Newton method with
// a fixed curvature model: the warm-start Hessian of the loss plus the exact
// curvature of the smoothed penalty at each iterate. For least squares the
// loss Hessian is constant, so the warm start is the exact curvature.
type Newton struct {
	cfg Config
}

// NewNewton creates the Newton-style engine.
func NewNewton(cfg Config) *Newton {
	return &Newton{cfg: cfg}
}

func (e *Newton) Name() string { return "glmnet" }

// Minimize fits m at p.Point. When p.InitialHessian is nil the curvature is
// approximated at p.Start.
func (e *Newton) Minimize(ctx context.Context, m model.Scorable, p Problem) (*Result, error) {
	o, err := newObjective(m, p, e.cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", e.Name(), err)
	}

	curvature := p.InitialHessian
	if curvature == nil {
		curvature, err = warmStart(m, p.Start, e.cfg.HessianStep)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", e.Name(), err)
		}
	} else if n := curvature.SymmetricDim(); n != m.NumParams() {
		return nil, fmt.Errorf("%s: %w", e.Name(), &model.ShapeError{Op: "engine", What: "initial hessian", Want: m.NumParams(), Got: n})
	}

	hess := func(dst *mat.SymDense, x []float64) {
		dst.CopySym(curvature)
		o.penalty.AddCurvature(dst, x)
	}

	// Seed the first iteration with the warm-start values.
	initLoc := &optimize.Location{
		F:        o.Func(p.Start),
		Gradient: make([]float64, len(p.Start)),
		Hessian:  mat.NewSymDense(len(p.Start), nil),
	}
	o.Grad(initLoc.Gradient, p.Start)
	hess(initLoc.Hessian, p.Start)
	if o.err != nil {
		return nil, fmt.Errorf("%s: %w", e.Name(), o.err)
	}

	s := settings(ctx, e.cfg, p.Point)
	s.InitValues = initLoc

	slog.Debug("Starting engine", "engine", e.Name(), "lambda", p.Point.Lambda, "theta", p.Point.Theta, "initial_objective", initLoc.F)

	return minimize(ctx, e.Name(), o, p, optimize.Problem{
		Func: o.Func,
		Grad: o.Grad,
		Hess: hess,
	}, s, &optimize.Newton{}, e.cfg)
}

// warmStart approximates the loss Hessian at start, preferring the model's
// own approximation when it has one.
func warmStart(m model.Scorable, start []float64, eps float64) (*mat.SymDense, error) {
	if cm, ok := m.(curvatureModel); ok {
		return cm.Hessian(start, eps)
	}
	return model.ScorableHessian(m, start, eps)
}
