package opt

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cwbudde/penreg/internal/model"
	"gonum.org/v1/gonum/optimize"
)

// Gradient is the "ista" engine. It only consumes loss and gradient
// evaluations (gonum's L-BFGS) and ignores any initial Hessian.
type Gradient struct {
	cfg Config
}

// NewGradient creates the gradient-only engine.
func NewGradient(cfg Config) *Gradient {
	return &Gradient{cfg: cfg}
}

func (e *Gradient) Name() string { return "ista" }

func (e *Gradient) Minimize(ctx context.Context, m model.Scorable, p Problem) (*Result, error) {
	o, err := newObjective(m, p, e.cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", e.Name(), err)
	}
	if p.InitialHessian != nil {
		slog.Debug("Ignoring initial Hessian", "engine", e.Name())
	}

	slog.Debug("Starting engine", "engine", e.Name(), "lambda", p.Point.Lambda, "theta", p.Point.Theta)

	return minimize(ctx, e.Name(), o, p, optimize.Problem{
		Func: o.Func,
		Grad: o.Grad,
	}, settings(ctx, e.cfg, p.Point), &optimize.LBFGS{}, e.cfg)
}
