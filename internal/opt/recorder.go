package opt

import (
	"context"

	"github.com/cwbudde/penreg/internal/penalty"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"
)

// Iteration summarizes one major iteration of an engine.
type Iteration struct {
	Point        penalty.Point
	Index        int
	Objective    float64
	GradientNorm float64
	Params       []float64
}

// IterationFunc observes major iterations. Returning an error aborts the run.
type IterationFunc func(Iteration) error

// recorder implements optimize.Recorder. It stops the run when ctx is done
// and forwards major iterations to an optional observer.
type recorder struct {
	ctx     context.Context
	point   penalty.Point
	observe IterationFunc
}

var _ optimize.Recorder = (*recorder)(nil)

func (r *recorder) Init() error {
	return r.ctx.Err()
}

func (r *recorder) Record(loc *optimize.Location, op optimize.Operation, stats *optimize.Stats) error {
	if op != optimize.MajorIteration {
		return nil
	}
	if err := r.ctx.Err(); err != nil {
		return err
	}
	if r.observe == nil {
		return nil
	}

	var norm float64
	if loc.Gradient != nil {
		norm = floats.Norm(loc.Gradient, 2)
	}
	return r.observe(Iteration{
		Point:        r.point,
		Index:        stats.MajorIterations,
		Objective:    loc.F,
		GradientNorm: norm,
		Params:       append([]float64(nil), loc.X...),
	})
}
