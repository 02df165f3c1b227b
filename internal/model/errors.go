package model

import "fmt"

// ErrShapeMismatch is returned when parameters, response and design matrix
// have inconsistent dimensions. Use errors.Is(err, ErrShapeMismatch).
var ErrShapeMismatch = &ShapeError{}

// ErrInvalidStepSize is returned when a Hessian approximation is requested
// with a step size that is not a finite positive number.
var ErrInvalidStepSize = &StepSizeError{}

// ShapeError describes a dimension mismatch between the inputs of an operation.
type ShapeError struct {
	Op   string // operation that rejected its inputs
	What string // which dimension disagreed
	Want int
	Got  int
}

func (e *ShapeError) Error() string {
	if e.Op == "" {
		return "shape mismatch"
	}
	return fmt.Sprintf("%s: shape mismatch: %s: want %d, got %d", e.Op, e.What, e.Want, e.Got)
}

func (e *ShapeError) Is(target error) bool {
	_, ok := target.(*ShapeError)
	return ok
}

// StepSizeError reports a rejected finite-difference step size.
type StepSizeError struct {
	Eps float64
}

func (e *StepSizeError) Error() string {
	return fmt.Sprintf("invalid step size %g: must be finite and positive", e.Eps)
}

func (e *StepSizeError) Is(target error) bool {
	_, ok := target.(*StepSizeError)
	return ok
}
