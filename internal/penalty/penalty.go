// Package penalty describes which parameters an optimization engine should
// penalize, and how. The model packages never interpret it.
package penalty

import (
	"fmt"
	"math"
	"strings"
)

// Kind tags the penalty applied to a single parameter.
type Kind string

const (
	None       Kind = "none"
	Lasso      Kind = "lasso"
	Ridge      Kind = "ridge"
	ElasticNet Kind = "elasticNet"
)

// ParseKind converts a user supplied tag to a Kind. Matching is case-insensitive.
func ParseKind(s string) (Kind, error) {
	for _, k := range []Kind{None, Lasso, Ridge, ElasticNet} {
		if strings.EqualFold(s, string(k)) {
			return k, nil
		}
	}
	return "", &SpecError{Reason: fmt.Sprintf("unknown penalty kind %q", s)}
}

// Sparse reports whether the kind has an absolute-value term that can set
// parameters exactly to zero.
func (k Kind) Sparse() bool {
	return k == Lasso || k == ElasticNet
}

// Spec is the penalty specification handed to an engine: one Kind per
// parameter, plus the grid of penalty strengths (Lambdas) and shape
// parameters (Thetas). For ElasticNet, theta is the lasso share of the mix.
type Spec struct {
	Kinds   []Kind
	Lambdas []float64
	Thetas  []float64
}

// ErrInvalidSpec matches any SpecError.
var ErrInvalidSpec = &SpecError{}

// SpecError describes why a Spec was rejected.
type SpecError struct {
	Reason string
}

func (e *SpecError) Error() string {
	if e.Reason == "" {
		return "invalid penalty specification"
	}
	return "invalid penalty specification: " + e.Reason
}

func (e *SpecError) Is(target error) bool {
	_, ok := target.(*SpecError)
	return ok
}

// ForDesign builds a Spec for p parameters where every index listed in
// unpenalized gets None and all others get kind. The usual regression setup
// passes unpenalized = []int{0} for the intercept column.
func ForDesign(p int, kind Kind, unpenalized []int, lambdas, thetas []float64) (Spec, error) {
	if p <= 0 {
		return Spec{}, &SpecError{Reason: "no parameters"}
	}
	kinds := make([]Kind, p)
	for i := range kinds {
		kinds[i] = kind
	}
	for _, idx := range unpenalized {
		if idx < 0 || idx >= p {
			return Spec{}, &SpecError{Reason: fmt.Sprintf("unpenalized index %d out of range [0,%d)", idx, p)}
		}
		kinds[idx] = None
	}

	spec := Spec{
		Kinds:   kinds,
		Lambdas: append([]float64(nil), lambdas...),
		Thetas:  append([]float64(nil), thetas...),
	}
	if len(spec.Thetas) == 0 {
		spec.Thetas = []float64{0}
	}
	if err := spec.Validate(p); err != nil {
		return Spec{}, err
	}
	return spec, nil
}

// Validate checks the spec against a parameter vector of length p.
func (s Spec) Validate(p int) error {
	if len(s.Kinds) != p {
		return &SpecError{Reason: fmt.Sprintf("%d penalty tags for %d parameters", len(s.Kinds), p)}
	}
	if len(s.Lambdas) == 0 {
		return &SpecError{Reason: "no penalty strengths"}
	}
	if len(s.Thetas) == 0 {
		return &SpecError{Reason: "no shape parameters"}
	}

	mixing := false
	for i, k := range s.Kinds {
		switch k {
		case None, Lasso, Ridge:
		case ElasticNet:
			mixing = true
		default:
			return &SpecError{Reason: fmt.Sprintf("parameter %d: unknown penalty kind %q", i, k)}
		}
	}
	for _, l := range s.Lambdas {
		if math.IsNaN(l) || math.IsInf(l, 0) || l < 0 {
			return &SpecError{Reason: fmt.Sprintf("penalty strength %g must be finite and non-negative", l)}
		}
	}
	for _, th := range s.Thetas {
		if math.IsNaN(th) || math.IsInf(th, 0) {
			return &SpecError{Reason: fmt.Sprintf("shape parameter %g must be finite", th)}
		}
		if mixing && (th < 0 || th > 1) {
			return &SpecError{Reason: fmt.Sprintf("elastic net mixing %g outside [0,1]", th)}
		}
	}
	return nil
}

// Grid returns every (lambda, theta) combination in evaluation order:
// thetas in the outer loop, lambdas in the inner loop.
func (s Spec) Grid() []Point {
	points := make([]Point, 0, len(s.Lambdas)*len(s.Thetas))
	for _, th := range s.Thetas {
		for _, l := range s.Lambdas {
			points = append(points, Point{Lambda: l, Theta: th})
		}
	}
	return points
}

// Point is one (lambda, theta) pair of the tuning grid.
type Point struct {
	Lambda float64 `json:"lambda"`
	Theta  float64 `json:"theta"`
}
