package fit

import (
	"fmt"
	"math"
)

// Bounds defines the box searched for start values
type Bounds struct {
	Lower []float64
	Upper []float64
}

// NewBounds creates a box of the given radius around center
func NewBounds(center []float64, radius float64) (*Bounds, error) {
	if !(radius > 0) || math.IsInf(radius, 1) {
		return nil, fmt.Errorf("search radius must be finite and positive, got %g", radius)
	}

	lower := make([]float64, len(center))
	upper := make([]float64, len(center))
	for i, c := range center {
		lower[i] = c - radius
		upper[i] = c + radius
	}

	return &Bounds{
		Lower: lower,
		Upper: upper,
	}, nil
}

// Dim returns the number of parameters the box covers
func (b *Bounds) Dim() int {
	return len(b.Lower)
}

// ClampVector clamps all parameters in a vector
func (b *Bounds) ClampVector(data []float64) {
	for i := range data {
		data[i] = clamp(data[i], b.Lower[i], b.Upper[i])
	}
}

func clamp(val, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, val))
}
