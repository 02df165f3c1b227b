package opt

import (
	"math"
	"testing"
)

// shiftedQuadratic is a separable least-squares surface with its minimum
// at center.
func shiftedQuadratic(center []float64) func([]float64) float64 {
	return func(b []float64) float64 {
		var loss float64
		for i, v := range b {
			d := v - center[i]
			loss += d * d
		}
		return loss / 2
	}
}

func TestMayflyAdapterFindsStartValues(t *testing.T) {
	center := []float64{1, -2, 0.5}
	lower := []float64{-10, -10, -10}
	upper := []float64{10, 10, 10}

	best, cost, err := NewMayfly(100, 20, 42).Run(shiftedQuadratic(center), lower, upper)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(best) != len(center) {
		t.Fatalf("Expected %d parameters, got %d", len(center), len(best))
	}

	// A start value only needs to land in the right basin.
	if cost > 0.1 {
		t.Errorf("Expected cost near 0, got %f", cost)
	}
	for i, v := range best {
		if math.Abs(v-center[i]) > 1.0 {
			t.Errorf("Parameter %d = %f, expected near %f", i, v, center[i])
		}
	}
}

func TestMayflyAdapterDeterministic(t *testing.T) {
	eval := shiftedQuadratic([]float64{0.3, -0.7})
	lower := []float64{-5, -5}
	upper := []float64{5, 5}

	best1, cost1, err := NewMayfly(50, 20, 123).Run(eval, lower, upper)
	if err != nil {
		t.Fatal(err)
	}
	best2, cost2, err := NewMayfly(50, 20, 123).Run(eval, lower, upper)
	if err != nil {
		t.Fatal(err)
	}

	if cost1 != cost2 || best1[0] != best2[0] || best1[1] != best2[1] {
		t.Errorf("Same seed gave different results: %v (%f) vs %v (%f)", best1, cost1, best2, cost2)
	}
}

func TestNewMayflyRaisesSmallPopulation(t *testing.T) {
	if m := NewMayfly(10, 5, 1); m.popSize != minMayflyPopulation {
		t.Errorf("popSize = %d, want %d", m.popSize, minMayflyPopulation)
	}
}

func TestMayflyAdapterRejectsBadBounds(t *testing.T) {
	m := NewMayfly(10, 5, 1)
	eval := shiftedQuadratic([]float64{0, 0})
	if _, _, err := m.Run(eval, nil, nil); err == nil {
		t.Error("Expected error for empty bounds")
	}
	if _, _, err := m.Run(eval, []float64{1}, []float64{1}); err == nil {
		t.Error("Expected error for empty search box")
	}
	if _, _, err := m.Run(eval, []float64{0, 0}, []float64{1}); err == nil {
		t.Error("Expected error for mismatched bounds")
	}
}
