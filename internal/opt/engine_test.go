package opt

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/cwbudde/penreg/internal/model"
	"github.com/cwbudde/penreg/internal/penalty"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// regressionData returns y = 1 + 2*x1 - 0.5*x2 + noise with an intercept column.
func regressionData(n int, seed int64) ([]float64, *mat.Dense) {
	rng := rand.New(rand.NewSource(seed))
	x := mat.NewDense(n, 3, nil)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		x1, x2 := rng.NormFloat64(), rng.NormFloat64()
		x.SetRow(i, []float64{1, x1, x2})
		y[i] = 1 + 2*x1 - 0.5*x2 + 0.3*rng.NormFloat64()
	}
	return y, x
}

// ridgeSolution solves (X'X/N + 2*lambda*D) b = X'y/N where D zeroes the intercept.
func ridgeSolution(t *testing.T, y []float64, x *mat.Dense, lambda float64) []float64 {
	t.Helper()
	n, p := x.Dims()

	var a mat.Dense
	a.Mul(x.T(), x)
	a.Scale(1/float64(n), &a)
	for j := 1; j < p; j++ {
		a.Set(j, j, a.At(j, j)+2*lambda)
	}

	rhs := mat.NewVecDense(p, nil)
	rhs.MulVec(x.T(), mat.NewVecDense(n, y))
	rhs.ScaleVec(1/float64(n), rhs)

	var b mat.VecDense
	require.NoError(t, b.SolveVec(&a, rhs))
	return b.RawVector().Data
}

func newProblem(t *testing.T, m model.Scorable, kind penalty.Kind, lambda float64) Problem {
	t.Helper()
	spec, err := penalty.ForDesign(m.NumParams(), kind, []int{0}, []float64{lambda}, nil)
	require.NoError(t, err)
	return Problem{
		Start:   make([]float64, m.NumParams()),
		Penalty: spec,
		Point:   spec.Grid()[0],
	}
}

func TestNewUnknownEngine(t *testing.T) {
	_, err := New("bfgs", DefaultConfig())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownEngine))
	assert.Equal(t, []string{"glmnet", "ista"}, Names())
}

func TestNewRejectsBadConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Smoothing = 0
	_, err := New("glmnet", cfg)
	assert.Error(t, err)
}

func TestEnginesMatchClosedForm(t *testing.T) {
	y, x := regressionData(200, 1)
	m, err := model.NewLeastSquares(y, x)
	require.NoError(t, err)

	tests := []struct {
		engine string
		kind   penalty.Kind
		lambda float64
	}{
		{"glmnet", penalty.Lasso, 0},
		{"glmnet", penalty.Ridge, 0.25},
		{"ista", penalty.Lasso, 0},
		{"ista", penalty.Ridge, 0.25},
	}

	for _, tt := range tests {
		t.Run(tt.engine+"/"+string(tt.kind), func(t *testing.T) {
			engine, err := New(tt.engine, DefaultConfig())
			require.NoError(t, err)
			assert.Equal(t, tt.engine, engine.Name())

			res, err := engine.Minimize(context.Background(), m, newProblem(t, m, tt.kind, tt.lambda))
			require.NoError(t, err)

			want := ridgeSolution(t, y, x, tt.lambda)
			assert.InDeltaSlice(t, want, res.Params, 1e-5)
			assert.GreaterOrEqual(t, res.Objective, res.Loss)
			assert.Equal(t, tt.lambda, res.Point.Lambda)
		})
	}
}

func TestNewtonLassoSatisfiesOptimality(t *testing.T) {
	y, x := regressionData(200, 2)
	m, err := model.NewLeastSquares(y, x)
	require.NoError(t, err)

	const lambda = 0.3
	res, err := NewNewton(DefaultConfig()).Minimize(context.Background(), m, newProblem(t, m, penalty.Lasso, lambda))
	require.NoError(t, err)

	g, err := m.Gradient(res.Params)
	require.NoError(t, err)

	assert.InDelta(t, 0, g[0], 1e-4, "intercept is unpenalized")
	for j := 1; j < len(g); j++ {
		if res.Params[j] == 0 {
			assert.LessOrEqual(t, math.Abs(g[j]), lambda+1e-4)
			continue
		}
		sign := math.Copysign(1, res.Params[j])
		assert.InDeltaf(t, 0, g[j]+lambda*sign, 1e-3, "subgradient of parameter %d", j)
	}
}

// kinkData is y = 1 + 2*x1 - x2 on a small grid where the lasso solution
// puts x2 exactly at zero for moderate lambda.
func kinkData() ([]float64, *mat.Dense) {
	const n = 20
	x := mat.NewDense(n, 3, nil)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		x1 := float64(i) / 10
		x2 := float64((i*i)%7) / 7
		x.SetRow(i, []float64{1, x1, x2})
		y[i] = 1 + 2*x1 - x2
	}
	return y, x
}

func TestEnginesAgreeOnLassoPath(t *testing.T) {
	y, x := kinkData()
	m, err := model.NewLeastSquares(y, x)
	require.NoError(t, err)

	for _, lambda := range []float64{0.01, 0.1, 0.5} {
		p := newProblem(t, m, penalty.Lasso, lambda)

		newton, err := NewNewton(DefaultConfig()).Minimize(context.Background(), m, p)
		require.NoError(t, err, "glmnet at lambda %g", lambda)
		grad, err := NewGradient(DefaultConfig()).Minimize(context.Background(), m, p)
		require.NoError(t, err, "ista at lambda %g", lambda)

		assert.InDeltaf(t, newton.Objective, grad.Objective, 1e-4, "objective at lambda %g", lambda)
		assert.InDeltaSlicef(t, newton.Params, grad.Params, 1e-2, "params at lambda %g", lambda)
	}

	res, err := NewGradient(DefaultConfig()).Minimize(context.Background(), m, newProblem(t, m, penalty.Lasso, 0.1))
	require.NoError(t, err)
	assert.Equal(t, 0.0, res.Params[2])
}

func TestNewtonLassoLargeLambdaZeroesSlopes(t *testing.T) {
	y, x := regressionData(100, 3)
	m, err := model.NewLeastSquares(y, x)
	require.NoError(t, err)

	res, err := NewNewton(DefaultConfig()).Minimize(context.Background(), m, newProblem(t, m, penalty.Lasso, 100))
	require.NoError(t, err)

	var mean float64
	for _, v := range y {
		mean += v
	}
	mean /= float64(len(y))

	assert.InDelta(t, mean, res.Params[0], 1e-4)
	assert.Equal(t, 0.0, res.Params[1])
	assert.Equal(t, 0.0, res.Params[2])
	assert.Equal(t, 2, res.Zeroed)
}

func TestNewtonUsesInitialHessian(t *testing.T) {
	y, x := regressionData(50, 4)
	m, err := model.NewLeastSquares(y, x)
	require.NoError(t, err)

	p := newProblem(t, m, penalty.Lasso, 0)
	p.InitialHessian, err = m.Hessian(p.Start, 1e-7)
	require.NoError(t, err)

	res, err := NewNewton(DefaultConfig()).Minimize(context.Background(), m, p)
	require.NoError(t, err)
	assert.InDeltaSlice(t, ridgeSolution(t, y, x, 0), res.Params, 1e-5)

	p.InitialHessian = mat.NewSymDense(2, nil)
	_, err = NewNewton(DefaultConfig()).Minimize(context.Background(), m, p)
	assert.ErrorIs(t, err, model.ErrShapeMismatch)
}

func TestEngineShapeMismatch(t *testing.T) {
	y, x := regressionData(20, 5)
	m, err := model.NewLeastSquares(y, x)
	require.NoError(t, err)

	p := newProblem(t, m, penalty.Lasso, 0.1)
	p.Start = []float64{0, 0}

	for _, e := range []Engine{NewNewton(DefaultConfig()), NewGradient(DefaultConfig())} {
		_, err := e.Minimize(context.Background(), m, p)
		assert.ErrorIs(t, err, model.ErrShapeMismatch, e.Name())
	}
}

func TestEngineRejectsInvalidPenalty(t *testing.T) {
	y, x := regressionData(20, 6)
	m, err := model.NewLeastSquares(y, x)
	require.NoError(t, err)

	p := newProblem(t, m, penalty.Lasso, 0.1)
	p.Penalty.Kinds = p.Penalty.Kinds[:2]

	_, err = NewGradient(DefaultConfig()).Minimize(context.Background(), m, p)
	assert.ErrorIs(t, err, penalty.ErrInvalidSpec)
}

func TestEngineHonoursCancellation(t *testing.T) {
	y, x := regressionData(50, 7)
	m, err := model.NewLeastSquares(y, x)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = NewGradient(DefaultConfig()).Minimize(ctx, m, newProblem(t, m, penalty.Lasso, 0))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEngineReportsIterations(t *testing.T) {
	y, x := regressionData(80, 8)
	m, err := model.NewLeastSquares(y, x)
	require.NoError(t, err)

	var seen []Iteration
	cfg := DefaultConfig()
	cfg.OnIteration = func(it Iteration) error {
		seen = append(seen, it)
		return nil
	}

	res, err := NewGradient(cfg).Minimize(context.Background(), m, newProblem(t, m, penalty.Ridge, 0.1))
	require.NoError(t, err)
	require.NotEmpty(t, seen)

	assert.GreaterOrEqual(t, res.Iterations, len(seen)-1)
	for i := 1; i < len(seen); i++ {
		assert.LessOrEqual(t, seen[i].Objective, seen[i-1].Objective)
	}
	assert.Len(t, seen[0].Params, 3)
	for _, it := range seen {
		assert.Equal(t, 0.1, it.Point.Lambda)
	}
}

func TestEngineObserverErrorAborts(t *testing.T) {
	y, x := regressionData(80, 9)
	m, err := model.NewLeastSquares(y, x)
	require.NoError(t, err)

	stop := errors.New("stop")
	cfg := DefaultConfig()
	cfg.OnIteration = func(Iteration) error { return stop }

	_, err = NewGradient(cfg).Minimize(context.Background(), m, newProblem(t, m, penalty.Ridge, 0.1))
	assert.ErrorIs(t, err, stop)
}
