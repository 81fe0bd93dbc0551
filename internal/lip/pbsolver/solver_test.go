package pbsolver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pickbatch/internal/lip"
)

func knapsack() (*lip.Model, []lip.Var) {
	m := lip.NewModel("knapsack")
	a := m.NewBinary("a")
	b := m.NewBinary("b")
	n := m.NewInteger("n", 0, 2)
	m.AddConstraint("weight", lip.Expr{}.Add(3, a).Add(4, b), lip.LessEqual, 5)
	m.AddConstraint("count", lip.Sum(a, b).Add(-1, n), lip.Equal, 0)
	m.Minimize(lip.Expr{}.Add(-2, a).Add(-3, b))
	return m, []lip.Var{a, b, n}
}

func TestSolveKnapsack(t *testing.T) {
	m, vars := knapsack()
	sol, err := New().Solve(context.Background(), m, lip.Params{})
	require.NoError(t, err)
	assert.Equal(t, lip.Optimal, sol.Status)
	assert.Equal(t, -3.0, sol.Objective)
	assert.Equal(t, 0.0, sol.Value(vars[0]))
	assert.Equal(t, 1.0, sol.Value(vars[1]))
	assert.Equal(t, 1.0, sol.Value(vars[2]))
}

func TestSolveIntegerBounds(t *testing.T) {
	m := lip.NewModel("bounds")
	x := m.NewInteger("x", 0, 5)
	m.Minimize(lip.Expr{}.Add(-1, x))
	sol, err := New().Solve(context.Background(), m, lip.Params{})
	require.NoError(t, err)
	assert.Equal(t, 5.0, sol.Value(x))

	m = lip.NewModel("shifted")
	x = m.NewInteger("x", 0, 5)
	y := m.NewInteger("y", 3, 4)
	m.AddConstraint("cap", lip.Sum(x, y), lip.LessEqual, 7)
	m.AddConstraint("half", lip.Sum(x), lip.GreaterEqual, 1.5)
	m.Minimize(lip.Expr{}.Add(-1, x).Add(1, y))
	sol, err = New().Solve(context.Background(), m, lip.Params{})
	require.NoError(t, err)
	assert.Equal(t, 4.0, sol.Value(x))
	assert.Equal(t, 3.0, sol.Value(y))
	assert.Equal(t, -1.0, sol.Objective)
	require.NoError(t, m.Check([]float64{sol.Value(x), sol.Value(y)}))
}

func TestSolveInfeasible(t *testing.T) {
	m := lip.NewModel("static")
	a := m.NewBinary("a")
	b := m.NewBinary("b")
	m.AddConstraint("three", lip.Sum(a, b), lip.GreaterEqual, 3)
	_, err := New().Solve(context.Background(), m, lip.Params{})
	require.ErrorIs(t, err, lip.ErrInfeasible)

	m = lip.NewModel("conflict")
	a = m.NewBinary("a")
	b = m.NewBinary("b")
	m.AddConstraint("one", lip.Sum(a, b), lip.Equal, 1)
	m.AddConstraint("two", lip.Sum(a, b), lip.GreaterEqual, 2)
	_, err = New().Solve(context.Background(), m, lip.Params{})
	require.ErrorIs(t, err, lip.ErrInfeasible)
}

func TestSolveWithHint(t *testing.T) {
	m, vars := knapsack()
	m.SetHint(vars[0], 0)
	m.SetHint(vars[1], 1)
	m.SetHint(vars[2], 1)
	sol, err := New().Solve(context.Background(), m, lip.Params{})
	require.NoError(t, err)
	assert.Equal(t, lip.Optimal, sol.Status)
	assert.Equal(t, -3.0, sol.Objective)
}

func TestSolveRejectsFractionalCoefficients(t *testing.T) {
	m := lip.NewModel("frac")
	a := m.NewBinary("a")
	m.AddConstraint("half", lip.Expr{}.Add(0.5, a), lip.LessEqual, 1)
	_, err := New().Solve(context.Background(), m, lip.Params{})
	require.ErrorIs(t, err, lip.ErrInvalidModel)
}

func TestSolveEmptyModel(t *testing.T) {
	sol, err := New().Solve(context.Background(), lip.NewModel("empty"), lip.Params{})
	require.NoError(t, err)
	assert.Equal(t, lip.Optimal, sol.Status)
	assert.Equal(t, 0.0, sol.Objective)
}

func TestSolveCancelled(t *testing.T) {
	m, _ := knapsack()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New().Solve(ctx, m, lip.Params{})
	require.ErrorIs(t, err, lip.ErrNoSolution)

	m, vars := knapsack()
	m.SetHint(vars[0], 1)
	m.SetHint(vars[1], 0)
	m.SetHint(vars[2], 1)
	sol, err := New().Solve(ctx, m, lip.Params{})
	require.NoError(t, err)
	assert.Equal(t, lip.Feasible, sol.Status)
	assert.Equal(t, -2.0, sol.Objective)
}
