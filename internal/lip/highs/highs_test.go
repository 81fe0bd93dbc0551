//go:build highs

package highs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pickbatch/internal/lip"
)

func TestSolveKnapsack(t *testing.T) {
	m := lip.NewModel("knapsack")
	a := m.NewBinary("a")
	b := m.NewBinary("b")
	n := m.NewInteger("n", 0, 2)
	m.AddConstraint("weight", lip.Expr{}.Add(3, a).Add(4, b), lip.LessEqual, 5)
	m.AddConstraint("count", lip.Sum(a, b).Add(-1, n), lip.Equal, 0)
	m.Minimize(lip.Expr{}.Add(-2, a).Add(-3, b))

	sol, err := New().Solve(context.Background(), m, lip.Params{TimeLimit: 10 * time.Second})
	require.NoError(t, err)
	assert.Equal(t, lip.Optimal, sol.Status)
	assert.InDelta(t, -3.0, sol.Objective, 1e-6)
	assert.InDelta(t, 1.0, sol.Value(b), 1e-6)
	assert.InDelta(t, 1.0, sol.Value(n), 1e-6)
}

func TestSolveInfeasible(t *testing.T) {
	m := lip.NewModel("conflict")
	a := m.NewBinary("a")
	b := m.NewBinary("b")
	m.AddConstraint("one", lip.Sum(a, b), lip.Equal, 1)
	m.AddConstraint("two", lip.Sum(a, b), lip.GreaterEqual, 2)
	_, err := New().Solve(context.Background(), m, lip.Params{TimeLimit: 10 * time.Second})
	require.Error(t, err)
}
