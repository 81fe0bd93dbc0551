package lip

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func knapsack() (*Model, []Var) {
	m := NewModel("knapsack")
	a := m.NewBinary("pick[a]")
	b := m.NewBinary("pick[b]")
	n := m.NewInteger("count", 0, 2)
	m.AddConstraint("weight", Expr{}.Add(3, a).Add(4, b), LessEqual, 5)
	m.AddConstraint("count_def", Sum(a, b).Add(-1, n), Equal, 0)
	m.Minimize(Expr{}.Add(-2, a).Add(-3, b))
	return m, []Var{a, b, n}
}

func TestModelAccessors(t *testing.T) {
	m, vars := knapsack()
	require.Equal(t, 3, m.NumVars())
	require.Equal(t, 2, m.NumConstraints())
	assert.Equal(t, "pick[a]", m.VarName(vars[0]))
	assert.Equal(t, Binary, m.Kind(vars[0]))
	assert.Equal(t, Integer, m.Kind(vars[2]))
	lo, hi := m.Bounds(vars[2])
	assert.Equal(t, int64(0), lo)
	assert.Equal(t, int64(2), hi)
	assert.Equal(t, "v3", m.VarName(m.NewBinary("")))
}

func TestCheck(t *testing.T) {
	m, _ := knapsack()
	require.NoError(t, m.Check([]float64{0, 1, 1}))
	assert.Equal(t, -3.0, m.ObjectiveValue([]float64{0, 1, 1}))

	err := m.Check([]float64{1, 1, 2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "weight")

	err = m.Check([]float64{0.5, 0, 0})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not integral")

	require.Error(t, m.Check([]float64{0, 0}))
}

func TestHintedValues(t *testing.T) {
	m, vars := knapsack()
	m.SetHint(vars[0], 1)
	assert.Nil(t, m.HintedValues())
	m.SetHint(vars[1], 0)
	m.SetHint(vars[2], 1)
	assert.Equal(t, []float64{1, 0, 1}, m.HintedValues())
	h, ok := m.Hint(vars[2])
	assert.True(t, ok)
	assert.Equal(t, 1.0, h)
}

func TestValidate(t *testing.T) {
	m, vars := knapsack()
	require.NoError(t, m.Validate())

	m.SetHint(vars[2], 5)
	require.True(t, errors.Is(m.Validate(), ErrInvalidModel))

	m2 := NewModel("bad")
	m2.NewInteger("x", 3, 1)
	require.ErrorIs(t, m2.Validate(), ErrInvalidModel)

	m3 := NewModel("dangling")
	m3.Minimize(Sum(Var{idx: 4}))
	require.ErrorIs(t, m3.Validate(), ErrInvalidModel)
}

func TestWriteLP(t *testing.T) {
	m, _ := knapsack()
	var buf bytes.Buffer
	require.NoError(t, m.WriteLP(&buf))
	out := buf.String()

	for _, want := range []string{
		"Minimize\n obj: - 2 pick_a_ - 3 pick_b_\n",
		" weight: + 3 pick_a_ + 4 pick_b_ <= 5\n",
		" count_def: + 1 pick_a_ + 1 pick_b_ - 1 count = 0\n",
		" 0 <= count <= 2\n",
		"Binaries\n pick_a_ pick_b_\n",
		"Generals\n count\n",
	} {
		assert.Contains(t, out, want)
	}
	assert.True(t, strings.HasSuffix(out, "End\n"))
}
