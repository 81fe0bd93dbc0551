package backends

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pickbatch/internal/lip/highs"
	"pickbatch/internal/lip/pbsolver"
)

func TestNew(t *testing.T) {
	s, err := New(PB)
	require.NoError(t, err)
	assert.IsType(t, &pbsolver.Solver{}, s)

	s, err = New(HiGHS)
	require.NoError(t, err)
	assert.IsType(t, &highs.Solver{}, s)

	_, err = New("cplex")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "highs")
	assert.Equal(t, []string{"highs", "pb"}, Names())
}
