package similarity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectRepresentatives(t *testing.T) {
	m := mustMatrix(t, [][]float64{{0}, {10}, {1}, {11}, {50}})
	chunks := []string{"a0", "b0", "a1", "b1", "stray"}

	reps, outliers, err := SelectRepresentatives(chunks, []int{1, 0, 1, 0, -1}, m, map[int]int{0: 3, 1: 2})
	require.NoError(t, err)

	// Ascending label order, not first-seen order.
	assert.Equal(t, []string{"b1", "a1"}, reps)
	assert.Equal(t, []string{"OUTLIER: stray"}, outliers)
}

func TestSelectRepresentatives_Empty(t *testing.T) {
	reps, outliers, err := SelectRepresentatives(nil, nil, Matrix{}, nil)

	require.NoError(t, err)
	assert.Empty(t, reps)
	assert.Empty(t, outliers)
}

func TestSelectRepresentatives_AllNoise(t *testing.T) {
	m := mustMatrix(t, farApart)

	reps, outliers, err := SelectRepresentatives([]string{"x", "y", "z"}, []int{-1, -1, -1}, m, map[int]int{})
	require.NoError(t, err)

	assert.Empty(t, reps)
	assert.Equal(t, []string{"OUTLIER: x", "OUTLIER: y", "OUTLIER: z"}, outliers)
}

func TestSelectRepresentatives_TieGoesToFirstMember(t *testing.T) {
	m := mustMatrix(t, [][]float64{{0}, {0}, {5}})

	reps, _, err := SelectRepresentatives([]string{"first", "second", "other"}, []int{0, 0, -1}, m, map[int]int{0: 1})
	require.NoError(t, err)

	assert.Equal(t, []string{"first"}, reps)
}

func TestSelectRepresentatives_LengthMismatch(t *testing.T) {
	m := mustMatrix(t, nearIdentical)

	_, _, err := SelectRepresentatives([]string{"a", "b"}, []int{0, 0, 0}, m, map[int]int{0: 1})
	assert.ErrorIs(t, err, ErrLengthMismatch)

	_, _, err = SelectRepresentatives([]string{"a", "b"}, []int{0, 0}, m, map[int]int{0: 1})
	assert.ErrorIs(t, err, ErrLengthMismatch)
}

func TestSelectRepresentatives_BadMedoid(t *testing.T) {
	m := mustMatrix(t, nearIdentical)
	chunks := []string{"a", "b", "c"}

	_, _, err := SelectRepresentatives(chunks, []int{0, 0, 0}, m, map[int]int{})
	assert.Error(t, err)

	_, _, err = SelectRepresentatives(chunks, []int{0, 0, 0}, m, map[int]int{0: 7})
	assert.Error(t, err)
}

func TestSelectRepresentatives_RepresentativeIsMember(t *testing.T) {
	m := mustMatrix(t, twoGroups)
	chunks := []string{"g1a", "g1b", "g1c", "g2a", "g2b", "g2c"}
	a := Cluster(DefaultConfig(), m)

	reps, outliers, err := SelectRepresentatives(chunks, a.Labels, m, a.Medoids)
	require.NoError(t, err)

	assert.Equal(t, []string{"g1a", "g2a"}, reps)
	assert.Empty(t, outliers)
	assert.Len(t, reps, len(a.Clusters()))
}
