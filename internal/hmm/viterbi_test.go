package hmm

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// persistParams favours staying in the current state, with emissions
// aligned to the observed labels. Matches the worked example in the
// decoder's documentation of record.
func persistParams() *Params {
	return &Params{
		Labels:      []string{"sedentary", "walking"},
		Priors:      []float64{0.6, 0.4},
		Transitions: [][]float64{{0.9, 0.1}, {0.2, 0.8}},
		Emissions:   [][]float64{{0.8, 0.2}, {0.3, 0.7}},
	}
}

func TestDecodeAgreesWithCleanObservations(t *testing.T) {
	t.Parallel()

	// sedentary, sedentary, walking: persistence-favouring transitions
	// and truth-aligned emissions leave the sequence unchanged.
	path, err := Decode([]int{0, 0, 1}, persistParams())
	require.NoError(t, err)
	assert.Equal(t, []int{0, 0, 1}, path)
}

func TestDecodeSmoothsIsolatedBlip(t *testing.T) {
	t.Parallel()

	// A single walking epoch inside a long sedentary run is more cheaply
	// explained as an emission error than as two state changes.
	obs := []int{0, 0, 0, 1, 0, 0, 0}
	path, err := Decode(obs, persistParams())
	require.NoError(t, err)
	assert.Equal(t, []int{0, 0, 0, 0, 0, 0, 0}, path)
}

func TestDecodeDeterministic(t *testing.T) {
	t.Parallel()

	p := persistParams()
	obs := []int{0, 1, 1, 0, 0, 1, 0, 1, 1, 1, 0}
	first, err := Decode(obs, p)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := Decode(obs, p)
		require.NoError(t, err)
		if diff := cmp.Diff(first, again); diff != "" {
			t.Fatalf("decode not deterministic (-first +again):\n%s", diff)
		}
	}
}

func TestDecodeOutputLength(t *testing.T) {
	t.Parallel()

	p := persistParams()
	for _, n := range []int{1, 2, 17, 1000, 20000} {
		obs := make([]int, n)
		for i := range obs {
			obs[i] = (i / 7) % 2
		}
		path, err := Decode(obs, p)
		require.NoError(t, err)
		require.Len(t, path, n, "sequence length %d", n)
		for t2, s := range path {
			require.True(t, s == 0 || s == 1, "position %d holds state %d", t2, s)
		}
	}
}

func TestDecodeSurvivesZeroProbabilities(t *testing.T) {
	t.Parallel()

	// Hard-zero transitions and emissions occur legitimately in
	// estimated parameters; the epsilon floor must keep scores finite.
	p := &Params{
		Labels:      []string{"a", "b"},
		Priors:      []float64{1, 0},
		Transitions: [][]float64{{1, 0}, {0, 1}},
		Emissions:   [][]float64{{1, 0}, {0, 1}},
	}
	obs := make([]int, 5000)
	for i := range obs {
		obs[i] = 1
	}
	path, err := Decode(obs, p)
	require.NoError(t, err)
	require.Len(t, path, len(obs))
}

func TestDecodeEmptyAndInvalid(t *testing.T) {
	t.Parallel()

	p := persistParams()

	path, err := Decode(nil, p)
	require.NoError(t, err)
	assert.Empty(t, path)

	_, err = Decode([]int{0, 3}, p)
	assert.Error(t, err)
}

func TestDecodePosterior(t *testing.T) {
	t.Parallel()

	p := persistParams()
	obs := []int{0, 0, 1, 1, 0}
	post, err := DecodePosterior(obs, p)
	require.NoError(t, err)
	require.Len(t, post, len(obs))

	for t2, row := range post {
		require.Len(t, row, 2)
		sum := 0.0
		for _, v := range row {
			require.GreaterOrEqual(t, v, 0.0)
			require.False(t, math.IsNaN(v))
			sum += v
		}
		assert.InDelta(t, 1.0, sum, 1e-9, "position %d", t2)
	}

	// First observation is sedentary with a sedentary-leaning prior:
	// the posterior must favour state 0 there.
	assert.Greater(t, post[0][0], post[0][1])
}

func TestDecodeLongSequenceStaysFinite(t *testing.T) {
	t.Parallel()

	// A week of 30-second epochs. The naive probability-space recursion
	// underflows to zero after a few hundred steps; log space must not.
	p := persistParams()
	obs := make([]int, 20160)
	for i := range obs {
		if i%97 == 0 {
			obs[i] = 1
		}
	}
	v, err := scoreTable(obs, p)
	require.NoError(t, err)
	last := v[len(v)-1]
	for s, score := range last {
		require.False(t, math.IsInf(score, 0), "state %d score infinite", s)
		require.False(t, math.IsNaN(score), "state %d score NaN", s)
	}
}
