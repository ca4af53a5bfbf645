package hmm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testLabels = []string{"sedentary", "sleep", "walking"}

// uniformOOB builds an aligned OOB slice where each row's vector puts
// weight w on the true label and spreads the rest evenly.
func uniformOOB(truth []int, n int, w float64) [][]float64 {
	oob := make([][]float64, len(truth))
	for i, s := range truth {
		row := make([]float64, n)
		for k := range row {
			row[k] = (1 - w) / float64(n-1)
		}
		row[s] = w
		oob[i] = row
	}
	return oob
}

func TestEstimateDistributions(t *testing.T) {
	t.Parallel()

	truth := []int{0, 0, 1, 1, 2, 2, 0, 1}
	parts := []string{"P1", "P1", "P1", "P1", "P1", "P1", "P1", "P1"}
	p, err := Estimate(truth, parts, uniformOOB(truth, 3, 0.8), testLabels)
	require.NoError(t, err)

	// Validate already enforces the ±1e-9 row-sum property; run it
	// explicitly so a regression reports here.
	require.NoError(t, p.Validate())

	assert.InDelta(t, 3.0/8, p.Priors[0], 1e-12)
	assert.InDelta(t, 3.0/8, p.Priors[1], 1e-12)
	assert.InDelta(t, 2.0/8, p.Priors[2], 1e-12)

	// Emission diagonal dominates when OOB predictions favour the truth.
	for j := range testLabels {
		for k := range testLabels {
			if j != k {
				assert.Greater(t, p.Emissions[j][j], p.Emissions[j][k])
			}
		}
	}
}

func TestEstimateTransitionsRespectParticipants(t *testing.T) {
	t.Parallel()

	// P1 ends on walking, P2 starts on sleep. Counting across that
	// boundary would invent a walking→sleep transition.
	truth := []int{2, 2, 1, 1}
	parts := []string{"P1", "P1", "P2", "P2"}
	p, err := Estimate(truth, parts, uniformOOB(truth, 3, 0.9), testLabels)
	require.NoError(t, err)

	// Row 2 (walking) saw exactly one transition: walking→walking.
	assert.InDelta(t, 1.0, p.Transitions[2][2], 1e-12)
	assert.InDelta(t, 0.0, p.Transitions[2][1], 1e-12)
}

func TestEstimateUnseenRowsUniform(t *testing.T) {
	t.Parallel()

	// Label 0 never appears as a predecessor with a successor (single
	// trailing row), so its transition row has no evidence and must be
	// uniform rather than zero.
	truth := []int{1, 1, 0}
	parts := []string{"P1", "P1", "P1"}
	p, err := Estimate(truth, parts, uniformOOB(truth, 3, 0.9), testLabels)
	require.NoError(t, err)

	for k := range testLabels {
		assert.InDelta(t, 1.0/3, p.Transitions[0][k], 1e-12)
	}
	// Label 2 has no training rows at all: uniform emissions.
	for k := range testLabels {
		assert.InDelta(t, 1.0/3, p.Emissions[2][k], 1e-12)
	}
}

func TestEstimateInputErrors(t *testing.T) {
	t.Parallel()

	_, err := Estimate(nil, nil, nil, testLabels)
	assert.Error(t, err)

	_, err = Estimate([]int{0}, []string{"P1", "P2"}, uniformOOB([]int{0}, 3, 0.9), testLabels)
	assert.Error(t, err)

	_, err = Estimate([]int{5}, []string{"P1"}, uniformOOB([]int{0}, 3, 0.9), testLabels)
	assert.Error(t, err)

	_, err = Estimate([]int{0}, []string{"P1"}, [][]float64{{0.5, 0.5}}, testLabels)
	assert.Error(t, err)
}

func TestValidateRejectsBadRows(t *testing.T) {
	t.Parallel()

	p := &Params{
		Labels:      []string{"a", "b"},
		Priors:      []float64{0.6, 0.4},
		Transitions: [][]float64{{0.9, 0.1}, {0.2, 0.8}},
		Emissions:   [][]float64{{0.8, 0.2}, {0.3, 0.7}},
	}
	require.NoError(t, p.Validate())

	p.Transitions[0][0] = 0.95 // row now sums to 1.05
	assert.Error(t, p.Validate())

	p.Transitions[0][0] = 1.1
	p.Transitions[0][1] = -0.1
	assert.Error(t, p.Validate())
}
