// Package testutil provides shared test fixtures for the engine
// packages: synthetic feature tables and probability assertions.
package testutil

import (
	"math/rand"
	"testing"
	"time"

	"github.com/fieldkinetics/actigraph/internal/epoch"
)

// AssertDistribution fails unless the slice is a probability
// distribution within tol: non-negative entries summing to 1.
func AssertDistribution(t *testing.T, p []float64, tol float64) {
	t.Helper()
	sum := 0.0
	for i, v := range p {
		if v < 0 {
			t.Errorf("entry %d is negative: %g", i, v)
		}
		sum += v
	}
	if diff := sum - 1; diff > tol || diff < -tol {
		t.Errorf("distribution sums to %.12f, want 1 ± %g", sum, tol)
	}
}

// SyntheticTable builds a labelled feature table with epochsPer rows for
// each of the given participants, alternating through labels. Feature
// values cluster by label index so the classes are separable.
func SyntheticTable(seed int64, participants []string, labels []string, epochsPer int) *epoch.Table {
	rng := rand.New(rand.NewSource(seed))
	table := &epoch.Table{FeatureNames: []string{"enmoTrunc", "xStd", "yStd"}}
	for _, p := range participants {
		for i := 0; i < epochsPer; i++ {
			label := labels[i%len(labels)]
			base := float64(i % len(labels))
			table.Rows = append(table.Rows, epoch.Row{
				Participant: p,
				Time:        time.Unix(int64(i)*30, 0),
				Features: []float64{
					base + rng.NormFloat64()*0.05,
					base*2 + rng.NormFloat64()*0.05,
					base*0.5 + rng.NormFloat64()*0.05,
				},
				Label: label,
			})
		}
	}
	return table
}
