package hmm

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// Params holds the estimated HMM parameters over a fixed label set.
// Every row of Transitions and Emissions is a probability distribution:
// non-negative, summing to 1. Emissions row j column k is the
// probability that the ensemble predicts label k when the true label is
// j. Created once from training data and immutable thereafter.
type Params struct {
	Labels      []string    `json:"labels"`
	Priors      []float64   `json:"priors"`
	Transitions [][]float64 `json:"transitions"`
	Emissions   [][]float64 `json:"emissions"`
}

// Estimate derives HMM parameters from a time-ordered training stream.
// truth holds ground-truth label indices into labels; participants is
// the aligned participant id per row (rows must be pre-sorted by
// participant then time); oob holds the aligned out-of-bag probability
// vector per row. Transition counts never span a participant boundary:
// each participant's recording is an independent sequence.
func Estimate(truth []int, participants []string, oob [][]float64, labels []string) (*Params, error) {
	n := len(labels)
	if n == 0 {
		return nil, fmt.Errorf("estimate hmm: empty label set")
	}
	if len(truth) == 0 {
		return nil, fmt.Errorf("estimate hmm: no training rows")
	}
	if len(participants) != len(truth) || len(oob) != len(truth) {
		return nil, fmt.Errorf("estimate hmm: misaligned inputs: %d truth, %d participants, %d oob",
			len(truth), len(participants), len(oob))
	}

	priors := make([]float64, n)
	transCounts := make([][]float64, n)
	emitSums := make([][]float64, n)
	for j := 0; j < n; j++ {
		transCounts[j] = make([]float64, n)
		emitSums[j] = make([]float64, n)
	}

	for i, s := range truth {
		if s < 0 || s >= n {
			return nil, fmt.Errorf("estimate hmm: truth index %d out of range at row %d", s, i)
		}
		if len(oob[i]) != n {
			return nil, fmt.Errorf("estimate hmm: oob vector at row %d has %d entries, want %d", i, len(oob[i]), n)
		}
		priors[s]++
		floats.Add(emitSums[s], oob[i])
		if i > 0 && participants[i] == participants[i-1] {
			transCounts[truth[i-1]][s]++
		}
	}

	floats.Scale(1/float64(len(truth)), priors)

	p := &Params{
		Labels:      labels,
		Priors:      priors,
		Transitions: normalizeRows(transCounts),
		Emissions:   normalizeRows(emitSums),
	}
	return p, p.Validate()
}

// normalizeRows scales each row to sum to 1. A row with zero mass (a
// label never observed in that role) becomes uniform: with no evidence,
// no successor or prediction is preferred.
func normalizeRows(m [][]float64) [][]float64 {
	n := len(m)
	for j := range m {
		sum := floats.Sum(m[j])
		if sum == 0 {
			for k := range m[j] {
				m[j][k] = 1 / float64(n)
			}
			continue
		}
		floats.Scale(1/sum, m[j])
	}
	return m
}

// Validate checks that the priors and every matrix row form a valid
// probability distribution within 1e-9.
func (p *Params) Validate() error {
	n := len(p.Labels)
	if err := checkDistribution("priors", p.Priors, n); err != nil {
		return err
	}
	if len(p.Transitions) != n || len(p.Emissions) != n {
		return fmt.Errorf("hmm params: matrices are %dx? and %dx?, want %d rows",
			len(p.Transitions), len(p.Emissions), n)
	}
	for j := 0; j < n; j++ {
		if err := checkDistribution(fmt.Sprintf("transitions[%d]", j), p.Transitions[j], n); err != nil {
			return err
		}
		if err := checkDistribution(fmt.Sprintf("emissions[%d]", j), p.Emissions[j], n); err != nil {
			return err
		}
	}
	return nil
}

func checkDistribution(name string, row []float64, n int) error {
	if len(row) != n {
		return fmt.Errorf("hmm params: %s has %d entries, want %d", name, len(row), n)
	}
	sum := 0.0
	for _, v := range row {
		if v < 0 {
			return fmt.Errorf("hmm params: %s contains negative probability %g", name, v)
		}
		sum += v
	}
	if diff := sum - 1; diff > 1e-9 || diff < -1e-9 {
		return fmt.Errorf("hmm params: %s sums to %.12f, want 1", name, sum)
	}
	return nil
}
