package hmm

import (
	"fmt"
	"math"
)

// epsilon is added before every logarithm and exponent-normalisation so
// a legitimately zero probability (ground truth guarantees these occur)
// never produces -Inf scores.
const epsilon = 1e-6

// Decode returns the maximum-likelihood state sequence for a series of
// observed label indices. It is a pure function: independent recordings
// can be decoded concurrently with no shared state. Ties in the argmax
// resolve to the first maximum, so decoding is deterministic.
func Decode(obs []int, p *Params) ([]int, error) {
	v, err := scoreTable(obs, p)
	if err != nil {
		return nil, err
	}
	if len(v) == 0 {
		return []int{}, nil
	}

	n := len(p.Labels)
	path := make([]int, len(obs))
	path[len(obs)-1] = argmax(v[len(obs)-1])

	// Backward pass: at each step choose the predecessor maximising the
	// score plus the log transition into the already-chosen state.
	for t := len(obs) - 2; t >= 0; t-- {
		next := path[t+1]
		best := 0
		bestScore := math.Inf(-1)
		for s := 0; s < n; s++ {
			score := v[t][s] + math.Log(p.Transitions[s][next]+epsilon)
			if score > bestScore {
				bestScore = score
				best = s
			}
		}
		path[t] = best
	}
	return path, nil
}

// DecodePosterior returns, for every position, a normalised non-negative
// weight vector over states derived from the Viterbi score table, in
// place of a single hard label.
func DecodePosterior(obs []int, p *Params) ([][]float64, error) {
	v, err := scoreTable(obs, p)
	if err != nil {
		return nil, err
	}
	out := make([][]float64, len(v))
	for t := range v {
		out[t] = softmax(v[t])
	}
	return out, nil
}

// scoreTable fills the log-space dynamic-programming table
//
//	v[t][s] = log(emit[s][obs[t]] + eps) + max_r(v[t-1][r] + log(trans[r][s] + eps))
//
// seeded at t=0 with log(prior[s]*emit[s][obs[0]] + eps).
func scoreTable(obs []int, p *Params) ([][]float64, error) {
	n := len(p.Labels)
	for t, o := range obs {
		if o < 0 || o >= n {
			return nil, fmt.Errorf("viterbi: observation %d out of range at position %d", o, t)
		}
	}
	if len(obs) == 0 {
		return nil, nil
	}

	v := make([][]float64, len(obs))
	v[0] = make([]float64, n)
	for s := 0; s < n; s++ {
		v[0][s] = math.Log(p.Priors[s]*p.Emissions[s][obs[0]] + epsilon)
	}

	for t := 1; t < len(obs); t++ {
		v[t] = make([]float64, n)
		for s := 0; s < n; s++ {
			best := math.Inf(-1)
			for r := 0; r < n; r++ {
				score := v[t-1][r] + math.Log(p.Transitions[r][s]+epsilon)
				if score > best {
					best = score
				}
			}
			v[t][s] = math.Log(p.Emissions[s][obs[t]]+epsilon) + best
		}
	}
	return v, nil
}

// softmax exponentiates around the row maximum and normalises, keeping
// the result finite for arbitrarily negative log scores.
func softmax(row []float64) []float64 {
	max := math.Inf(-1)
	for _, v := range row {
		if v > max {
			max = v
		}
	}
	out := make([]float64, len(row))
	sum := 0.0
	for i, v := range row {
		out[i] = math.Exp(v - max)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// argmax returns the index of the first maximum.
func argmax(row []float64) int {
	best := 0
	for i := 1; i < len(row); i++ {
		if row[i] > row[best] {
			best = i
		}
	}
	return best
}
