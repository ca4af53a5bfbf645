package classify

import (
	"fmt"
	"sync"

	"github.com/fieldkinetics/actigraph/internal/bundle"
	"github.com/fieldkinetics/actigraph/internal/epoch"
	"github.com/fieldkinetics/actigraph/internal/hmm"
)

// Options controls optional pipeline behaviour.
type Options struct {
	// Probabilistic emits a posterior distribution per epoch alongside
	// the hard label.
	Probabilistic bool
	// Workers bounds concurrent per-participant decoding; 0 means one
	// goroutine per participant (recordings are small relative to cores).
	Workers int
}

// Outcome is the classification of one input epoch. Valid is false for
// rows that failed feature validation; such rows carry SentinelLabel,
// no MET value, and no posterior.
type Outcome struct {
	Label     string
	Valid     bool
	MET       float64
	HasMET    bool
	Posterior []float64
}

// Result pairs per-row outcomes with the label set they draw from.
// Outcomes align index-for-index with the input table's rows.
type Result struct {
	Labels   []string
	Outcomes []Outcome
}

// OneHot returns the one-hot column for a label: 1 where the row carries
// it, 0 where the row carries another label, nil where the row is
// invalid. The nil (missing) entries distinguish "unclassifiable" from
// "zero minutes of this activity" in downstream aggregation.
func (r *Result) OneHot(label string) []*int {
	col := make([]*int, len(r.Outcomes))
	zero, one := 0, 1
	for i := range r.Outcomes {
		if !r.Outcomes[i].Valid {
			continue
		}
		if r.Outcomes[i].Label == label {
			col[i] = &one
		} else {
			col[i] = &zero
		}
	}
	return col
}

// Apply runs the full inference pipeline over a feature table. The
// table must be sorted by participant then time; each participant's
// valid rows form one sequence for Viterbi smoothing, decoded
// independently (and concurrently) per participant.
func Apply(b *bundle.Bundle, t *epoch.Table, opts Options) (*Result, error) {
	if err := t.CheckManifest(b.Features); err != nil {
		return nil, err
	}

	valid, invalid := t.Partition()

	res := &Result{
		Labels:   b.Forest.Labels,
		Outcomes: make([]Outcome, len(t.Rows)),
	}
	for _, i := range invalid {
		res.Outcomes[i] = Outcome{Label: epoch.SentinelLabel}
	}

	// Point predictions for every valid row, in table order.
	point := make([]int, len(valid))
	for j, i := range valid {
		point[j] = b.Forest.PredictClass(t.Rows[i].Features)
	}

	// Group valid rows into per-participant runs. Invalid rows inside a
	// recording do not break the run; the remaining epochs still form
	// that participant's time-ordered sequence.
	type run struct{ start, end int } // half-open over the valid slice
	var runs []run
	for j := range valid {
		if j == 0 || t.Rows[valid[j]].Participant != t.Rows[valid[j-1]].Participant {
			runs = append(runs, run{start: j, end: j + 1})
		} else {
			runs[len(runs)-1].end = j + 1
		}
	}

	smoothed := make([]int, len(valid))
	posteriors := make([][][]float64, len(runs))

	var wg sync.WaitGroup
	errs := make([]error, len(runs))
	sem := make(chan struct{}, maxWorkers(opts.Workers, len(runs)))
	for ri, rn := range runs {
		wg.Add(1)
		go func(ri int, rn run) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			obs := point[rn.start:rn.end]
			path, err := hmm.Decode(obs, b.HMM)
			if err != nil {
				errs[ri] = err
				return
			}
			copy(smoothed[rn.start:rn.end], path)
			if opts.Probabilistic {
				posteriors[ri], errs[ri] = hmm.DecodePosterior(obs, b.HMM)
			}
		}(ri, rn)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("smooth predictions: %w", err)
		}
	}

	for j, i := range valid {
		label := b.Forest.Labels[smoothed[j]]
		out := Outcome{Label: label, Valid: true}
		if met, ok := b.METs[label]; ok {
			out.MET = met
			out.HasMET = true
		}
		res.Outcomes[i] = out
	}
	if opts.Probabilistic {
		for ri, rn := range runs {
			for k := rn.start; k < rn.end; k++ {
				res.Outcomes[valid[k]].Posterior = posteriors[ri][k-rn.start]
			}
		}
	}
	return res, nil
}

func maxWorkers(n, runs int) int {
	if n <= 0 || n > runs {
		if runs == 0 {
			return 1
		}
		return runs
	}
	return n
}
