// Package train fits a complete activity model from a labelled feature
// table: balanced-bootstrap forest, HMM parameters from out-of-bag
// predictions, and per-label mean MET values, assembled into a bundle.
package train

import (
	"fmt"
	"log"

	"github.com/fieldkinetics/actigraph/internal/bundle"
	"github.com/fieldkinetics/actigraph/internal/epoch"
	"github.com/fieldkinetics/actigraph/internal/forest"
	"github.com/fieldkinetics/actigraph/internal/hmm"
)

// Train fits a model on the labelled, valid rows of the table. The
// table must be sorted by participant then time: the HMM transition
// estimate reads consecutive rows as consecutive epochs within one
// recording. Rows failing validation or missing a label are skipped for
// training (they are only ever reported, never learned from).
func Train(t *epoch.Table, cfg forest.Config, sampler forest.Sampler) (*bundle.Bundle, error) {
	rows := t.LabelledRows()
	if len(rows) == 0 {
		return nil, fmt.Errorf("train: no valid labelled rows")
	}

	x := make([][]float64, len(rows))
	y := make([]string, len(rows))
	participants := make([]string, len(rows))
	for j, i := range rows {
		x[j] = t.Rows[i].Features
		y[j] = t.Rows[i].Label
		participants[j] = t.Rows[i].Participant
	}

	log.Printf("training forest: %d epochs, %d features, %d trees",
		len(rows), len(t.FeatureNames), cfg.Trees)
	f, oob, err := forest.Train(x, y, nil, cfg, sampler)
	if err != nil {
		return nil, err
	}

	labelIndex := make(map[string]int, len(f.Labels))
	for i, l := range f.Labels {
		labelIndex[l] = i
	}
	truth := make([]int, len(rows))
	for j := range rows {
		truth[j] = labelIndex[y[j]]
	}

	params, err := hmm.Estimate(truth, participants, oob, f.Labels)
	if err != nil {
		return nil, err
	}

	return &bundle.Bundle{
		Features: t.FeatureNames,
		Forest:   f,
		HMM:      params,
		METs:     meanMETs(t, rows, f.Labels),
	}, nil
}

// meanMETs averages the recorded MET values per label. Labels with no
// MET annotations are absent from the table; inference then reports no
// MET for them rather than a fabricated zero.
func meanMETs(t *epoch.Table, rows []int, labels []string) map[string]float64 {
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, i := range rows {
		r := &t.Rows[i]
		if !r.HasMET {
			continue
		}
		sums[r.Label] += r.MET
		counts[r.Label]++
	}
	mets := make(map[string]float64, len(labels))
	for _, l := range labels {
		if counts[l] > 0 {
			mets[l] = sums[l] / float64(counts[l])
		}
	}
	return mets
}
