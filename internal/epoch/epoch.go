package epoch

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// SentinelLabel is assigned to rows that fail feature validation. It is
// deliberately outside any plausible training label set so downstream
// aggregation can never confuse it with a real behaviour class.
const SentinelLabel = "unclassified"

// Row is a single epoch of pre-extracted accelerometer features.
// Label, AtomicLabel and MET are optional: present on labelled training
// data, absent at inference time.
type Row struct {
	Participant string
	Time        time.Time
	Features    []float64
	Label       string
	AtomicLabel string
	MET         float64
	HasMET      bool
}

// Table is an ordered collection of epoch rows sharing one feature-column
// layout. Rows are expected to be sorted by participant then time; the
// HMM estimator and the inference pipeline rely on that ordering.
type Table struct {
	FeatureNames []string
	Rows         []Row
}

// CheckManifest verifies that the table's feature columns exactly match
// the given manifest, in both content and order. A model trained against
// one manifest must never be applied to a table laid out differently.
func (t *Table) CheckManifest(manifest []string) error {
	if len(t.FeatureNames) != len(manifest) {
		return fmt.Errorf("feature manifest mismatch: table has %d columns, manifest has %d",
			len(t.FeatureNames), len(manifest))
	}
	for i, name := range manifest {
		if t.FeatureNames[i] != name {
			return fmt.Errorf("feature manifest mismatch at column %d: table has %q, manifest has %q",
				i, t.FeatureNames[i], name)
		}
	}
	return nil
}

// Partition splits row indices into valid and invalid sets. A row is
// valid when it carries exactly one value per feature column and every
// value is finite. Invalid rows stay in the table; callers must exclude
// them from training and prediction and report them under SentinelLabel.
func (t *Table) Partition() (valid, invalid []int) {
	for i := range t.Rows {
		if rowValid(&t.Rows[i], len(t.FeatureNames)) {
			valid = append(valid, i)
		} else {
			invalid = append(invalid, i)
		}
	}
	return valid, invalid
}

func rowValid(r *Row, want int) bool {
	if len(r.Features) != want {
		return false
	}
	for _, v := range r.Features {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// LabelledRows returns the indices of valid rows that carry a ground
// truth label, preserving table order.
func (t *Table) LabelledRows() []int {
	valid, _ := t.Partition()
	var out []int
	for _, i := range valid {
		if t.Rows[i].Label != "" {
			out = append(out, i)
		}
	}
	return out
}

// LabelSet returns the sorted union of ground-truth labels present on
// valid rows. This set is fixed once a model is trained from the table.
func (t *Table) LabelSet() []string {
	seen := make(map[string]bool)
	for _, i := range t.LabelledRows() {
		seen[t.Rows[i].Label] = true
	}
	out := make([]string, 0, len(seen))
	for l := range seen {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}
