package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"time"

	"github.com/fieldkinetics/actigraph/internal/classify"
	"github.com/fieldkinetics/actigraph/internal/epoch"
)

// Reserved column names; every other column is a feature.
const (
	colParticipant = "participant"
	colTime        = "time"
	colLabel       = "label"
	colAtomic      = "annotation"
	colMET         = "MET"
)

// readFeatureCSV loads an epoch feature table. The header row names the
// columns; participant and time are always required, label additionally
// when labelled is set. Annotation and MET are read when present.
// Unparseable feature cells become NaN so the row is carried as invalid
// rather than lost.
func readFeatureCSV(path string, labelled bool) (*epoch.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read header of %s: %w", path, err)
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		index[name] = i
	}
	for _, required := range []string{colParticipant, colTime} {
		if _, ok := index[required]; !ok {
			return nil, fmt.Errorf("%s: missing required column %q", path, required)
		}
	}
	if labelled {
		if _, ok := index[colLabel]; !ok {
			return nil, fmt.Errorf("%s: missing required column %q", path, colLabel)
		}
	}

	var features []string
	var featureIdx []int
	for i, name := range header {
		switch name {
		case colParticipant, colTime, colLabel, colAtomic, colMET:
		default:
			features = append(features, name)
			featureIdx = append(featureIdx, i)
		}
	}

	table := &epoch.Table{FeatureNames: features}
	for line := 2; ; line++ {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, line, err)
		}

		row := epoch.Row{
			Participant: record[index[colParticipant]],
			Features:    make([]float64, len(features)),
		}
		if ts, err := time.Parse(time.RFC3339, record[index[colTime]]); err == nil {
			row.Time = ts
		}
		if i, ok := index[colLabel]; ok {
			row.Label = record[i]
		}
		if i, ok := index[colAtomic]; ok {
			row.AtomicLabel = record[i]
		}
		if i, ok := index[colMET]; ok && record[i] != "" {
			if met, err := strconv.ParseFloat(record[i], 64); err == nil {
				row.MET = met
				row.HasMET = true
			}
		}
		for j, i := range featureIdx {
			v, err := strconv.ParseFloat(record[i], 64)
			if err != nil {
				v = math.NaN()
			}
			row.Features[j] = v
		}
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}

// writeResultCSV writes the original rows plus label, one-hot, and MET
// columns. Invalid rows get the sentinel label and empty cells in every
// one-hot and MET column.
func writeResultCSV(out io.Writer, t *epoch.Table, res *classify.Result, probabilistic bool) error {
	w := csv.NewWriter(out)

	header := []string{colParticipant, colTime}
	header = append(header, t.FeatureNames...)
	header = append(header, colLabel)
	oneHot := make(map[string][]*int, len(res.Labels))
	for _, l := range res.Labels {
		header = append(header, l)
		oneHot[l] = res.OneHot(l)
	}
	header = append(header, colMET)
	if probabilistic {
		for _, l := range res.Labels {
			header = append(header, "p:"+l)
		}
	}
	if err := w.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i := range t.Rows {
		row := &t.Rows[i]
		o := &res.Outcomes[i]

		record := []string{row.Participant, row.Time.Format(time.RFC3339)}
		for _, v := range row.Features {
			record = append(record, formatFloat(v))
		}
		record = append(record, o.Label)
		for _, l := range res.Labels {
			if cell := oneHot[l][i]; cell != nil {
				record = append(record, strconv.Itoa(*cell))
			} else {
				record = append(record, "")
			}
		}
		if o.HasMET {
			record = append(record, formatFloat(o.MET))
		} else {
			record = append(record, "")
		}
		if probabilistic {
			for k := range res.Labels {
				if o.Posterior != nil {
					record = append(record, formatFloat(o.Posterior[k]))
				} else {
					record = append(record, "")
				}
			}
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}
	w.Flush()
	return w.Error()
}

func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// readEvaluationCSV loads aligned participant/label/predicted columns.
func readEvaluationCSV(path string) (participants, truth, predicted []string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("read header of %s: %w", path, err)
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[name] = i
	}
	for _, required := range []string{colParticipant, colLabel, "predicted"} {
		if _, ok := index[required]; !ok {
			return nil, nil, nil, fmt.Errorf("%s: missing required column %q", path, required)
		}
	}

	for line := 2; ; line++ {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, nil, fmt.Errorf("%s line %d: %w", path, line, err)
		}
		participants = append(participants, record[index[colParticipant]])
		truth = append(truth, record[index[colLabel]])
		predicted = append(predicted, record[index["predicted"]])
	}
	return participants, truth, predicted, nil
}
