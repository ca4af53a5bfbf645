package evaluate

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"
)

// ParticipantScore holds one participant's agreement statistics.
type ParticipantScore struct {
	Participant string
	Kappa       float64
	Accuracy    float64
	Epochs      int
}

// ConfusionMatrix counts (true, predicted) label pairs. Labels is the
// sorted union of labels observed in either column; Counts[j][k] is the
// number of epochs with true label j predicted as k.
type ConfusionMatrix struct {
	Labels []string
	Counts [][]int
}

// Summary aggregates agreement statistics across participants.
type Summary struct {
	Scores []ParticipantScore

	KappaMean float64
	KappaSD   float64
	KappaCI   [2]float64

	AccuracyMean float64
	AccuracySD   float64
	AccuracyCI   [2]float64

	Confusion *ConfusionMatrix
}

// Evaluate computes the summary for paired true/predicted label columns
// with an aligned participant column. Rows are grouped by participant
// id; ordering within the slices does not matter.
func Evaluate(participants, truth, predicted []string) (*Summary, error) {
	if len(truth) == 0 {
		return nil, fmt.Errorf("evaluate: no rows")
	}
	if len(participants) != len(truth) || len(predicted) != len(truth) {
		return nil, fmt.Errorf("evaluate: misaligned columns: %d participants, %d truth, %d predicted",
			len(participants), len(truth), len(predicted))
	}

	byParticipant := make(map[string][]int)
	var order []string
	for i, p := range participants {
		if _, ok := byParticipant[p]; !ok {
			order = append(order, p)
		}
		byParticipant[p] = append(byParticipant[p], i)
	}
	sort.Strings(order)

	s := &Summary{Confusion: confusion(truth, predicted)}
	kappas := make([]float64, 0, len(order))
	accuracies := make([]float64, 0, len(order))
	for _, p := range order {
		idx := byParticipant[p]
		tr := make([]string, len(idx))
		pr := make([]string, len(idx))
		for j, i := range idx {
			tr[j] = truth[i]
			pr[j] = predicted[i]
		}
		score := ParticipantScore{
			Participant: p,
			Kappa:       Kappa(tr, pr),
			Accuracy:    Accuracy(tr, pr),
			Epochs:      len(idx),
		}
		s.Scores = append(s.Scores, score)
		kappas = append(kappas, score.Kappa)
		accuracies = append(accuracies, score.Accuracy)
	}

	s.KappaMean, s.KappaSD, s.KappaCI = meanSDCI(kappas)
	s.AccuracyMean, s.AccuracySD, s.AccuracyCI = meanSDCI(accuracies)
	return s, nil
}

// meanSDCI returns the sample mean, standard deviation, and normal-
// approximation 95% confidence interval of the mean.
func meanSDCI(vals []float64) (mean, sd float64, ci [2]float64) {
	mean = stat.Mean(vals, nil)
	if len(vals) > 1 {
		sd = stat.StdDev(vals, nil)
	}
	half := 1.96 * sd / math.Sqrt(float64(len(vals)))
	return mean, sd, [2]float64{mean - half, mean + half}
}

// Accuracy is the fraction of epochs where prediction matches truth.
func Accuracy(truth, predicted []string) float64 {
	if len(truth) == 0 {
		return 0
	}
	match := 0
	for i := range truth {
		if truth[i] == predicted[i] {
			match++
		}
	}
	return float64(match) / float64(len(truth))
}

// Kappa is Cohen's kappa: observed agreement corrected for the
// agreement expected from the label marginals alone. Returns 0 when the
// expected agreement is already perfect (degenerate single-label data).
func Kappa(truth, predicted []string) float64 {
	n := float64(len(truth))
	if n == 0 {
		return 0
	}
	rowMarginal := make(map[string]float64)
	colMarginal := make(map[string]float64)
	agree := 0.0
	for i := range truth {
		rowMarginal[truth[i]]++
		colMarginal[predicted[i]]++
		if truth[i] == predicted[i] {
			agree++
		}
	}
	po := agree / n
	pe := 0.0
	for label, r := range rowMarginal {
		pe += (r / n) * (colMarginal[label] / n)
	}
	if pe == 1 {
		return 0
	}
	return (po - pe) / (1 - pe)
}

func confusion(truth, predicted []string) *ConfusionMatrix {
	seen := make(map[string]bool)
	for i := range truth {
		seen[truth[i]] = true
		seen[predicted[i]] = true
	}
	labels := make([]string, 0, len(seen))
	for l := range seen {
		labels = append(labels, l)
	}
	sort.Strings(labels)

	index := make(map[string]int, len(labels))
	for i, l := range labels {
		index[l] = i
	}
	counts := make([][]int, len(labels))
	for j := range counts {
		counts[j] = make([]int, len(labels))
	}
	for i := range truth {
		counts[index[truth[i]]][index[predicted[i]]]++
	}
	return &ConfusionMatrix{Labels: labels, Counts: counts}
}

// String renders the summary as a plain-text report: aggregate
// statistics followed by the confusion matrix.
func (s *Summary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "participants: %d\n", len(s.Scores))
	fmt.Fprintf(&b, "kappa:    mean %.3f  sd %.3f  95%% CI [%.3f, %.3f]\n",
		s.KappaMean, s.KappaSD, s.KappaCI[0], s.KappaCI[1])
	fmt.Fprintf(&b, "accuracy: mean %.3f  sd %.3f  95%% CI [%.3f, %.3f]\n",
		s.AccuracyMean, s.AccuracySD, s.AccuracyCI[0], s.AccuracyCI[1])

	b.WriteString("\nconfusion (rows = truth, columns = predicted):\n")
	width := 10
	for _, l := range s.Confusion.Labels {
		if len(l) >= width {
			width = len(l) + 1
		}
	}
	fmt.Fprintf(&b, "%*s", width, "")
	for _, l := range s.Confusion.Labels {
		fmt.Fprintf(&b, "%*s", width, l)
	}
	b.WriteByte('\n')
	for j, l := range s.Confusion.Labels {
		fmt.Fprintf(&b, "%*s", width, l)
		for k := range s.Confusion.Labels {
			fmt.Fprintf(&b, "%*d", width, s.Confusion.Counts[j][k])
		}
		b.WriteByte('\n')
	}
	return b.String()
}
