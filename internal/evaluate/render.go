package evaluate

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// RenderHTML writes the evaluation summary as a standalone HTML page: a
// confusion-matrix heatmap and a per-participant kappa bar chart.
func (s *Summary) RenderHTML(w io.Writer) error {
	page := components.NewPage()
	page.AddCharts(s.confusionHeatMap(), s.kappaBar())
	if err := page.Render(w); err != nil {
		return fmt.Errorf("render evaluation report: %w", err)
	}
	return nil
}

func (s *Summary) confusionHeatMap() *charts.HeatMap {
	labels := s.Confusion.Labels
	maxCount := 0
	data := make([]opts.HeatMapData, 0, len(labels)*len(labels))
	for j := range labels {
		for k := range labels {
			c := s.Confusion.Counts[j][k]
			if c > maxCount {
				maxCount = c
			}
			data = append(data, opts.HeatMapData{Value: [3]interface{}{k, j, c}})
		}
	}

	hm := charts.NewHeatMap()
	hm.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "Confusion matrix",
			Subtitle: fmt.Sprintf("rows=truth columns=predicted epochs=%d", s.totalEpochs()),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Type: "category", Data: labels, Name: "predicted"}),
		charts.WithYAxisOpts(opts.YAxis{Type: "category", Data: labels, Name: "truth"}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        float32(maxCount),
			InRange:    &opts.VisualMapInRange{Color: []string{"#440154", "#31688e", "#35b779", "#fde725"}},
		}),
	)
	hm.AddSeries("confusion", data)
	return hm
}

func (s *Summary) kappaBar() *charts.Bar {
	names := make([]string, len(s.Scores))
	values := make([]opts.BarData, len(s.Scores))
	for i, sc := range s.Scores {
		names[i] = sc.Participant
		values[i] = opts.BarData{Value: sc.Kappa}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "Cohen's kappa by participant",
			Subtitle: fmt.Sprintf("mean %.3f, 95%% CI [%.3f, %.3f]", s.KappaMean, s.KappaCI[0], s.KappaCI[1]),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(names).AddSeries("kappa", values,
		charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}))
	return bar
}

func (s *Summary) totalEpochs() int {
	total := 0
	for _, sc := range s.Scores {
		total += sc.Epochs
	}
	return total
}
