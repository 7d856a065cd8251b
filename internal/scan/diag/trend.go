package diag

import (
	"fmt"
	"io"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/scalpscan/scancore/internal/scan"
)

// TrendSample is one point on the session trend chart.
type TrendSample struct {
	Timestamp time.Time
	Score     float64
	Coverage  float64
	CPUUsage  float64
	Memory    float64
}

// TrendFromHistory folds published analyses and resource history into
// trend samples, pairing entries by index.
func TrendFromHistory(analyses []scan.QualityAnalysis, resources []scan.ResourceMetrics) []TrendSample {
	n := len(analyses)
	if len(resources) < n {
		n = len(resources)
	}
	samples := make([]TrendSample, 0, n)
	for i := 0; i < n; i++ {
		samples = append(samples, TrendSample{
			Timestamp: resources[i].Timestamp,
			Score:     analyses[i].ScanningScore,
			Coverage:  analyses[i].Coverage,
			CPUUsage:  resources[i].CPUUsage,
			Memory:    resources[i].MemoryUsage,
		})
	}
	return samples
}

// WriteTrendChart renders the samples as a go-echarts line chart (one
// self-contained HTML document) to w.
func WriteTrendChart(w io.Writer, samples []TrendSample) error {
	if len(samples) == 0 {
		return fmt.Errorf("no trend samples to chart")
	}

	xAxis := make([]string, len(samples))
	score := make([]opts.LineData, len(samples))
	cover := make([]opts.LineData, len(samples))
	cpu := make([]opts.LineData, len(samples))
	mem := make([]opts.LineData, len(samples))
	for i, s := range samples {
		xAxis[i] = s.Timestamp.Format("15:04:05")
		score[i] = opts.LineData{Value: s.Score}
		cover[i] = opts.LineData{Value: s.Coverage}
		cpu[i] = opts.LineData{Value: s.CPUUsage}
		mem[i] = opts.LineData{Value: s.Memory}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Scan Trends", Width: "1200px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: "Scan Quality & Resource Trends"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: 1, Name: "fraction"}),
	)
	line.SetXAxis(xAxis).
		AddSeries("scanning score", score).
		AddSeries("coverage", cover).
		AddSeries("cpu", cpu).
		AddSeries("memory", mem)

	if err := line.Render(w); err != nil {
		return fmt.Errorf("render trend chart: %w", err)
	}
	return nil
}
