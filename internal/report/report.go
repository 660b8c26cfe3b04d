// Package report renders the dataset summary: distribution charts for the
// classification axes and descriptive statistics over the step sequences.
package report

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/gonum/stat"

	"github.com/autosec-data/aad/internal/db"
)

// StepStats summarises how many steps the cataloged attacks take.
type StepStats struct {
	Attacks int     `json:"attacks" yaml:"attacks"`
	Mean    float64 `json:"mean" yaml:"mean"`
	StdDev  float64 `json:"std_dev" yaml:"std_dev"`
	Median  float64 `json:"median" yaml:"median"`
	P90     float64 `json:"p90" yaml:"p90"`
	Min     float64 `json:"min" yaml:"min"`
	Max     float64 `json:"max" yaml:"max"`
}

// ComputeStepStats reduces per-attack step counts to summary statistics.
func ComputeStepStats(counts []float64) StepStats {
	if len(counts) == 0 {
		return StepStats{}
	}

	sorted := append([]float64(nil), counts...)
	sort.Float64s(sorted)

	s := StepStats{
		Attacks: len(sorted),
		Mean:    stat.Mean(sorted, nil),
		Median:  stat.Quantile(0.5, stat.Empirical, sorted, nil),
		P90:     stat.Quantile(0.9, stat.Empirical, sorted, nil),
		Min:     sorted[0],
		Max:     sorted[len(sorted)-1],
	}
	if len(sorted) > 1 {
		s.StdDev = stat.StdDev(sorted, nil)
	}
	return s
}

// Reporter builds charts and statistics from one database.
type Reporter struct {
	db *db.DB

	// TopN caps the attack type and violated property charts.
	TopN int
}

func New(database *db.DB) *Reporter {
	return &Reporter{db: database, TopN: 15}
}

// StepStats computes the step count statistics for the reporter's database.
func (r *Reporter) StepStats() (StepStats, error) {
	counts, err := r.db.StepCountsPerAttack()
	if err != nil {
		return StepStats{}, err
	}
	return ComputeStepStats(counts), nil
}

// YearChart plots the number of cataloged attacks per publication year.
func (r *Reporter) YearChart() (*charts.Bar, error) {
	rows, err := r.db.AttacksByYear()
	if err != nil {
		return nil, err
	}
	return barChart("Attacks by year", rows), nil
}

// AttackTypeChart plots the most common attack types.
func (r *Reporter) AttackTypeChart() (*charts.Bar, error) {
	rows, err := r.db.TopAttackTypes(r.TopN)
	if err != nil {
		return nil, err
	}
	return barChart("Top attack types", rows), nil
}

// PropertyChart plots the most frequently violated security properties.
func (r *Reporter) PropertyChart() (*charts.Bar, error) {
	rows, err := r.db.ViolatedProperties(r.TopN)
	if err != nil {
		return nil, err
	}
	return barChart("Violated security properties", rows), nil
}

// Render writes the full HTML report to w.
func (r *Reporter) Render(w io.Writer) error {
	page := components.NewPage()
	page.PageTitle = "Automotive Attack Database"

	builders := []func() (*charts.Bar, error){
		r.YearChart,
		r.AttackTypeChart,
		r.PropertyChart,
	}
	for _, build := range builders {
		chart, err := build()
		if err != nil {
			return err
		}
		page.AddCharts(chart)
	}

	if err := page.Render(w); err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}
	return nil
}

// RenderFile writes the full HTML report to path.
func (r *Reporter) RenderFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	defer f.Close()

	if err := r.Render(f); err != nil {
		return err
	}
	return f.Close()
}

func barChart(title string, rows []db.CountRow) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: title}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)

	labels := make([]string, len(rows))
	data := make([]opts.BarData, len(rows))
	for i, row := range rows {
		labels[i] = row.Value
		data[i] = opts.BarData{Value: row.Count}
	}

	bar.SetXAxis(labels).AddSeries("attacks", data)
	return bar
}
