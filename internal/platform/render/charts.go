package render

import (
	"bytes"
	"html/template"
	"math"
	"sort"
	"strings"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/samber/lo"

	"github.com/ecds/dashboard/internal/platform/apiclient"
)

const (
	colorRisk       = "#c0392b"
	colorProtective = "#2e86c1"
	colorRemaining  = "#d5dbdb"
)

// embed renders a chart and keeps only the body of the generated document;
// the layout already loads echarts.
func embed(render func(*bytes.Buffer) error) template.HTML {
	var buf bytes.Buffer
	if err := render(&buf); err != nil {
		return ""
	}
	out := buf.String()
	if start := strings.Index(out, "<body>"); start >= 0 {
		if end := strings.LastIndex(out, "</body>"); end > start {
			out = out[start+len("<body>") : end]
		}
	}
	return template.HTML(out)
}

// initOpts sizes the chart. The id ends up in a JavaScript identifier, so it
// must not contain dashes.
func initOpts(id, height string) charts.GlobalOpts {
	return charts.WithInitializationOpts(opts.Initialization{
		ChartID: id,
		Width:   "100%",
		Height:  height,
	})
}

// ShapChart draws the SHAP contributions as horizontal bars, largest
// magnitude on top, at most limit bars (0 means all). Contributions that
// raise the risk are red, protective ones blue.
func ShapChart(id string, contributions apiclient.Contributions, limit int) template.HTML {
	if len(contributions) == 0 {
		return ""
	}
	sorted := append(apiclient.Contributions(nil), contributions...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return math.Abs(sorted[i].Value) > math.Abs(sorted[j].Value)
	})
	if limit > 0 && len(sorted) > limit {
		sorted = sorted[:limit]
	}
	// Category axes draw the first entry at the bottom.
	sorted = lo.Reverse(sorted)

	names := lo.Map(sorted, func(c apiclient.Contribution, _ int) string { return title(c.Feature) })
	data := lo.Map(sorted, func(c apiclient.Contribution, _ int) opts.BarData {
		color := colorRisk
		if c.Value < 0 {
			color = colorProtective
		}
		return opts.BarData{
			Value:     math.Round(c.Value*10000) / 10000,
			ItemStyle: &opts.ItemStyle{Color: color},
		}
	})

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		initOpts(id, "360px"),
		charts.WithTitleOpts(opts.Title{
			Title:    "Feature contributions",
			Subtitle: "SHAP values, red increases risk",
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(false)}),
	)
	bar.SetXAxis(names).AddSeries("contribution", data)
	bar.XYReversal()

	return embed(func(buf *bytes.Buffer) error { return bar.Render(buf) })
}

// RiskPie shows the predicted risk against the remaining probability.
func RiskPie(id string, r *apiclient.RiskResult) template.HTML {
	if !r.Present() {
		return ""
	}
	p := r.RiskProbability()
	label := "Risk"
	if r.RiskLevel != "" {
		label = title(r.RiskLevel) + " risk"
	}

	pie := charts.NewPie()
	pie.SetGlobalOptions(
		initOpts(id, "300px"),
		charts.WithTitleOpts(opts.Title{Title: "Cancer risk probability"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	pie.AddSeries("risk", []opts.PieData{
		{Name: label, Value: math.Round(p*1000) / 10, ItemStyle: &opts.ItemStyle{Color: colorRisk}},
		{Name: "Remaining", Value: math.Round((1-p)*1000) / 10, ItemStyle: &opts.ItemStyle{Color: colorRemaining}},
	}).SetSeriesOptions(
		charts.WithPieChartOpts(opts.PieChart{Radius: []string{"45%", "70%"}}),
		charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Formatter: "{b}: {c}%"}),
	)

	return embed(func(buf *bytes.Buffer) error { return pie.Render(buf) })
}

// Counts tallies the values of field across records. Missing values are
// counted as "unknown".
func Counts(records []apiclient.Record, field string) map[string]int {
	return lo.CountValuesBy(records, func(r apiclient.Record) string {
		if v := r.String(field); v != "" {
			return v
		}
		return "unknown"
	})
}

// DistributionChart draws the counts of a categorical field as bars.
func DistributionChart(id, chartTitle string, records []apiclient.Record, field string) template.HTML {
	if len(records) == 0 {
		return ""
	}
	return CountChart(id, chartTitle, Counts(records, field))
}

// CountChart draws precomputed category counts as bars, categories sorted.
func CountChart(id, chartTitle string, counts map[string]int) template.HTML {
	if len(counts) == 0 {
		return ""
	}
	keys := lo.Keys(counts)
	sort.Strings(keys)

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		initOpts(id, "280px"),
		charts.WithTitleOpts(opts.Title{Title: chartTitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(false)}),
	)
	bar.SetXAxis(keys).AddSeries("count", lo.Map(keys, func(k string, _ int) opts.BarData {
		return opts.BarData{Value: counts[k]}
	}))

	return embed(func(buf *bytes.Buffer) error { return bar.Render(buf) })
}

// TimelineChart draws one line per monitored metric. Readings missing at a
// timestamp leave a gap.
func TimelineChart(id string, m *apiclient.Monitoring) template.HTML {
	if m == nil || len(m.Timeline) == 0 {
		return ""
	}
	metrics := m.Metrics()
	if len(metrics) == 0 {
		return ""
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		initOpts(id, "360px"),
		charts.WithTitleOpts(opts.Title{Title: "Monitoring timeline"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "bottom"}),
	)
	line.SetXAxis(lo.Map(m.Timeline, func(p apiclient.MonitoringPoint, _ int) string { return p.Timestamp }))
	for _, metric := range metrics {
		line.AddSeries(title(metric), lo.Map(m.Timeline, func(p apiclient.MonitoringPoint, _ int) opts.LineData {
			if v, ok := p.Values[metric]; ok {
				return opts.LineData{Value: v}
			}
			return opts.LineData{Value: nil}
		}))
	}
	line.SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{
		Smooth:     opts.Bool(true),
		ShowSymbol: opts.Bool(true),
	}))

	return embed(func(buf *bytes.Buffer) error { return line.Render(buf) })
}
