package processor

import (
	"bufio"
	"fmt"
	"io"
	"sort"

	"github.com/xuri/excelize/v2"

	"harvest/internal/models"
)

const topAnomalies = 10

var severityRank = map[string]int{"high": 0, "medium": 1, "low": 2}

func bySeverity[T any](items []T, severity func(T) string) []T {
	out := make([]T, len(items))
	copy(out, items)
	sort.SliceStable(out, func(i, j int) bool {
		return severityRank[severity(out[i])] < severityRank[severity(out[j])]
	})
	if len(out) > topAnomalies {
		out = out[:topAnomalies]
	}
	return out
}

func optional(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.2f", *v)
}

func writeStats(w io.Writer, title string, ds *DatasetSummary) {
	fmt.Fprintf(w, "## %s\n\n", title)
	fmt.Fprintln(w, "| raw | cleaned | rejected | duplicates | parse failures | daily aggregates | anomalies |")
	fmt.Fprintln(w, "|---|---|---|---|---|---|---|")
	s := ds.Cleaning
	fmt.Fprintf(w, "| %d | %d | %d | %d | %d | %d | %d |\n\n",
		s.Input, s.Output, s.Rejected, s.Duplicates, s.ParseFailures, ds.DailyAggregates, ds.Anomalies)
}

// writeNote renders the human-readable run summary.
func writeNote(out io.Writer, summary *Summary, prices []models.PriceAnomaly, weather []models.WeatherAnomaly) error {
	w := bufio.NewWriter(out)

	fmt.Fprintf(w, "# Pipeline run %s\n\n", summary.RunID)
	fmt.Fprintf(w, "- Started: %s\n", models.FormatTime(summary.StartedAt))
	fmt.Fprintf(w, "- Finished: %s\n", models.FormatTime(summary.FinishedAt))
	fmt.Fprintf(w, "- Duration: %d ms\n\n", summary.DurationMs)

	if summary.Products == nil && summary.Weather == nil {
		fmt.Fprintln(w, "No raw batches were found.")
		fmt.Fprintln(w)
	}

	if summary.Products != nil {
		writeStats(w, "Products", summary.Products)
		if len(prices) > 0 {
			fmt.Fprintln(w, "### Price anomalies")
			fmt.Fprintln(w)
			for _, a := range bySeverity(prices, func(a models.PriceAnomaly) string { return a.Severity }) {
				fmt.Fprintf(w, "- [%s] %s at %s: %.2f -> %.2f (delta %+.2f, z %.2f)\n",
					a.Severity, a.URL, models.FormatTime(a.ScrapedAt), a.PricePrev, a.Price, a.Delta, a.DeltaZ)
			}
			fmt.Fprintln(w)
		}
	}

	if summary.Weather != nil {
		writeStats(w, "Weather", summary.Weather)
		if len(weather) > 0 {
			fmt.Fprintln(w, "### Weather anomalies")
			fmt.Fprintln(w)
			for _, a := range bySeverity(weather, func(a models.WeatherAnomaly) string { return a.Severity }) {
				fmt.Fprintf(w, "- [%s] %s at %s: temperature %s (z %s), precipitation %s",
					a.Severity, a.City, models.FormatTime(a.Time), optional(a.Temperature), optional(a.TempZ), optional(a.Precipitation))
				if a.PrecipOutlier {
					fmt.Fprint(w, " outside IQR fence")
				}
				fmt.Fprintln(w)
			}
			fmt.Fprintln(w)
		}
	}

	if len(summary.ConstantSeries) > 0 {
		fmt.Fprintln(w, "## Constant series")
		fmt.Fprintln(w)
		for _, c := range summary.ConstantSeries {
			fmt.Fprintf(w, "- %s (%s): no variation, scores set to 0\n", c.Entity, c.Metric)
		}
		fmt.Fprintln(w)
	}

	if len(summary.Suggestions) > 0 {
		fmt.Fprintln(w, "## Suggested alarms")
		fmt.Fprintln(w)
		for _, s := range summary.Suggestions {
			fmt.Fprintf(w, "- %s: %s %s %.2f (%d anomalies, confidence %.0f%%) %s\n",
				s.Entity, s.MetricType, s.Operator, s.Threshold, s.AnomalyCount, s.Confidence*100, s.Description)
		}
		fmt.Fprintln(w)
	}

	if len(summary.SinkErrors) > 0 {
		fmt.Fprintln(w, "## Storage errors")
		fmt.Fprintln(w)
		for _, e := range summary.SinkErrors {
			fmt.Fprintf(w, "- %s\n", e)
		}
		fmt.Fprintln(w)
	}

	return w.Flush()
}

// setRows writes header and rows starting at A1.
func setRows(f *excelize.File, sheet string, header []string, rows [][]any) error {
	head := make([]any, len(header))
	for i, h := range header {
		head[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &head); err != nil {
		return err
	}
	for i, row := range rows {
		cells := make([]any, len(row))
		for j, v := range row {
			cells[j] = cellValue(v)
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &cells); err != nil {
			return err
		}
	}
	return nil
}

func statsRows(name string, ds *DatasetSummary) [][]any {
	if ds == nil {
		return nil
	}
	s := ds.Cleaning
	return [][]any{{name, s.Input, s.Output, s.Rejected, s.Duplicates, s.ParseFailures, ds.DailyAggregates, ds.Anomalies}}
}

// writeWorkbook renders the analyst workbook: a summary sheet followed by
// one sheet per aggregate and anomaly table.
func writeWorkbook(w io.Writer, summary *Summary, sheets []table) error {
	f := excelize.NewFile()
	defer f.Close()

	const first = "Summary"
	if err := f.SetSheetName(f.GetSheetName(0), first); err != nil {
		return err
	}

	var rows [][]any
	rows = append(rows, statsRows("products", summary.Products)...)
	rows = append(rows, statsRows("weather", summary.Weather)...)
	header := []string{"dataset", "raw", "cleaned", "rejected", "duplicates", "parse_failures", "daily_aggregates", "anomalies"}
	if err := setRows(f, first, header, rows); err != nil {
		return fmt.Errorf("summary sheet: %w", err)
	}
	if err := f.SetCellValue(first, fmt.Sprintf("A%d", len(rows)+3), "run_id"); err != nil {
		return err
	}
	if err := f.SetCellValue(first, fmt.Sprintf("B%d", len(rows)+3), summary.RunID); err != nil {
		return err
	}

	for _, t := range sheets {
		if _, err := f.NewSheet(t.sheet); err != nil {
			return fmt.Errorf("sheet %s: %w", t.sheet, err)
		}
		if err := setRows(f, t.sheet, t.header, t.rows); err != nil {
			return fmt.Errorf("sheet %s: %w", t.sheet, err)
		}
	}

	return f.Write(w)
}
