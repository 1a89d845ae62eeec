package processor

import (
	"context"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"harvest/internal/aggregator"
	"harvest/internal/cleaner"
	"harvest/internal/config"
	"harvest/internal/dataset"
	"harvest/internal/detector"
	"harvest/internal/metrics"
	"harvest/internal/models"
)

// Sink persists cleaned records.
type Sink interface {
	UpsertProducts(ctx context.Context, products []models.Product) error
	UpsertWeather(ctx context.Context, readings []models.Weather) error
}

// Notifier announces a finished run.
type Notifier interface {
	PublishRun(ctx context.Context, summary *Summary) error
}

// Processor runs the Cleaner, Aggregator and Detector over the raw
// directory and writes every artifact under the output directory.
type Processor struct {
	dataDir   string
	outDir    string
	detector  *detector.AnomalyDetector
	suggester *detector.AlarmSuggester
	sink      Sink
	notifier  Notifier
	status    *StatusTracker
	now       func() time.Time
}

type Option func(*Processor)

// WithSink persists cleaned records after artifacts are written.
func WithSink(s Sink) Option {
	return func(p *Processor) { p.sink = s }
}

// WithNotifier publishes each successful run summary.
func WithNotifier(n Notifier) Option {
	return func(p *Processor) { p.notifier = n }
}

// WithStatus records every run outcome in t.
func WithStatus(t *StatusTracker) Option {
	return func(p *Processor) { p.status = t }
}

func New(cfg config.PipelineConfig, opts ...Option) *Processor {
	p := &Processor{
		dataDir:   cfg.DataDir,
		outDir:    cfg.OutDir,
		detector:  detector.NewAnomalyDetector(cfg),
		suggester: detector.NewAlarmSuggester(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run executes one full pass. Only I/O on the raw or output directories
// fails the run; sink and notifier errors are logged and kept in the summary.
func (p *Processor) Run(ctx context.Context) (*Summary, error) {
	start := p.now()
	summary, err := p.run(ctx, start)
	finished := p.now()

	metrics.RecordRun(finished.Sub(start), err)
	if p.status != nil {
		p.status.Record(summary, err, finished)
	}
	if err != nil {
		return nil, err
	}

	log.Printf("✓ Run %s finished in %s (%d artifacts)", summary.RunID, finished.Sub(start).Round(time.Millisecond), len(summary.Artifacts))
	return summary, nil
}

func (p *Processor) run(ctx context.Context, start time.Time) (*Summary, error) {
	rawProducts, haveProducts, err := dataset.LoadProducts(p.dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load product batches: %w", err)
	}
	rawWeather, haveWeather, err := dataset.LoadWeather(p.dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load weather batches: %w", err)
	}

	summary := &Summary{
		RunID:     uuid.New().String(),
		StartedAt: start.UTC(),
		Artifacts: []string{},
	}

	var (
		products         []models.Product
		readings         []models.Weather
		dailyPrices      []models.DailyPrice
		dailyWeather     []models.DailyWeather
		priceAnomalies   []models.PriceAnomaly
		weatherAnomalies []models.WeatherAnomaly
		sheets           []table
		observations     []detector.Observation
	)

	if haveProducts {
		var stats cleaner.Stats
		products, stats = cleaner.CleanProducts(rawProducts)
		dailyPrices = aggregator.DailyPrices(products)
		var constant []detector.ConstantSeries
		priceAnomalies, constant = p.detector.PriceAnomalies(products)
		summary.ConstantSeries = append(summary.ConstantSeries, constant...)
		observations = append(observations, detector.PriceObservations(priceAnomalies)...)

		summary.Products = &DatasetSummary{
			Cleaning:        stats,
			DailyAggregates: len(dailyPrices),
			Anomalies:       len(priceAnomalies),
		}
		log.Printf("✓ Products: %d raw, %d cleaned, %d rejected, %d duplicates, %d anomalies",
			stats.Input, stats.Output, stats.Rejected, stats.Duplicates, len(priceAnomalies))

		daily, alerts := dailyPriceTable(dailyPrices), priceAnomalyTable(priceAnomalies)
		if err := p.writeTables(summary, curatedProductsTable(products), daily, alerts); err != nil {
			return nil, err
		}
		sheets = append(sheets, daily, alerts)
	}

	if haveWeather {
		var stats cleaner.Stats
		readings, stats = cleaner.CleanWeather(rawWeather)
		dailyWeather = aggregator.DailyWeather(readings)
		var constant []detector.ConstantSeries
		weatherAnomalies, constant = p.detector.WeatherAnomalies(readings)
		summary.ConstantSeries = append(summary.ConstantSeries, constant...)
		observations = append(observations, p.detector.WeatherObservations(weatherAnomalies)...)

		summary.Weather = &DatasetSummary{
			Cleaning:        stats,
			DailyAggregates: len(dailyWeather),
			Anomalies:       len(weatherAnomalies),
		}
		log.Printf("✓ Weather: %d raw, %d cleaned, %d rejected, %d duplicates, %d anomalies",
			stats.Input, stats.Output, stats.Rejected, stats.Duplicates, len(weatherAnomalies))

		daily, alerts := dailyWeatherTable(dailyWeather), weatherAnomalyTable(weatherAnomalies)
		if err := p.writeTables(summary, curatedWeatherTable(readings), daily, alerts); err != nil {
			return nil, err
		}
		sheets = append(sheets, daily, alerts)
	}

	if !haveProducts && !haveWeather {
		log.Printf("Warning: no raw batches in %s", p.dataDir)
	}

	summary.Suggestions = p.suggester.SuggestAlarms(observations)

	if p.sink != nil {
		if haveProducts {
			if err := p.sink.UpsertProducts(ctx, products); err != nil {
				log.Printf("Warning: failed to store products: %v", err)
				summary.SinkErrors = append(summary.SinkErrors, err.Error())
			}
		}
		if haveWeather {
			if err := p.sink.UpsertWeather(ctx, readings); err != nil {
				log.Printf("Warning: failed to store weather: %v", err)
				summary.SinkErrors = append(summary.SinkErrors, err.Error())
			}
		}
	}

	summary.FinishedAt = p.now().UTC()
	summary.DurationMs = summary.FinishedAt.Sub(summary.StartedAt).Milliseconds()

	if err := p.writeReports(summary, sheets, priceAnomalies, weatherAnomalies); err != nil {
		return nil, err
	}

	if p.notifier != nil {
		if err := p.notifier.PublishRun(ctx, summary); err != nil {
			log.Printf("Warning: failed to publish run %s: %v", summary.RunID, err)
			summary.SinkErrors = append(summary.SinkErrors, err.Error())
		}
	}

	return summary, nil
}

func (p *Processor) writeTables(summary *Summary, tables ...table) error {
	for _, t := range tables {
		path := filepath.Join(p.outDir, filepath.FromSlash(t.file))
		if err := dataset.WriteCSV(path, t.header, t.csvRows()); err != nil {
			return fmt.Errorf("failed to write %s: %w", t.file, err)
		}
		summary.Artifacts = append(summary.Artifacts, t.file)
	}
	return nil
}

func (p *Processor) writeReports(summary *Summary, sheets []table, prices []models.PriceAnomaly, weather []models.WeatherAnomaly) error {
	note := "reports/report.md"
	workbook := "reports/report.xlsx"
	summary.Artifacts = append(summary.Artifacts, note, workbook)

	if err := dataset.WriteFileAtomic(filepath.Join(p.outDir, filepath.FromSlash(note)), func(w io.Writer) error {
		return writeNote(w, summary, prices, weather)
	}); err != nil {
		return fmt.Errorf("failed to write %s: %w", note, err)
	}

	if err := dataset.WriteFileAtomic(filepath.Join(p.outDir, filepath.FromSlash(workbook)), func(w io.Writer) error {
		return writeWorkbook(w, summary, sheets)
	}); err != nil {
		return fmt.Errorf("failed to write %s: %w", workbook, err)
	}
	return nil
}
