package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Fetch metrics
var (
	// FetchAttemptsTotal counts individual HTTP attempts by status class
	FetchAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvest_fetch_attempts_total",
			Help: "HTTP attempts made by the fetcher, by outcome",
		},
		[]string{"outcome"},
	)

	// FetchRetriesTotal counts retries by the budget they consumed
	FetchRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvest_fetch_retries_total",
			Help: "Retries performed by the fetch transport, by reason",
		},
		[]string{"reason"},
	)

	PagesScrapedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "harvest_pages_scraped_total",
			Help: "Listing pages fetched and extracted",
		},
	)
)

// Pipeline metrics
var (
	// RecordsTotal counts records per dataset and stage (raw, cleaned, rejected)
	RecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvest_records_total",
			Help: "Records seen by the curation pipeline, by dataset and stage",
		},
		[]string{"dataset", "stage"},
	)

	AnomaliesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvest_anomalies_total",
			Help: "Anomaly records emitted, by dataset",
		},
		[]string{"dataset"},
	)

	PipelineRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvest_pipeline_runs_total",
			Help: "Curation passes, by outcome",
		},
		[]string{"status"},
	)

	PipelineRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "harvest_pipeline_run_duration_seconds",
			Help:    "Duration of a full curation pass in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	FingerprintChangesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "harvest_watch_fingerprint_changes_total",
			Help: "Raw directory fingerprint changes observed by the watcher",
		},
	)

	LastRunTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "harvest_last_run_timestamp_seconds",
			Help: "Unix timestamp of the last successful curation pass",
		},
	)
)

// Database metrics
var (
	// DBQueriesTotal tracks the total number of database queries
	DBQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_queries_total",
			Help: "Total number of database queries executed",
		},
		[]string{"query_type", "table", "status"},
	)

	// DBQueryDuration tracks the duration of database queries
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Duration of database queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"query_type", "table"},
	)

	DBConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_open",
			Help: "Number of established connections both in use and idle",
		},
	)

	DBConnectionsInUse = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_in_use",
			Help: "Number of connections currently in use",
		},
	)

	DBConnectionsIdle = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_idle",
			Help: "Number of idle connections",
		},
	)

	// AppStartTime records when the application started
	AppStartTime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "harvest_app_start_time_seconds",
			Help: "Unix timestamp of when the application started",
		},
	)
)

func init() {
	AppStartTime.SetToCurrentTime()
}

// RecordFetchAttempt records one HTTP attempt; code 0 means a transport error.
func RecordFetchAttempt(code int, err error) {
	outcome := "error"
	if err == nil {
		switch {
		case code >= 500:
			outcome = "5xx"
		case code >= 400:
			outcome = "4xx"
		case code >= 300:
			outcome = "3xx"
		default:
			outcome = "2xx"
		}
	}
	FetchAttemptsTotal.WithLabelValues(outcome).Inc()
}

// RecordRun records the outcome of a curation pass.
func RecordRun(duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	} else {
		LastRunTimestamp.SetToCurrentTime()
	}
	PipelineRunsTotal.WithLabelValues(status).Inc()
	PipelineRunDuration.Observe(duration.Seconds())
}

// RecordDBQuery records a database query execution
func RecordDBQuery(queryType, table string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	DBQueriesTotal.WithLabelValues(queryType, table, status).Inc()
	DBQueryDuration.WithLabelValues(queryType, table).Observe(duration.Seconds())
}

// UpdateDBConnectionStats updates database connection pool statistics
func UpdateDBConnectionStats(open, inUse, idle int) {
	DBConnectionsOpen.Set(float64(open))
	DBConnectionsInUse.Set(float64(inUse))
	DBConnectionsIdle.Set(float64(idle))
}
