package detector

import (
	"math"
	"testing"
	"time"

	"harvest/internal/models"
)

func observations(entity, metric string, values ...float64) []Observation {
	out := make([]Observation, len(values))
	for i, v := range values {
		out[i] = Observation{Entity: entity, MetricType: metric, Value: v, Timestamp: hour(i)}
	}
	return out
}

func TestNewAlarmSuggester(t *testing.T) {
	suggester := NewAlarmSuggester()

	if suggester == nil {
		t.Fatal("NewAlarmSuggester() returned nil")
	}

	if suggester.minAnomaliesForSuggestion != 3 {
		t.Errorf("Expected minAnomaliesForSuggestion to be 3, got %d", suggester.minAnomaliesForSuggestion)
	}
}

func TestSuggestAlarms_NoAnomalies(t *testing.T) {
	suggester := NewAlarmSuggester()
	suggestions := suggester.SuggestAlarms([]Observation{})

	if suggestions != nil {
		t.Error("Expected nil suggestions for empty anomalies, got non-nil")
	}
}

func TestSuggestAlarms_InsufficientAnomalies(t *testing.T) {
	suggester := NewAlarmSuggester()

	suggestions := suggester.SuggestAlarms(observations("Goiânia", "temperature_2m", 38, 39))

	if len(suggestions) != 0 {
		t.Errorf("Expected 0 suggestions for 2 anomalies (need 3+), got %d", len(suggestions))
	}
}

func TestSuggestAlarms_HighTemperature(t *testing.T) {
	suggester := NewAlarmSuggester()
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	suggester.now = func() time.Time { return fixed }

	suggestions := suggester.SuggestAlarms(observations("Goiânia", "temperature_2m", 35, 37, 39))

	if len(suggestions) != 1 {
		t.Fatalf("Expected 1 suggestion, got %d", len(suggestions))
	}

	suggestion := suggestions[0]
	if suggestion.Entity != "Goiânia" {
		t.Errorf("Expected entity 'Goiânia', got '%s'", suggestion.Entity)
	}
	if suggestion.MetricType != "temperature_2m" {
		t.Errorf("Expected metric_type 'temperature_2m', got '%s'", suggestion.MetricType)
	}
	if suggestion.Operator != ">" {
		t.Errorf("Expected operator '>', got '%s'", suggestion.Operator)
	}
	// mean 37, sample std 2
	if suggestion.Threshold != 41 {
		t.Errorf("Expected threshold 41, got %v", suggestion.Threshold)
	}
	if suggestion.AnomalyCount != 3 {
		t.Errorf("Expected anomaly_count 3, got %d", suggestion.AnomalyCount)
	}
	if !suggestion.SuggestedAt.Equal(fixed) {
		t.Errorf("Expected suggested_at %v, got %v", fixed, suggestion.SuggestedAt)
	}
}

func TestSuggestAlarms_LowTemperature(t *testing.T) {
	suggester := NewAlarmSuggester()

	suggestions := suggester.SuggestAlarms(observations("Oslo", "temperature_2m", -10, -15, -12))

	if len(suggestions) != 1 {
		t.Fatalf("Expected 1 suggestion, got %d", len(suggestions))
	}
	if suggestions[0].Operator != "<" {
		t.Errorf("Expected operator '<', got '%s'", suggestions[0].Operator)
	}
}

func TestSuggestAlarms_MildTemperature(t *testing.T) {
	suggester := NewAlarmSuggester()

	suggestions := suggester.SuggestAlarms(observations("Lisboa", "temperature_2m", 15, 18, 21))

	if len(suggestions) != 0 {
		t.Errorf("Expected no suggestion for mild anomalies, got %d", len(suggestions))
	}
}

func TestSuggestAlarms_Precipitation(t *testing.T) {
	suggester := NewAlarmSuggester()

	suggestions := suggester.SuggestAlarms(observations("Goiânia", "precipitation", 12, 14, 16))

	if len(suggestions) != 1 {
		t.Fatalf("Expected 1 suggestion, got %d", len(suggestions))
	}
	if suggestions[0].Operator != ">" || suggestions[0].Threshold != 18 {
		t.Errorf("Expected '> 18', got '%s %v'", suggestions[0].Operator, suggestions[0].Threshold)
	}
}

func TestSuggestAlarms_GroupsByEntityAndMetric(t *testing.T) {
	suggester := NewAlarmSuggester()

	var obs []Observation
	obs = append(obs, observations("b-city", "precipitation", 10, 11, 12)...)
	obs = append(obs, observations("a-city", "precipitation", 10, 11)...)
	obs = append(obs, observations("a-city", "temperature_2m", 40, 41, 42)...)
	obs = append(obs, observations("http://x/book", "price", 90, 95, 100)...)

	suggestions := suggester.SuggestAlarms(obs)

	if len(suggestions) != 3 {
		t.Fatalf("Expected 3 suggestions, got %d", len(suggestions))
	}
	want := []struct{ entity, metric string }{
		{"a-city", "temperature_2m"},
		{"b-city", "precipitation"},
		{"http://x/book", "price"},
	}
	for i, w := range want {
		if suggestions[i].Entity != w.entity || suggestions[i].MetricType != w.metric {
			t.Errorf("suggestion %d = %s/%s, want %s/%s", i, suggestions[i].Entity, suggestions[i].MetricType, w.entity, w.metric)
		}
	}
}

func TestObservationsFromAnomalies(t *testing.T) {
	detector := newDetector(3.0, "ignore")

	price := PriceObservations([]models.PriceAnomaly{{URL: "u", Price: 100, ScrapedAt: hour(1)}})
	if len(price) != 1 || price[0].MetricType != "price" || price[0].Value != 100 {
		t.Errorf("unexpected price observations %+v", price)
	}

	weather := detector.WeatherObservations([]models.WeatherAnomaly{
		{City: "X", Time: hour(1), Temperature: models.Float(40), TempZ: models.Float(3.3), Precipitation: models.Float(0)},
		{City: "X", Time: hour(2), Temperature: models.Float(20), TempZ: models.Float(0.1), Precipitation: models.Float(50), PrecipOutlier: true},
		{City: "X", Time: hour(3), Temperature: models.Float(41), TempZ: models.Float(-3.1), Precipitation: models.Float(60), PrecipOutlier: true},
	})
	if len(weather) != 4 {
		t.Fatalf("Expected 4 observations, got %d", len(weather))
	}
	if weather[0].MetricType != "temperature_2m" || weather[1].MetricType != "precipitation" {
		t.Errorf("unexpected order %+v", weather)
	}
}

func TestCalculateConfidence(t *testing.T) {
	suggester := NewAlarmSuggester()

	tests := []struct {
		name      string
		values    []float64
		threshold float64
		operator  string
		want      float64
	}{
		{name: "all values exceed threshold", values: []float64{100, 105, 110}, threshold: 95, operator: ">", want: 1.0},
		{name: "half values exceed threshold", values: []float64{90, 100}, threshold: 95, operator: ">", want: 0.5},
		{name: "all values below threshold", values: []float64{-10, -15, -20}, threshold: -5, operator: "<", want: 1.0},
		{name: "no values trigger", values: []float64{1, 2}, threshold: 10, operator: ">", want: 0.0},
		{name: "empty values", values: []float64{}, threshold: 10, operator: ">", want: 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := suggester.calculateConfidence(tt.values, tt.threshold, tt.operator)
			if got != tt.want {
				t.Errorf("calculateConfidence() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCalculateMean(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		want   float64
	}{
		{name: "empty", values: nil, want: 0},
		{name: "single", values: []float64{5}, want: 5},
		{name: "several", values: []float64{10, 20, 30}, want: 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := calculateMean(tt.values)
			if got != tt.want {
				t.Errorf("calculateMean() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCalculateStdDev(t *testing.T) {
	tests := []struct {
		name       string
		values     []float64
		sample     float64
		population float64
	}{
		{name: "single value", values: []float64{5}, sample: 0, population: 0},
		{name: "identical values", values: []float64{3, 3, 3}, sample: 0, population: 0},
		{name: "spread", values: []float64{2, 4, 4, 4, 5, 5, 7, 9}, sample: math.Sqrt(32.0 / 7), population: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mean := calculateMean(tt.values)
			if got := calculateStdDev(tt.values, mean); math.Abs(got-tt.sample) > 1e-12 {
				t.Errorf("calculateStdDev() = %v, want %v", got, tt.sample)
			}
			if got := calculatePopulationStdDev(tt.values, mean); math.Abs(got-tt.population) > 1e-12 {
				t.Errorf("calculatePopulationStdDev() = %v, want %v", got, tt.population)
			}
		})
	}
}
