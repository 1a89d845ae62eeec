package detector

import (
	"fmt"
	"sort"
	"time"

	"harvest/internal/models"
)

// Observation is one anomalous value fed to the alarm suggester
type Observation struct {
	Entity     string
	MetricType string
	Value      float64
	Timestamp  time.Time
}

// PriceObservations turns price anomalies into suggester input
func PriceObservations(anomalies []models.PriceAnomaly) []Observation {
	out := make([]Observation, 0, len(anomalies))
	for _, a := range anomalies {
		out = append(out, Observation{Entity: a.URL, MetricType: "price", Value: a.Price, Timestamp: a.ScrapedAt})
	}
	return out
}

// WeatherObservations turns weather anomalies into suggester input, one
// observation per rule that fired.
func (ad *AnomalyDetector) WeatherObservations(anomalies []models.WeatherAnomaly) []Observation {
	var out []Observation
	for _, a := range anomalies {
		if a.TempZ != nil && a.Temperature != nil && ad.IsOutlier(*a.TempZ) {
			out = append(out, Observation{Entity: a.City, MetricType: "temperature_2m", Value: *a.Temperature, Timestamp: a.Time})
		}
		if a.PrecipOutlier && a.Precipitation != nil {
			out = append(out, Observation{Entity: a.City, MetricType: "precipitation", Value: *a.Precipitation, Timestamp: a.Time})
		}
	}
	return out
}

// AlarmSuggester suggests alarms based on detected anomalies
type AlarmSuggester struct {
	minAnomaliesForSuggestion int
	now                       func() time.Time
}

// NewAlarmSuggester creates a new alarm suggester
func NewAlarmSuggester() *AlarmSuggester {
	return &AlarmSuggester{
		minAnomaliesForSuggestion: 3, // Suggest after 3 similar anomalies
		now:                       time.Now,
	}
}

// SuggestAlarms groups anomalous observations by entity and metric and
// suggests an alarm for every group that repeats often enough.
func (as *AlarmSuggester) SuggestAlarms(observations []Observation) []models.AlarmSuggestion {
	if len(observations) == 0 {
		return nil
	}

	type groupKey struct{ entity, metric string }
	groups := make(map[groupKey][]float64)
	var keys []groupKey
	for _, o := range observations {
		k := groupKey{o.Entity, o.MetricType}
		if _, ok := groups[k]; !ok {
			keys = append(keys, k)
		}
		groups[k] = append(groups[k], o.Value)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].entity != keys[j].entity {
			return keys[i].entity < keys[j].entity
		}
		return keys[i].metric < keys[j].metric
	})

	var suggestions []models.AlarmSuggestion
	for _, k := range keys {
		values := groups[k]
		if len(values) < as.minAnomaliesForSuggestion {
			continue
		}
		if suggestion := as.generateSuggestion(k.entity, k.metric, values); suggestion != nil {
			suggestions = append(suggestions, *suggestion)
		}
	}

	return suggestions
}

// generateSuggestion creates an alarm suggestion for a metric with repeated anomalies
func (as *AlarmSuggester) generateSuggestion(entity, metricType string, values []float64) *models.AlarmSuggestion {
	if len(values) == 0 {
		return nil
	}

	mean := calculateMean(values)
	stdDev := calculateStdDev(values, mean)

	// Suggest threshold based on anomaly pattern
	var threshold float64
	var operator string
	var description string

	switch metricType {
	case "temperature_2m":
		if mean > 30 {
			threshold = mean + (2 * stdDev)
			operator = ">"
			description = "Temperature exceeding normal range"
		} else if mean < 0 {
			threshold = mean - (2 * stdDev)
			operator = "<"
			description = "Temperature dropping below normal range"
		} else {
			return nil
		}

	case "precipitation":
		threshold = mean + (2 * stdDev)
		operator = ">"
		description = "Precipitation exceeding normal levels"

	case "price":
		threshold = mean + (2 * stdDev)
		operator = ">"
		description = fmt.Sprintf("Price jumping above anomalous average of %.2f", mean)

	default:
		return nil
	}

	confidence := as.calculateConfidence(values, threshold, operator)

	return &models.AlarmSuggestion{
		Entity:       entity,
		MetricType:   metricType,
		Threshold:    threshold,
		Operator:     operator,
		SuggestedAt:  as.now().UTC(),
		Confidence:   confidence,
		Description:  description,
		AnomalyCount: len(values),
	}
}

// calculateConfidence calculates how confident we are in the alarm threshold
func (as *AlarmSuggester) calculateConfidence(values []float64, threshold float64, operator string) float64 {
	if len(values) == 0 {
		return 0
	}

	// Count how many values would trigger the alarm
	triggeredCount := 0
	for _, v := range values {
		if operator == ">" && v > threshold {
			triggeredCount++
		} else if operator == "<" && v < threshold {
			triggeredCount++
		}
	}

	// Confidence is the ratio of triggered values (0 to 1)
	return float64(triggeredCount) / float64(len(values))
}
