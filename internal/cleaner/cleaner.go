package cleaner

import (
	"log"
	"sort"
	"strings"
	"time"

	"harvest/internal/metrics"
	"harvest/internal/models"
)

// Value ranges outside of which a reading is treated as absent.
const (
	MinTemperature = -80.0
	MaxTemperature = 80.0
	MinHumidity    = 0.0
	MaxHumidity    = 100.0
)

// Stats summarizes one cleaning pass.
type Stats struct {
	Input         int `json:"input"`
	Output        int `json:"output"`
	Rejected      int `json:"rejected"`
	Duplicates    int `json:"duplicates"`
	ParseFailures int `json:"parse_failures"`
}

func (s Stats) record(dataset string) {
	metrics.RecordsTotal.WithLabelValues(dataset, "raw").Add(float64(s.Input))
	metrics.RecordsTotal.WithLabelValues(dataset, "cleaned").Add(float64(s.Output))
	metrics.RecordsTotal.WithLabelValues(dataset, "rejected").Add(float64(s.Rejected))
	metrics.RecordsTotal.WithLabelValues(dataset, "duplicate").Add(float64(s.Duplicates))
}

func reject(stats *Stats, dataset, key, reason string) {
	stats.Rejected++
	log.Printf("Warning: rejected %s record %q: %s", dataset, key, reason)
}

// CleanProducts coerces and validates raw product rows, then keeps one
// record per (url, scraped_at), the last surviving one in input order.
func CleanProducts(raw []models.RawProduct) ([]models.Product, Stats) {
	stats := Stats{Input: len(raw)}
	valid := make([]models.Product, 0, len(raw))

	for _, r := range raw {
		key := strings.TrimSpace(r.URL)
		if key == "" {
			reject(&stats, "product", r.ProductName, "missing url")
			continue
		}
		ts, ok := ParseTimestamp(r.ScrapedAt)
		if !ok {
			reject(&stats, "product", key, "unparsable scraped_at "+r.ScrapedAt)
			continue
		}

		price, ok := parseNumber(r.Price)
		if !ok {
			stats.ParseFailures++
		}
		if price != nil && *price < 0 {
			reject(&stats, "product", key, "negative price")
			continue
		}

		rating, ok := parseRating(r.Rating)
		if !ok {
			stats.ParseFailures++
		}

		valid = append(valid, models.Product{
			Source:       strings.TrimSpace(r.Source),
			ProductName:  strings.TrimSpace(r.ProductName),
			Price:        price,
			Availability: strings.Join(strings.Fields(r.Availability), " "),
			Rating:       rating,
			URL:          key,
			ScrapedAt:    ts,
		})
	}

	out := dedupe(valid, func(p models.Product) (string, time.Time) { return p.URL, p.ScrapedAt })
	stats.Duplicates = len(valid) - len(out)
	stats.Output = len(out)
	stats.record("product")
	return out, stats
}

// CleanWeather coerces and range-checks raw hourly readings, then keeps one
// record per (city, time).
func CleanWeather(raw []models.RawWeather) ([]models.Weather, Stats) {
	stats := Stats{Input: len(raw)}
	valid := make([]models.Weather, 0, len(raw))

	number := func(s string) *float64 {
		v, ok := parseNumber(s)
		if !ok {
			stats.ParseFailures++
		}
		return v
	}

	for _, r := range raw {
		key := strings.TrimSpace(r.City)
		if key == "" {
			reject(&stats, "weather", r.Time, "missing city")
			continue
		}
		ts, ok := ParseTimestamp(r.Time)
		if !ok {
			reject(&stats, "weather", key, "unparsable time "+r.Time)
			continue
		}

		w := models.Weather{
			City:          key,
			Time:          ts,
			Temperature:   within(number(r.Temperature), MinTemperature, MaxTemperature),
			Humidity:      within(number(r.Humidity), MinHumidity, MaxHumidity),
			Precipitation: nonNegative(number(r.Precipitation)),
			WindSpeed:     nonNegative(number(r.WindSpeed)),
		}
		valid = append(valid, w)
	}

	out := dedupe(valid, func(w models.Weather) (string, time.Time) { return w.City, w.Time })
	stats.Duplicates = len(valid) - len(out)
	stats.Output = len(out)
	stats.record("weather")
	return out, stats
}

func nonNegative(v *float64) *float64 {
	if v == nil || *v < 0 {
		return nil
	}
	return v
}

// dedupe stable-sorts by (timestamp, key) and keeps the last record of each
// run of equal (key, timestamp).
func dedupe[T any](records []T, identity func(T) (string, time.Time)) []T {
	sort.SliceStable(records, func(i, j int) bool {
		ki, ti := identity(records[i])
		kj, tj := identity(records[j])
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return ki < kj
	})

	out := make([]T, 0, len(records))
	for i, r := range records {
		if i+1 < len(records) {
			k, t := identity(r)
			nk, nt := identity(records[i+1])
			if k == nk && t.Equal(nt) {
				continue
			}
		}
		out = append(out, r)
	}
	return out
}
