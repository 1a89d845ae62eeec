package detector

import (
	"log"
	"math"
	"sort"
	"time"

	"harvest/internal/config"
	"harvest/internal/metrics"
	"harvest/internal/models"
)

// ZeroVariancePolicy controls what happens to an entity whose series has no
// spread. Scores are 0 under both policies; "report" additionally lists the
// entity so constant series are visible in the run summary.
type ZeroVariancePolicy string

const (
	ZeroVarianceIgnore ZeroVariancePolicy = "ignore"
	ZeroVarianceReport ZeroVariancePolicy = "report"
)

// AnomalyDetector applies the per-entity anomaly rules
type AnomalyDetector struct {
	zScoreThreshold float64 // |z| at or above this is flagged
	iqrMultiplier   float64 // fence width in IQRs around the quartiles
	zeroVariance    ZeroVariancePolicy
}

// NewAnomalyDetector creates a detector from pipeline options
func NewAnomalyDetector(cfg config.PipelineConfig) *AnomalyDetector {
	ad := &AnomalyDetector{
		zScoreThreshold: cfg.ZThreshold,
		iqrMultiplier:   cfg.IQRMultiplier,
		zeroVariance:    ZeroVariancePolicy(cfg.ZeroVariance),
	}
	if ad.zScoreThreshold <= 0 {
		ad.zScoreThreshold = 3.0
	}
	if ad.iqrMultiplier <= 0 {
		ad.iqrMultiplier = 1.5
	}
	if ad.zeroVariance == "" {
		ad.zeroVariance = ZeroVarianceIgnore
	}
	return ad
}

// ConstantSeries names an entity whose series had zero or undefined variance.
type ConstantSeries struct {
	Entity string `json:"entity"`
	Metric string `json:"metric"`
}

// IsOutlier checks if a Z-score reaches the detector's threshold
func (ad *AnomalyDetector) IsOutlier(zScore float64) bool {
	return math.Abs(zScore) >= ad.zScoreThreshold
}

// calculateSeverityFromZScore grades a flagged score relative to the threshold
func (ad *AnomalyDetector) calculateSeverityFromZScore(zScore float64) string {
	absZScore := math.Abs(zScore)
	if absZScore >= 2*ad.zScoreThreshold {
		return "high"
	} else if absZScore >= 1.5*ad.zScoreThreshold {
		return "medium"
	}
	return "low"
}

func (ad *AnomalyDetector) constant(out *[]ConstantSeries, entity, metric string) {
	if ad.zeroVariance != ZeroVarianceReport {
		return
	}
	log.Printf("Warning: %s for %s has no variation, scores set to 0", metric, entity)
	*out = append(*out, ConstantSeries{Entity: entity, Metric: metric})
}

// partition groups records by entity and orders each series by time.
func partition[T any](records []T, identity func(T) (string, time.Time)) (map[string][]T, []string) {
	groups := make(map[string][]T)
	var keys []string
	for _, r := range records {
		k, _ := identity(r)
		if _, ok := groups[k]; !ok {
			keys = append(keys, k)
		}
		groups[k] = append(groups[k], r)
	}
	sort.Strings(keys)
	for _, k := range keys {
		series := groups[k]
		sort.SliceStable(series, func(i, j int) bool {
			_, ti := identity(series[i])
			_, tj := identity(series[j])
			return ti.Before(tj)
		})
	}
	return groups, keys
}

// PriceAnomalies flags price transitions per product. Within each product's
// time-ordered series the deltas between consecutive observations are
// standardized by that product's own delta mean and population deviation.
// A delta is undefined when either side has no price.
func (ad *AnomalyDetector) PriceAnomalies(products []models.Product) ([]models.PriceAnomaly, []ConstantSeries) {
	groups, keys := partition(products, func(p models.Product) (string, time.Time) { return p.URL, p.ScrapedAt })

	anomalies := []models.PriceAnomaly{}
	var constant []ConstantSeries

	for _, url := range keys {
		anomalies = append(anomalies, ad.priceSeries(url, groups[url], &constant)...)
	}

	metrics.AnomaliesTotal.WithLabelValues("product").Add(float64(len(anomalies)))
	return anomalies, constant
}

func (ad *AnomalyDetector) priceSeries(url string, series []models.Product, constant *[]ConstantSeries) []models.PriceAnomaly {
	type transition struct {
		at          time.Time
		price, prev float64
		delta       float64
	}

	var transitions []transition
	for i := 1; i < len(series); i++ {
		cur, prev := series[i].Price, series[i-1].Price
		if cur == nil || prev == nil {
			continue
		}
		transitions = append(transitions, transition{
			at:    series[i].ScrapedAt,
			price: *cur,
			prev:  *prev,
			delta: *cur - *prev,
		})
	}
	if len(transitions) == 0 {
		return nil
	}

	deltas := make([]float64, len(transitions))
	for i, tr := range transitions {
		deltas[i] = tr.delta
	}
	mean := calculateMean(deltas)
	stdDev := calculatePopulationStdDev(deltas, mean)
	if negligible(stdDev, mean) {
		ad.constant(constant, url, "price_delta")
		return nil
	}

	var out []models.PriceAnomaly
	for _, tr := range transitions {
		z := CalculateZScore(tr.delta, mean, stdDev)
		if !ad.IsOutlier(z) {
			continue
		}
		out = append(out, models.PriceAnomaly{
			URL:       url,
			ScrapedAt: tr.at,
			Price:     tr.price,
			PricePrev: tr.prev,
			Delta:     tr.delta,
			DeltaZ:    z,
			DeltaMean: mean,
			DeltaStd:  stdDev,
			Severity:  ad.calculateSeverityFromZScore(z),
		})
	}
	return out
}

// WeatherAnomalies flags hourly readings per city whose temperature z-score
// reaches the threshold or whose precipitation falls outside the IQR fences.
// Absent readings never fire a rule.
func (ad *AnomalyDetector) WeatherAnomalies(readings []models.Weather) ([]models.WeatherAnomaly, []ConstantSeries) {
	groups, keys := partition(readings, func(w models.Weather) (string, time.Time) { return w.City, w.Time })

	anomalies := []models.WeatherAnomaly{}
	var constant []ConstantSeries

	for _, city := range keys {
		anomalies = append(anomalies, ad.weatherSeries(city, groups[city], &constant)...)
	}

	metrics.AnomaliesTotal.WithLabelValues("weather").Add(float64(len(anomalies)))
	return anomalies, constant
}

func present(series []models.Weather, field func(models.Weather) *float64) []float64 {
	var values []float64
	for _, w := range series {
		if v := field(w); v != nil {
			values = append(values, *v)
		}
	}
	return values
}

func (ad *AnomalyDetector) weatherSeries(city string, series []models.Weather, constant *[]ConstantSeries) []models.WeatherAnomaly {
	temps := present(series, func(w models.Weather) *float64 { return w.Temperature })
	tempMean := calculateMean(temps)
	tempStd := calculatePopulationStdDev(temps, tempMean)
	if len(temps) > 0 && negligible(tempStd, tempMean) {
		tempStd = 0
		ad.constant(constant, city, "temperature_2m")
	}

	precips := present(series, func(w models.Weather) *float64 { return w.Precipitation })
	var q1, q3, low, high, extremeLow, extremeHigh float64
	if len(precips) > 0 {
		q1, q3 = quantile(precips, 0.25), quantile(precips, 0.75)
		iqr := q3 - q1
		low, high = q1-ad.iqrMultiplier*iqr, q3+ad.iqrMultiplier*iqr
		extremeLow, extremeHigh = q1-2*ad.iqrMultiplier*iqr, q3+2*ad.iqrMultiplier*iqr
	}

	var out []models.WeatherAnomaly
	for _, w := range series {
		var tempZ *float64
		tempFlag := false
		if w.Temperature != nil {
			z := CalculateZScore(*w.Temperature, tempMean, tempStd)
			tempZ = &z
			tempFlag = ad.IsOutlier(z)
		}

		precipFlag := w.Precipitation != nil && (*w.Precipitation < low || *w.Precipitation > high)

		if !tempFlag && !precipFlag {
			continue
		}

		a := models.WeatherAnomaly{
			City:          city,
			Time:          w.Time,
			Temperature:   w.Temperature,
			TempZ:         tempZ,
			TempMean:      tempMean,
			TempStd:       tempStd,
			Precipitation: w.Precipitation,
			PrecipOutlier: precipFlag,
			WindSpeed:     w.WindSpeed,
			Severity:      "low",
		}
		if len(precips) > 0 {
			a.PrecipQ1, a.PrecipQ3 = models.Float(q1), models.Float(q3)
		}
		if tempFlag {
			a.Severity = ad.calculateSeverityFromZScore(*tempZ)
		}
		if precipFlag {
			p := *w.Precipitation
			precipSeverity := "medium"
			if p < extremeLow || p > extremeHigh {
				precipSeverity = "high"
			}
			a.Severity = maxSeverity(a.Severity, precipSeverity)
		}
		out = append(out, a)
	}
	return out
}

var severityRank = map[string]int{"low": 0, "medium": 1, "high": 2}

func maxSeverity(a, b string) string {
	if severityRank[b] > severityRank[a] {
		return b
	}
	return a
}
