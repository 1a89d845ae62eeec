package processor

import (
	"fmt"
	"strconv"
	"time"

	"harvest/internal/dataset"
	"harvest/internal/models"
)

// table is one tabular artifact, rendered both to CSV and to a workbook sheet.
type table struct {
	file   string
	sheet  string
	header []string
	rows   [][]any
}

func cellString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case *float64:
		return models.FormatFloat(x)
	case *int:
		return models.FormatInt(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return models.FormatTime(x)
	default:
		return fmt.Sprint(x)
	}
}

// cellValue is the workbook form of v: numbers stay numeric, absent is blank.
func cellValue(v any) any {
	switch x := v.(type) {
	case *float64:
		if x == nil {
			return nil
		}
		return *x
	case *int:
		if x == nil {
			return nil
		}
		return *x
	case time.Time:
		return models.FormatTime(x)
	default:
		return x
	}
}

func (t table) csvRows() [][]string {
	out := make([][]string, len(t.rows))
	for i, row := range t.rows {
		rec := make([]string, len(row))
		for j, v := range row {
			rec[j] = cellString(v)
		}
		out[i] = rec
	}
	return out
}

func day(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

func curatedProductsTable(products []models.Product) table {
	t := table{file: "curated/products_curated.csv", header: dataset.ProductColumns}
	for _, p := range products {
		r := p.Raw()
		t.rows = append(t.rows, []any{r.Source, r.ProductName, r.Price, r.Availability, r.Rating, r.URL, r.ScrapedAt})
	}
	return t
}

func curatedWeatherTable(readings []models.Weather) table {
	t := table{file: "curated/weather_hourly_curated.csv", header: dataset.WeatherColumns}
	for _, w := range readings {
		r := w.Raw()
		t.rows = append(t.rows, []any{r.City, r.Time, r.Temperature, r.Precipitation, r.Humidity, r.WindSpeed})
	}
	return t
}

func dailyPriceTable(aggs []models.DailyPrice) table {
	t := table{
		file:   "agg/daily_price_stats.csv",
		sheet:  "Daily prices",
		header: []string{"url", "day", "min_price", "avg_price", "max_price", "last_price", "n_obs"},
	}
	for _, a := range aggs {
		t.rows = append(t.rows, []any{a.URL, day(a.Day), a.MinPrice, a.AvgPrice, a.MaxPrice, a.LastPrice, a.NObs})
	}
	return t
}

func dailyWeatherTable(aggs []models.DailyWeather) table {
	t := table{
		file:   "agg/weather_daily_stats.csv",
		sheet:  "Daily weather",
		header: []string{"city", "day", "avg_temp", "avg_rh", "total_precip", "avg_wind", "n_obs"},
	}
	for _, a := range aggs {
		t.rows = append(t.rows, []any{a.City, day(a.Day), a.AvgTemp, a.AvgHumidity, a.TotalPrecip, a.AvgWind, a.NObs})
	}
	return t
}

func priceAnomalyTable(anomalies []models.PriceAnomaly) table {
	t := table{
		file:   "alerts/price_anomalies.csv",
		sheet:  "Price anomalies",
		header: []string{"url", "scraped_at", "price_gbp", "price_prev", "delta", "delta_z", "delta_mean", "delta_std", "severity"},
	}
	for _, a := range anomalies {
		t.rows = append(t.rows, []any{a.URL, a.ScrapedAt, a.Price, a.PricePrev, a.Delta, a.DeltaZ, a.DeltaMean, a.DeltaStd, a.Severity})
	}
	return t
}

func weatherAnomalyTable(anomalies []models.WeatherAnomaly) table {
	t := table{
		file:  "alerts/weather_anomalies.csv",
		sheet: "Weather anomalies",
		header: []string{"city", "time", "temperature_2m", "temp_z", "temp_mean", "temp_std",
			"precipitation", "precip_outlier", "precip_q1", "precip_q3", "wind_speed_10m", "severity"},
	}
	for _, a := range anomalies {
		t.rows = append(t.rows, []any{a.City, a.Time, a.Temperature, a.TempZ, a.TempMean, a.TempStd,
			a.Precipitation, a.PrecipOutlier, a.PrecipQ1, a.PrecipQ3, a.WindSpeed, a.Severity})
	}
	return t
}
