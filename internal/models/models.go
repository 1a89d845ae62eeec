package models

import (
	"strconv"
	"time"
)

// Forecast represents the hourly payload returned by the Open-Meteo forecast API
type Forecast struct {
	Latitude         float64     `json:"latitude"`
	Longitude        float64     `json:"longitude"`
	Timezone         string      `json:"timezone"`
	HourlyUnits      HourlyUnits `json:"hourly_units"`
	Hourly           Hourly      `json:"hourly"`
	GenerationTimeMs float64     `json:"generation_time_ms"`
}

type HourlyUnits struct {
	Time               string `json:"time"`
	Temperature2m      string `json:"temperature_2m"`
	RelativeHumidity2m string `json:"relative_humidity_2m"`
	Precipitation      string `json:"precipitation"`
	WindSpeed10m       string `json:"wind_speed_10m"`
}

// Hourly holds parallel arrays; the API reports missing readings as null.
type Hourly struct {
	Time               []string   `json:"time"`
	Temperature2m      []*float64 `json:"temperature_2m"`
	Precipitation      []*float64 `json:"precipitation"`
	RelativeHumidity2m []*float64 `json:"relative_humidity_2m"`
	WindSpeed10m       []*float64 `json:"wind_speed_10m"`
}

// GeocodeResponse is the Open-Meteo geocoding search payload
type GeocodeResponse struct {
	Results []GeocodeResult `json:"results"`
}

type GeocodeResult struct {
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Country   string  `json:"country"`
}

// Location is a geocoded city
type Location struct {
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Country   string  `json:"country"`
}

// RawProduct is one scraped listing row exactly as it sits in a raw batch file.
// All values are text; the cleaner owns type coercion.
type RawProduct struct {
	Source       string
	ProductName  string
	Price        string
	Availability string
	Rating       string
	URL          string
	ScrapedAt    string
}

// RawWeather is one hourly reading row from a raw batch file.
type RawWeather struct {
	City          string
	Time          string
	Temperature   string
	Humidity      string
	Precipitation string
	WindSpeed     string
}

// Product is a cleaned listing observation. Nil pointers are absent values.
type Product struct {
	Source       string    `json:"source"`
	ProductName  string    `json:"product_name"`
	Price        *float64  `json:"price"`
	Availability string    `json:"availability"`
	Rating       *int      `json:"rating"`
	URL          string    `json:"url"`
	ScrapedAt    time.Time `json:"scraped_at"`
}

// Raw converts a cleaned product back to its raw text form.
func (p Product) Raw() RawProduct {
	return RawProduct{
		Source:       p.Source,
		ProductName:  p.ProductName,
		Price:        FormatFloat(p.Price),
		Availability: p.Availability,
		Rating:       FormatInt(p.Rating),
		URL:          p.URL,
		ScrapedAt:    FormatTime(p.ScrapedAt),
	}
}

// Weather is a cleaned hourly observation.
type Weather struct {
	City          string    `json:"city"`
	Time          time.Time `json:"time"`
	Temperature   *float64  `json:"temperature_2m"`
	Humidity      *float64  `json:"relative_humidity_2m"`
	Precipitation *float64  `json:"precipitation"`
	WindSpeed     *float64  `json:"wind_speed_10m"`
}

func (w Weather) Raw() RawWeather {
	return RawWeather{
		City:          w.City,
		Time:          FormatTime(w.Time),
		Temperature:   FormatFloat(w.Temperature),
		Humidity:      FormatFloat(w.Humidity),
		Precipitation: FormatFloat(w.Precipitation),
		WindSpeed:     FormatFloat(w.WindSpeed),
	}
}

// DailyPrice summarises one product's observations on one UTC calendar day
type DailyPrice struct {
	URL       string    `json:"url"`
	Day       time.Time `json:"day"`
	MinPrice  *float64  `json:"min_price"`
	AvgPrice  *float64  `json:"avg_price"`
	MaxPrice  *float64  `json:"max_price"`
	LastPrice *float64  `json:"last_price"`
	NObs      int       `json:"n_obs"`
}

// DailyWeather summarises one city's readings on one UTC calendar day
type DailyWeather struct {
	City        string    `json:"city"`
	Day         time.Time `json:"day"`
	AvgTemp     *float64  `json:"avg_temp"`
	AvgHumidity *float64  `json:"avg_rh"`
	TotalPrecip *float64  `json:"total_precip"`
	AvgWind     *float64  `json:"avg_wind"`
	NObs        int       `json:"n_obs"`
}

// PriceAnomaly is a flagged price transition between consecutive observations
type PriceAnomaly struct {
	URL       string    `json:"url"`
	ScrapedAt time.Time `json:"scraped_at"`
	Price     float64   `json:"price"`
	PricePrev float64   `json:"price_prev"`
	Delta     float64   `json:"delta"`
	DeltaZ    float64   `json:"delta_z"`
	DeltaMean float64   `json:"delta_mean"`
	DeltaStd  float64   `json:"delta_std"`
	Severity  string    `json:"severity"` // "low", "medium", "high"
}

// WeatherAnomaly is a flagged hourly reading. TempZ and the quartile
// baseline are nil when the corresponding rule had no data to work with.
type WeatherAnomaly struct {
	City          string    `json:"city"`
	Time          time.Time `json:"time"`
	Temperature   *float64  `json:"temperature_2m"`
	TempZ         *float64  `json:"temp_z"`
	TempMean      float64   `json:"temp_mean"`
	TempStd       float64   `json:"temp_std"`
	Precipitation *float64  `json:"precipitation"`
	PrecipOutlier bool      `json:"precip_outlier"`
	PrecipQ1      *float64  `json:"precip_q1"`
	PrecipQ3      *float64  `json:"precip_q3"`
	WindSpeed     *float64  `json:"wind_speed_10m"`
	Severity      string    `json:"severity"`
}

// AlarmSuggestion represents a suggested alarm rule
type AlarmSuggestion struct {
	Entity       string    `json:"entity"`
	MetricType   string    `json:"metric_type"`
	Threshold    float64   `json:"threshold"`
	Operator     string    `json:"operator"` // ">", "<"
	SuggestedAt  time.Time `json:"suggested_at"`
	Confidence   float64   `json:"confidence"` // 0-1
	Description  string    `json:"description"`
	AnomalyCount int       `json:"anomaly_count"`
}

// FormatFloat renders an optional value for tabular output; absent is empty.
func FormatFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func FormatInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}

func Int(v int) *int {
	return &v
}
