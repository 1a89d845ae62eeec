package api

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"harvest/internal/fetch"
	"harvest/internal/models"
)

const (
	DefaultForecastURL  = "https://api.open-meteo.com/v1/forecast"
	DefaultGeocodingURL = "https://geocoding-api.open-meteo.com/v1/search"
)

// HourlyFields are the hourly series requested for every city
var HourlyFields = []string{"temperature_2m", "precipitation", "relative_humidity_2m", "wind_speed_10m"}

// ErrNotFound is returned when geocoding yields no results
var ErrNotFound = errors.New("city not found")

// OpenMeteoClient is a client for the Open-Meteo forecast and geocoding APIs
type OpenMeteoClient struct {
	fetcher      *fetch.Fetcher
	forecastURL  string
	geocodingURL string
}

type ForecastParams struct {
	Latitude     float64
	Longitude    float64
	HourlyFields []string
	Timezone     string
	PastDays     int // how many days in the past you want to get
	ForecastDays int // how many days in the future you want to forecast
}

// NewOpenMeteoClient creates a client on top of the shared fetcher
func NewOpenMeteoClient(fetcher *fetch.Fetcher) *OpenMeteoClient {
	return &OpenMeteoClient{
		fetcher:      fetcher,
		forecastURL:  DefaultForecastURL,
		geocodingURL: DefaultGeocodingURL,
	}
}

// WithBaseURLs points the client at alternative endpoints (used by tests)
func (c *OpenMeteoClient) WithBaseURLs(forecastURL, geocodingURL string) *OpenMeteoClient {
	c.forecastURL = forecastURL
	c.geocodingURL = geocodingURL
	return c
}

// Geocode resolves a city name to coordinates using the first search result
func (c *OpenMeteoClient) Geocode(ctx context.Context, city, language string) (*models.Location, error) {
	if strings.TrimSpace(city) == "" {
		return nil, fmt.Errorf("Geocode: no city provided")
	}

	var resp models.GeocodeResponse
	if err := c.fetcher.GetJSON(ctx, c.GeocodeURL(city, language), &resp); err != nil {
		return nil, fmt.Errorf("failed to geocode %s: %w", city, err)
	}
	if len(resp.Results) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, city)
	}

	r := resp.Results[0]
	return &models.Location{
		Name:      r.Name,
		Latitude:  r.Latitude,
		Longitude: r.Longitude,
		Country:   r.Country,
	}, nil
}

// GetForecast fetches the forecast payload described by forecastParams
func (c *OpenMeteoClient) GetForecast(ctx context.Context, forecastParams ForecastParams) (*models.Forecast, error) {
	var forecast models.Forecast
	if err := c.fetcher.GetJSON(ctx, c.BuildURL(forecastParams), &forecast); err != nil {
		return nil, fmt.Errorf("failed to fetch forecast: %w", err)
	}
	return &forecast, nil
}

// GetHourlyWeather fetches the standard hourly series around now
func (c *OpenMeteoClient) GetHourlyWeather(ctx context.Context, lat, long float64, timezone string, pastDays, forecastDays int) (*models.Forecast, error) {
	return c.GetForecast(ctx, ForecastParams{
		Latitude:     lat,
		Longitude:    long,
		HourlyFields: HourlyFields,
		Timezone:     timezone,
		PastDays:     pastDays,
		ForecastDays: forecastDays,
	})
}

// BuildURL builds the forecast request URL
func (c *OpenMeteoClient) BuildURL(forecastParams ForecastParams) string {
	if forecastParams.Timezone == "" {
		forecastParams.Timezone = "UTC"
	}

	u := fmt.Sprintf("%s?latitude=%.4f&longitude=%.4f&timezone=%s",
		c.forecastURL, forecastParams.Latitude, forecastParams.Longitude, url.QueryEscape(forecastParams.Timezone))

	if forecastParams.PastDays > 0 {
		u += fmt.Sprintf("&past_days=%d", forecastParams.PastDays)
	}

	if forecastParams.ForecastDays >= 0 {
		u += fmt.Sprintf("&forecast_days=%d", forecastParams.ForecastDays)
	}

	if len(forecastParams.HourlyFields) > 0 {
		u += "&hourly=" + strings.Join(forecastParams.HourlyFields, ",")
	}

	return u
}

// GeocodeURL builds the geocoding search URL for a single best match
func (c *OpenMeteoClient) GeocodeURL(city, language string) string {
	if language == "" {
		language = "pt"
	}
	return fmt.Sprintf("%s?name=%s&count=1&language=%s&format=json",
		c.geocodingURL, url.QueryEscape(city), url.QueryEscape(language))
}

// NormalizeHourly flattens the parallel hourly arrays into one row per
// timestamp. Missing or null readings become empty cells.
func NormalizeHourly(city string, forecast *models.Forecast) []models.RawWeather {
	if forecast == nil {
		return nil
	}
	h := forecast.Hourly
	rows := make([]models.RawWeather, 0, len(h.Time))
	for i, ts := range h.Time {
		rows = append(rows, models.RawWeather{
			City:          city,
			Time:          ts,
			Temperature:   models.FormatFloat(at(h.Temperature2m, i)),
			Precipitation: models.FormatFloat(at(h.Precipitation, i)),
			Humidity:      models.FormatFloat(at(h.RelativeHumidity2m, i)),
			WindSpeed:     models.FormatFloat(at(h.WindSpeed10m, i)),
		})
	}
	return rows
}

func at(values []*float64, i int) *float64 {
	if i < len(values) {
		return values[i]
	}
	return nil
}
