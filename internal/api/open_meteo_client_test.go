package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"harvest/internal/fetch"
	"harvest/internal/models"
)

func newTestClient(forecastURL, geocodingURL string) *OpenMeteoClient {
	policy := fetch.DefaultRetryPolicy()
	policy.BackoffFactor = 0
	f := fetch.NewFetcher(nil, policy, time.Second, fetch.APIHeaders(""))
	return NewOpenMeteoClient(f).WithBaseURLs(forecastURL, geocodingURL)
}

func TestNewOpenMeteoClient(t *testing.T) {
	client := NewOpenMeteoClient(nil)
	if client == nil {
		t.Fatal("NewOpenMeteoClient() returned nil")
	}

	if client.forecastURL != DefaultForecastURL {
		t.Errorf("forecastURL = %v, want %v", client.forecastURL, DefaultForecastURL)
	}
	if client.geocodingURL != DefaultGeocodingURL {
		t.Errorf("geocodingURL = %v, want %v", client.geocodingURL, DefaultGeocodingURL)
	}
}

func TestBuildURL(t *testing.T) {
	client := NewOpenMeteoClient(nil)

	tests := []struct {
		name   string
		params ForecastParams
		want   string
	}{
		{
			name: "hourly data with past and forecast days",
			params: ForecastParams{
				Latitude:     -16.6786,
				Longitude:    -49.2539,
				HourlyFields: HourlyFields,
				Timezone:     "UTC",
				PastDays:     1,
				ForecastDays: 1,
			},
			want: "https://api.open-meteo.com/v1/forecast?latitude=-16.6786&longitude=-49.2539&timezone=UTC&past_days=1&forecast_days=1&hourly=temperature_2m,precipitation,relative_humidity_2m,wind_speed_10m",
		},
		{
			name: "default timezone",
			params: ForecastParams{
				Latitude:     37.7749,
				Longitude:    -122.4194,
				HourlyFields: []string{"temperature_2m"},
			},
			want: "https://api.open-meteo.com/v1/forecast?latitude=37.7749&longitude=-122.4194&timezone=UTC&forecast_days=0&hourly=temperature_2m",
		},
		{
			name: "named timezone is escaped",
			params: ForecastParams{
				Latitude:     51.5074,
				Longitude:    -0.1278,
				HourlyFields: []string{"precipitation"},
				Timezone:     "America/Sao_Paulo",
				ForecastDays: 2,
			},
			want: "https://api.open-meteo.com/v1/forecast?latitude=51.5074&longitude=-0.1278&timezone=America%2FSao_Paulo&forecast_days=2&hourly=precipitation",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := client.BuildURL(tt.params)
			if got != tt.want {
				t.Errorf("BuildURL() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGeocodeURL(t *testing.T) {
	client := NewOpenMeteoClient(nil)

	tests := []struct {
		city, language, want string
	}{
		{"Goiânia", "pt", "https://geocoding-api.open-meteo.com/v1/search?name=Goi%C3%A2nia&count=1&language=pt&format=json"},
		{"São Paulo", "", "https://geocoding-api.open-meteo.com/v1/search?name=S%C3%A3o+Paulo&count=1&language=pt&format=json"},
		{"Berlin", "en", "https://geocoding-api.open-meteo.com/v1/search?name=Berlin&count=1&language=en&format=json"},
	}

	for _, tt := range tests {
		t.Run(tt.city, func(t *testing.T) {
			if got := client.GeocodeURL(tt.city, tt.language); got != tt.want {
				t.Errorf("GeocodeURL() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGeocode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("name") == "Nowhere" {
			w.Write([]byte(`{"generationtime_ms":0.3}`))
			return
		}
		w.Write([]byte(`{"results":[{"name":"Goiânia","latitude":-16.67861,"longitude":-49.25389,"country":"Brasil"},{"name":"Other","latitude":1,"longitude":2}]}`))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL, srv.URL)

	loc, err := client.Geocode(context.Background(), "Goiânia", "pt")
	if err != nil {
		t.Fatalf("Geocode() error = %v", err)
	}
	want := models.Location{Name: "Goiânia", Latitude: -16.67861, Longitude: -49.25389, Country: "Brasil"}
	if *loc != want {
		t.Errorf("Geocode() = %+v, want %+v", *loc, want)
	}

	_, err = client.Geocode(context.Background(), "Nowhere", "pt")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Geocode() error = %v, want ErrNotFound", err)
	}

	_, err = client.Geocode(context.Background(), "  ", "pt")
	if err == nil || err.Error() != "Geocode: no city provided" {
		t.Errorf("Geocode() error = %v, want no city provided", err)
	}
}

func TestGetHourlyWeather(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Write([]byte(`{
			"latitude": -16.68, "longitude": -49.25, "timezone": "UTC",
			"hourly": {
				"time": ["2024-05-01T00:00", "2024-05-01T01:00"],
				"temperature_2m": [21.5, null],
				"precipitation": [0.0, 0.4],
				"relative_humidity_2m": [80, 82],
				"wind_speed_10m": [5.1, 4.9]
			}
		}`))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL, srv.URL)

	forecast, err := client.GetHourlyWeather(context.Background(), -16.68, -49.25, "UTC", 1, 1)
	if err != nil {
		t.Fatalf("GetHourlyWeather() error = %v", err)
	}
	if !strings.Contains(gotQuery, "past_days=1") || !strings.Contains(gotQuery, "hourly=temperature_2m") {
		t.Errorf("unexpected query %q", gotQuery)
	}

	rows := NormalizeHourly("Goiânia", forecast)
	if len(rows) != 2 {
		t.Fatalf("NormalizeHourly() returned %d rows, want 2", len(rows))
	}

	want := []models.RawWeather{
		{City: "Goiânia", Time: "2024-05-01T00:00", Temperature: "21.5", Precipitation: "0", Humidity: "80", WindSpeed: "5.1"},
		{City: "Goiânia", Time: "2024-05-01T01:00", Temperature: "", Precipitation: "0.4", Humidity: "82", WindSpeed: "4.9"},
	}
	for i := range want {
		if rows[i] != want[i] {
			t.Errorf("row %d = %+v, want %+v", i, rows[i], want[i])
		}
	}
}

func TestGetForecast_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":true,"reason":"bad latitude"}`))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL, srv.URL)

	_, err := client.GetHourlyWeather(context.Background(), 999, 0, "UTC", 1, 1)
	if !errors.Is(err, fetch.ErrFetchFailure) {
		t.Errorf("GetHourlyWeather() error = %v, want fetch failure", err)
	}
}

func TestNormalizeHourly_ShortSeries(t *testing.T) {
	v := 3.0
	forecast := &models.Forecast{Hourly: models.Hourly{
		Time:          []string{"2024-05-01T00:00", "2024-05-01T01:00"},
		Temperature2m: []*float64{&v},
	}}

	rows := NormalizeHourly("X", forecast)
	if rows[1].Temperature != "" {
		t.Errorf("missing trailing value should be empty, got %q", rows[1].Temperature)
	}
	if NormalizeHourly("X", nil) != nil {
		t.Error("NormalizeHourly(nil) should be nil")
	}
}
