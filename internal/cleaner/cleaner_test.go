package cleaner

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"harvest/internal/models"
)

func TestParseTimestamp(t *testing.T) {
	want := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		in   string
		ok   bool
		want time.Time
	}{
		{"2024-05-01T10:00:00Z", true, want},
		{"2024-05-01T07:00:00-03:00", true, want},
		{"2024-05-01T10:00:00", true, want},
		{"2024-05-01T10:00", true, want},
		{"2024-05-01 10:00:00", true, want},
		{" 2024-05-01T10:00:00.000Z ", true, want},
		{"2024-05-01", true, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)},
		{"yesterday", false, time.Time{}},
		{"", false, time.Time{}},
	}

	for _, tt := range tests {
		got, ok := ParseTimestamp(tt.in)
		if ok != tt.ok || !got.Equal(tt.want) {
			t.Errorf("ParseTimestamp(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
		if ok && got.Location() != time.UTC {
			t.Errorf("ParseTimestamp(%q) location = %v, want UTC", tt.in, got.Location())
		}
	}
}

func TestCleanProducts_FieldRules(t *testing.T) {
	raw := []models.RawProduct{
		{URL: "u1", ScrapedAt: "2024-05-01T10:00:00Z", Price: "12.50", Rating: "4.0", ProductName: "  A  ", Availability: "In \n  stock"},
		{URL: "u2", ScrapedAt: "2024-05-01T10:00:00Z", Price: "n/a", Rating: "7"},
		{URL: "u3", ScrapedAt: "2024-05-01T10:00:00Z", Price: "", Rating: "2.5"},
		{URL: "u4", ScrapedAt: "2024-05-01T10:00:00Z", Price: "-1"},
		{URL: "", ScrapedAt: "2024-05-01T10:00:00Z", Price: "1"},
		{URL: "u6", ScrapedAt: "not a time", Price: "1"},
	}

	out, stats := CleanProducts(raw)
	require.Len(t, out, 3)

	byURL := map[string]models.Product{}
	for _, p := range out {
		byURL[p.URL] = p
	}

	u1 := byURL["u1"]
	require.NotNil(t, u1.Price)
	assert.Equal(t, 12.5, *u1.Price)
	require.NotNil(t, u1.Rating)
	assert.Equal(t, 4, *u1.Rating)
	assert.Equal(t, "A", u1.ProductName)
	assert.Equal(t, "In stock", u1.Availability)

	assert.Nil(t, byURL["u2"].Price, "unparsable price is absent, not zero")
	assert.Nil(t, byURL["u2"].Rating, "out of range rating is absent, not clamped")
	assert.Nil(t, byURL["u3"].Price)
	assert.Nil(t, byURL["u3"].Rating)

	assert.Equal(t, Stats{Input: 6, Output: 3, Rejected: 3, Duplicates: 0, ParseFailures: 1}, stats)
}

func TestCleanProducts_LastSurvivingValidRecordWins(t *testing.T) {
	ts := "2024-05-01T10:00:00Z"

	t.Run("later duplicate wins", func(t *testing.T) {
		out, stats := CleanProducts([]models.RawProduct{
			{URL: "u", ScrapedAt: ts, Price: "10"},
			{URL: "u", ScrapedAt: ts, Price: "12"},
		})
		require.Len(t, out, 1)
		assert.Equal(t, 12.0, *out[0].Price)
		assert.Equal(t, 1, stats.Duplicates)
	})

	t.Run("invalid later duplicate does not shadow valid one", func(t *testing.T) {
		out, _ := CleanProducts([]models.RawProduct{
			{URL: "u", ScrapedAt: ts, Price: "10"},
			{URL: "u", ScrapedAt: ts, Price: "-12"},
		})
		require.Len(t, out, 1)
		assert.Equal(t, 10.0, *out[0].Price)
	})

	t.Run("equivalent timestamps collapse", func(t *testing.T) {
		out, _ := CleanProducts([]models.RawProduct{
			{URL: "u", ScrapedAt: "2024-05-01T07:00:00-03:00", Price: "10"},
			{URL: "u", ScrapedAt: ts, Price: "11"},
		})
		require.Len(t, out, 1)
		assert.Equal(t, 11.0, *out[0].Price)
	})
}

func TestCleanProducts_SortedByTimestamp(t *testing.T) {
	out, _ := CleanProducts([]models.RawProduct{
		{URL: "b", ScrapedAt: "2024-05-02T00:00:00Z", Price: "1"},
		{URL: "a", ScrapedAt: "2024-05-01T00:00:00Z", Price: "1"},
		{URL: "c", ScrapedAt: "2024-05-01T00:00:00Z", Price: "1"},
	})
	require.Len(t, out, 3)
	assert.Equal(t, []string{"a", "c", "b"}, []string{out[0].URL, out[1].URL, out[2].URL})
}

func mixedProducts() []models.RawProduct {
	var raw []models.RawProduct
	for i := 0; i < 40; i++ {
		raw = append(raw, models.RawProduct{
			Source:      "http://x/",
			ProductName: fmt.Sprintf("Book %d", i%7),
			URL:         fmt.Sprintf("http://x/%d", i%7),
			ScrapedAt:   fmt.Sprintf("2024-05-0%dT10:00:00Z", 1+i%3),
			Price:       []string{"10.5", "-2", "", "abc", "99.99"}[i%5],
			Rating:      []string{"1", "5", "0", "6", "3.0", ""}[i%6],
		})
	}
	return raw
}

func TestCleanProducts_Invariants(t *testing.T) {
	out, _ := CleanProducts(mixedProducts())
	require.NotEmpty(t, out)

	seen := map[string]bool{}
	for _, p := range out {
		id := p.URL + "|" + p.ScrapedAt.String()
		assert.False(t, seen[id], "duplicate %s", id)
		seen[id] = true

		if p.Price != nil {
			assert.GreaterOrEqual(t, *p.Price, 0.0)
		}
		if p.Rating != nil {
			assert.GreaterOrEqual(t, *p.Rating, 1)
			assert.LessOrEqual(t, *p.Rating, 5)
		}
	}
}

func TestCleanProducts_Idempotent(t *testing.T) {
	first, _ := CleanProducts(mixedProducts())

	raw := make([]models.RawProduct, len(first))
	for i, p := range first {
		raw[i] = p.Raw()
	}
	second, stats := CleanProducts(raw)

	assert.Equal(t, first, second)
	assert.Zero(t, stats.Rejected)
	assert.Zero(t, stats.Duplicates)
}

func TestCleanWeather_Ranges(t *testing.T) {
	raw := []models.RawWeather{
		{City: "X", Time: "2024-05-01T00:00", Temperature: "21.5", Humidity: "80", Precipitation: "0", WindSpeed: "3.2"},
		{City: "X", Time: "2024-05-01T01:00", Temperature: "90", Humidity: "101", Precipitation: "-0.1", WindSpeed: "-1"},
		{City: "X", Time: "2024-05-01T02:00", Temperature: "-80", Humidity: "0", Precipitation: "", WindSpeed: "bad"},
		{City: " ", Time: "2024-05-01T02:00", Temperature: "1"},
	}

	out, stats := CleanWeather(raw)
	require.Len(t, out, 3)

	assert.Equal(t, 21.5, *out[0].Temperature)
	assert.Equal(t, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), out[0].Time)

	assert.Nil(t, out[1].Temperature)
	assert.Nil(t, out[1].Humidity)
	assert.Nil(t, out[1].Precipitation)
	assert.Nil(t, out[1].WindSpeed)

	assert.Equal(t, -80.0, *out[2].Temperature, "bounds are inclusive")
	assert.Equal(t, 0.0, *out[2].Humidity)
	assert.Nil(t, out[2].Precipitation)
	assert.Nil(t, out[2].WindSpeed)

	assert.Equal(t, 1, stats.Rejected)
	assert.Equal(t, 1, stats.ParseFailures)
}

func TestCleanWeather_Idempotent(t *testing.T) {
	raw := []models.RawWeather{
		{City: "X", Time: "2024-05-01T01:00", Temperature: "20.25", Humidity: "70", Precipitation: "0.3"},
		{City: "X", Time: "2024-05-01T00:00", Temperature: "19", Humidity: "71"},
		{City: "X", Time: "2024-05-01T00:00", Temperature: "19.5", Humidity: "120"},
		{City: "Y", Time: "2024-05-01T00:00", Temperature: "-3", WindSpeed: "12"},
	}

	first, _ := CleanWeather(raw)
	require.Len(t, first, 3)

	again := make([]models.RawWeather, len(first))
	for i, w := range first {
		again[i] = w.Raw()
	}
	second, _ := CleanWeather(again)
	assert.Equal(t, first, second)
}
