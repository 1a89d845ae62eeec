package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"harvest/internal/config"
	"harvest/internal/database"
	"harvest/internal/dataset"
	"harvest/internal/models"
)

func TestStoreAll_Idempotent(t *testing.T) {
	dir := t.TempDir()
	day := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, dataset.WriteProducts(filepath.Join(dir, dataset.ProductsFileName(day)), []models.RawProduct{
		{Source: "s", ProductName: "A", Price: "10.00", Rating: "2", URL: "https://x/a", ScrapedAt: "2024-05-01T10:00:00Z"},
		{Source: "s", ProductName: "A", Price: "11.00", Rating: "2", URL: "https://x/a", ScrapedAt: "2024-05-01T11:00:00Z"},
		{Source: "s", ProductName: "B", Price: "-1", URL: "https://x/b", ScrapedAt: "2024-05-01T10:00:00Z"},
	}))
	require.NoError(t, dataset.WriteWeather(filepath.Join(dir, dataset.WeatherFileName("Lisboa", day)), []models.RawWeather{
		{City: "Lisboa", Time: "2024-05-01T00:00", Temperature: "15", Humidity: "70"},
	}))

	ctx := context.Background()
	db, err := database.NewDB(ctx, config.StorageConfig{Driver: "sqlite", DSN: ":memory:"})
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, storeAll(ctx, dir, db))
	require.NoError(t, storeAll(ctx, dir, db))

	counts, err := db.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts["dim_product"])
	assert.Equal(t, 2, counts["fact_price"])
	assert.Equal(t, 1, counts["dim_city"])
	assert.Equal(t, 1, counts["fact_weather_hourly"])
}

func TestStoreAll_MissingDir(t *testing.T) {
	ctx := context.Background()
	db, err := database.NewDB(ctx, config.StorageConfig{Driver: "sqlite", DSN: ":memory:"})
	require.NoError(t, err)
	defer db.Close()

	assert.Error(t, storeAll(ctx, filepath.Join(t.TempDir(), "missing"), db))
}
