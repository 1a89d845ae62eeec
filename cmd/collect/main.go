package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"harvest/internal/api"
	"harvest/internal/config"
	"harvest/internal/database"
	"harvest/internal/dataset"
	"harvest/internal/fetch"
	"harvest/internal/models"
	"harvest/internal/scraper"
)

// cityStore registers geocoded cities; the SQL store satisfies it.
type cityStore interface {
	UpsertCity(ctx context.Context, name string, loc models.Location) error
}

type collector struct {
	dataDir string
	now     time.Time
	scraper *scraper.Scraper
	weather *api.OpenMeteoClient
	limiter *rate.Limiter
	cfg     config.WeatherConfig
	cities  cityStore
}

func newLimiter(gap time.Duration) *rate.Limiter {
	if gap <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(gap), 1)
}

// collectProducts scrapes the category and writes whatever was gathered,
// including a partial result when a later page failed.
func (c *collector) collectProducts(ctx context.Context, seed string) (int, error) {
	rows, scrapeErr := c.scraper.ScrapeCategory(ctx, seed)
	if len(rows) > 0 {
		path := filepath.Join(c.dataDir, dataset.ProductsFileName(c.now))
		if err := dataset.WriteProducts(path, rows); err != nil {
			return 0, err
		}
		log.Printf("✓ Wrote %d products to %s", len(rows), path)
	}
	return len(rows), scrapeErr
}

// collectCity geocodes one city and writes its hourly batch.
func (c *collector) collectCity(ctx context.Context, city string) (int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	loc, err := c.weather.Geocode(ctx, city, c.cfg.Language)
	if err != nil {
		return 0, err
	}
	log.Printf("  %s -> %s, %s (%.4f, %.4f)", city, loc.Name, loc.Country, loc.Latitude, loc.Longitude)

	if c.cities != nil {
		if err := c.cities.UpsertCity(ctx, city, *loc); err != nil {
			log.Printf("Warning: failed to register city %s: %v", city, err)
		}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	forecast, err := c.weather.GetHourlyWeather(ctx, loc.Latitude, loc.Longitude, c.cfg.Timezone, c.cfg.PastDays, c.cfg.ForecastDays)
	if err != nil {
		return 0, err
	}

	rows := api.NormalizeHourly(city, forecast)
	path := filepath.Join(c.dataDir, dataset.WeatherFileName(city, c.now))
	if err := dataset.WriteWeather(path, rows); err != nil {
		return 0, err
	}
	log.Printf("✓ Wrote %d hourly readings for %s to %s", len(rows), city, path)
	return len(rows), nil
}

// collectWeather collects every configured city. A city that cannot be
// geocoded or fetched is skipped; write failures stop the loop.
func (c *collector) collectWeather(ctx context.Context) (written int, skipped []string, err error) {
	for _, city := range c.cfg.Cities {
		n, err := c.collectCity(ctx, city)
		switch {
		case err == nil:
			written += n
		case errors.Is(err, api.ErrNotFound), errors.Is(err, fetch.ErrFetchFailure):
			log.Printf("Warning: skipping %s: %v", city, err)
			skipped = append(skipped, city)
		default:
			return written, skipped, err
		}
	}
	return written, skipped, nil
}

func main() {
	configPath := flag.String("config", "./config.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	policy := fetch.PolicyFromConfig(cfg.HTTP)
	c := &collector{
		dataDir: cfg.Pipeline.DataDir,
		now:     time.Now().UTC(),
		scraper: scraper.New(fetch.NewFetcher(nil, policy, cfg.HTTP.RequestTimeout, fetch.BrowserHeaders(cfg.HTTP.UserAgent)), cfg.Scraper),
		weather: api.NewOpenMeteoClient(fetch.NewFetcher(nil, policy, cfg.HTTP.RequestTimeout, fetch.APIHeaders(cfg.HTTP.UserAgent))),
		limiter: newLimiter(cfg.Weather.RequestGap),
		cfg:     cfg.Weather,
	}

	if cfg.Storage.Enabled() {
		db, err := database.NewDB(ctx, cfg.Storage)
		if err != nil {
			log.Printf("Warning: storage unavailable, cities will not be registered: %v", err)
		} else {
			defer db.Close()
			c.cities = db
		}
	}

	total := 0
	failed := false

	if cfg.Scraper.CategoryURL != "" {
		n, err := c.collectProducts(ctx, cfg.Scraper.CategoryURL)
		total += n
		if err != nil {
			log.Printf("Warning: product scrape incomplete: %v", err)
			failed = true
		}
	}

	if len(cfg.Weather.Cities) > 0 {
		n, skipped, err := c.collectWeather(ctx)
		total += n
		if err != nil {
			log.Printf("Warning: weather collection stopped: %v", err)
			failed = true
		}
		if len(skipped) > 0 {
			failed = true
		}
	}

	if failed && total == 0 {
		log.Fatalf("Collection failed: no records written")
	}
	log.Printf("Data collection completed (%d records). Exiting", total)
}
