package scraper

import (
	"context"
	"fmt"
	"log"
	"time"

	"harvest/internal/config"
	"harvest/internal/fetch"
	"harvest/internal/metrics"
	"harvest/internal/models"
)

// Scraper walks a paginated category listing.
type Scraper struct {
	fetcher  *fetch.Fetcher
	maxPages int
	delay    time.Duration
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
}

// New builds a Scraper over fetcher using the page cap and courtesy delay in cfg.
func New(fetcher *fetch.Fetcher, cfg config.ScraperConfig) *Scraper {
	maxPages := cfg.MaxPages
	if maxPages < 1 {
		maxPages = 1
	}
	return &Scraper{
		fetcher:  fetcher,
		maxPages: maxPages,
		delay:    cfg.CourtesyDelay,
		now:      time.Now,
		sleep:    sleep,
	}
}

// FetchPage fetches one listing page and returns its records and the next
// page URL ("" when there is none).
func (s *Scraper) FetchPage(ctx context.Context, pageURL string) (*Page, error) {
	body, err := s.fetcher.Get(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	page, err := Extract(body, pageURL, s.now())
	if err != nil {
		return nil, err
	}
	metrics.PagesScrapedTotal.Inc()
	return page, nil
}

// ScrapeCategory follows "next" links from seedURL until there are none or
// the page cap is reached. When a later page fails, the records gathered so
// far are returned together with the error.
func (s *Scraper) ScrapeCategory(ctx context.Context, seedURL string) ([]models.RawProduct, error) {
	log.Printf("Scraping category %s (max %d pages)", seedURL, s.maxPages)

	var collected []models.RawProduct
	nextURL := seedURL

	for pages := 0; nextURL != "" && pages < s.maxPages; pages++ {
		if pages > 0 {
			if err := s.sleep(ctx, s.delay); err != nil {
				return collected, fmt.Errorf("scrape interrupted after %d pages: %w", pages, err)
			}
		}

		page, err := s.FetchPage(ctx, nextURL)
		if err != nil {
			return collected, fmt.Errorf("page %d (%s): %w", pages+1, nextURL, err)
		}

		log.Printf("  Page %d: %s (%d items)", pages+1, nextURL, len(page.Products))
		if page.ParseFailures > 0 {
			log.Printf("  Warning: %d fields on page %d could not be parsed", page.ParseFailures, pages+1)
		}
		collected = append(collected, page.Products...)
		nextURL = page.NextURL
	}

	log.Printf("✓ Collected %d items", len(collected))
	return collected, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
