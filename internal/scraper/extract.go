package scraper

import (
	"bytes"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"harvest/internal/models"
)

const (
	productSelector      = "article.product_pod"
	titleSelector        = "h3 a"
	priceSelector        = ".price_color"
	availabilitySelector = ".availability"
	ratingSelector       = ".star-rating"
	nextSelector         = "li.next a"
)

var ratingLabels = map[string]int{
	"One":   1,
	"Two":   2,
	"Three": 3,
	"Four":  4,
	"Five":  5,
}

// Page is the result of extracting one listing document.
type Page struct {
	Products []models.RawProduct
	NextURL  string
	// ParseFailures counts fields that could not be read and were left empty.
	ParseFailures int
}

// Extract parses an HTML listing page. pageURL is the address the document
// was fetched from and anchors every relative link.
func Extract(body []byte, pageURL string, scrapedAt time.Time) (*Page, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid page url %q: %w", pageURL, err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse document %s: %w", pageURL, err)
	}

	page := &Page{}
	source := sourceOf(pageURL)
	stamp := scrapedAt.UTC().Format("2006-01-02T15:04:05Z")

	doc.Find(productSelector).Each(func(_ int, card *goquery.Selection) {
		p, failures := extractProduct(card, base)
		p.Source = source
		p.ScrapedAt = stamp
		page.Products = append(page.Products, p)
		page.ParseFailures += failures
	})

	if href, ok := doc.Find(nextSelector).First().Attr("href"); ok {
		page.NextURL = resolve(base, href)
	}

	return page, nil
}

func extractProduct(card *goquery.Selection, base *url.URL) (models.RawProduct, int) {
	var p models.RawProduct
	failures := 0

	title := card.Find(titleSelector).First()
	p.ProductName = strings.TrimSpace(title.AttrOr("title", ""))
	if p.ProductName == "" {
		p.ProductName = strings.TrimSpace(title.Text())
	}
	if href, ok := title.Attr("href"); ok {
		p.URL = resolve(base, href)
	}

	if price, ok := ParsePrice(card.Find(priceSelector).First().Text()); ok {
		p.Price = strconv.FormatFloat(price, 'f', -1, 64)
	} else {
		failures++
	}

	p.Availability = strings.Join(strings.Fields(card.Find(availabilitySelector).First().Text()), " ")

	if rating, ok := ParseRating(card.Find(ratingSelector).First().AttrOr("class", "")); ok {
		p.Rating = strconv.Itoa(rating)
	} else {
		failures++
	}

	return p, failures
}

// ParsePrice reads a displayed price such as "£51.77" or "51,77".
func ParsePrice(text string) (float64, bool) {
	text = strings.TrimSpace(text)
	text = strings.NewReplacer("£", "", ",", ".").Replace(text)
	v, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// ParseRating maps a star-rating class list ("star-rating Three") to 1..5.
func ParseRating(classes string) (int, bool) {
	for _, c := range strings.Fields(classes) {
		if v, ok := ratingLabels[c]; ok {
			return v, true
		}
	}
	return 0, false
}

// sourceOf returns the directory of the page URL, with a trailing slash.
func sourceOf(pageURL string) string {
	if i := strings.LastIndex(pageURL, "/"); i >= 0 {
		return pageURL[:i+1]
	}
	return pageURL
}

func resolve(base *url.URL, href string) string {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}
