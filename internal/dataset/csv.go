package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"harvest/internal/models"
)

var (
	ProductColumns = []string{"source", "product_name", "price_gbp", "availability", "rating_1to5", "url", "scraped_at"}
	WeatherColumns = []string{"city", "time", "temperature_2m", "precipitation", "relative_humidity_2m", "wind_speed_10m"}
)

func productRow(p models.RawProduct) []string {
	return []string{p.Source, p.ProductName, p.Price, p.Availability, p.Rating, p.URL, p.ScrapedAt}
}

func weatherRow(w models.RawWeather) []string {
	return []string{w.City, w.Time, w.Temperature, w.Precipitation, w.Humidity, w.WindSpeed}
}

// table reads a CSV with a header row and hands each record to fn as a
// column lookup. Columns missing from the header read as "".
func table(r io.Reader, fn func(get func(col string) string)) error {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimPrefix(h, "\ufeff")
		index[strings.TrimSpace(h)] = i
	}

	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		fn(func(col string) string {
			if i, ok := index[col]; ok && i < len(rec) {
				return rec[i]
			}
			return ""
		})
	}
}

// ReadProducts reads one raw product batch.
func ReadProducts(path string) ([]models.RawProduct, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	var rows []models.RawProduct
	err = table(f, func(get func(string) string) {
		rows = append(rows, models.RawProduct{
			Source:       get("source"),
			ProductName:  get("product_name"),
			Price:        get("price_gbp"),
			Availability: get("availability"),
			Rating:       get("rating_1to5"),
			URL:          get("url"),
			ScrapedAt:    get("scraped_at"),
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return rows, nil
}

// ReadWeather reads one raw weather batch.
func ReadWeather(path string) ([]models.RawWeather, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	var rows []models.RawWeather
	err = table(f, func(get func(string) string) {
		rows = append(rows, models.RawWeather{
			City:          get("city"),
			Time:          get("time"),
			Temperature:   get("temperature_2m"),
			Precipitation: get("precipitation"),
			Humidity:      get("relative_humidity_2m"),
			WindSpeed:     get("wind_speed_10m"),
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return rows, nil
}

// LoadProducts concatenates the product batches in dir in file-name order.
// found is false when no batch exists.
func LoadProducts(dir string) (rows []models.RawProduct, found bool, err error) {
	files, err := FindFiles(dir, ProductPattern)
	if err != nil {
		return nil, false, err
	}
	for _, f := range files {
		batch, err := ReadProducts(f)
		if err != nil {
			return nil, true, err
		}
		rows = append(rows, batch...)
	}
	return rows, len(files) > 0, nil
}

// LoadWeather concatenates the weather batches in dir in file-name order.
func LoadWeather(dir string) (rows []models.RawWeather, found bool, err error) {
	files, err := FindFiles(dir, WeatherPattern)
	if err != nil {
		return nil, false, err
	}
	for _, f := range files {
		batch, err := ReadWeather(f)
		if err != nil {
			return nil, true, err
		}
		rows = append(rows, batch...)
	}
	return rows, len(files) > 0, nil
}

// WriteCSV atomically replaces path with header followed by rows.
func WriteCSV(path string, header []string, rows [][]string) error {
	return WriteFileAtomic(path, func(w io.Writer) error {
		cw := csv.NewWriter(w)
		if err := cw.Write(header); err != nil {
			return err
		}
		if err := cw.WriteAll(rows); err != nil {
			return err
		}
		return cw.Error()
	})
}

// WriteProducts writes product rows in the raw batch layout.
func WriteProducts(path string, products []models.RawProduct) error {
	rows := make([][]string, 0, len(products))
	for _, p := range products {
		rows = append(rows, productRow(p))
	}
	return WriteCSV(path, ProductColumns, rows)
}

// WriteWeather writes weather rows in the raw batch layout.
func WriteWeather(path string, readings []models.RawWeather) error {
	rows := make([][]string, 0, len(readings))
	for _, w := range readings {
		rows = append(rows, weatherRow(w))
	}
	return WriteCSV(path, WeatherColumns, rows)
}
