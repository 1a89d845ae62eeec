package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"harvest/internal/config"
	"harvest/internal/metrics"
	"harvest/internal/models"
)

// DB is the dimension/fact store for cleaned observations.
type DB struct {
	conn    *sql.DB
	dialect dialect
}

// NewDB opens the configured backend and initializes the schema.
// mysql dsn format: "username:password@tcp(host:port)/dbname?parseTime=true"
func NewDB(ctx context.Context, cfg config.StorageConfig) (*DB, error) {
	d, err := lookupDialect(cfg.Driver)
	if err != nil {
		return nil, err
	}

	conn, err := sql.Open(d.driver, cfg.ResolveDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test connection
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Configure connection pool; sqlite is a single writer
	if d.driver == "sqlite" {
		conn.SetMaxOpenConns(1)
	} else {
		conn.SetMaxOpenConns(25)
		conn.SetMaxIdleConns(5)
		conn.SetConnMaxLifetime(5 * time.Minute)
	}

	db := &DB{conn: conn, dialect: d}

	if err := db.initSchema(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

// initSchema creates the necessary tables, one statement per Exec
func (db *DB) initSchema(ctx context.Context) error {
	for _, stmt := range db.dialect.schema {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

func (db *DB) recordPool() {
	stats := db.conn.Stats()
	metrics.UpdateDBConnectionStats(stats.OpenConnections, stats.InUse, stats.Idle)
}

// inTx runs fn in one transaction, rolled back on any error.
func (db *DB) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	defer db.recordPool()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // Will be ignored if committed

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func exec(ctx context.Context, tx *sql.Tx, op, table, query string, args ...any) (sql.Result, error) {
	start := time.Now()
	res, err := tx.ExecContext(ctx, query, args...)
	metrics.RecordDBQuery(op, table, time.Since(start), err)
	return res, err
}

func (db *DB) lookupID(ctx context.Context, tx *sql.Tx, table, query string, args ...any) (int64, error) {
	start := time.Now()
	var id int64
	err := tx.QueryRowContext(ctx, db.dialect.rebind(query), args...).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		metrics.RecordDBQuery("SELECT", table, time.Since(start), nil)
		return 0, err
	}
	metrics.RecordDBQuery("SELECT", table, time.Since(start), err)
	return id, err
}

type productDim struct {
	name, source    string
	first, last     time.Time
	latestForFields time.Time
}

// UpsertProducts writes the product dimension and one price fact per
// (url, scraped_at). Re-running with the same records changes nothing.
func (db *DB) UpsertProducts(ctx context.Context, products []models.Product) error {
	if len(products) == 0 {
		return nil
	}

	dims := make(map[string]*productDim)
	for _, p := range products {
		at := p.ScrapedAt.UTC()
		d, ok := dims[p.URL]
		if !ok {
			dims[p.URL] = &productDim{name: p.ProductName, source: p.Source, first: at, last: at, latestForFields: at}
			continue
		}
		if at.Before(d.first) {
			d.first = at
		}
		if at.After(d.last) {
			d.last = at
		}
		if !at.Before(d.latestForFields) {
			d.name, d.source, d.latestForFields = p.ProductName, p.Source, at
		}
	}
	urls := make([]string, 0, len(dims))
	for u := range dims {
		urls = append(urls, u)
	}
	sort.Strings(urls)

	d := db.dialect
	dimQuery := d.upsertSets("dim_product",
		[]string{"url", "product_name", "source", "first_seen_at", "last_seen_at"},
		[]string{"url"},
		[]string{
			d.ifNewer("dim_product", "last_seen_at", "product_name"),
			d.ifNewer("dim_product", "last_seen_at", "source"),
			d.earliest("dim_product", "first_seen_at"),
			d.latest("dim_product", "last_seen_at"),
		})
	factQuery := db.dialect.upsert("fact_price",
		[]string{"product_id", "scraped_at", "price", "availability", "rating"},
		[]string{"product_id", "scraped_at"},
		[]string{"price", "availability", "rating"})

	err := db.inTx(ctx, func(tx *sql.Tx) error {
		ids := make(map[string]int64, len(urls))
		for _, u := range urls {
			dim := dims[u]
			if _, err := exec(ctx, tx, "UPSERT", "dim_product", dimQuery, u, dim.name, dim.source, dim.first, dim.last); err != nil {
				return fmt.Errorf("failed to upsert product %s: %w", u, err)
			}
			id, err := db.lookupID(ctx, tx, "dim_product", `SELECT id FROM dim_product WHERE url = ?`, u)
			if err != nil {
				return fmt.Errorf("failed to resolve product %s: %w", u, err)
			}
			ids[u] = id
		}

		for _, p := range products {
			if _, err := exec(ctx, tx, "UPSERT", "fact_price", factQuery,
				ids[p.URL], p.ScrapedAt.UTC(), p.Price, p.Availability, p.Rating); err != nil {
				return fmt.Errorf("failed to upsert price for %s at %s: %w", p.URL, models.FormatTime(p.ScrapedAt), err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	log.Printf("✓ Stored %d price observations for %d products", len(products), len(urls))
	return nil
}

// cityID returns the oldest dimension row named name, creating one with an
// empty country when the city has never been registered.
func (db *DB) cityID(ctx context.Context, tx *sql.Tx, name string) (int64, error) {
	const query = `SELECT id FROM dim_city WHERE city_name = ? ORDER BY id LIMIT 1`
	id, err := db.lookupID(ctx, tx, "dim_city", query, name)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}

	insert := db.dialect.upsert("dim_city", []string{"city_name", "country"}, []string{"city_name", "country"}, []string{"city_name"})
	if _, err := exec(ctx, tx, "UPSERT", "dim_city", insert, name, ""); err != nil {
		return 0, err
	}
	return db.lookupID(ctx, tx, "dim_city", query, name)
}

// UpsertCity registers a geocoded city under name. An existing row created
// from weather data alone is completed in place.
func (db *DB) UpsertCity(ctx context.Context, name string, loc models.Location) error {
	return db.inTx(ctx, func(tx *sql.Tx) error {
		update := db.dialect.rebind(`UPDATE dim_city SET country = ?, latitude = ?, longitude = ? WHERE city_name = ? AND country = ''`)
		res, err := exec(ctx, tx, "UPDATE", "dim_city", update, loc.Country, loc.Latitude, loc.Longitude, name)
		if err != nil {
			return fmt.Errorf("failed to update city %s: %w", name, err)
		}
		if n, err := res.RowsAffected(); err == nil && n > 0 {
			return nil
		}

		upsert := db.dialect.upsert("dim_city",
			[]string{"city_name", "country", "latitude", "longitude"},
			[]string{"city_name", "country"},
			[]string{"latitude", "longitude"})
		if _, err := exec(ctx, tx, "UPSERT", "dim_city", upsert, name, loc.Country, loc.Latitude, loc.Longitude); err != nil {
			return fmt.Errorf("failed to upsert city %s: %w", name, err)
		}
		return nil
	})
}

// UpsertWeather writes one hourly fact per (city, time).
func (db *DB) UpsertWeather(ctx context.Context, readings []models.Weather) error {
	if len(readings) == 0 {
		return nil
	}

	factQuery := db.dialect.upsert("fact_weather_hourly",
		[]string{"city_id", "time_at", "temperature_2m", "relative_humidity_2m", "precipitation", "wind_speed_10m"},
		[]string{"city_id", "time_at"},
		[]string{"temperature_2m", "relative_humidity_2m", "precipitation", "wind_speed_10m"})

	err := db.inTx(ctx, func(tx *sql.Tx) error {
		ids := make(map[string]int64)
		for _, w := range readings {
			id, ok := ids[w.City]
			if !ok {
				var err error
				if id, err = db.cityID(ctx, tx, w.City); err != nil {
					return fmt.Errorf("failed to resolve city %s: %w", w.City, err)
				}
				ids[w.City] = id
			}
			if _, err := exec(ctx, tx, "UPSERT", "fact_weather_hourly", factQuery,
				id, w.Time.UTC(), w.Temperature, w.Humidity, w.Precipitation, w.WindSpeed); err != nil {
				return fmt.Errorf("failed to upsert weather for %s at %s: %w", w.City, models.FormatTime(w.Time), err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	log.Printf("✓ Stored %d hourly readings", len(readings))
	return nil
}

// Tables lists the store's tables in dependency order.
var Tables = []string{"dim_product", "fact_price", "dim_city", "fact_weather_hourly"}

// Counts returns the number of rows in each table.
func (db *DB) Counts(ctx context.Context) (map[string]int, error) {
	counts := make(map[string]int, len(Tables))
	for _, table := range Tables {
		var n int
		if err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", table, err)
		}
		counts[table] = n
	}
	return counts, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}
