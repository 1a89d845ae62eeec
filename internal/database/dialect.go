package database

import (
	"fmt"
	"strconv"
	"strings"
)

// dialect holds the SQL that differs between the supported backends.
type dialect struct {
	driver  string
	schema  []string
	dollars bool // postgres uses $n placeholders
	mysql   bool // ON DUPLICATE KEY instead of ON CONFLICT
}

var dialects = map[string]dialect{
	"mysql": {
		driver: "mysql",
		mysql:  true,
		schema: []string{
			`CREATE TABLE IF NOT EXISTS dim_product (
				id BIGINT AUTO_INCREMENT PRIMARY KEY,
				url VARCHAR(512) NOT NULL,
				product_name TEXT NOT NULL,
				source TEXT NOT NULL,
				first_seen_at DATETIME(6) NOT NULL,
				last_seen_at DATETIME(6) NOT NULL,
				UNIQUE KEY uq_dim_product_url (url)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

			`CREATE TABLE IF NOT EXISTS fact_price (
				product_id BIGINT NOT NULL,
				scraped_at DATETIME(6) NOT NULL,
				price DOUBLE NULL,
				availability TEXT NULL,
				rating INT NULL,
				PRIMARY KEY (product_id, scraped_at),
				INDEX idx_fact_price_scraped_at (scraped_at)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

			`CREATE TABLE IF NOT EXISTS dim_city (
				id BIGINT AUTO_INCREMENT PRIMARY KEY,
				city_name VARCHAR(255) NOT NULL,
				country VARCHAR(255) NOT NULL DEFAULT '',
				latitude DOUBLE NULL,
				longitude DOUBLE NULL,
				UNIQUE KEY uq_dim_city (city_name, country)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

			`CREATE TABLE IF NOT EXISTS fact_weather_hourly (
				city_id BIGINT NOT NULL,
				time_at DATETIME(6) NOT NULL,
				temperature_2m DOUBLE NULL,
				relative_humidity_2m DOUBLE NULL,
				precipitation DOUBLE NULL,
				wind_speed_10m DOUBLE NULL,
				PRIMARY KEY (city_id, time_at),
				INDEX idx_fact_weather_time (time_at)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
		},
	},
	"postgres": {
		driver:  "postgres",
		dollars: true,
		schema: []string{
			`CREATE TABLE IF NOT EXISTS dim_product (
				id BIGSERIAL PRIMARY KEY,
				url TEXT UNIQUE NOT NULL,
				product_name TEXT NOT NULL,
				source TEXT NOT NULL,
				first_seen_at TIMESTAMPTZ NOT NULL,
				last_seen_at TIMESTAMPTZ NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS fact_price (
				product_id BIGINT NOT NULL REFERENCES dim_product(id),
				scraped_at TIMESTAMPTZ NOT NULL,
				price DOUBLE PRECISION,
				availability TEXT,
				rating INTEGER,
				PRIMARY KEY (product_id, scraped_at)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_fact_price_scraped_at ON fact_price(scraped_at)`,
			`CREATE TABLE IF NOT EXISTS dim_city (
				id BIGSERIAL PRIMARY KEY,
				city_name TEXT NOT NULL,
				country TEXT NOT NULL DEFAULT '',
				latitude DOUBLE PRECISION,
				longitude DOUBLE PRECISION,
				UNIQUE (city_name, country)
			)`,
			`CREATE TABLE IF NOT EXISTS fact_weather_hourly (
				city_id BIGINT NOT NULL REFERENCES dim_city(id),
				time_at TIMESTAMPTZ NOT NULL,
				temperature_2m DOUBLE PRECISION,
				relative_humidity_2m DOUBLE PRECISION,
				precipitation DOUBLE PRECISION,
				wind_speed_10m DOUBLE PRECISION,
				PRIMARY KEY (city_id, time_at)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_fact_weather_time ON fact_weather_hourly(time_at)`,
		},
	},
	"sqlite": {
		driver: "sqlite",
		schema: []string{
			`CREATE TABLE IF NOT EXISTS dim_product (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				url TEXT UNIQUE NOT NULL,
				product_name TEXT NOT NULL,
				source TEXT NOT NULL,
				first_seen_at DATETIME NOT NULL,
				last_seen_at DATETIME NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS fact_price (
				product_id INTEGER NOT NULL REFERENCES dim_product(id),
				scraped_at DATETIME NOT NULL,
				price REAL,
				availability TEXT,
				rating INTEGER,
				PRIMARY KEY (product_id, scraped_at)
			)`,
			`CREATE TABLE IF NOT EXISTS dim_city (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				city_name TEXT NOT NULL,
				country TEXT NOT NULL DEFAULT '',
				latitude REAL,
				longitude REAL,
				UNIQUE (city_name, country)
			)`,
			`CREATE TABLE IF NOT EXISTS fact_weather_hourly (
				city_id INTEGER NOT NULL REFERENCES dim_city(id),
				time_at DATETIME NOT NULL,
				temperature_2m REAL,
				relative_humidity_2m REAL,
				precipitation REAL,
				wind_speed_10m REAL,
				PRIMARY KEY (city_id, time_at)
			)`,
		},
	},
}

func lookupDialect(name string) (dialect, error) {
	d, ok := dialects[name]
	if !ok {
		return dialect{}, fmt.Errorf("unsupported storage driver %q", name)
	}
	return d, nil
}

// rebind rewrites ? placeholders for the backend.
func (d dialect) rebind(query string) string {
	if !d.dollars {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// incoming refers to the value proposed for c by the conflicting insert.
func (d dialect) incoming(c string) string {
	if d.mysql {
		return fmt.Sprintf("VALUES(%s)", c)
	}
	return "excluded." + c
}

// stored refers to the value of c already in table.
func (d dialect) stored(table, c string) string {
	if d.mysql {
		return c
	}
	return table + "." + c
}

// overwrite sets c to the incoming value.
func (d dialect) overwrite(c string) string {
	return fmt.Sprintf("%s = %s", c, d.incoming(c))
}

// earliest keeps the smaller of the stored and incoming c.
func (d dialect) earliest(table, c string) string {
	fn := "LEAST"
	if d.driver == "sqlite" {
		fn = "MIN"
	}
	return fmt.Sprintf("%s = %s(%s, %s)", c, fn, d.stored(table, c), d.incoming(c))
}

// latest keeps the larger of the stored and incoming c.
func (d dialect) latest(table, c string) string {
	fn := "GREATEST"
	if d.driver == "sqlite" {
		fn = "MAX"
	}
	return fmt.Sprintf("%s = %s(%s, %s)", c, fn, d.stored(table, c), d.incoming(c))
}

// ifNewer takes the incoming c only when the incoming stamp is not older
// than the stored one. MySQL applies assignments left to right, so it must
// precede the assignment to stamp.
func (d dialect) ifNewer(table, stamp, c string) string {
	return fmt.Sprintf("%s = CASE WHEN %s >= %s THEN %s ELSE %s END",
		c, d.incoming(stamp), d.stored(table, stamp), d.incoming(c), d.stored(table, c))
}

// upsert builds an insert that overwrites update columns when keys collide.
func (d dialect) upsert(table string, columns, keys, update []string) string {
	sets := make([]string, len(update))
	for i, c := range update {
		sets[i] = d.overwrite(c)
	}
	return d.upsertSets(table, columns, keys, sets)
}

// upsertSets builds an insert that applies the given assignments when keys
// collide.
func (d dialect) upsertSets(table string, columns, keys, sets []string) string {
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(columns, ", "), marks)

	if d.mysql {
		query += " ON DUPLICATE KEY UPDATE " + strings.Join(sets, ", ")
	} else {
		query += fmt.Sprintf(" ON CONFLICT (%s) DO UPDATE SET %s", strings.Join(keys, ", "), strings.Join(sets, ", "))
	}
	return d.rebind(query)
}
