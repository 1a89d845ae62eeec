package config

import (
	"fmt"
	"os"
)

// StorageConfig selects the SQL persistence backend. An empty Driver disables
// persistence.
type StorageConfig struct {
	Driver string `yaml:"driver" envconfig:"STORAGE_DRIVER" validate:"omitempty,oneof=mysql postgres sqlite"`
	DSN    string `yaml:"dsn" envconfig:"DATABASE_DSN"`
}

// Enabled reports whether a storage backend is configured.
func (s StorageConfig) Enabled() bool {
	return s.Driver != ""
}

// ResolveDSN returns the connection string for the configured driver.
// It checks the DB_* environment variables first, then falls back to the DSN option
func (s StorageConfig) ResolveDSN() string {
	user := os.Getenv("DB_USER")
	password := os.Getenv("DB_PASSWORD")
	host := os.Getenv("DB_HOST")
	port := os.Getenv("DB_PORT")
	database := os.Getenv("DB_NAME")

	if user != "" && password != "" && host != "" && port != "" && database != "" {
		switch s.Driver {
		case "mysql":
			return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true", user, password, host, port, database)
		case "postgres":
			return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
				host, port, user, password, database, getEnv("DB_SSLMODE", "disable"))
		}
	}

	if s.DSN != "" {
		return s.DSN
	}

	switch s.Driver {
	case "mysql":
		return "harvest:harvest@tcp(localhost:3306)/harvest?parseTime=true"
	case "postgres":
		return "host=localhost port=5432 user=postgres password=postgres dbname=harvest sslmode=disable"
	case "sqlite":
		return "file:harvest.db?_pragma=busy_timeout(5000)"
	}
	return ""
}
