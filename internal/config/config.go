package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

const DefaultCategoryURL = "https://books.toscrape.com/catalogue/category/books/travel_2/index.html"

// Config is the full set of named options. Every option has a default, so a
// missing config file or environment variable never fails a load.
type Config struct {
	Scraper  ScraperConfig  `yaml:"scraper"`
	HTTP     HTTPConfig     `yaml:"http"`
	Weather  WeatherConfig  `yaml:"weather"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Storage  StorageConfig  `yaml:"storage"`
	Redis    RedisConfig    `yaml:"redis"`
	Server   ServerConfig   `yaml:"server"`
}

type ScraperConfig struct {
	CategoryURL   string        `yaml:"category_url" envconfig:"CATEGORY_URL" validate:"omitempty,url"`
	MaxPages      int           `yaml:"max_pages" envconfig:"MAX_PAGES" validate:"gte=1"`
	CourtesyDelay time.Duration `yaml:"courtesy_delay" envconfig:"COURTESY_DELAY" validate:"gte=0"`
}

// HTTPConfig mirrors the retry budget of the shared transport.
type HTTPConfig struct {
	RequestTimeout  time.Duration `yaml:"request_timeout" envconfig:"REQUEST_TIMEOUT" validate:"gt=0"`
	MaxRetries      int           `yaml:"max_retries" envconfig:"MAX_RETRIES" validate:"gte=0"`
	ConnectRetries  int           `yaml:"connect_retries" envconfig:"CONNECT_RETRIES" validate:"gte=0"`
	ReadRetries     int           `yaml:"read_retries" envconfig:"READ_RETRIES" validate:"gte=0"`
	RedirectRetries int           `yaml:"redirect_retries" envconfig:"REDIRECT_RETRIES" validate:"gte=0"`
	BackoffBase     time.Duration `yaml:"backoff_base" envconfig:"BACKOFF_BASE" validate:"gte=0"`
	UserAgent       string        `yaml:"user_agent" envconfig:"USER_AGENT"`
}

type WeatherConfig struct {
	Cities       []string      `yaml:"cities" envconfig:"CITIES"`
	Language     string        `yaml:"language" envconfig:"WEATHER_LANGUAGE"`
	Timezone     string        `yaml:"timezone" envconfig:"WEATHER_TIMEZONE"`
	PastDays     int           `yaml:"past_days" envconfig:"PAST_DAYS" validate:"gte=0"`
	ForecastDays int           `yaml:"forecast_days" envconfig:"FORECAST_DAYS" validate:"gte=0"`
	RequestGap   time.Duration `yaml:"request_gap" envconfig:"WEATHER_REQUEST_GAP" validate:"gte=0"`
}

type PipelineConfig struct {
	DataDir       string        `yaml:"data_dir" envconfig:"DATA_DIR" validate:"required"`
	OutDir        string        `yaml:"out_dir" envconfig:"OUT_DIR" validate:"required"`
	WatchPattern  string        `yaml:"watch_pattern" envconfig:"WATCH_PATTERN" validate:"required"`
	PollInterval  time.Duration `yaml:"poll_interval" envconfig:"POLL_INTERVAL" validate:"gt=0"`
	ZThreshold    float64       `yaml:"z_threshold" envconfig:"Z_THRESHOLD" validate:"gt=0"`
	IQRMultiplier float64       `yaml:"iqr_multiplier" envconfig:"IQR_MULTIPLIER" validate:"gt=0"`
	ZeroVariance  string        `yaml:"zero_variance" envconfig:"ZERO_VARIANCE" validate:"oneof=ignore report"`
}

type ServerConfig struct {
	Addr string `yaml:"addr" envconfig:"SERVER_ADDR"`
}

// Default returns the documented defaults.
func Default() *Config {
	return &Config{
		Scraper: ScraperConfig{
			CategoryURL:   DefaultCategoryURL,
			MaxPages:      3,
			CourtesyDelay: time.Second,
		},
		HTTP: HTTPConfig{
			RequestTimeout:  15 * time.Second,
			MaxRetries:      5,
			ConnectRetries:  5,
			ReadRetries:     5,
			RedirectRetries: 3,
			BackoffBase:     500 * time.Millisecond,
		},
		Weather: WeatherConfig{
			Cities:       []string{"Goiânia"},
			Language:     "pt",
			Timezone:     "UTC",
			PastDays:     1,
			ForecastDays: 1,
			RequestGap:   time.Second,
		},
		Pipeline: PipelineConfig{
			DataDir:       "./data",
			OutDir:        "./out",
			WatchPattern:  "*.csv",
			PollInterval:  5 * time.Second,
			ZThreshold:    3.0,
			IQRMultiplier: 1.5,
			ZeroVariance:  "ignore",
		},
		Redis: RedisConfig{
			Stream: "pipeline_runs",
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
	}
}

// Load builds a Config from defaults, the optional YAML file at configPath,
// an optional .env file and the process environment, in that order.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			log.Printf("Config file %s not found, using defaults", configPath)
		case err != nil:
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
