package config

import (
	"os"
)

// RedisConfig configures run-summary publication. An empty Addr disables it.
type RedisConfig struct {
	Addr     string `yaml:"addr" envconfig:"REDIS_ADDR"`
	Password string `yaml:"password" envconfig:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" envconfig:"REDIS_DB" validate:"gte=0"`
	Stream   string `yaml:"stream" envconfig:"REDIS_STREAM"`
}

func (r RedisConfig) Enabled() bool {
	return r.Addr != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
