package config

import (
	"fmt"
	"os"
	"strconv"
)

func Load() (Config, error) {
	cfg := Config{}

	cfg.Database.DSN = os.Getenv("SHIPD_DB_DSN")
	if cfg.Database.DSN == "" {
		return Config{}, fmt.Errorf("SHIPD_DB_DSN is required")
	}
	cfg.Database.Migrate = getEnvBool("SHIPD_DB_MIGRATE", true)

	cfg.Bus.URL = getEnv("SHIPD_NATS_URL", "nats://127.0.0.1:4222")

	cfg.Artifacts.Bucket = os.Getenv("S3_BUCKET")
	if cfg.Artifacts.Bucket == "" {
		return Config{}, fmt.Errorf("S3_BUCKET is required")
	}

	cfg.Pipeline.DefinitionPath = os.Getenv("SHIPD_PIPELINE_FILE")
	cfg.Pipeline.WorkRoot = os.Getenv("SHIPD_WORK_ROOT")

	cfg.HTTP.Port = getEnvInt("SHIPD_HTTP_PORT", 9090)
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return Config{}, fmt.Errorf("SHIPD_HTTP_PORT %d is outside the valid range 1-65535", cfg.HTTP.Port)
	}

	return cfg, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}
