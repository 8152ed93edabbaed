package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the trainqueue daemon.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Worker   WorkerConfig
}

type ServerConfig struct {
	Port           int
	Env            string
	RequestsPerMin int
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

type WorkerConfig struct {
	PollInterval  time.Duration
	KMin          int
	KMax          int
	ZeroThreshold float64
	ModelsDir     string
	MaxArtifacts  int
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:           envInt("TRAINQUEUE_PORT", 8080),
			Env:            envString("TRAINQUEUE_ENV", "development"),
			RequestsPerMin: envInt("TRAINQUEUE_REQUESTS_PER_MIN", 60),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 2),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Worker: WorkerConfig{
			PollInterval:  envDuration("WORKER_POLL_INTERVAL", 15*time.Second),
			KMin:          envInt("WORKER_K_MIN", 2),
			KMax:          envInt("WORKER_K_MAX", 15),
			ZeroThreshold: envFloat("WORKER_ZERO_THRESHOLD", 1.0),
			ModelsDir:     envString("WORKER_MODELS_DIR", "output/models"),
			MaxArtifacts:  envInt("WORKER_MAX_ARTIFACTS", 50),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.Worker.PollInterval <= 0 {
		return fmt.Errorf("WORKER_POLL_INTERVAL must be positive, got %s", c.Worker.PollInterval)
	}
	if c.Worker.KMin < 2 {
		return fmt.Errorf("WORKER_K_MIN must be at least 2 (silhouette is undefined for k=1), got %d", c.Worker.KMin)
	}
	if c.Worker.KMax < c.Worker.KMin {
		return fmt.Errorf("WORKER_K_MAX (%d) must not be below WORKER_K_MIN (%d)", c.Worker.KMax, c.Worker.KMin)
	}
	if c.Worker.ZeroThreshold <= 0 || c.Worker.ZeroThreshold > 1 {
		return fmt.Errorf("WORKER_ZERO_THRESHOLD must be in (0, 1], got %g", c.Worker.ZeroThreshold)
	}
	if c.Worker.ModelsDir == "" {
		return fmt.Errorf("WORKER_MODELS_DIR must not be empty")
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
