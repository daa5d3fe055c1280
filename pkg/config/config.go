package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server ServerConfig `json:"server"`
	Engine EngineConfig `json:"engine"`
	Fetch  FetchConfig  `json:"fetch"`
}

type ServerConfig struct {
	Address         string        `json:"address"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
}

type EngineConfig struct {
	MaxRequestsPerMinute uint32        `json:"max_requests_per_minute"`
	MaxRequestsPerHour   uint32        `json:"max_requests_per_hour"`
	CleanupInterval      time.Duration `json:"cleanup_interval"`
}

type FetchConfig struct {
	Gateways      []string      `json:"gateways"`
	MaxSampleSize int           `json:"max_sample_size"`
	Timeout       time.Duration `json:"timeout"`
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Address:         ":8080",
			ShutdownTimeout: 10 * time.Second,
		},
		Engine: EngineConfig{
			MaxRequestsPerMinute: 30,
			MaxRequestsPerHour:   500,
			CleanupInterval:      5 * time.Minute,
		},
		Fetch: FetchConfig{
			Gateways: []string{
				"https://ipfs.io/ipfs",
				"https://cloudflare-ipfs.com/ipfs",
				"https://gateway.pinata.cloud/ipfs",
			},
			MaxSampleSize: 8192,
			Timeout:       10 * time.Second,
		},
	}
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return cfg, nil
}

// LoadFromEnv builds a config from CUSTODY_* environment variables,
// reading a .env file first when one is present.
func LoadFromEnv() *Config {
	_ = godotenv.Load()

	cfg := Default()
	cfg.Server.Address = getEnv("CUSTODY_LISTEN_ADDRESS", cfg.Server.Address)
	cfg.Engine.MaxRequestsPerMinute = getEnvUint32("CUSTODY_MAX_REQUESTS_PER_MINUTE", cfg.Engine.MaxRequestsPerMinute)
	cfg.Engine.MaxRequestsPerHour = getEnvUint32("CUSTODY_MAX_REQUESTS_PER_HOUR", cfg.Engine.MaxRequestsPerHour)

	if interval := os.Getenv("CUSTODY_CLEANUP_INTERVAL"); interval != "" {
		if d, err := time.ParseDuration(interval); err == nil {
			cfg.Engine.CleanupInterval = d
		}
	}
	if gateways := os.Getenv("CUSTODY_GATEWAYS"); gateways != "" {
		cfg.Fetch.Gateways = splitAndTrim(gateways)
	}
	if timeout := os.Getenv("CUSTODY_FETCH_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			cfg.Fetch.Timeout = d
		}
	}

	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvUint32(key string, defaultValue uint32) uint32 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.ParseUint(value, 10, 32)
	if err != nil {
		return defaultValue
	}
	return uint32(n)
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
