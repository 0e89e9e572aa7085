// Package config loads service settings from the environment and an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds every setting the server reads at startup.
type Config struct {
	Port            string
	DatabaseURL     string
	RedisURL        string
	CacheTTL        time.Duration
	KafkaBrokers    []string
	KafkaTopic      string
	LogLevel        slog.Level
	UsernameMaxLen  int
	MaxOrderVolume  uint64
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

// Load reads settings from the environment, falling back to the file at
// path (dotenv format) and then to defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetDefault("PORT", "8080")
	v.SetDefault("CACHE_TTL", 30*time.Second)
	v.SetDefault("KAFKA_TOPIC", "vmbid.fills")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("USERNAME_MAX_LEN", 64)
	v.SetDefault("MAX_ORDER_VOLUME", uint64(1_000_000_000_000))
	v.SetDefault("REQUEST_TIMEOUT", 30*time.Second)
	v.SetDefault("SHUTDOWN_TIMEOUT", 5*time.Second)
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := &Config{
		Port:            v.GetString("PORT"),
		DatabaseURL:     v.GetString("DATABASE_URL"),
		RedisURL:        v.GetString("REDIS_URL"),
		CacheTTL:        v.GetDuration("CACHE_TTL"),
		KafkaBrokers:    splitList(v.GetString("KAFKA_BROKERS")),
		KafkaTopic:      v.GetString("KAFKA_TOPIC"),
		UsernameMaxLen:  v.GetInt("USERNAME_MAX_LEN"),
		MaxOrderVolume:  v.GetUint64("MAX_ORDER_VOLUME"),
		RequestTimeout:  v.GetDuration("REQUEST_TIMEOUT"),
		ShutdownTimeout: v.GetDuration("SHUTDOWN_TIMEOUT"),
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(v.GetString("LOG_LEVEL"))); err != nil {
		return nil, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	if cfg.UsernameMaxLen < 1 {
		return nil, fmt.Errorf("USERNAME_MAX_LEN must be positive, got %d", cfg.UsernameMaxLen)
	}
	if cfg.MaxOrderVolume == 0 {
		return nil, errors.New("MAX_ORDER_VOLUME must be positive")
	}
	if cfg.CacheTTL <= 0 {
		return nil, fmt.Errorf("CACHE_TTL must be positive, got %s", cfg.CacheTTL)
	}

	return cfg, nil
}

// splitList parses a comma-separated list, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
