package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	// Empty variables count as unset.
	for _, key := range []string{"PORT", "CACHE_TTL", "LOG_LEVEL", "USERNAME_MAX_LEN", "MAX_ORDER_VOLUME", "KAFKA_BROKERS"} {
		t.Setenv(key, "")
	}

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("expected port 8080, got %s", cfg.Port)
	}
	if cfg.CacheTTL != 30*time.Second {
		t.Errorf("expected 30s cache ttl, got %s", cfg.CacheTTL)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("expected info level, got %s", cfg.LogLevel)
	}
	if cfg.UsernameMaxLen != 64 {
		t.Errorf("expected username max len 64, got %d", cfg.UsernameMaxLen)
	}
	if cfg.MaxOrderVolume != 1_000_000_000_000 {
		t.Errorf("expected max order volume 10^12, got %d", cfg.MaxOrderVolume)
	}
	if len(cfg.KafkaBrokers) != 0 {
		t.Errorf("expected no kafka brokers, got %v", cfg.KafkaBrokers)
	}
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("CACHE_TTL", "1m")
	t.Setenv("USERNAME_MAX_LEN", "16")
	t.Setenv("MAX_ORDER_VOLUME", "5000")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Port)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "k2:9092" {
		t.Errorf("unexpected brokers %v", cfg.KafkaBrokers)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("expected debug level, got %s", cfg.LogLevel)
	}
	if cfg.CacheTTL != time.Minute {
		t.Errorf("expected 1m cache ttl, got %s", cfg.CacheTTL)
	}
	if cfg.UsernameMaxLen != 16 {
		t.Errorf("expected username max len 16, got %d", cfg.UsernameMaxLen)
	}
	if cfg.MaxOrderVolume != 5000 {
		t.Errorf("expected max order volume 5000, got %d", cfg.MaxOrderVolume)
	}
}

func TestLoad_ZeroMaxOrderVolume(t *testing.T) {
	t.Setenv("MAX_ORDER_VOLUME", "0")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for zero MAX_ORDER_VOLUME")
	}
}

func TestLoad_EnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("DATABASE_URL=postgres://db/vmbid\nKAFKA_TOPIC=fills\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("KAFKA_TOPIC", "from-env")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DatabaseURL != "postgres://db/vmbid" {
		t.Errorf("expected database url from file, got %q", cfg.DatabaseURL)
	}
	if cfg.KafkaTopic != "from-env" {
		t.Errorf("environment should win over file, got %q", cfg.KafkaTopic)
	}
}

func TestLoad_MissingFileIgnored(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Fatalf("missing file should be ignored, got %v", err)
	}
}

func TestLoad_BadLogLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "loud")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for bad log level")
	}
}
