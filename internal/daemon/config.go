// Package daemon manages the LevelHabit server lifecycle and configuration.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/levelhabit/levelhabit/internal/app/engagement"
	"github.com/levelhabit/levelhabit/internal/infra/redis"
)

// Environment variables that override the config file.
const (
	EnvHome        = "LEVELHABIT_HOME"
	EnvJWTSecret   = "LEVELHABIT_JWT_SECRET"
	EnvRedisAddr   = "LEVELHABIT_REDIS_ADDR"
	configFileName = "config.toml"
)

// Config holds all server configuration.
type Config struct {
	API         APIConfig              `toml:"api"`
	Auth        AuthConfig             `toml:"auth"`
	Catalog     CatalogConfig          `toml:"catalog"`
	Progression engagement.RulesConfig `toml:"progression"`
	Redis       redis.Config           `toml:"redis"`
	Telemetry   TelemetryConfig        `toml:"telemetry"`
	Logging     LoggingConfig          `toml:"logging"`
}

// APIConfig controls the HTTP API server.
type APIConfig struct {
	Host           string   `toml:"host"`
	Port           int      `toml:"port"`
	CORSOrigins    []string `toml:"cors_origins"`
	RateLimitRPS   float64  `toml:"rate_limit_rps"`
	RateLimitBurst int      `toml:"rate_limit_burst"`
}

// AuthConfig controls bearer token signing.
type AuthConfig struct {
	JWTSecret string `toml:"jwt_secret"`
	Issuer    string `toml:"issuer"`
	TokenTTL  string `toml:"token_ttl"`
}

// TTL parses TokenTTL, falling back to 24h.
func (a AuthConfig) TTL() time.Duration {
	return parseDuration(a.TokenTTL, 24*time.Hour)
}

// CatalogConfig points at an optional catalog file replacing the
// embedded one.
type CatalogConfig struct {
	Path string `toml:"path"`
}

// TelemetryConfig controls metrics export.
type TelemetryConfig struct {
	Prometheus bool `toml:"prometheus"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level string `toml:"level"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() Config {
	return Config{
		API: APIConfig{
			Host:           "127.0.0.1",
			Port:           8080,
			CORSOrigins:    []string{"*"},
			RateLimitRPS:   5,
			RateLimitBurst: 30,
		},
		Auth: AuthConfig{
			Issuer:   "levelhabit",
			TokenTTL: "24h",
		},
		Progression: engagement.DefaultRulesConfig(),
		Redis:       redis.DefaultConfig(),
		Telemetry:   TelemetryConfig{Prometheus: true},
		Logging:     LoggingConfig{Level: "info"},
	}
}

// LoadConfig reads $LEVELHABIT_HOME/config.toml over the defaults and
// applies environment overrides.
func LoadConfig() (Config, error) {
	return LoadConfigFrom(filepath.Join(levelhabitHome(), configFileName))
}

// LoadConfigFrom reads the config at path. A missing file yields defaults.
func LoadConfigFrom(path string) (Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return cfg, fmt.Errorf("stat config: %w", err)
	}

	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvJWTSecret); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv(EnvRedisAddr); v != "" {
		cfg.Redis.Addr = v
		cfg.Redis.Enabled = true
	}
}

// SaveConfig writes the config to $LEVELHABIT_HOME/config.toml.
func SaveConfig(cfg Config) error {
	path := filepath.Join(levelhabitHome(), configFileName)
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

// levelhabitHome returns the data directory.
func levelhabitHome() string {
	if env := os.Getenv(EnvHome); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".levelhabit")
}

// Home is exported for use by other packages.
func Home() string {
	return levelhabitHome()
}

// parseDuration parses a duration string, returning a fallback on error.
func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
