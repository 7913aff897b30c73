// Package config loads oactl settings. Values are layered: built-in
// defaults, then the TOML config file, then a .env file and the process
// environment. Command-line flags are applied last by the caller.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	toml "github.com/pelletier/go-toml/v2"
	"go-simpler.org/env"
)

// Storage backends.
const (
	BackendBBolt  = "bbolt"
	BackendFile   = "file"
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// AppName names the per-user config and data directory.
const AppName = "oactl"

// Duration is a time.Duration that reads and writes as "10s" style text in
// both TOML and environment variables.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

type Config struct {
	Server    string   `toml:"server" env:"OACTL_SERVER"`
	Timeout   Duration `toml:"timeout" env:"OACTL_TIMEOUT"`
	GuestName string   `toml:"guest_name" env:"OACTL_GUEST_NAME"`

	Store     string `toml:"store" env:"OACTL_STORE"`
	DataDir   string `toml:"data_dir" env:"OACTL_DATA_DIR"`
	Namespace string `toml:"namespace" env:"OACTL_NAMESPACE"`

	RedisAddr     string `toml:"redis_addr" env:"OACTL_REDIS_ADDR"`
	RedisPassword string `toml:"redis_password" env:"OACTL_REDIS_PASSWORD"`
	RedisDB       int    `toml:"redis_db" env:"OACTL_REDIS_DB"`

	LogLevel  string `toml:"log_level" env:"OACTL_LOG_LEVEL"`
	LogFormat string `toml:"log_format" env:"OACTL_LOG_FORMAT"`
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		Server:    "http://localhost:8000",
		Timeout:   Duration{10 * time.Second},
		GuestName: "访客",
		Store:     BackendBBolt,
		DataDir:   defaultDir(),
		Namespace: "default",
		LogLevel:  "warn",
		LogFormat: "text",
	}
}

func defaultDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "." + AppName
	}
	return filepath.Join(dir, AppName)
}

// DefaultPath is the config file read when none is given explicitly.
func DefaultPath() string {
	return filepath.Join(defaultDir(), "config.toml")
}

// Load builds a Config from defaults, the TOML file at path and the
// environment. A missing file is only an error when required is set.
func Load(path string, required bool) (*Config, error) {
	cfg := Default()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := toml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config file %s: %w", path, err)
			}
		case errors.Is(err, fs.ErrNotExist) && !required:
			slog.Debug("no config file found, using defaults", "path", path)
		default:
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	if err := env.Load(cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}
	return cfg, nil
}

// Validate checks the final, flag-merged configuration.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Server)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("server must be an http(s) URL, got %q", c.Server)
	}
	if c.Timeout.Duration <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}

	switch c.Store {
	case BackendBBolt, BackendFile:
		if c.DataDir == "" {
			return fmt.Errorf("data_dir is required for the %s store", c.Store)
		}
	case BackendRedis:
		if c.RedisAddr == "" {
			return errors.New("redis_addr is required for the redis store")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unknown store %q (want %s)", c.Store,
			strings.Join([]string{BackendBBolt, BackendFile, BackendMemory, BackendRedis}, ", "))
	}

	if c.Namespace == "" || strings.ContainsAny(c.Namespace, `/\`) {
		return fmt.Errorf("invalid namespace %q", c.Namespace)
	}

	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("log_format must be text or json, got %q", c.LogFormat)
	}
	return nil
}

// Marshal renders the configuration as TOML.
func (c *Config) Marshal() ([]byte, error) {
	return toml.Marshal(c)
}
