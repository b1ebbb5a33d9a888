// Package config loads process settings from the environment and an optional
// YAML file. Environment values win over the file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// StoreKind selects the remote store backend.
type StoreKind string

const (
	StoreMemory   StoreKind = "memory"
	StoreNATS     StoreKind = "nats"
	StorePostgres StoreKind = "postgres"
)

type Config struct {
	LogLevel   string `env:"LOG_LEVEL" envDefault:"info"`
	ConfigFile string `env:"GAMEMATE_CONFIG" envDefault:"gamemate.yaml"`

	Store        StoreKind     `env:"STORE"`
	Roster       []string      `env:"ROSTER"`
	DeviceID     string        `env:"DEVICE_ID" envDefault:"default"`
	CachePath    string        `env:"CACHE_PATH" envDefault:"data/device.db"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT" envDefault:"30s"`

	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8081"`

	NATSURL  string   `env:"NATS_URL" envDefault:"nats://localhost:4222"`
	Database Database `envPrefix:"DB_"`
}

// Database holds Postgres connection settings.
type Database struct {
	Host     string `env:"HOST" envDefault:"localhost"`
	Port     int    `env:"PORT" envDefault:"5432"`
	User     string `env:"USER" envDefault:"postgres"`
	Password string `env:"PASSWORD" envDefault:"postgres"`
	Name     string `env:"NAME" envDefault:"gamemate"`
	SSLMode  string `env:"SSLMODE" envDefault:"disable"`
}

// DSN returns the Postgres connection URL.
func (d Database) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// File is the YAML configuration file.
type File struct {
	Store  StoreKind `yaml:"store"`
	Roster []string  `yaml:"roster"`
}

// Load reads the process environment, then fills unset fields from the
// config file when it exists.
func Load() (*Config, error) {
	return load(env.Options{})
}

// LoadFrom is Load over an explicit environment instead of the process one.
func LoadFrom(environment map[string]string) (*Config, error) {
	return load(env.Options{Environment: environment})
}

func load(opts env.Options) (*Config, error) {
	cfg, err := env.ParseAsWithOptions[Config](opts)
	if err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}

	if cfg.ConfigFile != "" {
		file, err := LoadFile(cfg.ConfigFile)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			log.Debug().Str("path", cfg.ConfigFile).Msg("no config file, using environment only")
		case err != nil:
			return nil, err
		default:
			cfg.merge(file)
		}
	}

	if cfg.Store == "" {
		cfg.Store = StoreMemory
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFile parses the YAML file at path.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &file, nil
}

func (c *Config) merge(file *File) {
	if c.Store == "" {
		c.Store = file.Store
	}
	if len(c.Roster) == 0 {
		c.Roster = file.Roster
	}
}

// Validate checks the store selection and the roster.
func (c *Config) Validate() error {
	switch c.Store {
	case StoreMemory, StoreNATS, StorePostgres:
	default:
		return fmt.Errorf("unknown store %q", c.Store)
	}

	seen := make(map[string]bool, len(c.Roster))
	for i, name := range c.Roster {
		name = strings.TrimSpace(name)
		if name == "" {
			return fmt.Errorf("roster entry %d is empty", i)
		}
		if seen[name] {
			return fmt.Errorf("duplicate player %q in roster", name)
		}
		seen[name] = true
		c.Roster[i] = name
	}
	return nil
}

// ConfigureLogging sets the global zerolog level and, for terminals, the
// console writer.
func (c *Config) ConfigureLogging(console bool) {
	if console {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		log.Warn().Str("level", c.LogLevel).Msg("unknown log level, using info")
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}
