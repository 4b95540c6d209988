// Package config loads the TOML configuration shared by wxaloftd and
// wxaloftctl. Every section maps to a typed struct; values missing from the
// file keep their defaults.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"go.uber.org/zap"

	"wxaloft/internal/logging"
	"wxaloft/internal/natsfeed"
	"wxaloft/internal/storage"
	"wxaloft/internal/wxdecoder"
)

// Config is the top-level configuration, mirroring the TOML sections.
type Config struct {
	Server     ServerConfig             `toml:"server"`
	Logging    logging.Config           `toml:"logging"`
	Database   DatabaseConfig           `toml:"database"`
	ClickHouse storage.ClickHouseConfig `toml:"clickhouse"`
	NATS       natsfeed.Config          `toml:"nats"`
	Decoders   DecodersConfig           `toml:"decoders"`
}

type ServerConfig struct {
	Bind                  string `toml:"bind"`
	IngestPath            string `toml:"ingest_path"`
	MaxBodyBytes          int64  `toml:"max_body_bytes"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
}

type DatabaseConfig struct {
	Driver   string                 `toml:"driver"` // postgres or sqlite
	Postgres storage.PostgresConfig `toml:"postgres"`
	SQLite   storage.SQLiteConfig   `toml:"sqlite"`
}

// DecodersConfig routes extra airlines to built-in formats, e.g.
// airlines = { DL = "h2wind" }.
type DecodersConfig struct {
	Airlines map[string]string `toml:"airlines"`
}

// Default returns a Config populated with defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Bind:                  "0.0.0.0:8080",
			IngestPath:            "/acars",
			MaxBodyBytes:          64 << 10,
			RequestTimeoutSeconds: 30,
		},
		Logging: logging.Config{
			Level:  "info",
			Format: "json",
		},
		Database: DatabaseConfig{
			Driver: "postgres",
			Postgres: storage.PostgresConfig{
				Host:     "localhost",
				Port:     5432,
				Database: "wxaloft",
				User:     "wxaloft",
				SSLMode:  "disable",
				MaxConns: 10,
			},
			SQLite: storage.SQLiteConfig{
				Path:     "/var/lib/wxaloft/wxaloft.db",
				MaxConns: 4,
			},
		},
		ClickHouse: storage.ClickHouseConfig{
			Host:     "localhost",
			Port:     9000,
			Database: "default",
			User:     "default",
		},
		NATS: natsfeed.Config{
			URL:            "nats://localhost:4222",
			Subject:        "wxaloft.acars",
			Queue:          "wxaloft",
			TimeoutSeconds: 30,
		},
	}
}

// Load reads the TOML file at path, layers it on top of the defaults,
// applies POSTGRES_* environment overrides and validates the result. An
// empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg, os.Getenv); err != nil {
		return cfg, err
	}
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config, getenv func(string) string) error {
	pg := &cfg.Database.Postgres
	if v := getenv("POSTGRES_HOST"); v != "" {
		pg.Host = v
	}
	if v := getenv("POSTGRES_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("POSTGRES_PORT: %w", err)
		}
		pg.Port = port
	}
	if v := getenv("POSTGRES_USER"); v != "" {
		pg.User = v
	}
	if v := getenv("POSTGRES_PASSWORD"); v != "" {
		pg.Password = v
	}
	if v := getenv("POSTGRES_DATABASE"); v != "" {
		pg.Database = v
	}
	return nil
}

func validate(cfg Config) error {
	if cfg.Server.Bind == "" {
		return errors.New("server.bind must not be empty")
	}
	if !strings.HasPrefix(cfg.Server.IngestPath, "/") {
		return errors.New("server.ingest_path must start with /")
	}
	if cfg.Server.IngestPath == "/obs" || cfg.Server.IngestPath == "/health" || cfg.Server.IngestPath == "/metrics" {
		return fmt.Errorf("server.ingest_path %s is already in use", cfg.Server.IngestPath)
	}
	if cfg.Server.MaxBodyBytes <= 0 {
		return errors.New("server.max_body_bytes must be > 0")
	}
	if cfg.Server.RequestTimeoutSeconds < 1 {
		return errors.New("server.request_timeout_seconds must be >= 1")
	}
	switch cfg.Database.Driver {
	case "postgres":
		if cfg.Database.Postgres.Port <= 0 {
			return errors.New("database.postgres.port must be > 0")
		}
	case "sqlite":
		if cfg.Database.SQLite.Path == "" {
			return errors.New("database.sqlite.path must not be empty")
		}
	default:
		return fmt.Errorf("database.driver must be postgres or sqlite, not %q", cfg.Database.Driver)
	}
	if cfg.NATS.Enabled && cfg.NATS.Subject == "" {
		return errors.New("nats.subject must not be empty")
	}
	for airline := range cfg.Decoders.Airlines {
		if len(airline) != 2 {
			return fmt.Errorf("decoders.airlines: %q is not a two-character designator", airline)
		}
	}
	return nil
}

// OpenStore opens and migrates the configured database.
func (c DatabaseConfig) OpenStore(ctx context.Context, log *zap.Logger) (storage.Store, error) {
	var (
		st  storage.Store
		err error
	)
	switch c.Driver {
	case "sqlite":
		st, err = storage.OpenSQLite(c.SQLite)
	default:
		st, err = storage.OpenPostgres(ctx, c.Postgres, log)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

// Apply routes the configured airlines on reg.
func (c DecodersConfig) Apply(reg *wxdecoder.Registry) error {
	for airline, format := range c.Airlines {
		if err := reg.Assign(airline, format); err != nil {
			return err
		}
	}
	return nil
}
