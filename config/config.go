/*
Package config loads ballotd configuration.

PRECEDENCE (lowest to highest):
  1. Defaults()
  2. TOML file passed to Load
  3. Environment variables

ENVIRONMENT:
  BALLOT_ADDR               listen address (":8080")
  PORT                      listen port, used when BALLOT_ADDR is unset
  BALLOT_DB_DRIVER          memory | sqlite | postgres
  BALLOT_DB_DSN             database DSN (DATABASE_URL also accepted)
  BALLOT_RETRACTION_WINDOW  Go duration ("24h", "90m")
  BALLOT_LOG_LEVEL          debug | info | warn | error
  BALLOT_DEV_SCENARIOS      true to expose the demo scenario endpoints

EXAMPLE FILE:
  [server]
  addr = ":8080"
  shutdown_timeout = "30s"

  [database]
  driver = "postgres"
  dsn = "postgres://ballot@localhost/ballot?sslmode=disable"

  [ballot]
  retraction_window = "24h"
*/
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Duration is a time.Duration written as a string ("24h") in TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	Server    ServerConfig    `toml:"server"`
	Database  DatabaseConfig  `toml:"database"`
	Ballot    BallotConfig    `toml:"ballot"`
	Log       LogConfig       `toml:"log"`
	Metrics   MetricsConfig   `toml:"metrics"`
	Scheduler SchedulerConfig `toml:"scheduler"`

	// Regions are the reporting regions the turnout scheduler sweeps.
	Regions []string `toml:"regions"`
}

type ServerConfig struct {
	Addr            string   `toml:"addr"`
	ReadTimeout     Duration `toml:"read_timeout"`
	WriteTimeout    Duration `toml:"write_timeout"`
	IdleTimeout     Duration `toml:"idle_timeout"`
	ShutdownTimeout Duration `toml:"shutdown_timeout"`
	CORSOrigins     []string `toml:"cors_origins"`
	DevScenarios    bool     `toml:"dev_scenarios"`
}

type DatabaseConfig struct {
	Driver string `toml:"driver"`
	DSN    string `toml:"dsn"`
}

type BallotConfig struct {
	RetractionWindow Duration `toml:"retraction_window"`
	PageSize         int      `toml:"page_size"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

type SchedulerConfig struct {
	TurnoutInterval Duration `toml:"turnout_interval"`
	// Election is the election whose turnout is published. Empty means all.
	Election string `toml:"election"`
}

// DefaultRegions are the national reporting regions.
var DefaultRegions = []string{
	"Addis Ababa", "Afar", "Amhara", "Benishangul-Gumuz", "Dire Dawa",
	"Gambela", "Harari", "Oromia", "Sidama", "Somali",
	"Southern Nations", "South West Ethiopia", "Tigray",
}

func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     Duration{15 * time.Second},
			WriteTimeout:    Duration{15 * time.Second},
			IdleTimeout:     Duration{60 * time.Second},
			ShutdownTimeout: Duration{30 * time.Second},
			CORSOrigins:     []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Database: DatabaseConfig{
			Driver: DriverSQLite,
			DSN:    "./data/ballots.db",
		},
		Ballot: BallotConfig{
			RetractionWindow: Duration{24 * time.Hour},
			PageSize:         500,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Scheduler: SchedulerConfig{
			TurnoutInterval: Duration{time.Minute},
		},
		Regions: append([]string(nil), DefaultRegions...),
	}
}

// Load reads defaults, then the TOML file at path (skipped when empty), then
// the environment, and validates the result.
func Load(path string) (Config, error) {
	return load(path, os.LookupEnv)
}

func load(path string, lookup func(string) (string, bool)) (Config, error) {
	cfg := Defaults()

	if path != "" {
		meta, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return Config{}, fmt.Errorf("config %s: unknown keys: %s", path, strings.Join(keys, ", "))
		}
	}

	if err := applyEnv(&cfg, lookup); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	if v, ok := lookup("BALLOT_ADDR"); ok && v != "" {
		cfg.Server.Addr = v
	} else if v, ok := lookup("PORT"); ok && v != "" {
		if _, err := strconv.Atoi(v); err != nil {
			return errors.New("invalid PORT env variable")
		}
		cfg.Server.Addr = ":" + v
	}

	if v, ok := lookup("BALLOT_DB_DRIVER"); ok && v != "" {
		cfg.Database.Driver = v
	}
	if v, ok := lookup("BALLOT_DB_DSN"); ok && v != "" {
		cfg.Database.DSN = v
	} else if v, ok := lookup("DATABASE_URL"); ok && v != "" {
		cfg.Database.DSN = v
	}

	if v, ok := lookup("BALLOT_RETRACTION_WINDOW"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid BALLOT_RETRACTION_WINDOW: %w", err)
		}
		cfg.Ballot.RetractionWindow = Duration{d}
	}

	if v, ok := lookup("BALLOT_LOG_LEVEL"); ok && v != "" {
		cfg.Log.Level = v
	}

	if v, ok := lookup("BALLOT_DEV_SCENARIOS"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid BALLOT_DEV_SCENARIOS: %w", err)
		}
		cfg.Server.DevScenarios = b
	}
	return nil
}

// Validate reports every problem at once.
func (c Config) Validate() error {
	var errs []error

	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	switch c.Database.Driver {
	case DriverMemory:
	case DriverSQLite, DriverPostgres:
		if c.Database.DSN == "" {
			errs = append(errs, fmt.Errorf("database.dsn is required for driver %q", c.Database.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("database.driver %q: want memory, sqlite or postgres", c.Database.Driver))
	}
	if c.Ballot.RetractionWindow.Duration <= 0 {
		errs = append(errs, errors.New("ballot.retraction_window must be positive"))
	}
	if c.Ballot.PageSize < 0 {
		errs = append(errs, errors.New("ballot.page_size must not be negative"))
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log.format %q: want text or json", c.Log.Format))
	}
	if c.Scheduler.TurnoutInterval.Duration < 0 {
		errs = append(errs, errors.New("scheduler.turnout_interval must not be negative"))
	}
	return errors.Join(errs...)
}

// SlogLevel returns the configured log level.
func (c LogConfig) SlogLevel() slog.Level {
	lvl, _ := parseLevel(c.Level)
	return lvl
}

func parseLevel(s string) (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log.level %q: want debug, info, warn or error", s)
	}
	return lvl, nil
}
