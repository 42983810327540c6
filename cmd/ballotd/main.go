/*
main.go - ballotd entry point

PURPOSE:
  Command-line front end of the ballot engine: runs the HTTP server, prints
  tallies, seeds demo data and migrates schemas.

COMMANDS:
  ballotd serve                       HTTP API with graceful shutdown
  ballotd tally --election ID         Print results and turnout
  ballotd seed --scenario ID          Reset and load a demo scenario
  ballotd migrate                     Create or upgrade the schema

GLOBAL FLAGS:
  --config   TOML config file (see package config)
  --env-file dotenv file loaded before the config (default .env, optional)

EXAMPLES:
  ballotd serve --config ./ballotd.toml
  BALLOT_DB_DRIVER=memory BALLOT_DEV_SCENARIOS=true ballotd serve
  ballotd tally --election oromia-2026 --region Oromia
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/warp/ballot-engine/api"
	"github.com/warp/ballot-engine/ballot/store"
	"github.com/warp/ballot-engine/config"
	"github.com/warp/ballot-engine/store/postgres"
	"github.com/warp/ballot-engine/store/sqlite"
)

var (
	cfgPath string
	envFile string
	cfg     config.Config
)

var rootCmd = &cobra.Command{
	Use:   "ballotd",
	Short: "Ballot ledger, tally engine and retraction policy",
	Long: `ballotd records ballots exactly once per voter per election, lets voters
retract within a bounded window, and derives results and turnout from the
active ballots.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "Path to a TOML config file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load if present")
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command, args []string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	var err error
	cfg, err = config.Load(cfgPath)
	if err != nil {
		return err
	}

	slog.SetDefault(newLogger(cfg.Log, os.Stderr))
	return nil
}

func newLogger(c config.LogConfig, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.SlogLevel()}
	if c.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// openBackend connects to the configured database. The returned close
// function is always non-nil.
func openBackend(ctx context.Context, db config.DatabaseConfig) (api.Backend, func() error, error) {
	noop := func() error { return nil }

	switch db.Driver {
	case config.DriverMemory:
		return store.NewMemory(), noop, nil

	case config.DriverSQLite:
		if db.DSN != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(db.DSN), 0o755); err != nil {
				return nil, noop, fmt.Errorf("create database directory: %w", err)
			}
		}
		s, err := sqlite.New(db.DSN)
		if err != nil {
			return nil, noop, err
		}
		return s, s.Close, nil

	case config.DriverPostgres:
		s, err := postgres.New(ctx, db.DSN)
		if err != nil {
			return nil, noop, err
		}
		return s, s.Close, nil

	default:
		return nil, noop, fmt.Errorf("unsupported database driver %q", db.Driver)
	}
}
