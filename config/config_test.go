package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(vars map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := vars[k]
		return v, ok
	}
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ballotd.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := load("", env(nil))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, 24*time.Hour, cfg.Ballot.RetractionWindow.Duration)
	assert.Len(t, cfg.Regions, 13)
	assert.Equal(t, slog.LevelInfo, cfg.Log.SlogLevel())
}

func TestLoad_File(t *testing.T) {
	path := writeFile(t, `
regions = ["Oromia", "Amhara"]

[server]
addr = ":9090"
shutdown_timeout = "5s"
dev_scenarios = true

[database]
driver = "postgres"
dsn = "postgres://ballot@localhost/ballot?sslmode=disable"

[ballot]
retraction_window = "90m"

[log]
level = "debug"
format = "json"

[scheduler]
turnout_interval = "30s"
election = "general-2026"
`)

	cfg, err := load(path, env(nil))
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, 5*time.Second, cfg.Server.ShutdownTimeout.Duration)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout.Duration, "unset keys keep defaults")
	assert.True(t, cfg.Server.DevScenarios)
	assert.Equal(t, DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, 90*time.Minute, cfg.Ballot.RetractionWindow.Duration)
	assert.Equal(t, slog.LevelDebug, cfg.Log.SlogLevel())
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 30*time.Second, cfg.Scheduler.TurnoutInterval.Duration)
	assert.Equal(t, "general-2026", cfg.Scheduler.Election)
	assert.Equal(t, []string{"Oromia", "Amhara"}, cfg.Regions)
}

func TestLoad_UnknownKeyRejected(t *testing.T) {
	path := writeFile(t, `
[ballot]
retraction_windw = "1h"
`)

	_, err := load(path, env(nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ballot.retraction_windw")
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeFile(t, `
[server]
addr = ":9090"

[database]
driver = "sqlite"
dsn = "file.db"
`)

	cfg, err := load(path, env(map[string]string{
		"PORT":                     "7000",
		"BALLOT_DB_DRIVER":         "postgres",
		"DATABASE_URL":             "postgres://from-env",
		"BALLOT_RETRACTION_WINDOW": "2h",
		"BALLOT_LOG_LEVEL":         "warn",
		"BALLOT_DEV_SCENARIOS":     "true",
	}))
	require.NoError(t, err)

	assert.Equal(t, ":7000", cfg.Server.Addr)
	assert.Equal(t, DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, "postgres://from-env", cfg.Database.DSN)
	assert.Equal(t, 2*time.Hour, cfg.Ballot.RetractionWindow.Duration)
	assert.Equal(t, slog.LevelWarn, cfg.Log.SlogLevel())
	assert.True(t, cfg.Server.DevScenarios)
}

func TestLoad_BallotAddrWinsOverPort(t *testing.T) {
	cfg, err := load("", env(map[string]string{"BALLOT_ADDR": "127.0.0.1:8000", "PORT": "7000"}))
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8000", cfg.Server.Addr)
}

func TestLoad_BadEnv(t *testing.T) {
	tests := map[string]map[string]string{
		"port":     {"PORT": "eighty"},
		"window":   {"BALLOT_RETRACTION_WINDOW": "a day"},
		"dev flag": {"BALLOT_DEV_SCENARIOS": "sure"},
		"driver":   {"BALLOT_DB_DRIVER": "mongodb"},
		"level":    {"BALLOT_LOG_LEVEL": "loud"},
	}
	for name, vars := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := load("", env(vars))
			assert.Error(t, err)
		})
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Database.Driver = DriverPostgres
	cfg.Database.DSN = ""
	cfg.Ballot.RetractionWindow = Duration{}
	cfg.Log.Format = "xml"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.dsn")
	assert.Contains(t, err.Error(), "retraction_window")
	assert.Contains(t, err.Error(), "log.format")
}

func TestValidate_MemoryNeedsNoDSN(t *testing.T) {
	cfg := Defaults()
	cfg.Database.Driver = DriverMemory
	cfg.Database.DSN = ""
	assert.NoError(t, cfg.Validate())
}
