package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/ballot-engine/ballot/store"
	"github.com/warp/ballot-engine/config"
	"github.com/warp/ballot-engine/store/sqlite"
)

// execute runs the root command against a fresh SQLite file shared by every
// call within one test.
func execute(t *testing.T, dbPath string, args ...string) string {
	t.Helper()
	t.Setenv("BALLOT_DB_DRIVER", config.DriverSQLite)
	t.Setenv("BALLOT_DB_DSN", dbPath)
	t.Setenv("BALLOT_LOG_LEVEL", "error")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--env-file", ""}, args...))
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		tallyFlags.election, tallyFlags.region, tallyFlags.zone, tallyFlags.asJSON = "", "", "", false
		seedFlags.scenario, seedFlags.list, seedFlags.noReset = "", false, false
	})

	require.NoError(t, rootCmd.ExecuteContext(context.Background()), out.String())
	return out.String()
}

func TestSeedThenTally(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "data", "ballots.db")

	out := execute(t, dbPath, "seed", "--scenario", "oromia-regional")
	assert.Contains(t, out, "Loaded scenario oromia-regional")

	out = execute(t, dbPath, "tally", "--election", "oromia-2026", "--region", "Oromia", "--json")

	var report tallyReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, 3, report.Results.TotalVotes)
	require.Len(t, report.Results.Candidates, 2)
	assert.Equal(t, "66.67", report.Results.Candidates[0].Percentage)
	assert.Equal(t, "100.00", report.Turnout.TurnoutPercentage)
}

func TestTally_Table(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "ballots.db")
	execute(t, dbPath, "seed", "--scenario", "national-general")

	out := execute(t, dbPath, "tally")

	lines := strings.Split(out, "\n")
	assert.Equal(t, "Scope: election=default", lines[0])
	assert.Contains(t, out, "cand-lensa")
	assert.Contains(t, out, "Total votes: 8")
	assert.Contains(t, out, "8 / 11 (72.73%)")
}

func TestSeed_List(t *testing.T) {
	out := execute(t, filepath.Join(t.TempDir(), "ballots.db"), "seed", "--list")

	assert.Contains(t, out, "oromia-regional")
	assert.Contains(t, out, "empty-election")
}

func TestMigrate(t *testing.T) {
	out := execute(t, filepath.Join(t.TempDir(), "ballots.db"), "migrate")
	assert.Contains(t, out, "Schema up to date (sqlite)")
}

func TestOpenBackend(t *testing.T) {
	ctx := context.Background()

	b, closeFn, err := openBackend(ctx, config.DatabaseConfig{Driver: config.DriverMemory})
	require.NoError(t, err)
	assert.IsType(t, &store.Memory{}, b)
	assert.NoError(t, closeFn())

	b, closeFn, err = openBackend(ctx, config.DatabaseConfig{Driver: config.DriverSQLite, DSN: ":memory:"})
	require.NoError(t, err)
	assert.IsType(t, &sqlite.Store{}, b)
	assert.NoError(t, closeFn())

	_, closeFn, err = openBackend(ctx, config.DatabaseConfig{Driver: "oracle"})
	assert.Error(t, err)
	assert.NotNil(t, closeFn)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer

	logger := newLogger(config.LogConfig{Level: "warn", Format: "json"}, &buf)
	logger.Info("hidden")
	logger.Warn("shown", "region", "Oromia")

	assert.NotContains(t, buf.String(), "hidden")
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "shown", entry["msg"])
	assert.Equal(t, "Oromia", entry["region"])
	assert.Equal(t, slog.LevelWarn.String(), entry["level"])
}
