package api_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/ballot-engine/api"
	"github.com/warp/ballot-engine/ballot"
	"github.com/warp/ballot-engine/ballot/store"
)

func seeded(t *testing.T, id string) (*store.Memory, *ballot.TallyEngine) {
	t.Helper()
	mem := store.NewMemory()
	ledger := ballot.NewLedger(mem, mem)
	require.NoError(t, api.SeedScenario(context.Background(), mem, ledger, id))
	return mem, ballot.NewTallyEngine(ledger, mem, mem)
}

func TestSeedScenario_OromiaRegional(t *testing.T) {
	_, engine := seeded(t, "oromia-regional")
	ctx := context.Background()

	res, err := engine.Results(ctx, ballot.Scope{ElectionID: "oromia-2026", Region: "oromia"})
	require.NoError(t, err)
	require.Len(t, res.Candidates, 2)
	assert.Equal(t, ballot.CandidateID("cand-x"), res.Candidates[0].CandidateID)
	assert.Equal(t, "66.67", res.Candidates[0].Percentage.StringFixed(2))
	assert.Equal(t, "33.33", res.Candidates[1].Percentage.StringFixed(2))

	turnout, err := engine.Turnout(ctx, ballot.Scope{ElectionID: "oromia-2026", Region: "Oromia"})
	require.NoError(t, err)
	assert.Equal(t, "100.00", turnout.TurnoutPercentage.StringFixed(2))
}

func TestSeedScenario_NationalGeneral(t *testing.T) {
	mem, engine := seeded(t, "national-general")
	ctx := context.Background()

	counts, err := engine.TallyByCandidate(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, ballot.Counts{"cand-abeba": 2, "cand-dawit": 2, "cand-lensa": 3, "cand-yonas": 1}, counts)

	summary, err := engine.NationalSummary(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 11, summary.EligibleVoters, "nv-12 is registered but not eligible")
	assert.Equal(t, "72.73", summary.TurnoutPercentage.StringFixed(2))

	// nv-08 retracted once and re-cast
	history, err := mem.BallotsByVoter(ctx, "nv-08")
	require.NoError(t, err)
	require.Len(t, history, 2)
	active := 0
	for _, b := range history {
		if b.IsActive() {
			active++
			assert.Equal(t, ballot.CandidateID("cand-lensa"), b.CandidateID)
		}
	}
	assert.Equal(t, 1, active)
}

func TestSeedScenario_EmptyElection(t *testing.T) {
	_, engine := seeded(t, "empty-election")

	res, err := engine.Results(context.Background(), ballot.Scope{ElectionID: "sidama-by-2026"})
	require.NoError(t, err)
	assert.Equal(t, 0, res.TotalVotes)
	require.Len(t, res.Candidates, 2)
	for _, c := range res.Candidates {
		assert.True(t, c.Percentage.IsZero())
	}
}

func TestSeedScenario_Unknown(t *testing.T) {
	mem := store.NewMemory()
	err := api.SeedScenario(context.Background(), mem, ballot.NewLedger(mem, mem), "nope")
	assert.ErrorIs(t, err, api.ErrUnknownScenario)
}

func TestLoadScenario_OverHTTP(t *testing.T) {
	// GIVEN: a database with unrelated ballots
	hs := newMemoryHarness(t)
	hs.cast(t, hs.voter(t, "stale", "Afar", ""), "X", electionA)
	sysadmin := admin(ballot.RoleSystemAdmin, "", "")

	var list []api.ScenarioDTO
	require.Equal(t, http.StatusOK, hs.do(t, http.MethodGet, "/api/scenarios", sysadmin, nil, &list))
	assert.Len(t, list, len(api.Scenarios()))

	// WHEN: loading the Oromia scenario
	var loaded map[string]string
	status := hs.do(t, http.MethodPost, "/api/scenarios/load", sysadmin,
		api.LoadScenarioRequest{ScenarioID: "oromia-regional"}, &loaded)
	require.Equal(t, http.StatusOK, status)

	// THEN: the old data is gone and the scenario is current
	_, err := hs.mem.LookupVoter(context.Background(), "stale")
	assert.ErrorIs(t, err, ballot.ErrVoterNotFound)

	var current api.ScenarioDTO
	require.Equal(t, http.StatusOK, hs.do(t, http.MethodGet, "/api/scenarios/current", sysadmin, nil, &current))
	assert.Equal(t, "oromia-regional", current.ID)

	var results api.ResultsDTO
	require.Equal(t, http.StatusOK, hs.do(t, http.MethodGet, "/api/elections/oromia-2026/results", sysadmin, nil, &results))
	assert.Equal(t, 3, results.TotalVotes)
}

func TestLoadScenario_Unknown(t *testing.T) {
	hs := newMemoryHarness(t)
	v := hs.voter(t, "keep", "Afar", "")

	var errResp api.ErrorResponse
	status := hs.do(t, http.MethodPost, "/api/scenarios/load", admin(ballot.RoleSystemAdmin, "", ""),
		api.LoadScenarioRequest{ScenarioID: "nope"}, &errResp)

	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "unknown_scenario", errResp.Code)
	_, err := hs.mem.LookupVoter(context.Background(), v.ID)
	assert.NoError(t, err, "unknown scenario must not reset")
}
