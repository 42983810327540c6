/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:
  Provides pre-built scenarios that populate the database with realistic
  registration data and ballots. Ballots are cast through the ledger, so every
  scenario obeys the same rules as live traffic.

AVAILABLE SCENARIOS:
  oromia-regional:  3 Oromia voters, 2 candidates, votes split 2:1
  national-general: default election across four regions, one voter
                    retracts and re-casts
  empty-election:   registered candidates and voters, no ballots

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Register candidates and the election
 3. Register voters
 4. Cast (and retract) ballots via the ledger

USAGE VIA API:
  POST /api/scenarios/load
  {"scenario_id": "oromia-regional"}

USAGE VIA CLI:
  ballotd seed --scenario oromia-regional

NOTE:
  Scenarios reset the database. The routes are only mounted with
  dev_scenarios enabled.
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/warp/ballot-engine/ballot"
)

// ErrUnknownScenario is returned by SeedScenario for unregistered IDs.
var ErrUnknownScenario = errors.New("unknown scenario")

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "oromia-regional",
		Name:        "Oromia Regional",
		Description: "Three Oromia voters, two candidates, 2:1 split, full turnout",
	},
	{
		ID:          "national-general",
		Name:        "National General",
		Description: "Default election across four regions with one retraction and re-cast",
	},
	{
		ID:          "empty-election",
		Name:        "Empty Election",
		Description: "Candidates and voters registered, polls open, nothing cast",
	},
}

type scenarioLoader func(ctx context.Context, reg ballot.Registry, ledger *ballot.Ledger) error

var loaders = map[string]scenarioLoader{
	"oromia-regional":  loadOromiaRegional,
	"national-general": loadNationalGeneral,
	"empty-election":   loadEmptyElection,
}

// Scenarios lists the available scenarios.
func Scenarios() []ScenarioDTO {
	return append([]ScenarioDTO(nil), scenarios...)
}

// SeedScenario loads scenario id into an empty store. It does not reset.
func SeedScenario(ctx context.Context, reg ballot.Registry, ledger *ballot.Ledger, id string) error {
	load, ok := loaders[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownScenario, id)
	}
	if err := load(ctx, reg, ledger); err != nil {
		return fmt.Errorf("scenario %s: %w", id, err)
	}
	return nil
}

// =============================================================================
// HANDLERS
// =============================================================================

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario resets the database and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body", err)
		return
	}
	if _, ok := loaders[req.ScenarioID]; !ok {
		writeError(w, http.StatusBadRequest, "unknown_scenario", "Unknown scenario", nil)
		return
	}

	ctx := r.Context()

	h.mu.Lock()
	defer h.mu.Unlock()
	h.currentScenario = ""

	if err := h.Backend.Reset(ctx); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if err := SeedScenario(ctx, h.Backend, h.Ledger, req.ScenarioID); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.currentScenario = req.ScenarioID

	h.Logger.InfoContext(ctx, "scenario loaded", "scenario", req.ScenarioID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "scenario_id": req.ScenarioID})
}

// =============================================================================
// LOADERS
// =============================================================================

type castSpec struct {
	voter     ballot.VoterIdentity
	candidate ballot.CandidateID
}

func register(ctx context.Context, reg ballot.Registry, election ballot.Election, candidates []ballot.Candidate, voters []ballot.VoterIdentity) error {
	for _, c := range candidates {
		if err := c.Validate(); err != nil {
			return err
		}
		if err := reg.SaveCandidate(ctx, c); err != nil {
			return fmt.Errorf("save candidate %s: %w", c.ID, err)
		}
	}
	if election.ID != "" && election.ID != ballot.DefaultElection {
		if err := reg.SaveElection(ctx, election); err != nil {
			return fmt.Errorf("save election %s: %w", election.ID, err)
		}
	}
	for _, v := range voters {
		if err := reg.SaveVoter(ctx, v); err != nil {
			return fmt.Errorf("save voter %s: %w", v.ID, err)
		}
	}
	return nil
}

func castAll(ctx context.Context, ledger *ballot.Ledger, electionID ballot.ElectionID, casts []castSpec) error {
	for _, c := range casts {
		if _, err := ledger.Cast(ctx, c.voter, c.candidate, electionID); err != nil {
			return fmt.Errorf("cast for %s: %w", c.voter.ID, err)
		}
	}
	return nil
}

func voter(id, region, zone string) ballot.VoterIdentity {
	return ballot.VoterIdentity{ID: ballot.VoterID(id), Region: region, Zone: zone, Eligible: true}
}

// loadOromiaRegional: X gets 2 votes, Y gets 1 -> 66.67% / 33.33%, turnout 100%.
func loadOromiaRegional(ctx context.Context, reg ballot.Registry, ledger *ballot.Ledger) error {
	const electionID ballot.ElectionID = "oromia-2026"

	candidates := []ballot.Candidate{
		{ID: "cand-x", FullName: "Chaltu Abebe", Party: "Oromo Democratic Front", Constituency: "Adama", Age: 44, CriminalRecord: ballot.RecordClean},
		{ID: "cand-y", FullName: "Gemechu Tadesse", Constituency: "Jimma", Age: 38, CriminalRecord: ballot.RecordClean, Independent: true},
	}
	election := ballot.Election{
		ID:         electionID,
		Title:      "Oromia Regional Council 2026",
		Region:     "Oromia",
		Status:     ballot.ElectionOngoing,
		Candidates: []ballot.CandidateID{"cand-x", "cand-y"},
	}
	voters := []ballot.VoterIdentity{
		voter("voter-1", "Oromia", "Adama"),
		voter("voter-2", "Oromia", "Adama"),
		voter("voter-3", "Oromia", "Jimma"),
	}

	if err := register(ctx, reg, election, candidates, voters); err != nil {
		return err
	}
	return castAll(ctx, ledger, electionID, []castSpec{
		{voters[0], "cand-x"},
		{voters[1], "cand-x"},
		{voters[2], "cand-y"},
	})
}

func loadNationalGeneral(ctx context.Context, reg ballot.Registry, ledger *ballot.Ledger) error {
	candidates := []ballot.Candidate{
		{ID: "cand-abeba", FullName: "Abeba Kebede", Party: "Prosperity", Constituency: "Addis Ababa", Age: 51, CriminalRecord: ballot.RecordClean},
		{ID: "cand-dawit", FullName: "Dawit Haile", Party: "Ezema", Constituency: "Bahir Dar", Age: 47, CriminalRecord: ballot.RecordClean},
		{ID: "cand-lensa", FullName: "Lensa Gudina", Constituency: "Adama", Age: 33, CriminalRecord: ballot.RecordPardoned, Independent: true},
		{ID: "cand-yonas", FullName: "Yonas Tesfaye", Party: "NaMA", Constituency: "Gondar", Age: 29, CriminalRecord: ballot.RecordRehabilitated},
	}
	voters := []ballot.VoterIdentity{
		voter("nv-01", "Addis Ababa", "Bole"),
		voter("nv-02", "Addis Ababa", "Bole"),
		voter("nv-03", "Addis Ababa", "Arada"),
		voter("nv-04", "Amhara", "Bahir Dar"),
		voter("nv-05", "Amhara", "Gondar"),
		voter("nv-06", "Amhara", "Gondar"),
		voter("nv-07", "Oromia", "Adama"),
		voter("nv-08", "Oromia", "Jimma"),
		voter("nv-09", "Oromia", "Jimma"),
		voter("nv-10", "Sidama", "Hawassa"),
		voter("nv-11", "Sidama", "Hawassa"),
		{ID: "nv-12", Region: "Sidama", Zone: "Hawassa", Eligible: false},
	}

	if err := register(ctx, reg, ballot.Election{}, candidates, voters); err != nil {
		return err
	}
	err := castAll(ctx, ledger, ballot.DefaultElection, []castSpec{
		{voters[0], "cand-abeba"},
		{voters[1], "cand-abeba"},
		{voters[2], "cand-dawit"},
		{voters[3], "cand-dawit"},
		{voters[4], "cand-yonas"},
		{voters[6], "cand-lensa"},
		{voters[7], "cand-abeba"},
		{voters[9], "cand-lensa"},
	})
	if err != nil {
		return err
	}

	// nv-08 changes their mind within the window.
	if _, err := ledger.Retract(ctx, "nv-08", "cand-abeba", ballot.DefaultElection); err != nil {
		return fmt.Errorf("retract nv-08: %w", err)
	}
	return castAll(ctx, ledger, ballot.DefaultElection, []castSpec{{voters[7], "cand-lensa"}})
}

func loadEmptyElection(ctx context.Context, reg ballot.Registry, _ *ballot.Ledger) error {
	candidates := []ballot.Candidate{
		{ID: "cand-hana", FullName: "Hana Mulugeta", Party: "Prosperity", Constituency: "Hawassa", Age: 41, CriminalRecord: ballot.RecordClean},
		{ID: "cand-kebede", FullName: "Kebede Alemu", Constituency: "Hawassa", Age: 56, CriminalRecord: ballot.RecordClean, Independent: true},
	}
	election := ballot.Election{
		ID:         "sidama-by-2026",
		Title:      "Sidama By-election 2026",
		Region:     "Sidama",
		Status:     ballot.ElectionOngoing,
		Candidates: []ballot.CandidateID{"cand-hana", "cand-kebede"},
	}
	voters := []ballot.VoterIdentity{
		voter("sv-1", "Sidama", "Hawassa"),
		voter("sv-2", "Sidama", "Hawassa"),
		voter("sv-3", "Sidama", "Aleta Wondo"),
		voter("sv-4", "Sidama", "Aleta Wondo"),
	}
	return register(ctx, reg, election, candidates, voters)
}
