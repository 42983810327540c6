/*
handlers.go - HTTP API handlers for the ballot engine

PURPOSE:
  Exposes the ledger and the tally engine via REST. Handles HTTP
  request/response, JSON serialization, authorization by scope, and delegates
  to package ballot.

ENDPOINTS:
  Voters:
    POST   /api/ballots                     Cast a ballot
    DELETE /api/ballots/{candidateID}       Retract within the window
    GET    /api/ballots/me                  Active ballot + retract deadline
    GET    /api/ballots/history             Every ballot, retracted included

  Anyone authenticated:
    GET    /api/candidates                  Candidates standing in an election
    GET    /api/elections                   Registered elections

  Reporting (scoped by role):
    GET    /api/elections/{id}/results
    GET    /api/elections/{id}/summary
    GET    /api/elections/{id}/regions/{region}/results
    GET    /api/elections/{id}/regions/{region}/zones
    GET    /api/elections/{id}/zones/{zone}/results
    GET    /api/turnout/regions/{region}
    GET    /api/turnout/zones/{zone}

REQUEST FLOW:
  1. Authenticate (principal from gateway headers)
  2. Role gate (router) and scope gate (handler)
  3. Call ledger / tally engine
  4. Serialize response

ERROR HANDLING:
  Every error body is {error, code, details}; code is ballot.Reason(err).
  - 400: malformed input
  - 401: no principal
  - 403: ineligible voter, expired retraction window, out-of-scope report
  - 404: no active ballot
  - 409: already voted
  - 422: unknown candidate
  - 503: storage unavailable

SEE ALSO:
  - dto.go: Request/response data structures
  - principal.go: Authentication and role gates
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/warp/ballot-engine/ballot"
)

// Backend is everything the API needs from persistence.
type Backend interface {
	ballot.Store
	ballot.Registry
	Reset(ctx context.Context) error
}

// Pinger is implemented by backends that can report their health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Backend Backend
	Ledger  *ballot.Ledger
	Tally   *ballot.TallyEngine
	Logger  *slog.Logger

	mu              sync.Mutex
	currentScenario string
}

// NewHandler wires a ledger and a tally engine over backend. Callers may
// replace the ledger's policy and the observers afterwards.
func NewHandler(backend Backend) *Handler {
	ledger := ballot.NewLedger(backend, backend)
	return &Handler{
		Backend: backend,
		Ledger:  ledger,
		Tally:   ballot.NewTallyEngine(ledger, backend, backend),
		Logger:  slog.Default(),
	}
}

// Health reports liveness, and storage reachability when the backend can tell.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if p, ok := h.Backend.(Pinger); ok {
		if err := p.Ping(r.Context()); err != nil {
			h.Logger.ErrorContext(r.Context(), "health check failed", "error", err)
			writeError(w, http.StatusServiceUnavailable, "storage_unavailable", "Storage unavailable", nil)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// VOTER HANDLERS
// =============================================================================

// CastBallot records the caller's vote.
// POST /api/ballots
func (h *Handler) CastBallot(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())

	var req CastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body", err)
		return
	}
	if req.CandidateID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "candidate_id is required", nil)
		return
	}

	voter, err := h.Backend.LookupVoter(r.Context(), p.ID)
	if errors.Is(err, ballot.ErrVoterNotFound) {
		// Unregistered principals are simply not eligible.
		voter, err = ballot.VoterIdentity{ID: p.ID}, nil
	}
	if err != nil {
		h.writeDomainError(w, r, &ballot.StorageError{Op: "lookup voter", Err: err})
		return
	}

	b, err := h.Ledger.Cast(r.Context(), voter, ballot.CandidateID(req.CandidateID), ballot.ElectionID(req.ElectionID))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	h.Logger.InfoContext(r.Context(), "ballot cast",
		"ballot_id", b.ID, "election_id", b.ElectionID, "region", b.Region)
	writeJSON(w, http.StatusCreated, toBallotDTO(b))
}

// RetractBallot withdraws the caller's ballot for a candidate.
// DELETE /api/ballots/{candidateID}?election_id=
func (h *Handler) RetractBallot(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	candidateID := ballot.CandidateID(urlParam(r, "candidateID"))
	electionID := ballot.ElectionID(r.URL.Query().Get("election_id"))

	b, err := h.Ledger.Retract(r.Context(), p.ID, candidateID, electionID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	h.Logger.InfoContext(r.Context(), "ballot retracted", "ballot_id", b.ID, "election_id", b.ElectionID)
	writeJSON(w, http.StatusOK, toBallotDTO(b))
}

// MyBallot returns the caller's active ballot and whether it can still be retracted.
// GET /api/ballots/me?election_id=
func (h *Handler) MyBallot(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	electionID := ballot.ElectionID(r.URL.Query().Get("election_id"))

	b, err := h.Ledger.FindActiveBallot(r.Context(), p.ID, electionID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if b == nil {
		writeJSON(w, http.StatusOK, MyBallotDTO{})
		return
	}

	dto := toBallotDTO(*b)
	writeJSON(w, http.StatusOK, MyBallotDTO{
		HasVoted:        true,
		Ballot:          &dto,
		Retractable:     h.Ledger.IsRetractable(*b),
		RetractDeadline: formatTimestamp(h.Ledger.Policy.Deadline(*b)),
	})
}

// BallotHistory lists every ballot the caller ever cast.
// GET /api/ballots/history
func (h *Handler) BallotHistory(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())

	ballots, err := h.Ledger.History(r.Context(), p.ID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	dtos := make([]BallotDTO, len(ballots))
	for i, b := range ballots {
		dtos[i] = toBallotDTO(b)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// REGISTRATION HANDLERS
// =============================================================================

// ListCandidates returns the candidates standing in an election.
// GET /api/candidates?election_id=
func (h *Handler) ListCandidates(w http.ResponseWriter, r *http.Request) {
	electionID := ballot.ElectionID(r.URL.Query().Get("election_id")).Normalize()

	candidates, err := h.Backend.Candidates(r.Context(), electionID)
	if err != nil {
		h.writeDomainError(w, r, &ballot.StorageError{Op: "list candidates", Err: err})
		return
	}

	dtos := make([]CandidateDTO, len(candidates))
	for i, c := range candidates {
		dtos[i] = toCandidateDTO(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ListElections returns every registered election.
// GET /api/elections
func (h *Handler) ListElections(w http.ResponseWriter, r *http.Request) {
	elections, err := h.Backend.Elections(r.Context())
	if err != nil {
		h.writeDomainError(w, r, &ballot.StorageError{Op: "list elections", Err: err})
		return
	}

	dtos := make([]ElectionDTO, len(elections))
	for i, e := range elections {
		dtos[i] = toElectionDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// REPORTING HANDLERS
// =============================================================================

// ElectionResults returns the national tally with percentages.
// GET /api/elections/{electionID}/results
func (h *Handler) ElectionResults(w http.ResponseWriter, r *http.Request) {
	h.writeResults(w, r, ballot.Scope{ElectionID: electionParam(r)})
}

// ElectionSummary returns the national summary with per-region breakdowns.
// GET /api/elections/{electionID}/summary
func (h *Handler) ElectionSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.Tally.NationalSummary(r.Context(), electionParam(r))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toNationalSummaryDTO(summary))
}

// RegionResults returns one region's tally.
// GET /api/elections/{electionID}/regions/{region}/results
func (h *Handler) RegionResults(w http.ResponseWriter, r *http.Request) {
	region := urlParam(r, "region")
	if !h.authorizeRegion(w, r, region) {
		return
	}
	h.writeResults(w, r, ballot.Scope{ElectionID: electionParam(r), Region: region})
}

// RegionZones returns a region's tally split by zone.
// GET /api/elections/{electionID}/regions/{region}/zones
func (h *Handler) RegionZones(w http.ResponseWriter, r *http.Request) {
	region := urlParam(r, "region")
	if !h.authorizeRegion(w, r, region) {
		return
	}

	zones, err := h.Tally.ZoneBreakdown(r.Context(), electionParam(r), region)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	dtos := make([]ZoneTallyDTO, len(zones))
	for i, z := range zones {
		dtos[i] = toZoneTallyDTO(z)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ZoneResults returns one zone's tally. Below national level only the zone
// inside the caller's region counts.
// GET /api/elections/{electionID}/zones/{zone}/results
func (h *Handler) ZoneResults(w http.ResponseWriter, r *http.Request) {
	zone := urlParam(r, "zone")
	p, ok := h.authorizeZone(w, r, zone)
	if !ok {
		return
	}
	h.writeResults(w, r, p.ZoneScope(electionParam(r), zone))
}

// RegionTurnout returns turnout for a region. Without election_id every
// election counts.
// GET /api/turnout/regions/{region}?election_id=
func (h *Handler) RegionTurnout(w http.ResponseWriter, r *http.Request) {
	region := urlParam(r, "region")
	if !h.authorizeRegion(w, r, region) {
		return
	}
	h.writeTurnout(w, r, ballot.Scope{
		ElectionID: ballot.ElectionID(r.URL.Query().Get("election_id")),
		Region:     region,
	})
}

// ZoneTurnout returns turnout for a zone, confined to the caller's region
// below national level.
// GET /api/turnout/zones/{zone}?election_id=
func (h *Handler) ZoneTurnout(w http.ResponseWriter, r *http.Request) {
	zone := urlParam(r, "zone")
	p, ok := h.authorizeZone(w, r, zone)
	if !ok {
		return
	}
	h.writeTurnout(w, r, p.ZoneScope(ballot.ElectionID(r.URL.Query().Get("election_id")), zone))
}

func (h *Handler) writeResults(w http.ResponseWriter, r *http.Request, scope ballot.Scope) {
	res, err := h.Tally.Results(r.Context(), scope)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ToResultsDTO(res))
}

func (h *Handler) writeTurnout(w http.ResponseWriter, r *http.Request, scope ballot.Scope) {
	t, err := h.Tally.Turnout(r.Context(), scope)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ToTurnoutDTO(t))
}

func (h *Handler) authorizeRegion(w http.ResponseWriter, r *http.Request, region string) bool {
	p, _ := PrincipalFrom(r.Context())
	if !p.CanViewRegion(region) {
		writeError(w, http.StatusForbidden, "forbidden", "Region outside your jurisdiction", nil)
		return false
	}
	return true
}

func (h *Handler) authorizeZone(w http.ResponseWriter, r *http.Request, zone string) (ballot.Principal, bool) {
	p, _ := PrincipalFrom(r.Context())
	if !p.CanViewZone(zone) {
		writeError(w, http.StatusForbidden, "forbidden", "Zone outside your jurisdiction", nil)
		return p, false
	}
	return p, true
}

// =============================================================================
// HELPERS
// =============================================================================

func electionParam(r *http.Request) ballot.ElectionID {
	return ballot.ElectionID(urlParam(r, "electionID")).Normalize()
}

// urlParam returns a decoded path parameter ("Addis%20Ababa" -> "Addis Ababa").
func urlParam(r *http.Request, name string) string {
	raw := chi.URLParam(r, name)
	if v, err := url.PathUnescape(raw); err == nil {
		return v
	}
	return raw
}

var messages = map[string]string{
	"ineligible_voter":          "Voter is not eligible",
	"unknown_candidate":         "Candidate is not standing in this election",
	"already_voted":             "Already voted in this election",
	"not_found":                 "No active ballot found",
	"voter_not_found":           "Voter not found",
	"retraction_window_expired": "Retraction window has expired",
	"storage_unavailable":       "Storage unavailable",
	"canceled":                  "Request canceled",
	"internal":                  "Internal error",
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ballot.ErrIneligibleVoter):
		return http.StatusForbidden
	case errors.Is(err, ballot.ErrUnknownCandidate):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ballot.ErrAlreadyVoted):
		return http.StatusConflict
	case ballot.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, ballot.ErrRetractionWindowExpired):
		return http.StatusForbidden
	case errors.Is(err, ballot.ErrStorageUnavailable),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeDomainError maps an engine error onto the response. Server-side causes
// are logged and kept out of the body.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	code := ballot.Reason(err)

	if status >= http.StatusInternalServerError {
		h.Logger.ErrorContext(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"code", code,
			"error", err)
		writeError(w, status, code, messages[code], nil)
		return
	}
	writeError(w, status, code, messages[code], err)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string, err error) {
	resp := ErrorResponse{Error: message, Code: code}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
