/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. Domain types in package
  ballot carry no JSON tags; everything the wire sees is declared here.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

FORMATS:
  - Timestamps are RFC 3339 with nanoseconds, UTC.
  - Percentages are strings with exactly two decimals ("66.67") so clients
    never see binary floating point.

SEE ALSO:
  - handlers.go: Uses these types
  - ballot/tally.go: Result types converted here
*/
package api

import (
	"time"

	"github.com/warp/ballot-engine/ballot"
)

// =============================================================================
// BALLOTS
// =============================================================================

// CastRequest is the body of POST /api/ballots.
type CastRequest struct {
	CandidateID string `json:"candidate_id"`
	ElectionID  string `json:"election_id,omitempty"`
}

// BallotDTO represents a ballot in API responses.
type BallotDTO struct {
	ID          string  `json:"id"`
	VoterID     string  `json:"voter_id"`
	CandidateID string  `json:"candidate_id"`
	ElectionID  string  `json:"election_id"`
	Region      string  `json:"region"`
	Zone        string  `json:"zone"`
	CastAt      string  `json:"cast_at"`
	RetractedAt *string `json:"retracted_at,omitempty"`
	Active      bool    `json:"active"`
}

// MyBallotDTO answers "have I voted, and can I still take it back?".
type MyBallotDTO struct {
	HasVoted        bool       `json:"has_voted"`
	Ballot          *BallotDTO `json:"ballot,omitempty"`
	Retractable     bool       `json:"retractable"`
	RetractDeadline string     `json:"retract_deadline,omitempty"`
}

// =============================================================================
// REGISTRATION
// =============================================================================

type CandidateDTO struct {
	ID           string `json:"id"`
	FullName     string `json:"full_name"`
	Party        string `json:"party,omitempty"`
	Constituency string `json:"constituency,omitempty"`
	Age          int    `json:"age"`
	Independent  bool   `json:"independent"`
}

type ElectionDTO struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	Region     string   `json:"region,omitempty"`
	StartsAt   string   `json:"starts_at,omitempty"`
	EndsAt     string   `json:"ends_at,omitempty"`
	Status     string   `json:"status"`
	Candidates []string `json:"candidates"`
}

// =============================================================================
// RESULTS
// =============================================================================

type RegionCountDTO struct {
	Region string `json:"region"`
	Votes  int    `json:"votes"`
}

type CandidateResultDTO struct {
	CandidateID string           `json:"candidate_id"`
	Votes       int              `json:"votes"`
	Percentage  string           `json:"percentage"`
	Regions     []RegionCountDTO `json:"regions,omitempty"`
}

// ResultsDTO is a ranked tally for one scope.
type ResultsDTO struct {
	ElectionID string               `json:"election_id"`
	Region     string               `json:"region,omitempty"`
	Zone       string               `json:"zone,omitempty"`
	TotalVotes int                  `json:"total_votes"`
	Candidates []CandidateResultDTO `json:"candidates"`
}

type TurnoutDTO struct {
	ElectionID        string `json:"election_id,omitempty"`
	Region            string `json:"region,omitempty"`
	Zone              string `json:"zone,omitempty"`
	TotalVoters       int    `json:"total_voters"`
	TotalVotes        int    `json:"total_votes"`
	TurnoutPercentage string `json:"turnout_percentage"`
}

type NationalSummaryDTO struct {
	ElectionID        string               `json:"election_id"`
	TotalCandidates   int                  `json:"total_candidates"`
	TotalVoters       int                  `json:"total_voters"`
	TotalVotes        int                  `json:"total_votes"`
	EligibleVoters    int                  `json:"eligible_voters"`
	TurnoutPercentage string               `json:"turnout_percentage"`
	Candidates        []CandidateResultDTO `json:"candidates"`
}

type ZoneTallyDTO struct {
	Zone       string               `json:"zone"`
	TotalVotes int                  `json:"total_votes"`
	Candidates []CandidateResultDTO `json:"candidates"`
}

// =============================================================================
// SCENARIOS & MISC
// =============================================================================

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func toBallotDTO(b ballot.Ballot) BallotDTO {
	dto := BallotDTO{
		ID:          string(b.ID),
		VoterID:     string(b.VoterID),
		CandidateID: string(b.CandidateID),
		ElectionID:  string(b.ElectionID),
		Region:      b.Region,
		Zone:        b.Zone,
		CastAt:      formatTimestamp(b.CastAt),
		Active:      b.IsActive(),
	}
	if b.RetractedAt != nil {
		s := formatTimestamp(*b.RetractedAt)
		dto.RetractedAt = &s
	}
	return dto
}

func toCandidateDTO(c ballot.Candidate) CandidateDTO {
	return CandidateDTO{
		ID:           string(c.ID),
		FullName:     c.FullName,
		Party:        c.Party,
		Constituency: c.Constituency,
		Age:          c.Age,
		Independent:  c.Independent,
	}
}

func toElectionDTO(e ballot.Election) ElectionDTO {
	dto := ElectionDTO{
		ID:         string(e.ID),
		Title:      e.Title,
		Region:     e.Region,
		Status:     string(e.Status),
		Candidates: make([]string, len(e.Candidates)),
	}
	if !e.StartsAt.IsZero() {
		dto.StartsAt = formatTimestamp(e.StartsAt)
	}
	if !e.EndsAt.IsZero() {
		dto.EndsAt = formatTimestamp(e.EndsAt)
	}
	for i, c := range e.Candidates {
		dto.Candidates[i] = string(c)
	}
	return dto
}

func toCandidateResultDTOs(rows []ballot.CandidateResult) []CandidateResultDTO {
	out := make([]CandidateResultDTO, len(rows))
	for i, r := range rows {
		out[i] = CandidateResultDTO{
			CandidateID: string(r.CandidateID),
			Votes:       r.Votes,
			Percentage:  r.Percentage.StringFixed(2),
		}
		for _, rc := range r.Regions {
			out[i].Regions = append(out[i].Regions, RegionCountDTO{Region: rc.Region, Votes: rc.Votes})
		}
	}
	return out
}

// ToResultsDTO converts ranked results for the wire.
func ToResultsDTO(res ballot.Results) ResultsDTO {
	return ResultsDTO{
		ElectionID: string(res.Scope.ElectionID),
		Region:     res.Scope.Region,
		Zone:       res.Scope.Zone,
		TotalVotes: res.TotalVotes,
		Candidates: toCandidateResultDTOs(res.Candidates),
	}
}

// ToTurnoutDTO converts turnout for the wire.
func ToTurnoutDTO(t ballot.Turnout) TurnoutDTO {
	return TurnoutDTO{
		ElectionID:        string(t.Scope.ElectionID),
		Region:            t.Scope.Region,
		Zone:              t.Scope.Zone,
		TotalVoters:       t.TotalVoters,
		TotalVotes:        t.TotalVotes,
		TurnoutPercentage: t.TurnoutPercentage.StringFixed(2),
	}
}

func toNationalSummaryDTO(s ballot.NationalSummary) NationalSummaryDTO {
	return NationalSummaryDTO{
		ElectionID:        string(s.ElectionID),
		TotalCandidates:   s.TotalCandidates,
		TotalVoters:       s.TotalVoters,
		TotalVotes:        s.TotalVotes,
		EligibleVoters:    s.EligibleVoters,
		TurnoutPercentage: s.TurnoutPercentage.StringFixed(2),
		Candidates:        toCandidateResultDTOs(s.PerCandidate),
	}
}

func toZoneTallyDTO(z ballot.ZoneTally) ZoneTallyDTO {
	pct := ballot.Percentages(z.Counts)
	rows := z.Counts.Ranked()
	out := ZoneTallyDTO{
		Zone:       z.Zone,
		TotalVotes: z.TotalVotes,
		Candidates: make([]CandidateResultDTO, len(rows)),
	}
	for i, r := range rows {
		out.Candidates[i] = CandidateResultDTO{
			CandidateID: string(r.CandidateID),
			Votes:       r.Votes,
			Percentage:  pct[r.CandidateID].StringFixed(2),
		}
	}
	return out
}
