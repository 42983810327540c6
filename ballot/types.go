/*
Package ballot provides the vote-casting and tallying engine.

PURPOSE:
  This package contains the domain types and algorithms that decide whether a
  ballot may be accepted, record it exactly once per voter per election, reverse
  it within a bounded window, and aggregate active ballots into results and
  turnout figures. Persistence and identity are collaborators behind interfaces.

KEY CONCEPTS IN THIS FILE (types.go):
  - Ballot: one accepted vote, flat and strongly typed
  - Candidate / Election: who may be voted for, and where
  - VoterIdentity: the external registration record a cast is checked against
  - Principal: the already-authenticated caller
  - Scope: election / region / zone filter for tallies and turnout

DESIGN PRINCIPLES:
  1. Ballots are the only source of truth. Candidates carry no counters.
  2. Retraction marks a ballot, it never erases it.
  3. Region and zone are copied onto the ballot at cast time.
  4. Region and zone comparisons are case-insensitive.

SEE ALSO:
  - ledger.go: Cast / Retract / queries
  - tally.go: Aggregation
  - retraction.go: Reversal window
*/
package ballot

import (
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type BallotID string
type VoterID string
type CandidateID string
type ElectionID string

// DefaultElection is the election used when a caller does not name one.
// In this mode every registered candidate is eligible.
const DefaultElection ElectionID = "default"

// Normalize maps the empty election to DefaultElection.
func (e ElectionID) Normalize() ElectionID {
	if e == "" {
		return DefaultElection
	}
	return e
}

// =============================================================================
// BALLOT - One accepted vote
// =============================================================================

type Ballot struct {
	ID          BallotID
	VoterID     VoterID
	CandidateID CandidateID
	ElectionID  ElectionID
	Region      string
	Zone        string
	CastAt      time.Time
	RetractedAt *time.Time
}

// IsActive reports whether the ballot still counts toward tallies.
func (b Ballot) IsActive() bool { return b.RetractedAt == nil }

// =============================================================================
// CANDIDATE
// =============================================================================

type CriminalRecord string

const (
	RecordClean         CriminalRecord = "clean"
	RecordPardoned      CriminalRecord = "pardoned"
	RecordRehabilitated CriminalRecord = "rehabilitated"
)

// MinCandidateAge is the minimum age to stand for election.
const MinCandidateAge = 21

type Candidate struct {
	ID             CandidateID
	FullName       string
	Party          string
	Constituency   string
	Age            int
	CriminalRecord CriminalRecord
	Independent    bool
}

// Validate applies the registration-time eligibility rules.
// The ledger never calls this; it trusts the candidate directory.
func (c Candidate) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("candidate id is required")
	}
	if strings.TrimSpace(c.FullName) == "" {
		return fmt.Errorf("candidate %s: full name is required", c.ID)
	}
	if c.Age < MinCandidateAge {
		return fmt.Errorf("candidate %s: age %d below minimum %d", c.ID, c.Age, MinCandidateAge)
	}
	switch c.CriminalRecord {
	case RecordClean, RecordPardoned, RecordRehabilitated:
	default:
		return fmt.Errorf("candidate %s: criminal record %q not eligible", c.ID, c.CriminalRecord)
	}
	return nil
}

// =============================================================================
// ELECTION
// =============================================================================

type ElectionStatus string

const (
	ElectionUpcoming  ElectionStatus = "upcoming"
	ElectionOngoing   ElectionStatus = "ongoing"
	ElectionCompleted ElectionStatus = "completed"
)

type Election struct {
	ID         ElectionID
	Title      string
	Region     string
	StartsAt   time.Time
	EndsAt     time.Time
	Status     ElectionStatus
	Candidates []CandidateID
}

// HasCandidate reports whether id stands in this election.
func (e Election) HasCandidate(id CandidateID) bool {
	for _, c := range e.Candidates {
		if c == id {
			return true
		}
	}
	return false
}

// =============================================================================
// VOTER IDENTITY & PRINCIPAL
// =============================================================================

// VoterIdentity is owned by the registration subsystem. The ledger only reads it.
type VoterIdentity struct {
	ID       VoterID
	Region   string
	Zone     string
	Eligible bool
}

type Role string

const (
	RoleVoter         Role = "voter"
	RoleCandidate     Role = "candidate"
	RoleRegionAdmin   Role = "admin"
	RoleZoneAdmin     Role = "zone_admin"
	RoleNationalAdmin Role = "national_admin"
	RoleSystemAdmin   Role = "system_admin"
)

// Principal is an authenticated caller, as vouched for by the auth gateway.
type Principal struct {
	ID     VoterID
	Role   Role
	Region string
	Zone   string
}

// IsNational reports whether the principal may see national aggregates.
func (p Principal) IsNational() bool {
	return p.Role == RoleNationalAdmin || p.Role == RoleSystemAdmin
}

// CanViewRegion reports whether the principal may see results for region.
func (p Principal) CanViewRegion(region string) bool {
	if p.IsNational() {
		return true
	}
	return p.Role == RoleRegionAdmin && SameArea(p.Region, region)
}

// CanViewZone reports whether the principal may see results for zone.
// Regional and zone admins must carry a region; ZoneScope confines their
// zone queries to it.
func (p Principal) CanViewZone(zone string) bool {
	if p.IsNational() {
		return true
	}
	if strings.TrimSpace(p.Region) == "" {
		return false
	}
	switch p.Role {
	case RoleRegionAdmin:
		return true
	case RoleZoneAdmin:
		return SameArea(p.Zone, zone)
	}
	return false
}

// ZoneScope is the scope of a zone report requested by the principal. Zone
// names repeat across regions, so below national level the principal's
// region is always part of the filter.
func (p Principal) ZoneScope(electionID ElectionID, zone string) Scope {
	s := Scope{ElectionID: electionID, Zone: zone}
	if !p.IsNational() {
		s.Region = p.Region
	}
	return s
}

// =============================================================================
// SCOPE
// =============================================================================

// Scope filters ballots and voter rolls. Empty fields do not filter.
// An empty ElectionID means every election.
type Scope struct {
	ElectionID ElectionID
	Region     string
	Zone       string
}

// Matches reports whether the ballot falls inside the scope.
func (s Scope) Matches(b Ballot) bool {
	if s.ElectionID != "" && b.ElectionID != s.ElectionID {
		return false
	}
	if s.Region != "" && !SameArea(s.Region, b.Region) {
		return false
	}
	if s.Zone != "" && !SameArea(s.Zone, b.Zone) {
		return false
	}
	return true
}

// MatchesVoter reports whether a voter's residency falls inside the scope.
// The election filter does not apply to voter rolls.
func (s Scope) MatchesVoter(v VoterIdentity) bool {
	if s.Region != "" && !SameArea(s.Region, v.Region) {
		return false
	}
	if s.Zone != "" && !SameArea(s.Zone, v.Zone) {
		return false
	}
	return true
}

func (s Scope) String() string {
	parts := []string{}
	if s.ElectionID != "" {
		parts = append(parts, "election="+string(s.ElectionID))
	}
	if s.Region != "" {
		parts = append(parts, "region="+s.Region)
	}
	if s.Zone != "" {
		parts = append(parts, "zone="+s.Zone)
	}
	if len(parts) == 0 {
		return "national"
	}
	return strings.Join(parts, ",")
}

// SameArea compares region or zone names case-insensitively, ignoring
// surrounding whitespace.
func SameArea(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// AreaKey is the normalized form of a region or zone name. SQL stores index it
// so scope filters need no case folding in the database.
func AreaKey(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
