/*
store.go - Persistence contracts for ballots and the registration data they reference

PURPOSE:
  Defines the boundary between the engine and the database. Implementations:
  - ballot/store/memory.go: in-memory, for tests and dev
  - store/sqlite/sqlite.go: SQLite
  - store/postgres/postgres.go: PostgreSQL

UNIQUENESS CONTRACT:
  InsertBallot MUST reject a second active ballot for the same
  (VoterID, ElectionID) atomically, returning ErrAlreadyVoted. SQL stores do it
  with a partial unique index:

    CREATE UNIQUE INDEX ... ON ballots(voter_id, election_id)
      WHERE retracted_at IS NULL

  The ledger never relies on a read followed by a write.

RETRACTION CONTRACT:
  MarkRetracted is a conditional write: it only touches a ballot that is still
  active, and returns ErrBallotNotFound when nothing was updated. Two concurrent
  retracts therefore produce one success and one NotFound.

PAGINATION:
  ActiveBallots returns one page ordered by (CastAt, ID) ascending, starting
  strictly after the cursor. Pages are stable under concurrent inserts because
  new ballots always sort last.
*/
package ballot

import (
	"context"
	"time"
)

// Store persists ballots. The ledger is its only writer.
type Store interface {
	// InsertBallot persists a new active ballot.
	// Returns ErrAlreadyVoted if one is already active for (voter, election).
	InsertBallot(ctx context.Context, b Ballot) error

	// ActiveBallot returns the active ballot for (voter, election), or nil.
	ActiveBallot(ctx context.Context, voterID VoterID, electionID ElectionID) (*Ballot, error)

	// MarkRetracted sets RetractedAt on an active ballot.
	// Returns ErrBallotNotFound if the ballot is missing or already retracted.
	MarkRetracted(ctx context.Context, id BallotID, at time.Time) error

	// ActiveBallots returns one page of active ballots in scope.
	ActiveBallots(ctx context.Context, q ActiveQuery) ([]Ballot, error)

	// BallotsByVoter returns every ballot of a voter, retracted ones included,
	// ordered by CastAt.
	BallotsByVoter(ctx context.Context, voterID VoterID) ([]Ballot, error)
}

// ActiveQuery selects a page of active ballots.
type ActiveQuery struct {
	Scope Scope
	After *Cursor // nil for the first page
	Limit int     // <= 0 means the store's default
}

// Cursor is the keyset position of the last ballot of a page.
type Cursor struct {
	CastAt time.Time
	ID     BallotID
}

// CursorOf returns the cursor positioned at b.
func CursorOf(b Ballot) *Cursor {
	return &Cursor{CastAt: b.CastAt, ID: b.ID}
}

// Less reports whether the cursor sorts before b, i.e. b belongs on a later page.
func (c Cursor) Less(b Ballot) bool {
	if c.CastAt.Equal(b.CastAt) {
		return c.ID < b.ID
	}
	return c.CastAt.Before(b.CastAt)
}

// =============================================================================
// REGISTRATION COLLABORATORS
// =============================================================================

// VoterDirectory answers questions about registered voters.
type VoterDirectory interface {
	// LookupVoter returns ErrVoterNotFound for unknown voters.
	LookupVoter(ctx context.Context, id VoterID) (VoterIdentity, error)

	// CountEligible counts eligible voters resident in scope.
	// scope.ElectionID is ignored.
	CountEligible(ctx context.Context, scope Scope) (int, error)
}

// CandidateDirectory answers questions about who may be voted for.
type CandidateDirectory interface {
	// CandidateEligible reports whether id stands in the election.
	// For DefaultElection any registered candidate is eligible.
	CandidateEligible(ctx context.Context, id CandidateID, electionID ElectionID) (bool, error)

	// Candidates lists the candidates standing in the election, ordered by ID.
	// Unknown elections yield an empty list.
	Candidates(ctx context.Context, electionID ElectionID) ([]Candidate, error)
}

// Registry is the write side of registration, used by seeding and by the
// registration subsystem that shares the database.
type Registry interface {
	VoterDirectory
	CandidateDirectory

	SaveVoter(ctx context.Context, v VoterIdentity) error
	SaveCandidate(ctx context.Context, c Candidate) error
	SaveElection(ctx context.Context, e Election) error
	Elections(ctx context.Context) ([]Election, error)
}
