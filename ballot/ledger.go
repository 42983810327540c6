/*
ledger.go - The ballot ledger

PURPOSE:
  The Ledger is the only writer of ballots. It accepts a ballot at most once
  per (voter, election), reverses it within the retraction window, and serves
  the active-ballot set that every tally is derived from.

CRITICAL INVARIANTS:
  1. UNIQUE: at most one active ballot per (VoterID, ElectionID), enforced by
     the store atomically, never by check-then-act.
  2. NO COUNTERS: a cast writes one ballot row and nothing else.
  3. KEPT: retraction sets RetractedAt; the row is never deleted.
  4. CHECK FIRST: every precondition is checked before the write, so rejected
     requests leave no state behind.

CAST FLOW:
  1. Voter eligible?                 -> IneligibleVoter
  2. Candidate standing in election? -> UnknownCandidate
  3. Insert (store rejects dupes)    -> AlreadyVoted

RETRACT FLOW:
  1. Active ballot for this candidate? -> BallotNotFound
  2. Inside the window?                -> RetractionWindowExpired
  3. Conditional update                -> BallotNotFound if a concurrent retract won

SEE ALSO:
  - store.go: Uniqueness and retraction contracts
  - retraction.go: Window rules
  - tally.go: Consumers of ActiveBallots
*/
package ballot

import (
	"context"
	"errors"
	"iter"
	"time"

	"github.com/google/uuid"
)

// DefaultPageSize is how many ballots the ledger fetches per store round trip
// when iterating the active set.
const DefaultPageSize = 500

// Ledger records ballots. Construct with NewLedger; the exported fields may be
// overridden afterwards (tests swap Clock).
type Ledger struct {
	Store      Store
	Candidates CandidateDirectory
	Policy     RetractionPolicy
	Observer   Observer

	Clock    func() time.Time
	NewID    func() BallotID
	PageSize int
}

// NewLedger creates a ledger with the default window, clock and ID generator.
func NewLedger(store Store, candidates CandidateDirectory) *Ledger {
	return &Ledger{
		Store:      store,
		Candidates: candidates,
		Policy:     NewRetractionPolicy(DefaultRetractionWindow),
		Observer:   nopObserver{},
		Clock:      time.Now,
		NewID:      func() BallotID { return BallotID(uuid.NewString()) },
		PageSize:   DefaultPageSize,
	}
}

// now is UTC at microsecond precision, the finest resolution every store keeps.
func (l *Ledger) now() time.Time {
	clock := l.Clock
	if clock == nil {
		clock = time.Now
	}
	return clock().UTC().Truncate(time.Microsecond)
}

func (l *Ledger) observer() Observer {
	if l.Observer == nil {
		return nopObserver{}
	}
	return l.Observer
}

// =============================================================================
// WRITES
// =============================================================================

// Cast records a ballot for voter. An empty electionID means DefaultElection.
func (l *Ledger) Cast(ctx context.Context, voter VoterIdentity, candidateID CandidateID, electionID ElectionID) (Ballot, error) {
	b, err := l.cast(ctx, voter, candidateID, electionID.Normalize())
	if err != nil {
		l.observer().Rejected(OpCast, err)
		return Ballot{}, err
	}
	l.observer().BallotCast(b)
	return b, nil
}

func (l *Ledger) cast(ctx context.Context, voter VoterIdentity, candidateID CandidateID, electionID ElectionID) (Ballot, error) {
	if !voter.Eligible || voter.ID == "" {
		return Ballot{}, ErrIneligibleVoter
	}

	ok, err := l.Candidates.CandidateEligible(ctx, candidateID, electionID)
	if err != nil {
		return Ballot{}, storageError("check candidate", err)
	}
	if !ok {
		return Ballot{}, &UnknownCandidateError{CandidateID: candidateID, ElectionID: electionID}
	}

	// Last chance to abandon before the single atomic write.
	if err := ctx.Err(); err != nil {
		return Ballot{}, err
	}

	b := Ballot{
		ID:          l.NewID(),
		VoterID:     voter.ID,
		CandidateID: candidateID,
		ElectionID:  electionID,
		Region:      voter.Region,
		Zone:        voter.Zone,
		CastAt:      l.now(),
	}

	if err := l.Store.InsertBallot(ctx, b); err != nil {
		if errors.Is(err, ErrAlreadyVoted) {
			dup := &AlreadyVotedError{VoterID: voter.ID, ElectionID: electionID}
			// Best effort: the error is still correct without the ID.
			if existing, lookupErr := l.Store.ActiveBallot(ctx, voter.ID, electionID); lookupErr == nil && existing != nil {
				dup.ExistingBallotID = existing.ID
			}
			return Ballot{}, dup
		}
		return Ballot{}, storageError("insert ballot", err)
	}
	return b, nil
}

// Retract reverses the voter's active ballot for candidateID.
// An empty electionID means DefaultElection.
func (l *Ledger) Retract(ctx context.Context, voterID VoterID, candidateID CandidateID, electionID ElectionID) (Ballot, error) {
	b, err := l.retract(ctx, voterID, candidateID, electionID.Normalize())
	if err != nil {
		l.observer().Rejected(OpRetract, err)
		return Ballot{}, err
	}
	l.observer().BallotRetracted(b)
	return b, nil
}

func (l *Ledger) retract(ctx context.Context, voterID VoterID, candidateID CandidateID, electionID ElectionID) (Ballot, error) {
	active, err := l.Store.ActiveBallot(ctx, voterID, electionID)
	if err != nil {
		return Ballot{}, storageError("find active ballot", err)
	}
	if active == nil || active.CandidateID != candidateID {
		return Ballot{}, ErrBallotNotFound
	}

	now := l.now()
	if err := l.Policy.Check(*active, now); err != nil {
		return Ballot{}, err
	}

	if err := l.Store.MarkRetracted(ctx, active.ID, now); err != nil {
		if errors.Is(err, ErrBallotNotFound) {
			return Ballot{}, ErrBallotNotFound
		}
		return Ballot{}, storageError("mark retracted", err)
	}

	retracted := *active
	retracted.RetractedAt = &now
	return retracted, nil
}

// =============================================================================
// READS
// =============================================================================

// FindActiveBallot returns the voter's active ballot, or nil.
func (l *Ledger) FindActiveBallot(ctx context.Context, voterID VoterID, electionID ElectionID) (*Ballot, error) {
	b, err := l.Store.ActiveBallot(ctx, voterID, electionID.Normalize())
	if err != nil {
		return nil, storageError("find active ballot", err)
	}
	return b, nil
}

// IsRetractable reports whether b can be retracted right now.
func (l *Ledger) IsRetractable(b Ballot) bool {
	return l.Policy.IsRetractable(b, l.now())
}

// History returns every ballot the voter has cast, retracted ones included.
func (l *Ledger) History(ctx context.Context, voterID VoterID) ([]Ballot, error) {
	bs, err := l.Store.BallotsByVoter(ctx, voterID)
	if err != nil {
		return nil, storageError("load history", err)
	}
	return bs, nil
}

// AllActiveBallots iterates the active ballots of one election in
// (CastAt, ID) order. An empty electionID means DefaultElection.
func (l *Ledger) AllActiveBallots(ctx context.Context, electionID ElectionID) iter.Seq2[Ballot, error] {
	return l.ActiveBallots(ctx, Scope{ElectionID: electionID.Normalize()})
}

// ActiveBallots iterates the active ballots in scope in (CastAt, ID) order.
//
// The sequence is lazy: pages are fetched as the caller ranges. It is
// restartable: every range starts a fresh scan. A storage failure is yielded
// once as the error value and ends the sequence.
func (l *Ledger) ActiveBallots(ctx context.Context, scope Scope) iter.Seq2[Ballot, error] {
	limit := l.PageSize
	if limit <= 0 {
		limit = DefaultPageSize
	}
	return func(yield func(Ballot, error) bool) {
		var after *Cursor
		for {
			if err := ctx.Err(); err != nil {
				yield(Ballot{}, err)
				return
			}
			page, err := l.Store.ActiveBallots(ctx, ActiveQuery{Scope: scope, After: after, Limit: limit})
			if err != nil {
				yield(Ballot{}, storageError("scan active ballots", err))
				return
			}
			for _, b := range page {
				if !yield(b, nil) {
					return
				}
			}
			if len(page) < limit {
				return
			}
			after = CursorOf(page[len(page)-1])
		}
	}
}
