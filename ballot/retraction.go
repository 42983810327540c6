package ballot

import "time"

// DefaultRetractionWindow is how long a voter may reverse a cast ballot.
const DefaultRetractionWindow = 24 * time.Hour

// RetractionPolicy decides whether a ballot may still be reversed.
//
// State machine for one ballot:
//
//	[none] --cast--> [active] --retract (within window)--> [retracted]
//	                 [active] --window elapses--> [active, locked]
//
// [active] and [active, locked] count the same in tallies. Only retract differs.
type RetractionPolicy struct {
	Window time.Duration
}

// NewRetractionPolicy returns a policy with the given window.
// A non-positive window falls back to DefaultRetractionWindow.
func NewRetractionPolicy(window time.Duration) RetractionPolicy {
	if window <= 0 {
		window = DefaultRetractionWindow
	}
	return RetractionPolicy{Window: window}
}

func (p RetractionPolicy) window() time.Duration {
	if p.Window <= 0 {
		return DefaultRetractionWindow
	}
	return p.Window
}

// IsRetractable reports whether b can be retracted at now.
// The boundary is inclusive: a ballot cast exactly Window ago is retractable.
// A missing cast time, or one later than now, denies.
func (p RetractionPolicy) IsRetractable(b Ballot, now time.Time) bool {
	if !b.IsActive() || b.CastAt.IsZero() || b.CastAt.After(now) {
		return false
	}
	return now.Sub(b.CastAt) <= p.window()
}

// Check is IsRetractable with an explanation.
// It does not look at RetractedAt; the ledger only passes active ballots.
func (p RetractionPolicy) Check(b Ballot, now time.Time) error {
	if p.IsRetractable(b, now) {
		return nil
	}
	err := &RetractionWindowExpiredError{BallotID: b.ID, CastAt: b.CastAt, Window: p.window()}
	if !b.CastAt.IsZero() {
		err.Elapsed = now.Sub(b.CastAt)
	}
	return err
}

// Deadline is the last instant at which b can be retracted.
// Zero when the cast time is missing.
func (p RetractionPolicy) Deadline(b Ballot) time.Time {
	if b.CastAt.IsZero() {
		return time.Time{}
	}
	return b.CastAt.Add(p.window())
}
