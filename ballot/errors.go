/*
errors.go - Error taxonomy for the ballot engine

PURPOSE:
  Every failure a caller can see is distinguishable here. All of them are
  recoverable: domain errors map to 4xx responses, storage errors to 5xx.

ERROR CATEGORIES:
  1. Cast rejections    - IneligibleVoter, UnknownCandidate, AlreadyVoted
  2. Retract rejections - BallotNotFound, RetractionWindowExpired
  3. Storage failures   - StorageUnavailable (wraps the collaborator's error)

USAGE:
  if errors.Is(err, ballot.ErrAlreadyVoted) {
      // offer retract instead
  }
  var expired *ballot.RetractionWindowExpiredError
  if errors.As(err, &expired) {
      fmt.Println(expired.Elapsed)
  }
*/
package ballot

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrIneligibleVoter is returned when the voter identity is not eligible.
	ErrIneligibleVoter = errors.New("voter is not eligible")

	// ErrUnknownCandidate is returned when the candidate does not stand in the election.
	ErrUnknownCandidate = errors.New("unknown candidate")

	// ErrAlreadyVoted is returned when an active ballot exists for (voter, election).
	ErrAlreadyVoted = errors.New("already voted in this election")

	// ErrBallotNotFound is returned when no matching active ballot exists.
	ErrBallotNotFound = errors.New("active ballot not found")

	// ErrRetractionWindowExpired is returned when a ballot can no longer be reversed.
	ErrRetractionWindowExpired = errors.New("retraction window expired")

	// ErrStorageUnavailable is matched by every persistence failure.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrVoterNotFound is returned by voter directories for unknown voters.
	ErrVoterNotFound = errors.New("voter not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// AlreadyVotedError names the ballot that blocks a second cast.
// ExistingBallotID may be empty when it could not be looked up.
type AlreadyVotedError struct {
	VoterID          VoterID
	ElectionID       ElectionID
	ExistingBallotID BallotID
}

func (e *AlreadyVotedError) Error() string {
	if e.ExistingBallotID == "" {
		return fmt.Sprintf("voter %s already voted in election %s", e.VoterID, e.ElectionID)
	}
	return fmt.Sprintf("voter %s already voted in election %s (ballot: %s)",
		e.VoterID, e.ElectionID, e.ExistingBallotID)
}

func (e *AlreadyVotedError) Unwrap() error { return ErrAlreadyVoted }

type UnknownCandidateError struct {
	CandidateID CandidateID
	ElectionID  ElectionID
}

func (e *UnknownCandidateError) Error() string {
	return fmt.Sprintf("candidate %s is not standing in election %s", e.CandidateID, e.ElectionID)
}

func (e *UnknownCandidateError) Unwrap() error { return ErrUnknownCandidate }

// RetractionWindowExpiredError reports how long ago the ballot was cast.
type RetractionWindowExpiredError struct {
	BallotID BallotID
	CastAt   time.Time
	Elapsed  time.Duration
	Window   time.Duration
}

func (e *RetractionWindowExpiredError) Error() string {
	if e.CastAt.IsZero() {
		return fmt.Sprintf("ballot %s cannot be retracted: cast time unknown", e.BallotID)
	}
	return fmt.Sprintf("ballot %s cannot be retracted: cast %s ago, window is %s",
		e.BallotID, e.Elapsed.Round(time.Second), e.Window)
}

func (e *RetractionWindowExpiredError) Unwrap() error { return ErrRetractionWindowExpired }

// StorageError wraps a collaborator failure. It matches ErrStorageUnavailable
// and still unwraps to the underlying cause.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrStorageUnavailable, e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrStorageUnavailable }

func storageError(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is a rejected request, not a failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrIneligibleVoter) ||
		errors.Is(err, ErrUnknownCandidate) ||
		errors.Is(err, ErrAlreadyVoted) ||
		errors.Is(err, ErrBallotNotFound) ||
		errors.Is(err, ErrRetractionWindowExpired)
}

// IsNotFound returns true if the error indicates a missing ballot or voter.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrBallotNotFound) || errors.Is(err, ErrVoterNotFound)
}

// IsConflict returns true if the request collides with existing state.
func IsConflict(err error) bool {
	return errors.Is(err, ErrAlreadyVoted)
}

// Reason returns a stable machine-readable code for an error.
// Used as the API error code and as the metrics label.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrIneligibleVoter):
		return "ineligible_voter"
	case errors.Is(err, ErrUnknownCandidate):
		return "unknown_candidate"
	case errors.Is(err, ErrAlreadyVoted):
		return "already_voted"
	case errors.Is(err, ErrBallotNotFound):
		return "not_found"
	case errors.Is(err, ErrVoterNotFound):
		return "voter_not_found"
	case errors.Is(err, ErrRetractionWindowExpired):
		return "retraction_window_expired"
	case errors.Is(err, ErrStorageUnavailable):
		return "storage_unavailable"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "internal"
	}
}
