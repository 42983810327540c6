// Package store provides in-process implementations of the ballot persistence
// contracts.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/warp/ballot-engine/ballot"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements ballot.Store and ballot.Registry. One RWMutex guards
// everything, so the active-ballot check and the insert happen under the same
// lock.
type Memory struct {
	mu sync.RWMutex

	// ballots is ordered by (CastAt, ID).
	ballots []*ballot.Ballot
	byID    map[ballot.BallotID]*ballot.Ballot
	active  map[activeKey]*ballot.Ballot

	voters     map[ballot.VoterID]ballot.VoterIdentity
	candidates map[ballot.CandidateID]ballot.Candidate
	elections  map[ballot.ElectionID]ballot.Election
}

type activeKey struct {
	VoterID    ballot.VoterID
	ElectionID ballot.ElectionID
}

func NewMemory() *Memory {
	m := &Memory{}
	m.resetLocked()
	return m
}

func (m *Memory) resetLocked() {
	m.ballots = nil
	m.byID = make(map[ballot.BallotID]*ballot.Ballot)
	m.active = make(map[activeKey]*ballot.Ballot)
	m.voters = make(map[ballot.VoterID]ballot.VoterIdentity)
	m.candidates = make(map[ballot.CandidateID]ballot.Candidate)
	m.elections = make(map[ballot.ElectionID]ballot.Election)
}

// Reset drops all ballots and registrations.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetLocked()
	return nil
}

// =============================================================================
// BALLOTS
// =============================================================================

func (m *Memory) InsertBallot(ctx context.Context, b ballot.Ballot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byID[b.ID]; exists {
		return fmt.Errorf("ballot %s already exists", b.ID)
	}
	k := activeKey{VoterID: b.VoterID, ElectionID: b.ElectionID}
	if b.IsActive() {
		if _, taken := m.active[k]; taken {
			return ballot.ErrAlreadyVoted
		}
	}

	stored := cloneBallot(b)

	// Binary search for the insertion point keeps the slice ordered.
	i := sort.Search(len(m.ballots), func(i int) bool {
		return !ballot.CursorOf(*m.ballots[i]).Less(b)
	})
	m.ballots = append(m.ballots, nil)
	copy(m.ballots[i+1:], m.ballots[i:])
	m.ballots[i] = stored

	m.byID[b.ID] = stored
	if b.IsActive() {
		m.active[k] = stored
	}
	return nil
}

func (m *Memory) ActiveBallot(ctx context.Context, voterID ballot.VoterID, electionID ballot.ElectionID) (*ballot.Ballot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.active[activeKey{VoterID: voterID, ElectionID: electionID}]
	if !ok {
		return nil, nil
	}
	return cloneBallot(*b), nil
}

func (m *Memory) MarkRetracted(ctx context.Context, id ballot.BallotID, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.byID[id]
	if !ok || !b.IsActive() {
		return ballot.ErrBallotNotFound
	}
	t := at
	b.RetractedAt = &t
	delete(m.active, activeKey{VoterID: b.VoterID, ElectionID: b.ElectionID})
	return nil
}

func (m *Memory) ActiveBallots(ctx context.Context, q ballot.ActiveQuery) ([]ballot.Ballot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	start := 0
	if q.After != nil {
		start = sort.Search(len(m.ballots), func(i int) bool {
			return q.After.Less(*m.ballots[i])
		})
	}

	var page []ballot.Ballot
	for _, b := range m.ballots[start:] {
		if !b.IsActive() || !q.Scope.Matches(*b) {
			continue
		}
		page = append(page, *cloneBallot(*b))
		if q.Limit > 0 && len(page) == q.Limit {
			break
		}
	}
	return page, nil
}

func (m *Memory) BallotsByVoter(ctx context.Context, voterID ballot.VoterID) ([]ballot.Ballot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []ballot.Ballot
	for _, b := range m.ballots {
		if b.VoterID == voterID {
			out = append(out, *cloneBallot(*b))
		}
	}
	return out, nil
}

func cloneBallot(b ballot.Ballot) *ballot.Ballot {
	out := b
	if b.RetractedAt != nil {
		t := *b.RetractedAt
		out.RetractedAt = &t
	}
	return &out
}

// =============================================================================
// REGISTRY
// =============================================================================

func (m *Memory) SaveVoter(_ context.Context, v ballot.VoterIdentity) error {
	if v.ID == "" {
		return fmt.Errorf("voter id is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.voters[v.ID] = v
	return nil
}

func (m *Memory) LookupVoter(_ context.Context, id ballot.VoterID) (ballot.VoterIdentity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.voters[id]
	if !ok {
		return ballot.VoterIdentity{}, ballot.ErrVoterNotFound
	}
	return v, nil
}

func (m *Memory) CountEligible(_ context.Context, scope ballot.Scope) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, v := range m.voters {
		if v.Eligible && scope.MatchesVoter(v) {
			n++
		}
	}
	return n, nil
}

func (m *Memory) SaveCandidate(_ context.Context, c ballot.Candidate) error {
	if c.ID == "" {
		return fmt.Errorf("candidate id is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.candidates[c.ID] = c
	return nil
}

func (m *Memory) SaveElection(_ context.Context, e ballot.Election) error {
	if e.ID == "" {
		return fmt.Errorf("election id is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e.Candidates = append([]ballot.CandidateID(nil), e.Candidates...)
	m.elections[e.ID] = e
	return nil
}

func (m *Memory) Elections(_ context.Context) ([]ballot.Election, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ballot.Election, 0, len(m.elections))
	for _, e := range m.elections {
		e.Candidates = append([]ballot.CandidateID(nil), e.Candidates...)
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) CandidateEligible(_ context.Context, id ballot.CandidateID, electionID ballot.ElectionID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.candidates[id]; !ok {
		return false, nil
	}
	if electionID == ballot.DefaultElection {
		return true, nil
	}
	e, ok := m.elections[electionID]
	return ok && e.HasCandidate(id), nil
}

func (m *Memory) Candidates(_ context.Context, electionID ballot.ElectionID) ([]ballot.Candidate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []ballot.Candidate
	if electionID == ballot.DefaultElection {
		for _, c := range m.candidates {
			out = append(out, c)
		}
	} else if e, ok := m.elections[electionID]; ok {
		for _, id := range e.Candidates {
			if c, ok := m.candidates[id]; ok {
				out = append(out, c)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Compile-time checks.
var (
	_ ballot.Store    = (*Memory)(nil)
	_ ballot.Registry = (*Memory)(nil)
)
