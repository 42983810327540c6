// Package storetest is a conformance suite for ballot.Store and
// ballot.Registry implementations. Every backend runs it from its own tests.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/ballot-engine/ballot"
)

// Backend is a store that also serves registration data.
type Backend interface {
	ballot.Store
	ballot.Registry
}

// Factory returns an empty backend. It should register cleanup with t.
type Factory func(t *testing.T) Backend

var t0 = time.Date(2026, time.March, 1, 8, 0, 0, 0, time.UTC)

func newBallot(id, voter, cand string, election ballot.ElectionID, region, zone string, at time.Time) ballot.Ballot {
	return ballot.Ballot{
		ID:          ballot.BallotID(id),
		VoterID:     ballot.VoterID(voter),
		CandidateID: ballot.CandidateID(cand),
		ElectionID:  election,
		Region:      region,
		Zone:        zone,
		CastAt:      at,
	}
}

func ids(bs []ballot.Ballot) []ballot.BallotID {
	out := make([]ballot.BallotID, len(bs))
	for i, b := range bs {
		out[i] = b.ID
	}
	return out
}

// Run executes the suite against backends produced by factory.
func Run(t *testing.T, factory Factory) {
	t.Run("InsertAndFindActive", func(t *testing.T) { testInsertAndFindActive(t, factory(t)) })
	t.Run("DuplicateActiveRejected", func(t *testing.T) { testDuplicateActiveRejected(t, factory(t)) })
	t.Run("RetractFreesSlot", func(t *testing.T) { testRetractFreesSlot(t, factory(t)) })
	t.Run("RetractIsConditional", func(t *testing.T) { testRetractIsConditional(t, factory(t)) })
	t.Run("ActiveBallotsKeyset", func(t *testing.T) { testActiveBallotsKeyset(t, factory(t)) })
	t.Run("ActiveBallotsScope", func(t *testing.T) { testActiveBallotsScope(t, factory(t)) })
	t.Run("BallotsByVoter", func(t *testing.T) { testBallotsByVoter(t, factory(t)) })
	t.Run("ConcurrentInsertSameVoter", func(t *testing.T) { testConcurrentInsertSameVoter(t, factory(t)) })
	t.Run("Voters", func(t *testing.T) { testVoters(t, factory(t)) })
	t.Run("CandidatesAndElections", func(t *testing.T) { testCandidatesAndElections(t, factory(t)) })
}

// =============================================================================
// BALLOTS
// =============================================================================

func testInsertAndFindActive(t *testing.T, s Backend) {
	ctx := context.Background()
	at := t0.Add(123456 * time.Microsecond)

	b := newBallot("b1", "v1", "X", "e1", "Oromia", "Adama", at)
	require.NoError(t, s.InsertBallot(ctx, b))

	got, err := s.ActiveBallot(ctx, "v1", "e1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, b.ID, got.ID)
	assert.Equal(t, b.CandidateID, got.CandidateID)
	assert.Equal(t, "Oromia", got.Region)
	assert.Equal(t, "Adama", got.Zone)
	assert.True(t, at.Equal(got.CastAt), "cast time must round-trip at microsecond precision")
	assert.Nil(t, got.RetractedAt)

	none, err := s.ActiveBallot(ctx, "v1", "e2")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func testDuplicateActiveRejected(t *testing.T, s Backend) {
	ctx := context.Background()
	require.NoError(t, s.InsertBallot(ctx, newBallot("b1", "v1", "X", "e1", "Oromia", "Adama", t0)))

	err := s.InsertBallot(ctx, newBallot("b2", "v1", "Y", "e1", "Oromia", "Adama", t0.Add(time.Second)))
	assert.ErrorIs(t, err, ballot.ErrAlreadyVoted)

	assert.NoError(t, s.InsertBallot(ctx, newBallot("b3", "v1", "Y", "e2", "Oromia", "Adama", t0)),
		"a different election is a different slot")
}

func testRetractFreesSlot(t *testing.T, s Backend) {
	ctx := context.Background()
	require.NoError(t, s.InsertBallot(ctx, newBallot("b1", "v1", "X", "e1", "Oromia", "Adama", t0)))
	require.NoError(t, s.MarkRetracted(ctx, "b1", t0.Add(time.Hour)))

	active, err := s.ActiveBallot(ctx, "v1", "e1")
	require.NoError(t, err)
	assert.Nil(t, active)

	require.NoError(t, s.InsertBallot(ctx, newBallot("b2", "v1", "Y", "e1", "Oromia", "Adama", t0.Add(2*time.Hour))))
	active, err = s.ActiveBallot(ctx, "v1", "e1")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, ballot.BallotID("b2"), active.ID)
}

func testRetractIsConditional(t *testing.T, s Backend) {
	ctx := context.Background()
	require.NoError(t, s.InsertBallot(ctx, newBallot("b1", "v1", "X", "e1", "Oromia", "Adama", t0)))

	require.NoError(t, s.MarkRetracted(ctx, "b1", t0.Add(time.Minute)))
	assert.ErrorIs(t, s.MarkRetracted(ctx, "b1", t0.Add(2*time.Minute)), ballot.ErrBallotNotFound)
	assert.ErrorIs(t, s.MarkRetracted(ctx, "missing", t0), ballot.ErrBallotNotFound)

	history, err := s.BallotsByVoter(ctx, "v1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.NotNil(t, history[0].RetractedAt)
	assert.True(t, t0.Add(time.Minute).Equal(*history[0].RetractedAt), "first retraction wins")
}

func testActiveBallotsKeyset(t *testing.T, s Backend) {
	ctx := context.Background()

	// b2 and b3 share a cast time; ID breaks the tie.
	require.NoError(t, s.InsertBallot(ctx, newBallot("b4", "v4", "X", "e1", "Oromia", "Adama", t0.Add(3*time.Second))))
	require.NoError(t, s.InsertBallot(ctx, newBallot("b3", "v3", "X", "e1", "Oromia", "Adama", t0.Add(time.Second))))
	require.NoError(t, s.InsertBallot(ctx, newBallot("b1", "v1", "X", "e1", "Oromia", "Adama", t0)))
	require.NoError(t, s.InsertBallot(ctx, newBallot("b2", "v2", "Y", "e1", "Oromia", "Adama", t0.Add(time.Second))))
	require.NoError(t, s.InsertBallot(ctx, newBallot("b5", "v5", "Y", "e1", "Oromia", "Adama", t0.Add(4*time.Second))))
	require.NoError(t, s.InsertBallot(ctx, newBallot("other", "v1", "Y", "e2", "Oromia", "Adama", t0)))
	require.NoError(t, s.MarkRetracted(ctx, "b4", t0.Add(time.Hour)))

	scope := ballot.Scope{ElectionID: "e1"}
	var all []ballot.BallotID
	var after *ballot.Cursor
	pages := 0
	for {
		page, err := s.ActiveBallots(ctx, ballot.ActiveQuery{Scope: scope, After: after, Limit: 2})
		require.NoError(t, err)
		pages++
		all = append(all, ids(page)...)
		if len(page) < 2 {
			break
		}
		after = ballot.CursorOf(page[len(page)-1])
	}

	assert.Equal(t, []ballot.BallotID{"b1", "b2", "b3", "b5"}, all)
	assert.Equal(t, 3, pages)
}

func testActiveBallotsScope(t *testing.T, s Backend) {
	ctx := context.Background()
	require.NoError(t, s.InsertBallot(ctx, newBallot("b1", "v1", "X", "e1", "Oromia", "Adama", t0)))
	require.NoError(t, s.InsertBallot(ctx, newBallot("b2", "v2", "X", "e1", "oromia ", "Jimma", t0.Add(time.Second))))
	require.NoError(t, s.InsertBallot(ctx, newBallot("b3", "v3", "Y", "e1", "Amhara", "Gondar", t0.Add(2*time.Second))))
	require.NoError(t, s.InsertBallot(ctx, newBallot("b4", "v4", "Y", "e2", "Oromia", "Adama", t0.Add(3*time.Second))))

	tests := []struct {
		name  string
		scope ballot.Scope
		want  []ballot.BallotID
	}{
		{"election", ballot.Scope{ElectionID: "e1"}, []ballot.BallotID{"b1", "b2", "b3"}},
		{"region any case", ballot.Scope{ElectionID: "e1", Region: "OROMIA"}, []ballot.BallotID{"b1", "b2"}},
		{"zone", ballot.Scope{ElectionID: "e1", Zone: "jimma"}, []ballot.BallotID{"b2"}},
		{"all elections", ballot.Scope{Region: "Oromia"}, []ballot.BallotID{"b1", "b2", "b4"}},
		{"nothing", ballot.Scope{ElectionID: "e1", Region: "Afar"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := s.ActiveBallots(ctx, ballot.ActiveQuery{Scope: tt.scope, Limit: 100})
			require.NoError(t, err)
			if tt.want == nil {
				assert.Empty(t, page)
				return
			}
			assert.Equal(t, tt.want, ids(page))
		})
	}
}

func testBallotsByVoter(t *testing.T, s Backend) {
	ctx := context.Background()
	require.NoError(t, s.InsertBallot(ctx, newBallot("b1", "v1", "X", "e1", "Oromia", "Adama", t0)))
	require.NoError(t, s.MarkRetracted(ctx, "b1", t0.Add(time.Minute)))
	require.NoError(t, s.InsertBallot(ctx, newBallot("b2", "v1", "Y", "e1", "Oromia", "Adama", t0.Add(2*time.Minute))))
	require.NoError(t, s.InsertBallot(ctx, newBallot("b3", "v2", "Y", "e1", "Oromia", "Adama", t0)))

	history, err := s.BallotsByVoter(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, []ballot.BallotID{"b1", "b2"}, ids(history))
	assert.False(t, history[0].IsActive())
	assert.True(t, history[1].IsActive())
}

func testConcurrentInsertSameVoter(t *testing.T, s Backend) {
	ctx := context.Background()

	const n = 25
	var wg sync.WaitGroup
	var ok, dup atomic.Int32
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			b := newBallot(fmt.Sprintf("b%02d", i), "v1", "X", "e1", "Oromia", "Adama", t0.Add(time.Duration(i)*time.Millisecond))
			err := s.InsertBallot(ctx, b)
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, ballot.ErrAlreadyVoted):
				dup.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), ok.Load())
	assert.Equal(t, int32(n-1), dup.Load())
}

// =============================================================================
// REGISTRY
// =============================================================================

func testVoters(t *testing.T, s Backend) {
	ctx := context.Background()
	for _, v := range []ballot.VoterIdentity{
		{ID: "v1", Region: "Oromia", Zone: "Adama", Eligible: true},
		{ID: "v2", Region: "oromia", Zone: "Jimma", Eligible: true},
		{ID: "v3", Region: "Oromia", Zone: "Adama", Eligible: false},
		{ID: "v4", Region: "Amhara", Zone: "Gondar", Eligible: true},
	} {
		require.NoError(t, s.SaveVoter(ctx, v))
	}

	v, err := s.LookupVoter(ctx, "v2")
	require.NoError(t, err)
	assert.Equal(t, ballot.VoterIdentity{ID: "v2", Region: "oromia", Zone: "Jimma", Eligible: true}, v)

	_, err = s.LookupVoter(ctx, "ghost")
	assert.ErrorIs(t, err, ballot.ErrVoterNotFound)

	count := func(scope ballot.Scope) int {
		n, err := s.CountEligible(ctx, scope)
		require.NoError(t, err)
		return n
	}
	assert.Equal(t, 3, count(ballot.Scope{}))
	assert.Equal(t, 2, count(ballot.Scope{Region: "OROMIA"}))
	assert.Equal(t, 1, count(ballot.Scope{Zone: "adama"}))
	assert.Equal(t, 2, count(ballot.Scope{ElectionID: "ignored", Region: "Oromia"}))

	// Re-saving updates eligibility.
	require.NoError(t, s.SaveVoter(ctx, ballot.VoterIdentity{ID: "v3", Region: "Oromia", Zone: "Adama", Eligible: true}))
	assert.Equal(t, 2, count(ballot.Scope{Zone: "Adama"}))
}

func testCandidatesAndElections(t *testing.T, s Backend) {
	ctx := context.Background()
	for _, c := range []ballot.Candidate{
		{ID: "Y", FullName: "Candidate Y", Party: "Progress", Age: 52, CriminalRecord: ballot.RecordClean},
		{ID: "X", FullName: "Candidate X", Party: "Unity", Constituency: "Adama", Age: 45, CriminalRecord: ballot.RecordClean},
		{ID: "Z", FullName: "Candidate Z", Age: 38, CriminalRecord: ballot.RecordPardoned, Independent: true},
	} {
		require.NoError(t, s.SaveCandidate(ctx, c))
	}
	require.NoError(t, s.SaveElection(ctx, ballot.Election{
		ID:         "e1",
		Title:      "General Election",
		Region:     "Oromia",
		StartsAt:   t0,
		EndsAt:     t0.Add(72 * time.Hour),
		Status:     ballot.ElectionOngoing,
		Candidates: []ballot.CandidateID{"Y", "X"},
	}))

	eligible := func(id ballot.CandidateID, e ballot.ElectionID) bool {
		ok, err := s.CandidateEligible(ctx, id, e)
		require.NoError(t, err)
		return ok
	}
	assert.True(t, eligible("X", "e1"))
	assert.False(t, eligible("Z", "e1"))
	assert.True(t, eligible("Z", ballot.DefaultElection))
	assert.False(t, eligible("ghost", ballot.DefaultElection))
	assert.False(t, eligible("X", "no-such-election"))

	cands, err := s.Candidates(ctx, "e1")
	require.NoError(t, err)
	require.Len(t, cands, 2)
	assert.Equal(t, ballot.CandidateID("X"), cands[0].ID)
	assert.Equal(t, "Adama", cands[0].Constituency)
	assert.Equal(t, ballot.RecordClean, cands[0].CriminalRecord)

	all, err := s.Candidates(ctx, ballot.DefaultElection)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.True(t, all[2].Independent)

	none, err := s.Candidates(ctx, "no-such-election")
	require.NoError(t, err)
	assert.Empty(t, none)

	elections, err := s.Elections(ctx)
	require.NoError(t, err)
	require.Len(t, elections, 1)
	e := elections[0]
	assert.Equal(t, "General Election", e.Title)
	assert.Equal(t, ballot.ElectionOngoing, e.Status)
	assert.True(t, t0.Equal(e.StartsAt))
	assert.Equal(t, []ballot.CandidateID{"Y", "X"}, e.Candidates)

	// Re-saving replaces the candidate list.
	e.Candidates = []ballot.CandidateID{"Z"}
	require.NoError(t, s.SaveElection(ctx, e))
	assert.True(t, eligible("Z", "e1"))
	assert.False(t, eligible("X", "e1"))
}
