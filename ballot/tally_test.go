package ballot_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/ballot-engine/ballot"
)

func fixed(d decimal.Decimal) string { return d.StringFixed(2) }

func castAll(t *testing.T, f *fixture, votes map[string]ballot.CandidateID, region, zone string) {
	t.Helper()
	for id, cand := range votes {
		v := f.voter(t, id, region, zone)
		_, err := f.ledger.Cast(context.Background(), v, cand, electionA)
		require.NoError(t, err)
		f.advance(time.Second)
	}
}

// =============================================================================
// END-TO-END
// =============================================================================

func TestTally_OromiaScenario(t *testing.T) {
	// GIVEN: Oromia has 3 eligible voters; X and Y stand in electionA
	// WHEN: Voter1 -> X, Voter2 -> X, Voter3 -> Y
	// THEN: {X:2, Y:1}, {X:66.67, Y:33.33}, turnout 3/3 = 100.00

	f := newFixture(t)
	ctx := context.Background()
	castAll(t, f, map[string]ballot.CandidateID{"voter1": "X", "voter2": "X", "voter3": "Y"}, "Oromia", "Adama")
	f.voter(t, "amhara-1", "Amhara", "Gondar")

	counts, err := f.tally.TallyByRegion(ctx, electionA, "Oromia")
	require.NoError(t, err)
	assert.Equal(t, ballot.Counts{"X": 2, "Y": 1}, counts)

	pct := ballot.Percentages(counts)
	assert.Equal(t, "66.67", fixed(pct["X"]))
	assert.Equal(t, "33.33", fixed(pct["Y"]))

	turnout, err := f.tally.Turnout(ctx, ballot.Scope{ElectionID: electionA, Region: "Oromia"})
	require.NoError(t, err)
	assert.Equal(t, 3, turnout.TotalVoters)
	assert.Equal(t, 3, turnout.TotalVotes)
	assert.Equal(t, "100.00", fixed(turnout.TurnoutPercentage))
}

func TestTally_RegionMatch_CaseInsensitive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	castAll(t, f, map[string]ballot.CandidateID{"v1": "X", "v2": "Y"}, "Oromia", "Adama")
	castAll(t, f, map[string]ballot.CandidateID{"v3": "Y"}, "Amhara", "Gondar")

	for _, region := range []string{"Oromia", "oromia", " OROMIA "} {
		counts, err := f.tally.TallyByRegion(ctx, electionA, region)
		require.NoError(t, err)
		assert.Equal(t, ballot.Counts{"X": 1, "Y": 1}, counts, region)
	}
}

// =============================================================================
// TALLY PROPERTIES
// =============================================================================

func TestTally_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	castAll(t, f, map[string]ballot.CandidateID{"v1": "X", "v2": "Y", "v3": "Y"}, "Sidama", "Hawassa")

	first, err := f.tally.TallyByCandidate(ctx, electionA)
	require.NoError(t, err)
	second, err := f.tally.TallyByCandidate(ctx, electionA)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestTally_ZeroFilled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	counts, err := f.tally.TallyByCandidate(ctx, electionA)
	require.NoError(t, err)
	assert.Equal(t, ballot.Counts{"X": 0, "Y": 0}, counts)

	counts, err = f.tally.TallyByCandidate(ctx, "no-such-election")
	require.NoError(t, err)
	assert.Empty(t, counts)
}

func TestPercentages_SumToHundred(t *testing.T) {
	tests := []struct {
		name   string
		counts ballot.Counts
	}{
		{"thirds", ballot.Counts{"a": 1, "b": 1, "c": 1}},
		{"uneven", ballot.Counts{"a": 7, "b": 3, "c": 1, "d": 0}},
		{"single", ballot.Counts{"a": 5}},
		{"sevenths", ballot.Counts{"a": 1, "b": 1, "c": 1, "d": 1, "e": 1, "f": 1, "g": 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pct := ballot.Percentages(tt.counts)
			sum := decimal.Zero
			for _, p := range pct {
				sum = sum.Add(p)
			}
			tolerance := decimal.NewFromFloat(0.01).Mul(decimal.NewFromInt(int64(len(tt.counts))))
			assert.True(t, sum.Sub(decimal.NewFromInt(100)).Abs().LessThanOrEqual(tolerance),
				"sum %s outside tolerance", sum)
		})
	}
}

func TestPercentages_ZeroTotal_AllZero(t *testing.T) {
	pct := ballot.Percentages(ballot.Counts{"a": 0, "b": 0})
	assert.Equal(t, "0.00", fixed(pct["a"]))
	assert.Equal(t, "0.00", fixed(pct["b"]))

	assert.Empty(t, ballot.Percentages(ballot.Counts{}))
}

func TestCounts_Ranked_TiesByID(t *testing.T) {
	ranked := ballot.Counts{"b": 2, "a": 2, "c": 5, "d": 0}.Ranked()

	ids := make([]ballot.CandidateID, len(ranked))
	for i, r := range ranked {
		ids[i] = r.CandidateID
	}
	assert.Equal(t, []ballot.CandidateID{"c", "a", "b", "d"}, ids)
}

// =============================================================================
// TURNOUT
// =============================================================================

func TestTurnout_RetractAndRecast_CountsVoterOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.voter(t, "v1", "Tigray", "Mekelle")
	f.voter(t, "v2", "Tigray", "Mekelle")

	_, err := f.ledger.Cast(ctx, v, "X", electionA)
	require.NoError(t, err)
	f.advance(time.Hour)
	_, err = f.ledger.Retract(ctx, "v1", "X", electionA)
	require.NoError(t, err)
	_, err = f.ledger.Cast(ctx, v, "Y", electionA)
	require.NoError(t, err)

	turnout, err := f.tally.Turnout(ctx, ballot.Scope{ElectionID: electionA, Region: "Tigray"})
	require.NoError(t, err)
	assert.Equal(t, 2, turnout.TotalVoters)
	assert.Equal(t, 1, turnout.TotalVotes)
	assert.Equal(t, "50.00", fixed(turnout.TurnoutPercentage))
}

func TestTurnout_AcrossElections_DistinctVoters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.voter(t, "v1", "Afar", "Semera")

	_, err := f.ledger.Cast(ctx, v, "X", electionA)
	require.NoError(t, err)
	_, err = f.ledger.Cast(ctx, v, "Z", "")
	require.NoError(t, err)

	turnout, err := f.tally.Turnout(ctx, ballot.Scope{Region: "Afar"})
	require.NoError(t, err)
	assert.Equal(t, 1, turnout.TotalVotes)
}

func TestTurnout_NoEligibleVoters_Zero(t *testing.T) {
	f := newFixture(t)

	turnout, err := f.tally.Turnout(context.Background(), ballot.Scope{ElectionID: electionA, Region: "Harari"})
	require.NoError(t, err)
	assert.Equal(t, 0, turnout.TotalVoters)
	assert.Equal(t, 0, turnout.TotalVotes)
	assert.Equal(t, "0.00", fixed(turnout.TurnoutPercentage))
}

func TestTurnout_ByZone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	castAll(t, f, map[string]ballot.CandidateID{"v1": "X"}, "Oromia", "Adama")
	castAll(t, f, map[string]ballot.CandidateID{"v2": "Y"}, "Oromia", "Jimma")
	f.voter(t, "v3", "Oromia", "Jimma")
	f.voter(t, "v4", "Oromia", "Jimma")

	turnout, err := f.tally.Turnout(ctx, ballot.Scope{ElectionID: electionA, Zone: "jimma"})
	require.NoError(t, err)
	assert.Equal(t, 3, turnout.TotalVoters)
	assert.Equal(t, 1, turnout.TotalVotes)
	assert.Equal(t, "33.33", fixed(turnout.TurnoutPercentage))
}

// =============================================================================
// SUMMARIES
// =============================================================================

func TestNationalSummary_RankedWithRegionBreakdown(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	castAll(t, f, map[string]ballot.CandidateID{"o1": "Y", "o2": "Y", "o3": "X"}, "Oromia", "Adama")
	castAll(t, f, map[string]ballot.CandidateID{"a1": "Y"}, "Amhara", "Gondar")
	f.voter(t, "idle", "Somali", "Jigjiga")

	summary, err := f.tally.NationalSummary(ctx, electionA)
	require.NoError(t, err)

	assert.Equal(t, electionA, summary.ElectionID)
	assert.Equal(t, 2, summary.TotalCandidates)
	assert.Equal(t, 4, summary.TotalVoters)
	assert.Equal(t, 4, summary.TotalVotes)
	assert.Equal(t, 5, summary.EligibleVoters)
	assert.Equal(t, "80.00", fixed(summary.TurnoutPercentage))

	require.Len(t, summary.PerCandidate, 2)
	y := summary.PerCandidate[0]
	assert.Equal(t, ballot.CandidateID("Y"), y.CandidateID)
	assert.Equal(t, 3, y.Votes)
	assert.Equal(t, "75.00", fixed(y.Percentage))
	assert.Equal(t, []ballot.RegionCount{{Region: "Oromia", Votes: 2}, {Region: "Amhara", Votes: 1}}, y.Regions)

	x := summary.PerCandidate[1]
	assert.Equal(t, ballot.CandidateID("X"), x.CandidateID)
	assert.Equal(t, "25.00", fixed(x.Percentage))
}

func TestNationalSummary_Empty(t *testing.T) {
	f := newFixture(t)

	summary, err := f.tally.NationalSummary(context.Background(), electionA)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.TotalVotes)
	assert.Equal(t, "0.00", fixed(summary.TurnoutPercentage))
	require.Len(t, summary.PerCandidate, 2)
	assert.Equal(t, ballot.CandidateID("X"), summary.PerCandidate[0].CandidateID, "ties ranked by ID")
	assert.Empty(t, summary.PerCandidate[0].Regions)
}

func TestZoneBreakdown(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	castAll(t, f, map[string]ballot.CandidateID{"j1": "X", "j2": "Y"}, "Oromia", "Jimma")
	castAll(t, f, map[string]ballot.CandidateID{"a1": "X"}, "Oromia", "Adama")
	castAll(t, f, map[string]ballot.CandidateID{"g1": "Y"}, "Amhara", "Gondar")

	zones, err := f.tally.ZoneBreakdown(ctx, electionA, "oromia")
	require.NoError(t, err)

	require.Len(t, zones, 2)
	assert.Equal(t, "Adama", zones[0].Zone)
	assert.Equal(t, ballot.Counts{"X": 1, "Y": 0}, zones[0].Counts)
	assert.Equal(t, 1, zones[0].TotalVotes)
	assert.Equal(t, "Jimma", zones[1].Zone)
	assert.Equal(t, ballot.Counts{"X": 1, "Y": 1}, zones[1].Counts)
}

func TestTallyByZone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	castAll(t, f, map[string]ballot.CandidateID{"j1": "X", "j2": "X"}, "Oromia", "Jimma")
	castAll(t, f, map[string]ballot.CandidateID{"a1": "Y"}, "Oromia", "Adama")

	counts, err := f.tally.TallyByZone(ctx, electionA, "JIMMA")
	require.NoError(t, err)
	assert.Equal(t, ballot.Counts{"X": 2, "Y": 0}, counts)
}

func TestResults_RankedWithPercentages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	castAll(t, f, map[string]ballot.CandidateID{"v1": "Y", "v2": "Y", "v3": "X"}, "Gambela", "Itang")

	res, err := f.tally.Results(ctx, ballot.Scope{ElectionID: electionA})
	require.NoError(t, err)

	assert.Equal(t, 3, res.TotalVotes)
	require.Len(t, res.Candidates, 2)
	got := make([]string, len(res.Candidates))
	for i, c := range res.Candidates {
		got[i] = fmt.Sprintf("%s=%d/%s", c.CandidateID, c.Votes, fixed(c.Percentage))
	}
	assert.Equal(t, []string{"Y=2/66.67", "X=1/33.33"}, got)
}

type recordingTallyObserver struct{ kinds []string }

func (o *recordingTallyObserver) TallyComputed(kind string, _ time.Duration) {
	o.kinds = append(o.kinds, kind)
}

func TestTallyEngine_ReportsTimings(t *testing.T) {
	f := newFixture(t)
	obs := &recordingTallyObserver{}
	f.tally.Observer = obs
	ctx := context.Background()

	_, err := f.tally.TallyByCandidate(ctx, electionA)
	require.NoError(t, err)
	_, err = f.tally.Turnout(ctx, ballot.Scope{})
	require.NoError(t, err)

	assert.Equal(t, []string{"tally", "turnout"}, obs.kinds)
}
