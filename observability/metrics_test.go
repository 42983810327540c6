package observability_test

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/ballot-engine/ballot"
	"github.com/warp/ballot-engine/ballot/store"
	"github.com/warp/ballot-engine/observability"
)

func TestMetrics_LedgerOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := observability.NewMetrics(reg)
	ctx := context.Background()

	mem := store.NewMemory()
	require.NoError(t, mem.SaveCandidate(ctx, ballot.Candidate{ID: "X", FullName: "X", Age: 40, CriminalRecord: ballot.RecordClean}))
	ledger := ballot.NewLedger(mem, mem)
	ledger.Observer = m

	v := ballot.VoterIdentity{ID: "v1", Region: "Oromia", Zone: "Adama", Eligible: true}
	_, err := ledger.Cast(ctx, v, "X", "")
	require.NoError(t, err)
	_, err = ledger.Cast(ctx, v, "X", "")
	require.Error(t, err)
	_, err = ledger.Retract(ctx, "v1", "X", "")
	require.NoError(t, err)
	_, err = ledger.Cast(ctx, ballot.VoterIdentity{ID: "v2"}, "X", "")
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Casts.WithLabelValues("default")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Retractions.WithLabelValues("default")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Rejections.WithLabelValues("cast", "already_voted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Rejections.WithLabelValues("cast", "ineligible_voter")))
}

func TestMetrics_TallyAndTurnout(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := observability.NewMetrics(reg)

	m.TallyComputed("tally", 3*time.Millisecond)
	m.TallyComputed("tally", 7*time.Millisecond)
	m.RecordTurnout("Oromia", ballot.Turnout{TotalVoters: 3, TotalVotes: 2, TurnoutPercentage: decimal.RequireFromString("66.67")})

	assert.Equal(t, 1, testutil.CollectAndCount(m.TallyDuration))
	assert.Equal(t, 66.67, testutil.ToFloat64(m.Turnout.WithLabelValues("Oromia")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.TurnoutVotes.WithLabelValues("Oromia")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *observability.Metrics

	assert.NotPanics(t, func() {
		m.BallotCast(ballot.Ballot{})
		m.BallotRetracted(ballot.Ballot{})
		m.Rejected(ballot.OpCast, ballot.ErrAlreadyVoted)
		m.TallyComputed("tally", time.Second)
		m.RecordTurnout("Afar", ballot.Turnout{})
	})
}
