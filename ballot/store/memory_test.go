package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/ballot-engine/ballot"
	"github.com/warp/ballot-engine/ballot/store"
	"github.com/warp/ballot-engine/ballot/storetest"
)

func TestMemory_Conformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) storetest.Backend {
		return store.NewMemory()
	})
}

func TestMemory_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	at := time.Date(2026, time.March, 1, 8, 0, 0, 0, time.UTC)
	require.NoError(t, m.InsertBallot(ctx, ballot.Ballot{ID: "b1", VoterID: "v1", CandidateID: "X", ElectionID: "e1", CastAt: at}))

	got, err := m.ActiveBallot(ctx, "v1", "e1")
	require.NoError(t, err)
	got.CandidateID = "tampered"

	again, err := m.ActiveBallot(ctx, "v1", "e1")
	require.NoError(t, err)
	assert.Equal(t, ballot.CandidateID("X"), again.CandidateID)
}

func TestMemory_Reset(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	require.NoError(t, m.SaveVoter(ctx, ballot.VoterIdentity{ID: "v1", Region: "Afar", Eligible: true}))
	require.NoError(t, m.InsertBallot(ctx, ballot.Ballot{ID: "b1", VoterID: "v1", CandidateID: "X", ElectionID: "e1", CastAt: time.Now()}))

	require.NoError(t, m.Reset(ctx))

	n, err := m.CountEligible(ctx, ballot.Scope{})
	require.NoError(t, err)
	assert.Zero(t, n)
	active, err := m.ActiveBallot(ctx, "v1", "e1")
	require.NoError(t, err)
	assert.Nil(t, active)
}

func TestMemory_CanceledContext(t *testing.T) {
	m := store.NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := m.InsertBallot(ctx, ballot.Ballot{ID: "b1", VoterID: "v1", ElectionID: "e1", CastAt: time.Now()})
	assert.ErrorIs(t, err, context.Canceled)
}
