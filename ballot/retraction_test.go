package ballot_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/ballot-engine/ballot"
)

func TestRetractionPolicy_IsRetractable(t *testing.T) {
	now := time.Date(2026, time.May, 10, 12, 0, 0, 0, time.UTC)
	retractedAt := now.Add(-time.Hour)
	policy := ballot.NewRetractionPolicy(24 * time.Hour)

	tests := []struct {
		name   string
		ballot ballot.Ballot
		want   bool
	}{
		{"just cast", ballot.Ballot{CastAt: now}, true},
		{"one hour old", ballot.Ballot{CastAt: now.Add(-time.Hour)}, true},
		{"exactly at window", ballot.Ballot{CastAt: now.Add(-24 * time.Hour)}, true},
		{"one second past window", ballot.Ballot{CastAt: now.Add(-24*time.Hour - time.Second)}, false},
		{"missing cast time", ballot.Ballot{}, false},
		{"cast in the future", ballot.Ballot{CastAt: now.Add(time.Minute)}, false},
		{"already retracted", ballot.Ballot{CastAt: now.Add(-2 * time.Hour), RetractedAt: &retractedAt}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, policy.IsRetractable(tt.ballot, now))
		})
	}
}

func TestRetractionPolicy_CustomWindow(t *testing.T) {
	now := time.Date(2026, time.May, 10, 12, 0, 0, 0, time.UTC)
	policy := ballot.NewRetractionPolicy(15 * time.Minute)

	assert.True(t, policy.IsRetractable(ballot.Ballot{CastAt: now.Add(-15 * time.Minute)}, now))
	assert.False(t, policy.IsRetractable(ballot.Ballot{CastAt: now.Add(-16 * time.Minute)}, now))
}

func TestRetractionPolicy_NonPositiveWindow_UsesDefault(t *testing.T) {
	assert.Equal(t, ballot.DefaultRetractionWindow, ballot.NewRetractionPolicy(0).Window)
	assert.Equal(t, ballot.DefaultRetractionWindow, ballot.NewRetractionPolicy(-time.Hour).Window)

	var zero ballot.RetractionPolicy
	now := time.Now()
	assert.True(t, zero.IsRetractable(ballot.Ballot{CastAt: now.Add(-23 * time.Hour)}, now))
}

func TestRetractionPolicy_Check_ExplainsDenial(t *testing.T) {
	now := time.Date(2026, time.May, 10, 12, 0, 0, 0, time.UTC)
	policy := ballot.NewRetractionPolicy(24 * time.Hour)
	b := ballot.Ballot{ID: "b-1", CastAt: now.Add(-30 * time.Hour)}

	err := policy.Check(b, now)

	var expired *ballot.RetractionWindowExpiredError
	require.ErrorAs(t, err, &expired)
	assert.Equal(t, 30*time.Hour, expired.Elapsed)
	assert.Equal(t, 24*time.Hour, expired.Window)
	assert.Contains(t, err.Error(), "30h0m0s")

	assert.NoError(t, policy.Check(ballot.Ballot{CastAt: now.Add(-time.Hour)}, now))
}

func TestRetractionPolicy_Deadline(t *testing.T) {
	castAt := time.Date(2026, time.May, 10, 12, 0, 0, 0, time.UTC)
	policy := ballot.NewRetractionPolicy(24 * time.Hour)

	assert.Equal(t, castAt.Add(24*time.Hour), policy.Deadline(ballot.Ballot{CastAt: castAt}))
	assert.True(t, policy.Deadline(ballot.Ballot{}).IsZero())
}
