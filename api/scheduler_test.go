package api_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/ballot-engine/api"
	"github.com/warp/ballot-engine/ballot"
)

type turnoutLog struct {
	mu   sync.Mutex
	seen map[string]ballot.Turnout
	n    int
}

func (l *turnoutLog) RecordTurnout(region string, t ballot.Turnout) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.seen == nil {
		l.seen = make(map[string]ballot.Turnout)
	}
	l.seen[region] = t
	l.n++
}

func (l *turnoutLog) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.n
}

func TestTurnoutScheduler_Sweep(t *testing.T) {
	// GIVEN: the Oromia scenario and an Afar region with no voters
	_, engine := seeded(t, "oromia-regional")
	rec := &turnoutLog{}
	s := api.NewTurnoutScheduler(engine, rec, []string{"Oromia", "Afar"})
	s.Logger = quietLogger()

	// WHEN: sweeping once
	n := s.Sweep(context.Background())

	// THEN: both regions are recorded
	assert.Equal(t, 2, n)
	assert.Equal(t, "100.00", rec.seen["Oromia"].TurnoutPercentage.StringFixed(2))
	assert.Equal(t, 3, rec.seen["Oromia"].TotalVotes)
	assert.True(t, rec.seen["Afar"].TurnoutPercentage.IsZero())
}

func TestTurnoutScheduler_CanceledSweep(t *testing.T) {
	_, engine := seeded(t, "oromia-regional")
	rec := &turnoutLog{}
	s := api.NewTurnoutScheduler(engine, rec, []string{"Oromia", "Afar"})
	s.Logger = quietLogger()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Equal(t, 0, s.Sweep(ctx))
	assert.Equal(t, 0, rec.count())
}

func TestTurnoutScheduler_StartStop(t *testing.T) {
	_, engine := seeded(t, "oromia-regional")
	rec := &turnoutLog{}
	s := api.NewTurnoutScheduler(engine, rec, []string{"Oromia"})
	s.Logger = quietLogger()
	s.Interval = 10 * time.Millisecond

	s.Start()
	s.Start() // second start is a no-op
	require.Eventually(t, func() bool { return rec.count() >= 2 }, time.Second, 5*time.Millisecond)
	s.Stop()

	after := rec.count()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, rec.count(), "no sweeps after Stop")
	s.Stop() // idempotent
}

func TestTurnoutScheduler_Disabled(t *testing.T) {
	_, engine := seeded(t, "oromia-regional")
	rec := &turnoutLog{}
	s := api.NewTurnoutScheduler(engine, rec, []string{"Oromia"})
	s.Logger = quietLogger()
	s.Interval = 0

	s.Start()
	s.Stop()

	assert.Equal(t, 0, rec.count())
}
