/*
scheduler.go - Periodic turnout publisher

PURPOSE:
  Recomputes turnout for every configured region on a fixed interval and hands
  it to a recorder (the Prometheus gauges in production). Dashboards scrape the
  gauges instead of hammering the turnout endpoint.

DESIGN:
  - Runs a background goroutine with a configurable interval
  - Sweeps once immediately on Start
  - A failing region is logged and skipped; the sweep carries on
  - Stop cancels an in-flight sweep and waits for the goroutine

USAGE:
  s := NewTurnoutScheduler(engine, metrics, regions)
  s.Start()
  // ... later
  s.Stop()
*/
package api

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/warp/ballot-engine/ballot"
)

// TurnoutRecorder receives one region's turnout per sweep.
type TurnoutRecorder interface {
	RecordTurnout(region string, t ballot.Turnout)
}

// TurnoutScheduler publishes per-region turnout periodically.
type TurnoutScheduler struct {
	Engine   *ballot.TallyEngine
	Recorder TurnoutRecorder
	Regions  []string
	// ElectionID restricts turnout to one election. Empty means all.
	ElectionID ballot.ElectionID
	Interval   time.Duration
	Logger     *slog.Logger

	ticker *time.Ticker
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewTurnoutScheduler creates a scheduler with a one minute interval.
func NewTurnoutScheduler(engine *ballot.TallyEngine, recorder TurnoutRecorder, regions []string) *TurnoutScheduler {
	return &TurnoutScheduler{
		Engine:   engine,
		Recorder: recorder,
		Regions:  regions,
		Interval: time.Minute,
		Logger:   slog.Default(),
	}
}

// Start begins the scheduler. A non-positive interval disables it.
func (s *TurnoutScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Interval <= 0 {
		s.Logger.Info("turnout scheduler disabled")
		return
	}
	if s.ticker != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.ticker = time.NewTicker(s.Interval)
	s.wg.Add(1)

	go s.run(ctx, s.ticker)

	s.Logger.Info("turnout scheduler started", "interval", s.Interval, "regions", len(s.Regions))
}

// Stop stops the scheduler and waits for an in-flight sweep to return.
func (s *TurnoutScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker == nil {
		return
	}
	s.ticker.Stop()
	s.cancel()
	s.wg.Wait()
	s.ticker = nil
	s.Logger.Info("turnout scheduler stopped")
}

func (s *TurnoutScheduler) run(ctx context.Context, ticker *time.Ticker) {
	defer s.wg.Done()

	s.Sweep(ctx)

	for {
		select {
		case <-ticker.C:
			s.Sweep(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Sweep computes and records turnout for every region once. It returns the
// number of regions recorded.
func (s *TurnoutScheduler) Sweep(ctx context.Context) int {
	start := time.Now()
	recorded := 0
	for _, region := range s.Regions {
		if ctx.Err() != nil {
			break
		}
		t, err := s.Engine.Turnout(ctx, ballot.Scope{ElectionID: s.ElectionID, Region: region})
		if err != nil {
			s.Logger.Warn("turnout sweep failed", "region", region, "error", err)
			continue
		}
		s.Recorder.RecordTurnout(region, t)
		recorded++
	}
	s.Logger.Debug("turnout sweep done", "recorded", recorded, "elapsed", time.Since(start))
	return recorded
}
