// Package observability exports ballot engine metrics to Prometheus.
//
// Metrics implements ballot.Observer and ballot.TallyObserver, so wiring it
// into a Ledger and a TallyEngine is enough to populate:
//   - ballot_ledger_casts_total{election}
//   - ballot_ledger_retractions_total{election}
//   - ballot_ledger_rejections_total{operation, reason}
//   - ballot_tally_duration_seconds{kind}
//   - ballot_turnout_percentage{region}
//   - ballot_turnout_votes{region}
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/warp/ballot-engine/ballot"
)

const namespace = "ballot"

// Metrics holds the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	Casts         *prometheus.CounterVec
	Retractions   *prometheus.CounterVec
	Rejections    *prometheus.CounterVec
	TallyDuration *prometheus.HistogramVec
	Turnout       *prometheus.GaugeVec
	TurnoutVotes  *prometheus.GaugeVec
}

// NewMetrics registers the collectors with reg. Pass prometheus.DefaultRegisterer
// in production and a fresh prometheus.NewRegistry() in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Casts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "casts_total",
			Help:      "Ballots accepted.",
		}, []string{"election"}),
		Retractions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "retractions_total",
			Help:      "Ballots retracted within the window.",
		}, []string{"election"}),
		Rejections: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "rejections_total",
			Help:      "Cast and retract requests that failed, by reason.",
		}, []string{"operation", "reason"}),
		TallyDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "tally",
			Name:      "duration_seconds",
			Help:      "Time to derive an aggregate from the active-ballot set.",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"kind"}),
		Turnout: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "turnout",
			Name:      "percentage",
			Help:      "Distinct voters with an active ballot over eligible voters, per region.",
		}, []string{"region"}),
		TurnoutVotes: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "turnout",
			Name:      "votes",
			Help:      "Distinct voters with an active ballot, per region.",
		}, []string{"region"}),
	}
}

func (m *Metrics) BallotCast(b ballot.Ballot) {
	if m == nil {
		return
	}
	m.Casts.WithLabelValues(string(b.ElectionID)).Inc()
}

func (m *Metrics) BallotRetracted(b ballot.Ballot) {
	if m == nil {
		return
	}
	m.Retractions.WithLabelValues(string(b.ElectionID)).Inc()
}

func (m *Metrics) Rejected(op ballot.Operation, err error) {
	if m == nil {
		return
	}
	m.Rejections.WithLabelValues(string(op), ballot.Reason(err)).Inc()
}

func (m *Metrics) TallyComputed(kind string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.TallyDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// RecordTurnout publishes a region's turnout.
func (m *Metrics) RecordTurnout(region string, t ballot.Turnout) {
	if m == nil {
		return
	}
	pct, _ := t.TurnoutPercentage.Round(2).Float64()
	m.Turnout.WithLabelValues(region).Set(pct)
	m.TurnoutVotes.WithLabelValues(region).Set(float64(t.TotalVotes))
}

var (
	_ ballot.Observer      = (*Metrics)(nil)
	_ ballot.TallyObserver = (*Metrics)(nil)
)
