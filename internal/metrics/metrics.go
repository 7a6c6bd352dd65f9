// Package metrics exposes Prometheus collectors for tracked write ranges.
package metrics

import (
	"github.com/mrzor/wirestamp/internal/ledger"
	"github.com/mrzor/wirestamp/internal/timesync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Range outcomes.
const (
	OutcomeAcknowledged = "acknowledged"
	OutcomeDrained      = "drained"
)

// Delay stages, each measured from the moment the range was enqueued.
const (
	StageScheduled    = "scheduled"
	StageSent         = "sent"
	StageAcknowledged = "acknowledged"
)

var delayBuckets = []float64{
	0.000_005, 0.000_01, 0.000_025, 0.000_05, 0.000_1, 0.000_25, 0.000_5,
	0.001, 0.002_5, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1,
}

// Metrics holds the collectors. A nil *Metrics records nothing.
type Metrics struct {
	// ranges counts reported ranges.
	// Labels: outcome (acknowledged, drained)
	ranges *prometheus.CounterVec

	// missing counts timestamps a drained range never observed.
	// Labels: stage (scheduled, sent, acknowledged)
	missing *prometheus.CounterVec

	// delay measures enqueue-to-event latency.
	// Labels: stage (scheduled, sent, acknowledged)
	delay *prometheus.HistogramVec

	// shutdowns counts ledger shutdowns, seen as remaining-context
	// notifications.
	shutdowns prometheus.Counter
}

// New registers the collectors with reg. Pass prometheus.DefaultRegisterer
// to expose them on the default /metrics handler.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ranges: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wirestamp",
			Subsystem: "ledger",
			Name:      "ranges_total",
			Help:      "Tracked write ranges reported, by outcome",
		}, []string{"outcome"}),
		missing: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wirestamp",
			Subsystem: "ledger",
			Name:      "missing_timestamps_total",
			Help:      "Timestamps never observed for drained ranges, by stage",
		}, []string{"stage"}),
		delay: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "wirestamp",
			Subsystem: "wire",
			Name:      "delay_seconds",
			Help:      "Delay between enqueueing a write and a transmit event, by stage",
			Buckets:   delayBuckets,
		}, []string{"stage"}),
		shutdowns: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "wirestamp",
			Subsystem: "ledger",
			Name:      "shutdowns_total",
			Help:      "Ledger shutdowns reported to the callback",
		}),
	}
}

// ObserveRange records one reported range. err is the error the ledger
// passed alongside ts.
func (m *Metrics) ObserveRange(ts *ledger.Timestamps, err error) {
	if m == nil || ts == nil {
		return
	}

	outcome := OutcomeAcknowledged
	if err != nil {
		outcome = OutcomeDrained
	}
	m.ranges.WithLabelValues(outcome).Inc()

	stages := []struct {
		name string
		kind ledger.EventKind
	}{
		{StageScheduled, ledger.Scheduled},
		{StageSent, ledger.Sent},
		{StageAcknowledged, ledger.Acknowledged},
	}
	for _, s := range stages {
		if !ts.Observed(s.kind) {
			if err != nil {
				m.missing.WithLabelValues(s.name).Inc()
			}
			continue
		}
		if d := timesync.Delay(ts.Enqueued, ts.At(s.kind)); d > 0 {
			m.delay.WithLabelValues(s.name).Observe(d.Seconds())
		}
	}
}

// ObserveShutdown records a remaining-context notification.
func (m *Metrics) ObserveShutdown() {
	if m == nil {
		return
	}
	m.shutdowns.Inc()
}
