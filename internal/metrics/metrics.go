// internal/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the service's prometheus collectors. A nil *Metrics is valid and
// records nothing, which keeps tests and tools free of registry wiring.
type Metrics struct {
	reservations    *prometheus.CounterVec
	compensations   *prometheus.CounterVec
	eventsStarted   *prometheus.CounterVec
	scoreSubmits    prometheus.Counter
	standingsServed prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		reservations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rally",
			Name:      "reservations_total",
			Help:      "Reservation attempts by outcome code.",
		}, []string{"outcome"}),
		compensations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rally",
			Name:      "reservation_compensations_total",
			Help:      "Compensating seat releases after a failed participant insert.",
		}, []string{"result"}),
		eventsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rally",
			Name:      "events_started_total",
			Help:      "Round-robin schedules generated and stored, by format.",
		}, []string{"format"}),
		scoreSubmits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rally",
			Name:      "scores_submitted_total",
			Help:      "Accepted match score submissions.",
		}),
		standingsServed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rally",
			Name:      "standings_computed_total",
			Help:      "Leaderboards recomputed on request.",
		}),
	}
	reg.MustRegister(m.reservations, m.compensations, m.eventsStarted, m.scoreSubmits, m.standingsServed)
	return m
}

// Reservation counts a reservation attempt. outcome is "admitted" or the rejection code.
func (m *Metrics) Reservation(outcome string) {
	if m == nil {
		return
	}
	m.reservations.WithLabelValues(outcome).Inc()
}

// Compensation counts a seat release; ok is false when the release itself failed.
func (m *Metrics) Compensation(ok bool) {
	if m == nil {
		return
	}
	result := "released"
	if !ok {
		result = "leaked"
	}
	m.compensations.WithLabelValues(result).Inc()
}

func (m *Metrics) EventStarted(format string) {
	if m == nil {
		return
	}
	m.eventsStarted.WithLabelValues(format).Inc()
}

func (m *Metrics) ScoreSubmitted() {
	if m == nil {
		return
	}
	m.scoreSubmits.Inc()
}

func (m *Metrics) StandingsComputed() {
	if m == nil {
		return
	}
	m.standingsServed.Inc()
}
