package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestReservationCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Reservation("admitted")
	m.Reservation("admitted")
	m.Reservation("full")
	m.Compensation(false)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.reservations.WithLabelValues("admitted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.reservations.WithLabelValues("full")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.compensations.WithLabelValues("leaked")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Reservation("admitted")
		m.Compensation(true)
		m.EventStarted("singles")
		m.ScoreSubmitted()
		m.StandingsComputed()
	})
}
