package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Collector) float64 {
	t.Helper()
	ch := make(chan prometheus.Metric, 1)
	c.Collect(ch)
	close(ch)
	var total float64
	for m := range ch {
		var out dto.Metric
		require.NoError(t, m.Write(&out))
		total += out.GetCounter().GetValue()
	}
	return total
}

func TestBookingMetricsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewBookingMetrics(reg)

	m.ObserveAppointment("create", OutcomeSuccess)
	m.ObserveAppointment("create", OutcomeConflict)
	m.ObserveReservation(OutcomeConflict)
	m.ObserveSweep(3)
	m.ObserveSweep(0)
	m.ObserveHTTP("/appointments", "POST", 201, 0.01)

	assert.Equal(t, float64(1), counterValue(t, m.appointmentsTotal.WithLabelValues("create", OutcomeConflict)))
	assert.Equal(t, float64(1), counterValue(t, m.reservationsTotal.WithLabelValues(OutcomeConflict)))
	assert.Equal(t, float64(3), counterValue(t, m.sweepDeleted))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.Len(t, families, 4)
}

func TestNilBookingMetricsIsNoop(t *testing.T) {
	var m *BookingMetrics
	m.ObserveAppointment("create", OutcomeSuccess)
	m.ObserveReservation(OutcomeSuccess)
	m.ObserveSweep(1)
	m.ObserveHTTP("/", "GET", 200, 0)
}
