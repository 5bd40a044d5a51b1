package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomeSuccess  = "success"
	OutcomeConflict = "conflict"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// BookingMetrics exposes counters/histograms for the slot-booking core.
// A nil *BookingMetrics is a valid no-op recorder.
type BookingMetrics struct {
	appointmentsTotal *prometheus.CounterVec
	reservationsTotal *prometheus.CounterVec
	sweepDeleted      prometheus.Counter
	httpDuration      *prometheus.HistogramVec
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		appointmentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dental",
			Subsystem: "booking",
			Name:      "appointments_total",
			Help:      "Appointment operations by outcome",
		}, []string{"operation", "outcome"}),
		reservationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dental",
			Subsystem: "booking",
			Name:      "reservations_total",
			Help:      "Slot reservation attempts by outcome",
		}, []string{"outcome"}),
		sweepDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dental",
			Subsystem: "booking",
			Name:      "sweep_deleted_total",
			Help:      "Expired reservations removed by the cleanup sweep",
		}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "dental",
			Subsystem: "booking",
			Name:      "http_request_duration_seconds",
			Help:      "Latency of HTTP requests",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method", "status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.appointmentsTotal, m.reservationsTotal, m.sweepDeleted, m.httpDuration)
	return m
}

func (m *BookingMetrics) ObserveAppointment(operation, outcome string) {
	if m == nil {
		return
	}
	m.appointmentsTotal.WithLabelValues(operation, outcome).Inc()
}

func (m *BookingMetrics) ObserveReservation(outcome string) {
	if m == nil {
		return
	}
	m.reservationsTotal.WithLabelValues(outcome).Inc()
}

func (m *BookingMetrics) ObserveSweep(deleted int64) {
	if m == nil || deleted <= 0 {
		return
	}
	m.sweepDeleted.Add(float64(deleted))
}

func (m *BookingMetrics) ObserveHTTP(route, method string, status int, seconds float64) {
	if m == nil {
		return
	}
	m.httpDuration.WithLabelValues(route, method, strconv.Itoa(status)).Observe(seconds)
}
