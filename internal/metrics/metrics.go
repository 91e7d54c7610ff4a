package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "medcare"

// Collector holds the service's prometheus instruments. A nil *Collector is
// valid and records nothing.
type Collector struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	bookingsTotal    *prometheus.CounterVec
	bookingDuration  prometheus.Histogram
	lockContention   prometheus.Counter
	availabilityReqs *prometheus.CounterVec
	statusSyncs      *prometheus.CounterVec
}

func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method, route, and status code.",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency distribution.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"method", "route"}),
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduling",
			Name:      "bookings_total",
			Help:      "Slot booking attempts by outcome (booked, validation, not_found, conflict, error).",
		}, []string{"outcome"}),
		bookingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scheduling",
			Name:      "booking_duration_seconds",
			Help:      "Time spent validating and committing a booking.",
			Buckets:   prometheus.DefBuckets,
		}),
		lockContention: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduling",
			Name:      "slot_lock_contention_total",
			Help:      "Bookings rejected because the slot lock stayed busy.",
		}),
		availabilityReqs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduling",
			Name:      "availability_lookups_total",
			Help:      "Availability lookups by kind (day, week, slot).",
		}, []string{"kind"}),
		statusSyncs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduling",
			Name:      "status_syncs_total",
			Help:      "Appointment status reconciliations by result (completed, unchanged).",
		}, []string{"result"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		c.requestsTotal,
		c.requestDuration,
		c.bookingsTotal,
		c.bookingDuration,
		c.lockContention,
		c.availabilityReqs,
		c.statusSyncs,
	)
	return c
}

func (c *Collector) ObserveHTTP(method, route string, status int, d time.Duration) {
	if c == nil {
		return
	}
	c.requestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.requestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func (c *Collector) ObserveBooking(outcome string, d time.Duration) {
	if c == nil {
		return
	}
	c.bookingsTotal.WithLabelValues(outcome).Inc()
	c.bookingDuration.Observe(d.Seconds())
}

func (c *Collector) ObserveLockContention() {
	if c == nil {
		return
	}
	c.lockContention.Inc()
}

func (c *Collector) ObserveAvailability(kind string) {
	if c == nil {
		return
	}
	c.availabilityReqs.WithLabelValues(kind).Inc()
}

func (c *Collector) ObserveStatusSync(result string) {
	if c == nil {
		return
	}
	c.statusSyncs.WithLabelValues(result).Inc()
}

// Handler exposes the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
