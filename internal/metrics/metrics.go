package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "medbook",
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	holdsPlaced = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "medbook",
			Name:      "holds_total",
			Help:      "PlaceHold outcomes by result.",
		},
		[]string{"result"},
	)

	transitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "medbook",
			Name:      "reservation_transitions_total",
			Help:      "Reservation status transitions by target status.",
		},
		[]string{"to"},
	)

	reconciled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "medbook",
			Name:      "reconciled_expirations_total",
			Help:      "Reservations moved to expired by the background sweep.",
		},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, holdsPlaced, transitions, reconciled)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

// IncHold records a PlaceHold outcome ("ok", "taken", "rejected").
func IncHold(result string) {
	holdsPlaced.WithLabelValues(result).Inc()
}

// IncTransition records a successful status transition.
func IncTransition(to string) {
	transitions.WithLabelValues(to).Inc()
}

// AddReconciled counts reservations expired by the sweep.
func AddReconciled(n int) {
	reconciled.Add(float64(n))
}
