package metrics

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Namespace prefixes every metric of the service.
const Namespace = "remindr"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "http_requests_total",
			Help:      "Count of API requests by route and status code.",
		},
		[]string{"route", "code"},
	)

	authAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "auth_attempts_total",
			Help:      "Count of login and registration attempts by outcome.",
		},
		[]string{"action", "outcome"},
	)
)

// Register registers metrics on the default registry (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, authAttempts)
	})
}

func IncHTTP(route string, code int) {
	httpRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

func IncAuthAttempt(action, outcome string) {
	authAttempts.WithLabelValues(action, outcome).Inc()
}
