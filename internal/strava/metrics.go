package strava

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	apiRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stridesync",
		Subsystem: "strava",
		Name:      "api_requests_total",
		Help:      "Provider API requests by endpoint and HTTP status.",
	}, []string{"endpoint", "status"})

	rateLimitWaitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "stridesync",
		Subsystem: "strava",
		Name:      "rate_limit_waits_total",
		Help:      "Number of sleeps taken while honoring provider rate limits.",
	})
)

func init() {
	prometheus.MustRegister(apiRequestsTotal, rateLimitWaitsTotal)
}

func recordRequest(endpoint string, status int) {
	apiRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
}

func recordRateLimitWait() {
	rateLimitWaitsTotal.Inc()
}
