// Package metrics holds the Prometheus collectors of the live class engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "masomo_live"

var (
	MeetingRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "meeting_provider_requests_total",
		Help:      "Calls to the meeting provider by operation and outcome.",
	}, []string{"op", "outcome"})

	MeetingRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "meeting_provider_request_duration_seconds",
		Help:      "Duration of calls to the meeting provider, retries included.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"op"})

	PaymentOrders = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "payment_orders_total",
		Help:      "Checkout orders opened with the payment provider by payment type and outcome.",
	}, []string{"type", "outcome"})

	PaymentVerifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "payment_verifications_total",
		Help:      "Payment signature checks by result.",
	}, []string{"result"})

	SubscriptionsExpired = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "subscriptions_expired_total",
		Help:      "Subscriptions moved to EXPIRED by the sweeper.",
	})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "API requests by route, method and status code.",
	}, []string{"route", "method", "code"})
)

// Outcome labels a call result.
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func Handler() http.Handler {
	return promhttp.Handler()
}
