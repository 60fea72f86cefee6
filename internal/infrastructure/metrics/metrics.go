package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "storefront"

type Recorder struct {
	transitions         *prometheus.CounterVec
	stockInsufficient   prometheus.Counter
	gatewayCalls        *prometheus.CounterVec
	notificationsRaised *prometheus.CounterVec
	deliveryFailures    *prometheus.CounterVec
	httpRequests        *prometheus.CounterVec
	httpDuration        *prometheus.HistogramVec
}

func New(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_transitions_total",
			Help:      "Committed order phase transitions.",
		}, []string{"from", "to", "event"}),
		stockInsufficient: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stock_insufficient_total",
			Help:      "Operations refused because stock could not cover a line.",
		}),
		gatewayCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_calls_total",
			Help:      "Payment gateway calls by operation and outcome.",
		}, []string{"op", "outcome"}),
		notificationsRaised: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_raised_total",
			Help:      "Staff notifications raised, split by whether an open one already existed.",
		}, []string{"category", "deduplicated"}),
		deliveryFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "customer_notification_failures_total",
			Help:      "Customer notifications that could not be delivered.",
		}, []string{"kind"}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "route", "status"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// NewNop returns a recorder bound to a throwaway registry.
func NewNop() *Recorder {
	return New(prometheus.NewRegistry())
}

func (r *Recorder) Transition(from, to, event string) {
	r.transitions.WithLabelValues(from, to, event).Inc()
}

func (r *Recorder) StockInsufficient() {
	r.stockInsufficient.Inc()
}

func (r *Recorder) GatewayCall(op, outcome string) {
	r.gatewayCalls.WithLabelValues(op, outcome).Inc()
}

func (r *Recorder) NotificationRaised(category string, deduplicated bool) {
	r.notificationsRaised.WithLabelValues(category, strconv.FormatBool(deduplicated)).Inc()
}

func (r *Recorder) DeliveryFailure(kind string) {
	r.deliveryFailures.WithLabelValues(kind).Inc()
}

func (r *Recorder) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	r.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	r.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
