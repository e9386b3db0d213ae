package monitoring

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

var (
	orderTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "order_transitions_total",
			Help: "Total order lifecycle transitions",
		},
		[]string{"event_id", "to"},
	)

	registrationsFinalized = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "registrations_finalized_total",
			Help: "Total finalized registrations",
		},
		[]string{"event_id", "path", "status"},
	)

	gatewayDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "payment_gateway_duration_seconds",
			Help:    "Duration of payment gateway calls",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
		},
		[]string{"operation"},
	)

	pendingOrders = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pending_orders_total",
			Help: "Current number of pending orders",
		},
	)

	goroutineCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "active_goroutines_total",
			Help: "Current number of active goroutines",
		},
	)
)

type Monitor struct {
	redis *redis.Client
}

func NewMonitor(redisClient *redis.Client) *Monitor {
	monitor := &Monitor{redis: redisClient}

	// Start metrics collection
	go monitor.collectMetrics()

	return monitor
}

func (m *Monitor) collectMetrics() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		ctx := context.Background()
		m.collectPendingOrders(ctx)
		goroutineCount.Set(float64(runtime.NumGoroutine()))
	}
}

func (m *Monitor) collectPendingOrders(ctx context.Context) {
	keys, _ := m.redis.Keys(ctx, "orders:pending:*").Result()
	pendingOrders.Set(float64(len(keys)))
}

// TrackOrderTransition records an order entering a lifecycle state.
func (m *Monitor) TrackOrderTransition(eventID, to string) {
	orderTransitions.WithLabelValues(eventID, to).Inc()
}

// TrackRegistration records a finalized registration by path and status.
func (m *Monitor) TrackRegistration(eventID, path, status string) {
	registrationsFinalized.WithLabelValues(eventID, path, status).Inc()
}

// TrackGatewayCall records the latency of a payment gateway call.
func (m *Monitor) TrackGatewayCall(operation string, duration time.Duration) {
	gatewayDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
