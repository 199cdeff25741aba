package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors of the service. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	requestCount    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	circleEvents   *prometheus.CounterVec
	circleRejected *prometheus.CounterVec
	gameEvents     *prometheus.CounterVec
	sweepDuration  prometheus.Histogram
	sweepExpired   prometheus.Counter
	signalClients  prometheus.Gauge
	joinCodeRetry  prometheus.Counter
}

func New(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		registry: registry,
		requestCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		}, []string{"method", "route"}),
		circleEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "haven_circle_events_total",
			Help: "Circle lifecycle transitions by event",
		}, []string{"event"}),
		circleRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "haven_circle_rejections_total",
			Help: "Rejected circle operations by reason",
		}, []string{"reason"}),
		gameEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "haven_game_events_total",
			Help: "Game session operations by game type and event",
		}, []string{"game_type", "event"}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "haven_expiry_sweep_duration_seconds",
			Help:    "Duration of one expiry sweep",
			Buckets: prometheus.DefBuckets,
		}),
		sweepExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "haven_expiry_sweep_expired_total",
			Help: "Circles closed by the expiry sweep",
		}),
		signalClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "haven_signal_connections",
			Help: "Number of open signaling connections",
		}),
		joinCodeRetry: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "haven_join_code_collisions_total",
			Help: "Join code candidates rejected because they were taken",
		}),
	}

	registry.MustRegister(
		m.requestCount,
		m.requestDuration,
		m.circleEvents,
		m.circleRejected,
		m.gameEvents,
		m.sweepDuration,
		m.sweepExpired,
		m.signalClients,
		m.joinCodeRetry,
	)

	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requestCount.WithLabelValues(method, route, http.StatusText(status)).Inc()
	m.requestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func (m *Metrics) CircleEvent(event string) {
	if m == nil {
		return
	}
	m.circleEvents.WithLabelValues(event).Inc()
}

func (m *Metrics) CircleRejected(reason string) {
	if m == nil {
		return
	}
	m.circleRejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) GameEvent(gameType, event string) {
	if m == nil {
		return
	}
	m.gameEvents.WithLabelValues(gameType, event).Inc()
}

func (m *Metrics) Sweep(elapsed time.Duration, expired int) {
	if m == nil {
		return
	}
	m.sweepDuration.Observe(elapsed.Seconds())
	m.sweepExpired.Add(float64(expired))
}

func (m *Metrics) SignalConnected() {
	if m == nil {
		return
	}
	m.signalClients.Inc()
}

func (m *Metrics) SignalDisconnected() {
	if m == nil {
		return
	}
	m.signalClients.Dec()
}

func (m *Metrics) JoinCodeCollision() {
	if m == nil {
		return
	}
	m.joinCodeRetry.Inc()
}
