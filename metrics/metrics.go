package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "wakeproxy"

// Registry holds every wakeproxy collector. It is private to the process so
// tests and embedders never collide with the global default registry.
var Registry = prometheus.NewRegistry()

var (
	proxiedResponses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "proxied_responses_total",
			Help:      "Backend responses forwarded to clients, by route and status class.",
		},
		[]string{"route", "class"},
	)
	unavailableResponses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unavailable_responses_total",
			Help:      "503 responses generated by the proxy, by route and reason.",
		},
		[]string{"route", "reason"},
	)
	wakeAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wake_attempts_total",
			Help:      "Wake orchestrator results, by route and outcome.",
		},
		[]string{"route", "outcome"},
	)
	wakeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "wake_duration_seconds",
			Help:      "Time from the start of a wake attempt until the backend was ready or the attempt failed.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 45, 60, 90},
		},
		[]string{"route"},
	)
	idleStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "idle_stops_total",
			Help:      "Stop calls issued by the idle monitor, by route and result.",
		},
		[]string{"route", "result"},
	)
)

var registerMetrics sync.Once

// Register adds all collectors to Registry. Safe to call more than once.
func Register() {
	registerMetrics.Do(func() {
		Registry.MustRegister(proxiedResponses)
		Registry.MustRegister(unavailableResponses)
		Registry.MustRegister(wakeAttempts)
		Registry.MustRegister(wakeDuration)
		Registry.MustRegister(idleStops)
	})
}

// Handler serves Registry in the Prometheus exposition format.
func Handler() http.Handler {
	Register()
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// RecordProxiedResponse counts a forwarded backend response.
func RecordProxiedResponse(route string, status int) {
	proxiedResponses.WithLabelValues(route, strconv.Itoa(status/100)+"xx").Inc()
}

// RecordUnavailable counts a 503 produced by the proxy itself.
func RecordUnavailable(route, reason string) {
	unavailableResponses.WithLabelValues(route, reason).Inc()
}

// RecordWake counts a wake outcome and, for attempts that did real work, its duration.
func RecordWake(route, outcome string, elapsed time.Duration) {
	wakeAttempts.WithLabelValues(route, outcome).Inc()
	if elapsed > 0 {
		wakeDuration.WithLabelValues(route).Observe(elapsed.Seconds())
	}
}

// RecordIdleStop counts a stop issued by the idle monitor.
func RecordIdleStop(route string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	idleStops.WithLabelValues(route, result).Inc()
}
