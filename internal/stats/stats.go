package stats

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace = "campus_connect"
	// names with this suffix are registered as counters
	counterSuffix = "_total"
)

type StatsProvider interface {
	Incr(name string)
	Decr(name string)
	RegisterMetric(name string)
}

type StatsUpdater struct {
	registry *prometheus.Registry
	mu       sync.RWMutex
	gauges   map[string]prometheus.Gauge
	counters map[string]prometheus.Counter
}

// NewStatsUpdater creates a stats updater and exposes its registry on
// GET /metrics.
func NewStatsUpdater(mux *http.ServeMux) *StatsUpdater {
	su := &StatsUpdater{
		registry: prometheus.NewRegistry(),
		gauges:   make(map[string]prometheus.Gauge),
		counters: make(map[string]prometheus.Counter),
	}
	su.initializeMetrics()
	mux.Handle("GET /metrics", promhttp.HandlerFor(su.registry, promhttp.HandlerOpts{}))

	return su
}

func (su *StatsUpdater) initializeMetrics() {
	startTime := time.Now()
	su.registry.MustRegister(
		collectors.NewGoCollector(),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Seconds since the process started.",
		}, func() float64 {
			return time.Since(startTime).Seconds()
		}),
	)
}

func (su *StatsUpdater) Incr(name string) {
	su.mu.RLock()
	c, isCounter := su.counters[name]
	g, isGauge := su.gauges[name]
	su.mu.RUnlock()

	switch {
	case isCounter:
		c.Inc()
	case isGauge:
		g.Inc()
	default:
		panic("metric not found: " + name)
	}
}

// Decr panics for counters, which only go up.
func (su *StatsUpdater) Decr(name string) {
	su.mu.RLock()
	_, isCounter := su.counters[name]
	g, isGauge := su.gauges[name]
	su.mu.RUnlock()

	switch {
	case isCounter:
		panic("cannot decrement counter: " + name)
	case isGauge:
		g.Dec()
	default:
		panic("metric not found: " + name)
	}
}

// RegisterMetric registers a metric under the campus_connect namespace. A
// name ending in _total becomes a counter, anything else a gauge.
// Registering the same name twice is a no-op.
func (su *StatsUpdater) RegisterMetric(name string) {
	su.mu.Lock()
	defer su.mu.Unlock()

	if _, ok := su.gauges[name]; ok {
		return
	}
	if _, ok := su.counters[name]; ok {
		return
	}

	if strings.HasSuffix(name, counterSuffix) {
		c := prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      name,
		})
		su.registry.MustRegister(c)
		su.counters[name] = c
		return
	}

	g := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
	})
	su.registry.MustRegister(g)
	su.gauges[name] = g
}
