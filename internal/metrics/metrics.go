// Package metrics exposes café counters and HTTP timings to Prometheus.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"cafe/internal/game"
)

const namespace = "cafe"

// Collector owns its registry so several servers (or tests) never share state.
// It satisfies game.Events.
type Collector struct {
	game.NopEvents

	registry *prometheus.Registry

	orders       *prometheus.CounterVec
	revenue      prometheus.Counter
	restockUnits prometheus.Counter
	restockSpend prometheus.Counter
	levelUps     *prometheus.CounterVec

	httpInFlight prometheus.Gauge
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

func NewCollector() *Collector {
	c := &Collector{registry: prometheus.NewRegistry()}

	c.orders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orders",
			Name:      "transitions_total",
			Help:      "Orders entering each status.",
		},
		[]string{"status"},
	)
	c.revenue = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "orders",
		Name:      "revenue_total",
		Help:      "Money credited by completed orders.",
	})
	c.restockUnits = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "inventory",
		Name:      "restocked_units_total",
		Help:      "Units bought through restocks.",
	})
	c.restockSpend = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "inventory",
		Name:      "restock_spend_total",
		Help:      "Money debited by restocks.",
	})
	c.levelUps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "players",
			Name:      "level_ups_total",
			Help:      "Level-ups by level reached.",
		},
		[]string{"level"},
	)

	c.httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "inflight_requests",
		Help:      "Current number of in-flight HTTP requests.",
	})
	c.httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "route", "status"},
	)
	c.httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "route"},
	)

	c.registry.MustRegister(
		c.orders,
		c.revenue,
		c.restockUnits,
		c.restockSpend,
		c.levelUps,
		c.httpInFlight,
		c.httpRequests,
		c.httpDuration,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
	return c
}

func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) OrderCreated(context.Context, int64, int64) {
	c.orders.WithLabelValues(string(game.StatusPending)).Inc()
}

func (c *Collector) OrderCompleted(_ context.Context, _, _ int64, revenue decimal.Decimal) {
	c.orders.WithLabelValues(string(game.StatusCompleted)).Inc()
	c.revenue.Add(revenue.InexactFloat64())
}

func (c *Collector) OrderCancelled(context.Context, int64, int64) {
	c.orders.WithLabelValues(string(game.StatusCancelled)).Inc()
}

func (c *Collector) Restocked(_ context.Context, _, _, qty int64, cost decimal.Decimal) {
	c.restockUnits.Add(float64(qty))
	c.restockSpend.Add(cost.InexactFloat64())
}

func (c *Collector) LevelUp(_ context.Context, _ string, level int) {
	c.levelUps.WithLabelValues(strconv.Itoa(level)).Inc()
}

// Middleware records request counts and latency, labelled by the chi route
// pattern so ids in paths do not explode cardinality.
func (c *Collector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		c.httpInFlight.Inc()
		defer c.httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		route := routePattern(r)
		method := strings.ToUpper(r.Method)
		c.httpRequests.WithLabelValues(method, route, strconv.Itoa(rec.status)).Inc()
		c.httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	})
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
