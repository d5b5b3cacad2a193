// Package metrics exposes Prometheus collectors for ledger calls,
// transaction lifecycles, bus traffic and the HTTP surface.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/uhyunpark/objmarket/pkg/events"
	"github.com/uhyunpark/objmarket/pkg/txflow"
)

const defaultNamespace = "objmarket"

// Collector owns a private registry so several instances can coexist in tests.
type Collector struct {
	registry *prometheus.Registry

	rpcCalls    *prometheus.CounterVec
	rpcDuration *prometheus.HistogramVec

	lifecycles        *prometheus.CounterVec
	lifecycleDuration *prometheus.HistogramVec

	busPublishes *prometheus.CounterVec

	httpInFlight prometheus.Gauge
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

var _ txflow.Observer = (*Collector)(nil)

func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = defaultNamespace
	}
	c := &Collector{
		registry: prometheus.NewRegistry(),
		rpcCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ledger",
				Name:      "rpc_calls_total",
				Help:      "Ledger JSON-RPC calls by method and outcome.",
			},
			[]string{"method", "status"},
		),
		rpcDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "ledger",
				Name:      "rpc_duration_seconds",
				Help:      "Duration of ledger JSON-RPC calls.",
				Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
			},
			[]string{"method"},
		),
		lifecycles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "txflow",
				Name:      "lifecycles_total",
				Help:      "Finished transaction lifecycles by action, state and error kind.",
			},
			[]string{"action", "state", "kind"},
		),
		lifecycleDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "txflow",
				Name:      "lifecycle_duration_seconds",
				Help:      "Time from build to terminal state.",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
			},
			[]string{"action"},
		),
		busPublishes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "events",
				Name:      "publishes_total",
				Help:      "Refresh bus publishes by topic.",
			},
			[]string{"topic"},
		),
		httpInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "inflight_requests",
				Help:      "Current number of in-flight HTTP requests.",
			},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests handled.",
			},
			[]string{"method", "path", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Duration of HTTP requests.",
				Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
			},
			[]string{"method", "path"},
		),
	}
	c.registry.MustRegister(
		c.rpcCalls,
		c.rpcDuration,
		c.lifecycles,
		c.lifecycleDuration,
		c.busPublishes,
		c.httpInFlight,
		c.httpRequests,
		c.httpDuration,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
	return c
}

// Handler exposes the collector's registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ObserveRPC matches ledger.Options.Observe.
func (c *Collector) ObserveRPC(method string, took time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.rpcCalls.WithLabelValues(method, status).Inc()
	c.rpcDuration.WithLabelValues(method).Observe(took.Seconds())
}

// LifecycleFinished implements txflow.Observer.
func (c *Collector) LifecycleFinished(action txflow.ActionKind, state txflow.State, kind txflow.ErrorKind, took time.Duration) {
	if kind == "" {
		kind = "none"
	}
	if took <= 0 {
		took = time.Millisecond
	}
	c.lifecycles.WithLabelValues(string(action), string(state), string(kind)).Inc()
	c.lifecycleDuration.WithLabelValues(string(action)).Observe(took.Seconds())
}

// TapBus counts every publish on bus. The returned func detaches it.
func (c *Collector) TapBus(bus *events.Bus) func() {
	return bus.Tap(func(topic events.Topic) {
		c.busPublishes.WithLabelValues(string(topic)).Inc()
	})
}

// InstrumentHandler wraps next with HTTP metrics collection.
func (c *Collector) InstrumentHandler(next http.Handler) http.Handler {
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

		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)
		c.httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		c.httpDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack lets websocket upgrades pass through the recorder.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// canonicalPath collapses ids out of API paths to keep label cardinality bounded.
func canonicalPath(raw string) string {
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	if len(parts) < 3 || parts[0] != "api" {
		return "/" + parts[0]
	}
	switch parts[2] {
	case "accounts":
		if len(parts) >= 5 {
			return "/api/v1/accounts/:address/" + parts[4]
		}
		return "/api/v1/accounts"
	case "lifecycles":
		if len(parts) >= 4 {
			return "/api/v1/lifecycles/:id"
		}
	case "actions":
		if len(parts) >= 4 {
			return "/api/v1/actions/" + parts[3]
		}
	}
	return "/api/v1/" + parts[2]
}
