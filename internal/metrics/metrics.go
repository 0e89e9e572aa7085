// Package metrics provides Prometheus instrumentation for the matching engine.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// OrdersTotal counts accepted buy and sell requests.
	OrdersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vmbid_orders_total",
		Help: "Total number of buy and sell requests executed",
	}, []string{"side"})

	// OrderLatency tracks engine execution time per side.
	OrderLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vmbid_order_latency_seconds",
		Help:    "Order execution latency in seconds",
		Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
	}, []string{"side"})

	// VolumeAllocated counts units allocated to buyers, by the side that
	// triggered the match.
	VolumeAllocated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vmbid_volume_allocated_total",
		Help: "Cumulative volume allocated to buyers",
	}, []string{"side"})

	// VolumeQueued counts units that went into the bid book.
	VolumeQueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vmbid_volume_queued_total",
		Help: "Cumulative buy volume queued as bids",
	})

	// SupplyAvailable tracks the supply pool.
	SupplyAvailable = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vmbid_supply_available",
		Help: "Units sold but not yet allocated",
	})

	// OpenBidVolume tracks unfilled volume resting in the bid book.
	OpenBidVolume = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vmbid_open_bid_volume",
		Help: "Unfilled volume across all resting bids",
	})

	// JournalErrors counts fills that could not be recorded or published.
	JournalErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vmbid_journal_errors_total",
		Help: "Fill journal and publish failures",
	}, []string{"sink"})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vmbid_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vmbid_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vmbid_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		HTTPRequestsTotal.WithLabelValues(r.Method, routePattern(r), strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, routePattern(r)).Observe(duration)
	})
}

// routePattern labels by chi route pattern to keep cardinality bounded.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Hijack passes through to the wrapped writer so websocket upgrades work
// behind this middleware.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("metrics: response writer does not support hijacking")
	}
	return h.Hijack()
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
