// Package obsprom adapts daqcore's Worker/Writer observer hooks onto
// Prometheus collectors and serves them over HTTP, grounded on
// phihos-haproxy-template-ingress-controller's pkg/metrics/server.go:
// an instance-scoped registry (never the global DefaultRegisterer),
// promhttp.HandlerFor, and context-driven graceful shutdown.
package obsprom

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fastdaq/daqcore/internal/interfaces"
)

// Observer implements interfaces.Observer by recording every event,
// drop, and queue-depth sample onto per-device Prometheus vectors.
type Observer struct {
	eventsTotal    *prometheus.CounterVec
	dropsTotal     *prometheus.CounterVec
	queueDepth     *prometheus.GaugeVec
	eventLatencyNs *prometheus.HistogramVec
}

// NewObserver creates an Observer and registers its collectors on
// registry. Callers own the registry's lifetime; pass
// prometheus.NewRegistry(), not prometheus.DefaultRegisterer, so the
// collectors are garbage collected when the owning run ends.
func NewObserver(registry *prometheus.Registry) *Observer {
	o := &Observer{
		eventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "daqcore",
			Name:      "events_total",
			Help:      "Events produced by a worker, by device and outcome.",
		}, []string{"device", "outcome"}),
		dropsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "daqcore",
			Name:      "drops_total",
			Help:      "Events or messages dropped, by device.",
		}, []string{"device"}),
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "daqcore",
			Name:      "queue_depth",
			Help:      "Most recently observed intake queue depth, by device.",
		}, []string{"device"}),
		eventLatencyNs: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "daqcore",
			Name:      "event_latency_ns",
			Help:      "End-to-end event latency in nanoseconds, by device.",
			Buckets:   prometheus.ExponentialBuckets(1000, 4, 8),
		}, []string{"device"}),
	}

	registry.MustRegister(o.eventsTotal, o.dropsTotal, o.queueDepth, o.eventLatencyNs)
	return o
}

// ObserveEvent implements interfaces.Observer.
func (o *Observer) ObserveEvent(device string, latencyNs uint64, success bool) {
	outcome := "ok"
	if !success {
		outcome = "error"
	}
	o.eventsTotal.WithLabelValues(device, outcome).Inc()
	if latencyNs > 0 {
		o.eventLatencyNs.WithLabelValues(device).Observe(float64(latencyNs))
	}
}

// ObserveDrop implements interfaces.Observer.
func (o *Observer) ObserveDrop(device string) {
	o.dropsTotal.WithLabelValues(device).Inc()
}

// ObserveQueueDepth implements interfaces.Observer.
func (o *Observer) ObserveQueueDepth(device string, depth uint32) {
	o.queueDepth.WithLabelValues(device).Set(float64(depth))
}

var _ interfaces.Observer = (*Observer)(nil)

// Server serves a Prometheus registry's collectors over HTTP: an
// instance-scoped registry, a /metrics endpoint, and graceful shutdown
// on context cancellation.
type Server struct {
	addr   string
	server *http.Server
}

// NewServer creates a metrics Server bound to addr, serving registry at
// /metrics.
func NewServer(addr string, registry *prometheus.Registry) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))

	return &Server{
		addr: addr,
		server: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadTimeout:       10 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
	}
}

// Start runs the HTTP server until ctx is cancelled, then shuts it down
// gracefully with a bounded timeout.
func (s *Server) Start(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("obsprom: server shutdown failed: %w", err)
		}
		return nil
	case err := <-serverErr:
		return fmt.Errorf("obsprom: server error: %w", err)
	}
}

// Addr returns the address the server listens on.
func (s *Server) Addr() string { return s.addr }
