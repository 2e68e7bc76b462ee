// Package metrics exposes prometheus metrics for the graph engine.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Registry holds every metric. A nil *Registry records nothing.
type Registry struct {
	registry *prometheus.Registry

	GraphNodes *prometheus.GaugeVec
	GraphEdges *prometheus.GaugeVec

	PropagationsTotal *prometheus.CounterVec

	PersistenceOperationsTotal   *prometheus.CounterVec
	PersistenceOperationDuration *prometheus.HistogramVec

	TransportMessagesTotal *prometheus.CounterVec

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

var (
	defaultRegistry *Registry
	once            sync.Once
)

// DefaultRegistry returns the process-wide registry.
func DefaultRegistry() *Registry {
	once.Do(func() {
		defaultRegistry = NewRegistry()
	})

	return defaultRegistry
}

func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &Registry{registry: reg}
	factory := promauto.With(reg)

	r.GraphNodes = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "nodegraph_graph_nodes",
			Help: "Number of nodes in a session graph",
		},
		[]string{"session"},
	)

	r.GraphEdges = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "nodegraph_graph_edges",
			Help: "Number of edges in a session graph",
		},
		[]string{"session"},
	)

	r.PropagationsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nodegraph_propagations_total",
			Help: "Parameter value writes by outcome",
		},
		[]string{"outcome"},
	)

	r.PersistenceOperationsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nodegraph_persistence_operations_total",
			Help: "Persistence gateway calls",
		},
		[]string{"operation", "status"},
	)

	r.PersistenceOperationDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nodegraph_persistence_operation_duration_seconds",
			Help:    "Persistence gateway call duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
		},
		[]string{"operation"},
	)

	r.TransportMessagesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nodegraph_transport_messages_total",
			Help: "Messages received from the execution service by type",
		},
		[]string{"type"},
	)

	r.HTTPRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nodegraph_http_requests_total",
			Help: "HTTP requests served",
		},
		[]string{"method", "route", "status"},
	)

	r.HTTPRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nodegraph_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	return r
}

// Gatherer returns the underlying prometheus registry.
func (r *Registry) Gatherer() *prometheus.Registry {
	return r.registry
}

func (r *Registry) SetGraphSize(session string, nodes, edges int) {
	if r == nil {
		return
	}

	r.GraphNodes.WithLabelValues(session).Set(float64(nodes))
	r.GraphEdges.WithLabelValues(session).Set(float64(edges))
}

// ForgetSession drops the gauges of a closed session.
func (r *Registry) ForgetSession(session string) {
	if r == nil {
		return
	}

	r.GraphNodes.DeleteLabelValues(session)
	r.GraphEdges.DeleteLabelValues(session)
}

func (r *Registry) RecordPropagation(outcome string) {
	if r == nil {
		return
	}

	r.PropagationsTotal.WithLabelValues(outcome).Inc()
}

func (r *Registry) RecordPersistence(operation string, err error, duration time.Duration) {
	if r == nil {
		return
	}

	status := StatusSuccess
	if err != nil {
		status = StatusError
	}

	r.PersistenceOperationsTotal.WithLabelValues(operation, status).Inc()
	r.PersistenceOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func (r *Registry) RecordMessage(messageType string) {
	if r == nil {
		return
	}

	r.TransportMessagesTotal.WithLabelValues(messageType).Inc()
}

func (r *Registry) RecordHTTPRequest(method, route, status string, duration time.Duration) {
	if r == nil {
		return
	}

	r.HTTPRequestsTotal.WithLabelValues(method, route, status).Inc()
	r.HTTPRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
