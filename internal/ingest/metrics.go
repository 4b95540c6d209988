package ingest

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the Prometheus collectors of the ingest pipeline. A nil
// *Metrics records nothing.
type Metrics struct {
	gatherer prometheus.Gatherer

	Requests     *prometheus.CounterVec
	Observations *prometheus.CounterVec
	AreaLinks    prometheus.Counter
	Duration     prometheus.Histogram
}

// NewMetrics registers the ingest metrics against reg, defaulting to the
// global registry when nil. Registering twice returns the existing
// collectors.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	requests, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wxaloft_ingest_requests_total",
		Help: "Ingest requests handled, labeled by outcome.",
	}, []string{"outcome"}))
	if err != nil {
		return nil, err
	}
	observations, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wxaloft_observations_total",
		Help: "Decoded observations, labeled by what happened to them.",
	}, []string{"result"}))
	if err != nil {
		return nil, err
	}
	links, err := register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "wxaloft_area_links_total",
		Help: "Observation to area links created.",
	}))
	if err != nil {
		return nil, err
	}
	duration, err := register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "wxaloft_ingest_duration_seconds",
		Help:    "Ingest request latency in seconds.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}))
	if err != nil {
		return nil, err
	}

	return &Metrics{
		gatherer:     gatherer,
		Requests:     requests,
		Observations: observations,
		AreaLinks:    links,
		Duration:     duration,
	}, nil
}

// Handler exposes the registry the metrics were registered with.
func (m *Metrics) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if m != nil && m.gatherer != nil {
		gatherer = m.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) request(res Result, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(res.outcome()).Inc()
	m.Duration.Observe(elapsed.Seconds())
}

func (m *Metrics) tally(t Tally) {
	if m == nil {
		return
	}
	m.Observations.WithLabelValues("stored").Add(float64(t.Stored))
	m.Observations.WithLabelValues("duplicate").Add(float64(t.Duplicates))
	m.Observations.WithLabelValues("failed").Add(float64(t.Failed))
	m.Observations.WithLabelValues("incomplete").Add(float64(t.Incomplete))
	m.AreaLinks.Add(float64(t.Links))
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
			var zero C
			return zero, fmt.Errorf("collector already registered with incompatible type: %w", err)
		}
		var zero C
		return zero, err
	}
	return c, nil
}
