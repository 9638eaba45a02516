// Package metrics exports ingestion and reconcile counters to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "photoline"

// Recorder receives pipeline observations.
type Recorder interface {
	ObserveStage(stage string, elapsed time.Duration)
	IncRequest(outcome, code string)
	ObserveUploadBytes(n int64)
	IncReconcile(result string)
}

// Noop implements Recorder without emitting anything.
type Noop struct{}

func (Noop) ObserveStage(string, time.Duration) {}
func (Noop) IncRequest(string, string)          {}
func (Noop) ObserveUploadBytes(int64)           {}
func (Noop) IncReconcile(string)                {}

// Prom implements Recorder on a private registry.
type Prom struct {
	registry    *prometheus.Registry
	requests    *prometheus.CounterVec
	stages      *prometheus.HistogramVec
	uploadBytes prometheus.Histogram
	reconcile   *prometheus.CounterVec
}

// NewProm builds a Recorder with its own registry, including Go runtime and
// process collectors.
func NewProm() *Prom {
	p := &Prom{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_requests_total",
			Help:      "Image submissions by outcome and error code.",
		}, []string{"outcome", "code"}),
		stages: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingest_stage_seconds",
			Help:      "Time spent in each ingestion stage.",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"stage"}),
		uploadBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upload_bytes",
			Help:      "Size of objects written to storage.",
			Buckets:   prometheus.ExponentialBuckets(64<<10, 2, 9),
		}),
		reconcile: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_rows_total",
			Help:      "Pending rows settled by the reconcile sweep.",
		}, []string{"result"}),
	}
	p.registry.MustRegister(
		p.requests,
		p.stages,
		p.uploadBytes,
		p.reconcile,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return p
}

func (p *Prom) ObserveStage(stage string, elapsed time.Duration) {
	p.stages.WithLabelValues(stage).Observe(elapsed.Seconds())
}

func (p *Prom) IncRequest(outcome, code string) {
	p.requests.WithLabelValues(outcome, code).Inc()
}

func (p *Prom) ObserveUploadBytes(n int64) {
	p.uploadBytes.Observe(float64(n))
}

func (p *Prom) IncReconcile(result string) {
	p.reconcile.WithLabelValues(result).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (p *Prom) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}
