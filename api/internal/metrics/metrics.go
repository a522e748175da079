// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"truewater/api/internal/sample"
)

var (
	PipelineRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "truewater_pipeline_runs_total",
		Help: "Analysis pipelines by outcome (ok or error kind)",
	}, []string{"result"})

	PipelineDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "truewater_pipeline_duration_seconds",
		Help:    "Wall time from submission to durable record or failure",
		Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 80},
	})

	PipelinesInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "truewater_pipelines_in_flight",
		Help: "Analysis pipelines currently running",
	})

	Rejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "truewater_submissions_rejected_total",
		Help: "Submissions rejected before a pipeline started",
	}, []string{"reason"})

	GatewayDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "truewater_gateway_duration_seconds",
		Help:    "Latency of remote calls (classify, explain, summarize, image, store)",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})

	GatewayErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "truewater_gateway_errors_total",
		Help: "Failed remote calls by operation and error kind",
	}, []string{"op", "kind"})
)

// ObserveGateway records one remote call started at start.
func ObserveGateway(op string, start time.Time, err error) {
	GatewayDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		GatewayErrors.WithLabelValues(op, sample.Kind(err)).Inc()
	}
}

// ObservePipeline records a finished pipeline.
func ObservePipeline(start time.Time, err error) {
	PipelineDuration.Observe(time.Since(start).Seconds())
	PipelineRuns.WithLabelValues(sample.Kind(err)).Inc()
}

func Handler() http.Handler { return promhttp.Handler() }
