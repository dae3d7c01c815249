// Package metrics holds the Prometheus instruments for voxtrim. All metrics
// are registered with the default registry through promauto and prefixed
// with "voxtrim_".
//
// Mount promhttp.Handler() to expose them:
//
//	r.Handle("/metrics", promhttp.Handler())
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Job results used as the "result" label of JobsTotal.
const (
	ResultSuccess        = "success"
	ResultProbeError     = "probe_error"
	ResultTranscodeError = "transcode_error"
	ResultCancelled      = "cancelled"
)

// Job metrics
var (
	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voxtrim_jobs_total",
			Help: "Total number of transcode jobs by result",
		},
		[]string{"result"},
	)

	ProbeFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "voxtrim_probe_failures_total",
			Help: "Total number of failed ffprobe inspections",
		},
	)

	EncodeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "voxtrim_encode_duration_seconds",
			Help:    "Wall time spent in ffmpeg per job",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1200},
		},
		[]string{"profile"},
	)

	JobsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "voxtrim_jobs_in_flight",
			Help: "Number of jobs currently probing or encoding",
		},
	)

	OutputBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "voxtrim_output_bytes",
			Help:    "Size of produced artifacts in bytes",
			Buckets: prometheus.ExponentialBuckets(256*1024, 2, 10),
		},
	)
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voxtrim_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "voxtrim_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)
