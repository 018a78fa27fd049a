package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reprompt_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "reprompt_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	SearchRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reprompt_search_runs_total",
		Help: "Finished search runs by outcome",
	}, []string{"outcome"})

	SearchRunsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "reprompt_search_runs_active",
		Help: "Number of search runs in progress",
	})

	SearchIterationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reprompt_search_iterations_total",
		Help: "Completed search iterations across all runs",
	})

	StreamTicksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reprompt_stream_ticks_total",
		Help: "Stream ticks by outcome",
	}, []string{"outcome"})

	SimilarityScore = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "reprompt_similarity_score",
		Help:    "Similarity scores of generated images",
		Buckets: prometheus.LinearBuckets(0, 0.1, 11),
	})

	GenerativeCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "reprompt_generative_call_duration_seconds",
		Help:    "Generative service call duration",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
	}, []string{"op"})
)
