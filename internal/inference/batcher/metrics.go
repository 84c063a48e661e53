package batcher

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batcher_requests_total",
			Help: "Total embedding requests by outcome",
		},
		[]string{"status"},
	)

	batchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "batcher_batch_size",
			Help:    "Number of requests coalesced per batch",
			Buckets: []float64{1, 2, 4, 8, 16, 32, 64, 128},
		},
	)

	requestLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "batcher_request_latency_seconds",
			Help:    "End-to-end request latency through the batcher",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		},
	)

	batchWaitTime = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "batcher_batch_wait_time_seconds",
			Help:    "Time from first request arrival to batch dispatch",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1},
		},
	)

	inferenceTime = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "batcher_inference_time_seconds",
			Help:    "Model forward pass duration per batch",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
		},
	)

	queueSizeGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "batcher_queue_size",
			Help: "Requests currently waiting in the batching queue",
		},
	)

	inflightBatches = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "batcher_inflight_batches",
			Help: "Batches currently executing in the model",
		},
	)
)
