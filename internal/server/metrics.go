package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "planscan_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "planscan_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// Analysis job metrics
	analyzeJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "planscan_analyze_jobs_total",
			Help: "Total number of analysis jobs by terminal status",
		},
		[]string{"status"}, // status: completed, failed
	)

	analyzeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "planscan_analyze_duration_seconds",
			Help:    "Document analysis duration in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1200},
		},
	)

	pagesProcessedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "planscan_pages_processed_total",
			Help: "Total number of drawing pages analyzed",
		},
	)

	devicesDetected = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "planscan_devices_detected",
			Help:    "Number of devices detected per document",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
	)

	// File upload metrics
	uploadSizeBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "planscan_upload_size_bytes",
			Help:    "Size of uploaded files in bytes",
			Buckets: []float64{1024, 100 * 1024, 1024 * 1024, 10 * 1024 * 1024, 50 * 1024 * 1024, 100 * 1024 * 1024, 200 * 1024 * 1024},
		},
	)

	// WebSocket metrics
	websocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "planscan_websocket_active_connections",
			Help: "Number of active WebSocket connections",
		},
	)

	websocketMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "planscan_websocket_messages_total",
			Help: "Total number of WebSocket messages",
		},
		[]string{"direction"}, // direction: sent, received
	)
)
