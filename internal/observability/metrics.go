package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Enrollments = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "faceid",
		Name:      "enrollments_total",
		Help:      "Enrollment attempts by furthest completed step",
	}, []string{"step"})

	LoginAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "faceid",
		Name:      "login_attempts_total",
		Help:      "Face login attempts by outcome",
	}, []string{"outcome"})

	ExtractDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "faceid",
		Name:      "extract_duration_seconds",
		Help:      "Duration of feature extraction stages",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
	}, []string{"stage"})

	DetectorRetries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "faceid",
		Name:      "detector_retries_total",
		Help:      "Times the high-recall detector pass was needed",
	})

	EmbeddingWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "faceid",
		Name:      "embedding_writes_total",
		Help:      "Embedding rows written by storage format",
	}, []string{"format"})

	AttendanceLogged = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "faceid",
		Name:      "attendance_logged_total",
		Help:      "Attendance entries written",
	})

	AttendanceSuppressed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "faceid",
		Name:      "attendance_suppressed_total",
		Help:      "Attendance events suppressed by the cooldown window",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "faceid",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "faceid",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket connections",
	})
)
