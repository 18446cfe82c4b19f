package service

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/scantrack/attendance-api/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation for the attendance
// pipeline.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	scansTotal      *prometheus.CounterVec
	reconcileRuns   prometheus.Counter
	absentMarked    prometheus.Counter
}

// NewMetricsService registers the collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	scansTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_scans_total",
		Help: "Accepted scans by resulting status",
	}, []string{"status"})

	reconcileRuns := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "attendance_reconcile_runs_total",
		Help: "Completed reconciliation passes over individual sessions",
	})

	absentMarked := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "attendance_absent_marked_total",
		Help: "Absence records written by reconciliation",
	})

	registry.MustRegister(requestDuration, requestTotal, scansTotal, reconcileRuns, absentMarked)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		scansTotal:      scansTotal,
		reconcileRuns:   reconcileRuns,
		absentMarked:    absentMarked,
	}
}

// Handler exposes the Prometheus scrape endpoint.
func (s *MetricsService) Handler() http.Handler {
	return s.handler
}

// Summary flattens the registered collectors into name -> value pairs so the
// admin UI can poll headline numbers without parsing the scrape format.
func (s *MetricsService) Summary() (map[string]float64, error) {
	families, err := s.registry.Gather()
	if err != nil {
		return nil, err
	}

	out := make(map[string]float64, len(families))
	for _, family := range families {
		var total float64
		for _, metric := range family.GetMetric() {
			switch {
			case metric.GetCounter() != nil:
				total += metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				total += metric.GetGauge().GetValue()
			case metric.GetHistogram() != nil:
				total += float64(metric.GetHistogram().GetSampleCount())
			}
		}
		out[family.GetName()] = total
	}
	return out, nil
}

// ObserveHTTPRequest records one handled request.
func (s *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	labels := []string{method, path, strconv.Itoa(status)}
	s.requestDuration.WithLabelValues(labels...).Observe(duration.Seconds())
	s.requestTotal.WithLabelValues(labels...).Inc()
}

// RecordScan counts one accepted scan by its classification.
func (s *MetricsService) RecordScan(status models.AttendanceStatus) {
	s.scansTotal.WithLabelValues(string(status)).Inc()
}

// RecordReconcile counts one reconciled session and its absent rows.
func (s *MetricsService) RecordReconcile(absentMarked int) {
	s.reconcileRuns.Inc()
	s.absentMarked.Add(float64(absentMarked))
}
