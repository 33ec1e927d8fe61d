package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the gateway.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	parcelsLogged   *prometheus.CounterVec
	parcelsMoved    prometheus.Counter
	archiveSweeps   prometheus.Counter
	archivedTotal   prometheus.Counter
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	exportJobs      *prometheus.CounterVec
}

// NewMetricsService registers the core Prometheus collectors.
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

	parcelsLogged := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "parcels_logged_total",
		Help: "Total parcels logged, by delivery destination",
	}, []string{"destination"})

	parcelsMoved := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "parcels_reassigned_total",
		Help: "Total parcels moved between drivers",
	})

	archiveSweeps := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "archive_sweeps_total",
		Help: "Total archive sweep executions",
	})

	archivedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "parcels_archived_total",
		Help: "Total parcels moved to the archive",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	exportJobs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "export_jobs_total",
		Help: "Total export jobs, by terminal status",
	}, []string{"status"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, parcelsLogged, parcelsMoved,
		archiveSweeps, archivedTotal, cacheHits, cacheMisses, exportJobs, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		parcelsLogged:   parcelsLogged,
		parcelsMoved:    parcelsMoved,
		archiveSweeps:   archiveSweeps,
		archivedTotal:   archivedTotal,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
		exportJobs:      exportJobs,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordParcelLogged counts a new intake.
func (m *MetricsService) RecordParcelLogged(destination string) {
	if m == nil {
		return
	}
	m.parcelsLogged.WithLabelValues(destination).Inc()
}

// RecordReassignments counts parcels moved between drivers.
func (m *MetricsService) RecordReassignments(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.parcelsMoved.Add(float64(count))
}

// RecordArchiveSweep counts one sweep and the parcels it archived.
func (m *MetricsService) RecordArchiveSweep(archived int64) {
	if m == nil {
		return
	}
	m.archiveSweeps.Inc()
	if archived > 0 {
		m.archivedTotal.Add(float64(archived))
	}
}

// RecordCacheOperation counts a cache hit or miss.
func (m *MetricsService) RecordCacheOperation(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.cacheHits.Inc()
	} else {
		m.cacheMisses.Inc()
	}
}

// RecordExportJob counts a terminal export job state.
func (m *MetricsService) RecordExportJob(status string) {
	if m == nil {
		return
	}
	m.exportJobs.WithLabelValues(status).Inc()
}
