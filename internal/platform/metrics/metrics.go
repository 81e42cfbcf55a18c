// Package metrics exposes Prometheus metrics for HTTP traffic and sync
// outcomes. Sync outcomes are fed by subscribing the Recorder to the sync
// event stream, so the pipeline itself carries no metrics code.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/healthflow/fhirsync/internal/platform/events"
)

const namespace = "fhirsync"

// Recorder owns a registry and the collectors registered on it.
type Recorder struct {
	registry *prometheus.Registry

	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
	httpInFlight   prometheus.Gauge
	subjectSyncs   *prometheus.CounterVec
	resourcesTotal prometheus.Counter
	bulkSyncs      *prometheus.CounterVec
}

func New() *Recorder {
	reg := prometheus.NewRegistry()
	r := &Recorder{
		registry: reg,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "status_code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and route.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 300},
		}, []string{"method", "route"}),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_requests_in_flight",
			Help:      "HTTP requests currently being served.",
		}),
		subjectSyncs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subject_syncs_total",
			Help:      "Subject syncs by outcome and failure reason.",
		}, []string{"outcome", "reason"}),
		resourcesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resources_synced_total",
			Help:      "Resources upserted by successful subject syncs.",
		}),
		bulkSyncs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bulk_syncs_total",
			Help:      "Completed bulk syncs by status.",
		}, []string{"status"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.httpRequests,
		r.httpDuration,
		r.httpInFlight,
		r.subjectSyncs,
		r.resourcesTotal,
		r.bulkSyncs,
	)
	return r
}

// Registry returns the registry, for registering extra collectors.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Publish implements events.Publisher.
func (r *Recorder) Publish(_ context.Context, e events.Event) error {
	switch e.Type {
	case events.TypeSubjectSynced:
		r.subjectSyncs.WithLabelValues("synced", "").Inc()
		r.resourcesTotal.Add(float64(e.ResourceCount))
	case events.TypeSubjectFailed:
		r.subjectSyncs.WithLabelValues("failed", e.Reason).Inc()
	case events.TypeBulkCompleted:
		r.bulkSyncs.WithLabelValues(e.Status).Inc()
	}
	return nil
}

// Middleware records request count, latency and in-flight requests. Routes
// are labelled by their pattern, never the raw path.
func (r *Recorder) Middleware(skipPrefixes ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			path := c.Request().URL.Path
			for _, p := range skipPrefixes {
				if len(path) >= len(p) && path[:len(p)] == p {
					return next(c)
				}
			}

			r.httpInFlight.Inc()
			start := time.Now()
			err := next(c)
			r.httpInFlight.Dec()

			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			method := c.Request().Method

			r.httpRequests.WithLabelValues(method, route, strconv.Itoa(statusCode(c, err))).Inc()
			r.httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// statusCode is the status the client will see once err is handled.
func statusCode(c echo.Context, err error) int {
	if err == nil || c.Response().Committed {
		return c.Response().Status
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return http.StatusInternalServerError
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{}))
}

func (r *Recorder) RegisterRoutes(e *echo.Echo) {
	e.GET("/metrics", r.Handler())
}
