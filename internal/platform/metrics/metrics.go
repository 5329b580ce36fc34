// Package metrics holds the Prometheus collectors for the workstation: outbound
// calls to the EHR API, the local desk HTTP surface, and a few clinical
// counters.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	APIRequestsTotal   *prometheus.CounterVec
	APIRequestDuration *prometheus.HistogramVec
	APIInFlight        prometheus.Gauge
	BreakerState       prometheus.Gauge

	DeskRequestsTotal   *prometheus.CounterVec
	DeskRequestDuration *prometheus.HistogramVec

	PatientsCreatedTotal   prometheus.Counter
	VisitsCreatedTotal     prometheus.Counter
	SheetsSavedTotal       *prometheus.CounterVec
	DocumentsUploadedTotal prometheus.Counter
	StaleResponsesTotal    *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// NewCollector registers every collector on reg. Pass prometheus.NewRegistry()
// in tests so repeated construction does not collide on the default registry.
func NewCollector(namespace string, reg *prometheus.Registry) *Collector {
	f := promauto.With(reg)
	return &Collector{
		APIRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "Calls to the EHR API by logical endpoint, method, and status code.",
		}, []string{"endpoint", "method", "status"}),

		APIRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "request_duration_seconds",
			Help:      "EHR API call latency distribution.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"endpoint", "method"}),

		APIInFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "in_flight_requests",
			Help:      "Current number of in-flight EHR API calls.",
		}),

		BreakerState: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "breaker_state",
			Help:      "Circuit breaker state: 0 closed, 1 half-open, 2 open.",
		}),

		DeskRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "desk",
			Name:      "requests_total",
			Help:      "Requests to the local desk surface by method, route, and status code.",
		}, []string{"method", "route", "status"}),

		DeskRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "desk",
			Name:      "request_duration_seconds",
			Help:      "Desk request latency distribution.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),

		PatientsCreatedTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "clinical",
			Name:      "patients_created_total",
			Help:      "Patients created from this workstation.",
		}),

		VisitsCreatedTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "clinical",
			Name:      "visits_created_total",
			Help:      "Visits provisioned from this workstation.",
		}),

		SheetsSavedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "clinical",
			Name:      "sheets_saved_total",
			Help:      "Examination sheet saves by sheet type and edit reason.",
		}, []string{"sheet_type", "edit_reason"}),

		DocumentsUploadedTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "clinical",
			Name:      "documents_uploaded_total",
			Help:      "Documents uploaded from this workstation.",
		}),

		StaleResponsesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "desk",
			Name:      "stale_responses_total",
			Help:      "API responses dropped because a newer request superseded them.",
		}, []string{"operation"}),

		gatherer: reg,
	}
}

// Handler exposes the collector's registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}

// Middleware records desk request counts and latency by route pattern.
func (c *Collector) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			start := time.Now()
			err := next(ctx)

			status := ctx.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			route := ctx.Path()
			method := ctx.Request().Method
			c.DeskRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
			c.DeskRequestDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// The helpers below are nil-safe so callers can run without metrics.

func (c *Collector) ObserveAPI(endpoint, method string, status int, d time.Duration) {
	if c == nil {
		return
	}
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	c.APIRequestsTotal.WithLabelValues(endpoint, method, label).Inc()
	c.APIRequestDuration.WithLabelValues(endpoint, method).Observe(d.Seconds())
}

func (c *Collector) TrackInFlight(delta float64) {
	if c == nil {
		return
	}
	c.APIInFlight.Add(delta)
}

func (c *Collector) SetBreakerState(state int) {
	if c == nil {
		return
	}
	c.BreakerState.Set(float64(state))
}

func (c *Collector) PatientCreated() {
	if c == nil {
		return
	}
	c.PatientsCreatedTotal.Inc()
}

func (c *Collector) VisitCreated() {
	if c == nil {
		return
	}
	c.VisitsCreatedTotal.Inc()
}

func (c *Collector) SheetSaved(sheetType, editReason string) {
	if c == nil {
		return
	}
	c.SheetsSavedTotal.WithLabelValues(sheetType, editReason).Inc()
}

func (c *Collector) DocumentUploaded() {
	if c == nil {
		return
	}
	c.DocumentsUploadedTotal.Inc()
}

func (c *Collector) StaleResponse(operation string) {
	if c == nil {
		return
	}
	c.StaleResponsesTotal.WithLabelValues(operation).Inc()
}
