package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollector_ObserveAPI(t *testing.T) {
	c := NewCollector("ehrdesk", prometheus.NewRegistry())

	c.ObserveAPI("patients.verify", http.MethodPost, 200, 10*time.Millisecond)
	c.ObserveAPI("patients.verify", http.MethodPost, 0, time.Millisecond)

	if got := testutil.ToFloat64(c.APIRequestsTotal.WithLabelValues("patients.verify", "POST", "200")); got != 1 {
		t.Errorf("expected 1 ok call, got %v", got)
	}
	if got := testutil.ToFloat64(c.APIRequestsTotal.WithLabelValues("patients.verify", "POST", "error")); got != 1 {
		t.Errorf("expected 1 transport failure, got %v", got)
	}
}

func TestCollector_NilSafe(t *testing.T) {
	var c *Collector
	c.ObserveAPI("x", "GET", 200, time.Second)
	c.TrackInFlight(1)
	c.SetBreakerState(2)
	c.PatientCreated()
	c.VisitCreated()
	c.SheetSaved("cardiac", "New entry")
	c.DocumentUploaded()
	c.StaleResponse("patient")
}

func TestCollector_MiddlewareAndHandler(t *testing.T) {
	c := NewCollector("ehrdesk", prometheus.NewRegistry())
	e := echo.New()
	e.Use(c.Middleware())
	e.GET("/desk/state", func(ctx echo.Context) error {
		return ctx.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest(http.MethodGet, "/desk/state", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if got := testutil.ToFloat64(c.DeskRequestsTotal.WithLabelValues("GET", "/desk/state", "200")); got != 1 {
		t.Errorf("expected 1 desk request, got %v", got)
	}

	mrec := httptest.NewRecorder()
	c.Handler().ServeHTTP(mrec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(mrec.Body.String(), "ehrdesk_desk_requests_total") {
		t.Error("expected desk counter in exposition output")
	}
}
