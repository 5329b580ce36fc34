package apiclient

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/ehr/desk/internal/platform/metrics"
)

func newTestClient(t *testing.T, h http.Handler, breaker BreakerSettings) (*Client, *metrics.Collector) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	m := metrics.NewCollector("test", prometheus.NewRegistry())
	c, err := New(Options{
		BaseURL: srv.URL + "/api/",
		Timeout: 5 * time.Second,
		Logger:  zerolog.Nop(),
		Metrics: m,
		Breaker: breaker,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c, m
}

func TestNew_RejectsRelativeURL(t *testing.T) {
	if _, err := New(Options{BaseURL: "/api"}); err == nil {
		t.Fatal("expected error for relative base url")
	}
}

func TestClient_BaseURLAndOrigin(t *testing.T) {
	c, err := New(Options{BaseURL: "http://localhost:5000/api/"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if c.BaseURL() != "http://localhost:5000/api" {
		t.Errorf("BaseURL = %q", c.BaseURL())
	}
	if c.Origin() != "http://localhost:5000" {
		t.Errorf("Origin = %q", c.Origin())
	}
}

func TestClient_GetDecodesJSON(t *testing.T) {
	var gotPath, gotQuery, gotRID string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotRID = r.Header.Get(RequestIDHeader)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"name":"Jane"}`)
	}), BreakerSettings{})

	var out struct {
		Name string `json:"name"`
	}
	err := c.Get(context.Background(), "patient.get", "/patients/7", url.Values{"visit_id": {"3"}}, &out)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Name != "Jane" {
		t.Errorf("expected Jane, got %q", out.Name)
	}
	if gotPath != "/api/patients/7" {
		t.Errorf("expected /api/patients/7, got %s", gotPath)
	}
	if gotQuery != "visit_id=3" {
		t.Errorf("expected visit_id=3, got %s", gotQuery)
	}
	if gotRID == "" {
		t.Error("expected X-Request-ID header")
	}
}

func TestClient_PostSendsJSON(t *testing.T) {
	var gotType, gotBody string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotType = r.Header.Get("Content-Type")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"id":12}`)
	}), BreakerSettings{})

	var out struct {
		ID int `json:"id"`
	}
	in := map[string]string{"doctor_number": "D1"}
	if err := c.Post(context.Background(), "auth.login", "login", in, &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotType != "application/json" {
		t.Errorf("expected application/json, got %s", gotType)
	}
	if gotBody != `{"doctor_number":"D1"}` {
		t.Errorf("unexpected body %s", gotBody)
	}
	if out.ID != 12 {
		t.Errorf("expected id 12, got %d", out.ID)
	}
}

func TestClient_APIErrorCarriesServerMessage(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantMsg  string
		wantAuth bool
		wantNF   bool
	}{
		{"bad request", http.StatusBadRequest, `{"error":"Patient with this insurance number already exists"}`, "Patient with this insurance number already exists", false, false},
		{"unauthorized", http.StatusUnauthorized, `{"error":"Not authenticated"}`, "Not authenticated", true, false},
		{"not found", http.StatusNotFound, `{"error":"Visit not found"}`, "Visit not found", false, true},
		{"message fallback", http.StatusConflict, `{"message":"conflict"}`, "conflict", false, false},
		{"no body", http.StatusForbidden, ``, "", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}), BreakerSettings{})

			err := c.Get(context.Background(), "x", "x", nil, nil)
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("expected *APIError, got %T (%v)", err, err)
			}
			if apiErr.Status != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, apiErr.Status)
			}
			if apiErr.Message != tt.wantMsg {
				t.Errorf("expected message %q, got %q", tt.wantMsg, apiErr.Message)
			}
			if errors.Is(err, ErrUnauthorized) != tt.wantAuth {
				t.Errorf("errors.Is(ErrUnauthorized) = %v", !tt.wantAuth)
			}
			if errors.Is(err, ErrNotFound) != tt.wantNF {
				t.Errorf("errors.Is(ErrNotFound) = %v", !tt.wantNF)
			}
			if IsTransport(err) {
				t.Error("API errors must not be transport errors")
			}
		})
	}
}

func TestClient_DecodeFailureIsTransport(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `<html>oops</html>`)
	}), BreakerSettings{})

	var out map[string]any
	err := c.Get(context.Background(), "x", "x", nil, &out)
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected *TransportError, got %T", err)
	}
	if te.Op != "decode" {
		t.Errorf("expected op decode, got %s", te.Op)
	}
}

func TestClient_ConnectionFailureIsTransport(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	c, err := New(Options{BaseURL: base, Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	err = c.Get(context.Background(), "x", "x", nil, nil)
	if !IsTransport(err) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if ServerMessage(err, "fallback") != "fallback" {
		t.Error("expected fallback message for transport error")
	}
}

func TestClient_BreakerOpensAfterConsecutive5xx(t *testing.T) {
	hits := 0
	c, m := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"error":"database down"}`)
	}), BreakerSettings{Enabled: true, MaxFailures: 2, OpenTimeout: time.Minute})

	for i := 0; i < 2; i++ {
		err := c.Get(context.Background(), "x", "x", nil, nil)
		if ServerMessage(err, "") != "database down" {
			t.Fatalf("call %d: expected server message, got %v", i, err)
		}
	}

	err := c.Get(context.Background(), "x", "x", nil, nil)
	var te *TransportError
	if !errors.As(err, &te) || te.Op != "circuit open" {
		t.Fatalf("expected circuit open transport error, got %v", err)
	}
	if hits != 2 {
		t.Errorf("expected 2 upstream hits, got %d", hits)
	}
	if v := testutil.ToFloat64(m.BreakerState); v != 2 {
		t.Errorf("expected breaker gauge 2 (open), got %v", v)
	}
}

func TestClient_ObservesMetrics(t *testing.T) {
	c, m := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{}`)
	}), BreakerSettings{})

	_ = c.Get(context.Background(), "auth.check", "check-auth", nil, nil)
	if v := testutil.ToFloat64(m.APIRequestsTotal.WithLabelValues("auth.check", "GET", "200")); v != 1 {
		t.Errorf("expected 1 observed request, got %v", v)
	}
}

func TestClient_PostMultipartSniffsContentType(t *testing.T) {
	pdf := append([]byte("%PDF-1.4\n"), bytes.Repeat([]byte("x"), 4000)...)

	var gotType, gotDesc string
	var gotSize int
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
			return
		}
		f, fh, err := r.FormFile("file")
		if err != nil {
			t.Errorf("form file: %v", err)
			return
		}
		defer f.Close()
		b, _ := io.ReadAll(f)
		gotSize = len(b)
		gotType = fh.Header.Get("Content-Type")
		gotDesc = r.FormValue("description")
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"message":"Document uploaded"}`)
	}), BreakerSettings{})

	form := Multipart{
		Fields: map[string]string{"description": "lab report"},
		Files:  []FilePart{{Field: "file", FileName: "report.pdf", Content: bytes.NewReader(pdf)}},
	}
	if err := c.PostMultipart(context.Background(), "documents.upload", "visits/1/documents", form, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotType != "application/pdf" {
		t.Errorf("expected application/pdf, got %s", gotType)
	}
	if gotSize != len(pdf) {
		t.Errorf("expected %d bytes, got %d", len(pdf), gotSize)
	}
	if gotDesc != "lab report" {
		t.Errorf("expected description, got %q", gotDesc)
	}
}

func TestClient_Download(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/static/uploads/1_scan.png" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = io.WriteString(w, "png-bytes")
	}), BreakerSettings{})

	var buf bytes.Buffer
	n, err := c.Download(context.Background(), "documents.fetch", "/static/uploads/1_scan.png", &buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 9 || buf.String() != "png-bytes" {
		t.Errorf("unexpected download %d %q", n, buf.String())
	}

	_, err = c.Download(context.Background(), "documents.fetch", "/static/uploads/missing", &buf)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestClient_DownloadRejectsOversizedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "0123456789abcdef")
	}))
	t.Cleanup(srv.Close)

	c, err := New(Options{BaseURL: srv.URL + "/api", Logger: zerolog.Nop(), MaxBodySize: 10})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var buf bytes.Buffer
	n, err := c.Download(context.Background(), "documents.fetch", "/static/uploads/big.pdf", &buf)
	if !errors.Is(err, ErrBodyTooLarge) {
		t.Fatalf("expected ErrBodyTooLarge, got %v", err)
	}
	if !IsTransport(err) {
		t.Errorf("expected a transport error, got %T", err)
	}
	if n != 0 || buf.Len() != 0 {
		t.Errorf("expected nothing written, got %d bytes", buf.Len())
	}

	// Exactly at the limit is fine.
	c.maxBody = 16
	buf.Reset()
	if _, err := c.Download(context.Background(), "documents.fetch", "/static/uploads/big.pdf", &buf); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if buf.String() != "0123456789abcdef" {
		t.Errorf("unexpected body %q", buf.String())
	}
}

func TestDetectContentType(t *testing.T) {
	if got := DetectContentType([]byte("\x89PNG\r\n\x1a\n")); got != "image/png" {
		t.Errorf("expected image/png, got %s", got)
	}
	if got := DetectContentType([]byte("hello")); !strings.HasPrefix(got, "text/plain") {
		t.Errorf("expected text/plain, got %s", got)
	}
}
