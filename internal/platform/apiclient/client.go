// Package apiclient is the HTTP transport to the EHR API. Every call carries
// the session cookie from the configured jar, a fresh X-Request-ID, and is
// logged and measured. Domain packages build their stores on top of it.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"

	"github.com/ehr/desk/internal/platform/metrics"
)

// RequestIDHeader is sent with every outbound call.
const RequestIDHeader = "X-Request-ID"

// DefaultMaxBodySize bounds how much of a response is read into memory.
const DefaultMaxBodySize = 32 << 20

// ErrBodyTooLarge is returned instead of a truncated body.
var ErrBodyTooLarge = errors.New("response body too large")

type BreakerSettings struct {
	Enabled     bool
	MaxFailures uint32
	OpenTimeout time.Duration
}

type Options struct {
	BaseURL string
	Jar     http.CookieJar
	Timeout time.Duration
	Logger  zerolog.Logger
	Metrics *metrics.Collector
	Breaker BreakerSettings
	// MaxBodySize defaults to DefaultMaxBodySize.
	MaxBodySize int64
	// Transport overrides http.DefaultTransport, mostly for tests.
	Transport http.RoundTripper
}

type Client struct {
	base    *url.URL
	http    *http.Client
	log     zerolog.Logger
	metrics *metrics.Collector
	maxBody int64
	cb      *gobreaker.CircuitBreaker[*response]
}

type response struct {
	status int
	header http.Header
	body   []byte
}

// errUpstream marks 5xx answers as breaker failures while still handing the
// response back to the caller.
var errUpstream = errors.New("upstream failure")

func New(opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", opts.BaseURL)
	}

	c := &Client{
		base: base,
		http: &http.Client{
			Jar:       opts.Jar,
			Timeout:   opts.Timeout,
			Transport: opts.Transport,
		},
		log:     opts.Logger,
		metrics: opts.Metrics,
		maxBody: opts.MaxBodySize,
	}
	if c.maxBody <= 0 {
		c.maxBody = DefaultMaxBodySize
	}

	if opts.Breaker.Enabled {
		threshold := opts.Breaker.MaxFailures
		if threshold == 0 {
			threshold = 5
		}
		c.cb = gobreaker.NewCircuitBreaker[*response](gobreaker.Settings{
			Name:        "ehr-api",
			MaxRequests: 1,
			Timeout:     opts.Breaker.OpenTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				c.log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
				c.metrics.SetBreakerState(int(to))
			},
		})
	}

	return c, nil
}

// BaseURL returns the API root, e.g. http://localhost:5000/api.
func (c *Client) BaseURL() string {
	return c.base.String()
}

// Origin returns scheme://host of the API, where static files are served.
func (c *Client) Origin() string {
	return c.base.Scheme + "://" + c.base.Host
}

// Get issues GET path?query and decodes a JSON body into out (nil to discard).
func (c *Client) Get(ctx context.Context, endpoint, path string, query url.Values, out any) error {
	u := c.resolve(path)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return &TransportError{Endpoint: endpoint, Op: "build request", Err: err}
	}
	return c.doJSON(req, endpoint, out)
}

// Post sends in as a JSON body and decodes the JSON answer into out.
func (c *Client) Post(ctx context.Context, endpoint, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return &TransportError{Endpoint: endpoint, Op: "encode", Err: err}
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.resolve(path).String(), body)
	if err != nil {
		return &TransportError{Endpoint: endpoint, Op: "build request", Err: err}
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.doJSON(req, endpoint, out)
}

// PostMultipart uploads form as multipart/form-data.
func (c *Client) PostMultipart(ctx context.Context, endpoint, path string, form Multipart, out any) error {
	body, contentType, err := form.encode()
	if err != nil {
		return &TransportError{Endpoint: endpoint, Op: "encode multipart", Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.resolve(path).String(), body)
	if err != nil {
		return &TransportError{Endpoint: endpoint, Op: "build request", Err: err}
	}
	req.Header.Set("Content-Type", contentType)
	return c.doJSON(req, endpoint, out)
}

// Download fetches an absolute or API-relative URL with the session cookie
// and copies the raw body to w.
func (c *Client) Download(ctx context.Context, endpoint, rawURL string, w io.Writer) (int64, error) {
	u, err := c.base.Parse(rawURL)
	if err != nil {
		return 0, &TransportError{Endpoint: endpoint, Op: "parse url", Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return 0, &TransportError{Endpoint: endpoint, Op: "build request", Err: err}
	}
	resp, err := c.do(req, endpoint)
	if err != nil {
		return 0, err
	}
	if resp.status < 200 || resp.status > 299 {
		return 0, apiError(endpoint, resp)
	}
	n, err := w.Write(resp.body)
	if err != nil {
		return int64(n), fmt.Errorf("write download: %w", err)
	}
	return int64(n), nil
}

func (c *Client) resolve(path string) *url.URL {
	u := *c.base
	u.Path = c.base.Path + "/" + strings.TrimLeft(path, "/")
	return &u
}

func (c *Client) doJSON(req *http.Request, endpoint string, out any) error {
	req.Header.Set("Accept", "application/json")
	resp, err := c.do(req, endpoint)
	if err != nil {
		return err
	}
	if resp.status < 200 || resp.status > 299 {
		return apiError(endpoint, resp)
	}
	if out == nil || len(bytes.TrimSpace(resp.body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.body, out); err != nil {
		return &TransportError{Endpoint: endpoint, Op: "decode", Err: err}
	}
	return nil
}

func (c *Client) do(req *http.Request, endpoint string) (*response, error) {
	rid := uuid.New().String()
	req.Header.Set(RequestIDHeader, rid)

	start := time.Now()
	c.metrics.TrackInFlight(1)
	defer c.metrics.TrackInFlight(-1)

	call := func() (*response, error) {
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
		if err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}
		if int64(len(body)) > c.maxBody {
			return nil, fmt.Errorf("%w: over %d bytes", ErrBodyTooLarge, c.maxBody)
		}
		r := &response{status: resp.StatusCode, header: resp.Header, body: body}
		if resp.StatusCode >= 500 {
			return r, errUpstream
		}
		return r, nil
	}

	var (
		resp *response
		err  error
	)
	if c.cb != nil {
		resp, err = c.cb.Execute(call)
	} else {
		resp, err = call()
	}
	if errors.Is(err, errUpstream) {
		err = nil
	}

	latency := time.Since(start)
	status := 0
	if resp != nil {
		status = resp.status
	}
	c.metrics.ObserveAPI(endpoint, req.Method, status, latency)

	evt := c.log.Debug()
	if err != nil {
		evt = c.log.Error().Err(err)
	} else if status >= 400 {
		evt = c.log.Warn()
	}
	evt.
		Str("request_id", rid).
		Str("endpoint", endpoint).
		Str("method", req.Method).
		Str("path", req.URL.Path).
		Int("status", status).
		Dur("latency", latency).
		Msg("api call")

	if err != nil {
		op := "send"
		if errors.Is(err, ErrBodyTooLarge) {
			op = "read body"
		} else if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			op = "circuit open"
		}
		return nil, &TransportError{Endpoint: endpoint, Op: op, Err: err}
	}
	return resp, nil
}

func apiError(endpoint string, resp *response) error {
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	_ = json.Unmarshal(resp.body, &body)
	msg := body.Error
	if msg == "" && resp.status >= 400 {
		msg = body.Message
	}
	return &APIError{Endpoint: endpoint, Status: resp.status, Message: msg}
}
