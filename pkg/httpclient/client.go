// Package httpclient performs single upstream requests. It never retries and
// never treats a status code as an error; the fetcher decides what a
// response means.
package httpclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/Gobusters/ectologger"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/Ramsey-B/aster/pkg/metrics"
)

const (
	DefaultTimeout   = 50 * time.Second
	DefaultUserAgent = "aster"

	// MaxResponseSize caps how much of a body is read
	MaxResponseSize = 10 << 20
)

type Config struct {
	Timeout         time.Duration
	UserAgent       string
	MaxIdleConns    int
	IdleConnTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Timeout:         DefaultTimeout,
		UserAgent:       DefaultUserAgent,
		MaxIdleConns:    16,
		IdleConnTimeout: 90 * time.Second,
	}
}

// Response is a fully read upstream response
type Response struct {
	StatusCode int
	// first value of each header, canonical keys
	Headers  map[string]string
	Body     []byte
	BodyJSON any
	Duration time.Duration
}

// Client is an instrumented http.Client. Request URLs carry api keys, so only
// the path is ever logged or used as a span name.
type Client struct {
	http      *http.Client
	userAgent string
	logger    ectologger.Logger
}

func NewClient(cfg Config, logger ectologger.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.MaxIdleConns > 0 {
		transport.MaxIdleConns = cfg.MaxIdleConns
		transport.MaxIdleConnsPerHost = cfg.MaxIdleConns
	}
	if cfg.IdleConnTimeout > 0 {
		transport.IdleConnTimeout = cfg.IdleConnTimeout
	}

	return &Client{
		http: &http.Client{
			Timeout: cfg.Timeout,
			Transport: otelhttp.NewTransport(transport,
				otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
					return "HTTP " + r.Method + " " + r.URL.Path
				}),
			),
		},
		userAgent: cfg.UserAgent,
		logger:    logger,
	}
}

// Do sends req and reads the whole body. Only transport failures and
// oversized bodies are errors.
func (c *Client) Do(ctx context.Context, req *http.Request) (*Response, error) {
	req = req.WithContext(ctx)
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.HTTPRequestsTotal.WithLabelValues(req.Method, "error").Inc()
		c.logger.WithContext(ctx).WithError(redact(err)).Errorf("HTTP %s %s failed", req.Method, req.URL.Path)
		return nil, fmt.Errorf("request to %s failed: %w", req.URL.Path, redact(err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	duration := time.Since(start)
	metrics.HTTPRequestsTotal.WithLabelValues(req.Method, strconv.Itoa(resp.StatusCode)).Inc()
	metrics.HTTPRequestDuration.WithLabelValues(req.Method).Observe(duration.Seconds())
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", redact(err))
	}
	if len(body) > MaxResponseSize {
		return nil, fmt.Errorf("response body exceeds %d bytes", MaxResponseSize)
	}

	headers := make(map[string]string, len(resp.Header))
	for key := range resp.Header {
		headers[key] = resp.Header.Get(key)
	}

	c.logger.WithContext(ctx).Debugf("HTTP %s %s -> %d (%s)", req.Method, req.URL.Path, resp.StatusCode, duration)
	return &Response{
		StatusCode: resp.StatusCode,
		Headers:    headers,
		Body:       body,
		Duration:   duration,
	}, nil
}
