// Package fetcher sends requests to a rate-limited upstream, rotating
// credentials on rejection and backing off on transient failures.
package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/aster/pkg/clock"
	"github.com/Ramsey-B/aster/pkg/credentials"
	"github.com/Ramsey-B/aster/pkg/expressions"
	"github.com/Ramsey-B/aster/pkg/httpclient"
	"github.com/Ramsey-B/aster/pkg/metrics"
	"github.com/Ramsey-B/aster/pkg/tracing"
)

const (
	DefaultMaxRetries = 8
	DefaultBaseDelay  = time.Second
	DefaultMaxDelay   = 120 * time.Second

	maxErrorBody = 256
)

// RequestBuilder builds a fresh request for the given credential. It is
// called once per attempt.
type RequestBuilder func(ctx context.Context, credential credentials.Credential) (*http.Request, error)

// Doer sends a request. Non-2xx responses must not be returned as errors.
type Doer interface {
	Do(ctx context.Context, req *http.Request) (*httpclient.Response, error)
}

// Quota is an optional per-credential request budget
type Quota interface {
	// Allow consumes one request from the credential's budget
	Allow(ctx context.Context, credential credentials.Credential) bool
	// Penalize records an upstream throttle; retryAfter is the raw header value
	Penalize(ctx context.Context, credential credentials.Credential, retryAfter string)
}

// Config controls retry behaviour
type Config struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration

	// RejectWhen is a JMESPath expression evaluated against 2xx JSON bodies.
	// A truthy result is treated like a 401.
	RejectWhen string
}

// DefaultConfig returns the default retry configuration
func DefaultConfig() Config {
	return Config{
		MaxRetries: DefaultMaxRetries,
		BaseDelay:  DefaultBaseDelay,
		MaxDelay:   DefaultMaxDelay,
	}
}

// Option configures a Fetcher
type Option func(*Fetcher)

// WithClock overrides the clock used for backoff sleeps
func WithClock(c clock.Clock) Option {
	return func(f *Fetcher) {
		f.clock = c
	}
}

// WithQuota attaches a per-credential budget
func WithQuota(q Quota) Option {
	return func(f *Fetcher) {
		f.quota = q
	}
}

// WithEvaluator shares an expression evaluator
func WithEvaluator(e *expressions.Evaluator) Option {
	return func(f *Fetcher) {
		f.evaluator = e
	}
}

// Fetcher executes requests with credential rotation and exponential backoff
type Fetcher struct {
	client    Doer
	rotator   *credentials.Rotator
	clock     clock.Clock
	cfg       Config
	evaluator *expressions.Evaluator
	quota     Quota
	logger    ectologger.Logger
}

// New creates a fetcher. The rotator is shared with the caller and keeps its
// position between fetches.
func New(client Doer, rotator *credentials.Rotator, cfg Config, logger ectologger.Logger, opts ...Option) *Fetcher {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultBaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = DefaultMaxDelay
	}

	f := &Fetcher{
		client:  client,
		rotator: rotator,
		clock:   clock.New(),
		cfg:     cfg,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.evaluator == nil && cfg.RejectWhen != "" {
		f.evaluator = expressions.NewEvaluator()
	}
	return f
}

// Fetch sends the request built by build until it succeeds or fails for good.
// On success the response body has been decoded into BodyJSON.
func (f *Fetcher) Fetch(ctx context.Context, build RequestBuilder) (*httpclient.Response, error) {
	ctx, span := tracing.StartSpan(ctx, "Fetcher.Fetch")
	defer span.End()

	// credential indexes rejected during this fetch
	rejected := make(map[int]bool, f.rotator.Size())

	var lastErr error
	attempt := 0
	for attempt < f.cfg.MaxRetries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		index := f.rotator.Index()
		credential := f.rotator.Current()

		if f.quota != nil && !f.quota.Allow(ctx, credential) {
			metrics.FetchAttemptsTotal.WithLabelValues("quota_exhausted").Inc()
			if err := f.reject(ctx, rejected, index, "local quota exhausted"); err != nil {
				return nil, err
			}
			continue
		}

		req, err := build(ctx, credential)
		if err != nil {
			return nil, fmt.Errorf("failed to build request: %w", err)
		}

		resp, err := f.client.Do(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			metrics.FetchAttemptsTotal.WithLabelValues("transport_error").Inc()
			lastErr = err
			attempt++
			if err := f.backoff(ctx, attempt, err); err != nil {
				return nil, err
			}
			continue
		}

		class := httpclient.Classify(resp.StatusCode)
		switch class {
		case httpclient.ClassCredentialRejected:
			metrics.FetchAttemptsTotal.WithLabelValues(class.String()).Inc()
			if f.quota != nil && httpclient.IsRateLimitStatus(resp.StatusCode) {
				f.quota.Penalize(ctx, credential, resp.Headers["Retry-After"])
			}
			if err := f.reject(ctx, rejected, index, fmt.Sprintf("status %d", resp.StatusCode)); err != nil {
				return nil, err
			}
			continue

		case httpclient.ClassClientError:
			metrics.FetchAttemptsTotal.WithLabelValues(class.String()).Inc()
			return nil, newStatusError(resp)

		case httpclient.ClassServerError:
			metrics.FetchAttemptsTotal.WithLabelValues(class.String()).Inc()
			lastErr = newStatusError(resp)
			attempt++
			if err := f.backoff(ctx, attempt, lastErr); err != nil {
				return nil, err
			}
			continue
		}

		if err := httpclient.ParseJSON(resp); err != nil {
			metrics.FetchAttemptsTotal.WithLabelValues("malformed_body").Inc()
			lastErr = err
			attempt++
			if err := f.backoff(ctx, attempt, err); err != nil {
				return nil, err
			}
			continue
		}

		if f.rejectedByBody(ctx, resp) {
			metrics.FetchAttemptsTotal.WithLabelValues("body_rejected").Inc()
			if err := f.reject(ctx, rejected, index, "response body matched reject expression"); err != nil {
				return nil, err
			}
			continue
		}

		metrics.FetchAttemptsTotal.WithLabelValues(class.String()).Inc()
		return resp, nil
	}

	return nil, fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, attempt, lastErr)
}

// reject marks the credential at index as failed and rotates. A credential
// rejected twice means the whole pool has been tried.
func (f *Fetcher) reject(ctx context.Context, rejected map[int]bool, index int, reason string) error {
	if rejected[index] {
		f.logger.WithContext(ctx).WithFields(map[string]any{
			"credential_index": index,
			"pool_size":        f.rotator.Size(),
		}).Errorf("All credentials rejected (%s)", reason)
		return ErrCredentialsExhausted
	}
	rejected[index] = true

	f.rotator.Rotate()
	metrics.CredentialRotations.Inc()

	f.logger.WithContext(ctx).WithFields(map[string]any{
		"credential_index": index,
		"next_index":       f.rotator.Index(),
	}).Warnf("Credential rejected (%s), rotating", reason)
	return nil
}

// backoff sleeps before the next attempt. Nothing is slept once attempts run out.
func (f *Fetcher) backoff(ctx context.Context, attempt int, cause error) error {
	if attempt >= f.cfg.MaxRetries {
		return nil
	}

	delay := CalculateBackoff(f.cfg.BaseDelay, f.cfg.MaxDelay, attempt)
	f.logger.WithContext(ctx).WithError(cause).WithFields(map[string]any{
		"attempt": attempt,
		"delay":   delay.String(),
	}).Warnf("Transient fetch failure, retrying in %s", delay)

	metrics.BackoffSeconds.Add(delay.Seconds())
	return f.clock.Sleep(ctx, delay)
}

func (f *Fetcher) rejectedByBody(ctx context.Context, resp *httpclient.Response) bool {
	if f.cfg.RejectWhen == "" {
		return false
	}

	matched, err := f.evaluator.Truthy(f.cfg.RejectWhen, resp.BodyJSON)
	if err != nil {
		f.logger.WithContext(ctx).WithError(err).Warnf("Failed to evaluate reject expression %q", f.cfg.RejectWhen)
		return false
	}
	return matched
}

// CalculateBackoff returns base*2^(attempt-1) capped at maxDelay. attempt is 1-based.
func CalculateBackoff(base, maxDelay time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maxDelay {
			return maxDelay
		}
	}
	if delay > maxDelay {
		return maxDelay
	}
	return delay
}

func newStatusError(resp *httpclient.Response) *StatusError {
	body := string(resp.Body)
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	return &StatusError{StatusCode: resp.StatusCode, Body: body}
}
