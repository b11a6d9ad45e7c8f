// Package ratelimit keeps a local request budget per API credential so a key
// that is about to hit its upstream quota is skipped before the call is made.
package ratelimit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/aster/pkg/credentials"
	"github.com/Ramsey-B/aster/pkg/redis"
	"github.com/Ramsey-B/aster/pkg/tracing"
)

// DefaultPenalty applies when a 429 carries no usable Retry-After
const DefaultPenalty = time.Minute

// CredentialBudget is a Redis sliding window per credential. It fails open:
// when Redis is unreachable every credential is allowed.
type CredentialBudget struct {
	window *redis.Window
	logger ectologger.Logger
}

// NewCredentialBudget allows limit requests per credential within window
func NewCredentialBudget(client *redis.Client, limit int64, window time.Duration, logger ectologger.Logger) *CredentialBudget {
	return &CredentialBudget{
		window: redis.NewWindow(client, redis.KeyPrefix+"quota:", limit, window),
		logger: logger,
	}
}

// Allow records one request for credential and reports whether it is within
// budget
func (b *CredentialBudget) Allow(ctx context.Context, credential credentials.Credential) bool {
	ctx, span := tracing.StartSpan(ctx, "CredentialBudget.Allow")
	defer span.End()

	key := KeyFor(credential)
	decision, err := b.window.Take(ctx, key)
	if err != nil {
		b.logger.WithContext(ctx).WithError(err).Errorf("Quota check failed for credential %s", key)
		return true
	}

	if !decision.Allowed {
		b.logger.WithContext(ctx).Warnf("Credential %s over local quota, retry in %v", key, decision.RetryIn)
		return false
	}

	b.logger.WithContext(ctx).Debugf("Credential %s: %d requests remaining", key, decision.Remaining)
	return true
}

// Penalize blocks credential for the upstream's Retry-After, or DefaultPenalty
func (b *CredentialBudget) Penalize(ctx context.Context, credential credentials.Credential, retryAfter string) {
	ctx, span := tracing.StartSpan(ctx, "CredentialBudget.Penalize")
	defer span.End()

	d := DefaultPenalty
	if retryAfter != "" {
		if parsed, err := ParseRetryAfter(retryAfter); err == nil && parsed > 0 {
			d = parsed
		}
	}

	key := KeyFor(credential)
	if err := b.window.Block(ctx, key, d); err != nil {
		b.logger.WithContext(ctx).WithError(err).Errorf("Failed to block credential %s", key)
		return
	}
	b.logger.WithContext(ctx).Infof("Blocked credential %s for %v", key, d)
}

// KeyFor derives a stable identifier for credential that does not reveal it
func KeyFor(credential credentials.Credential) string {
	sum := sha256.Sum256([]byte(credential))
	return hex.EncodeToString(sum[:6])
}

// ParseRetryAfter parses a Retry-After header value
// Returns the duration to wait before retrying
func ParseRetryAfter(value string) (time.Duration, error) {
	if seconds, err := strconv.ParseInt(value, 10, 64); err == nil {
		return time.Duration(seconds) * time.Second, nil
	}

	// HTTP date (RFC 1123)
	if t, err := time.Parse(time.RFC1123, value); err == nil {
		return time.Until(t), nil
	}

	return 0, fmt.Errorf("invalid Retry-After value: %s", value)
}
