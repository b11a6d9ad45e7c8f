package fetcher

import (
	"errors"
	"fmt"
)

var (
	// ErrCredentialsExhausted is returned once every credential in the pool has
	// been rejected during a single fetch
	ErrCredentialsExhausted = errors.New("all credentials rejected")

	// ErrRetriesExhausted is returned when transient failures used up every attempt
	ErrRetriesExhausted = errors.New("retries exhausted")
)

// StatusError is a non-retryable upstream response
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// IsStatus reports whether err is a StatusError with the given code
func IsStatus(err error, statusCode int) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.StatusCode == statusCode
}

// Retryable reports whether err is worth retrying on a later run. Credential
// exhaustion and non-auth 4xx responses are not.
func Retryable(err error) bool {
	if errors.Is(err, ErrCredentialsExhausted) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode >= 500
	}
	return true
}
