package httpclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ErrEmptyBody is returned when a JSON body was expected but none was sent
var ErrEmptyBody = errors.New("response body is empty")

// Class groups HTTP outcomes by how a caller should react to them
type Class int

const (
	// ClassSuccess is any 2xx
	ClassSuccess Class = iota
	// ClassCredentialRejected is 401, 403 or 429: the key is bad or throttled
	ClassCredentialRejected
	// ClassClientError is any other 4xx
	ClassClientError
	// ClassServerError is 5xx or anything else unexpected
	ClassServerError
)

func (c Class) String() string {
	switch c {
	case ClassSuccess:
		return "success"
	case ClassCredentialRejected:
		return "credential_rejected"
	case ClassClientError:
		return "client_error"
	default:
		return "server_error"
	}
}

// Classify maps a status code to its Class
func Classify(statusCode int) Class {
	switch {
	case IsSuccessStatus(statusCode):
		return ClassSuccess
	case IsCredentialRejectedStatus(statusCode):
		return ClassCredentialRejected
	case statusCode >= 400 && statusCode < 500:
		return ClassClientError
	default:
		return ClassServerError
	}
}

// ParseJSON decodes the response body into BodyJSON regardless of content type
func ParseJSON(resp *Response) error {
	if len(resp.Body) == 0 {
		return ErrEmptyBody
	}

	var result any
	if err := json.Unmarshal(resp.Body, &result); err != nil {
		return fmt.Errorf("failed to parse JSON: %w", err)
	}
	resp.BodyJSON = result
	return nil
}

// IsSuccessStatus returns true if the status code indicates success
func IsSuccessStatus(statusCode int) bool {
	return statusCode >= 200 && statusCode < 300
}

// IsCredentialRejectedStatus returns true for auth failures and rate limiting
func IsCredentialRejectedStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusTooManyRequests:
		return true
	default:
		return false
	}
}

// IsRateLimitStatus returns true if the status code indicates rate limiting
func IsRateLimitStatus(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests
}
