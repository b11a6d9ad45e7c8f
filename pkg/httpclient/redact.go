package httpclient

import (
	"errors"
	"net/url"
)

// redact strips the query string from *url.Error so api keys never reach
// logs or wrapped errors
func redact(err error) error {
	var urlErr *url.Error
	if !errors.As(err, &urlErr) {
		return err
	}
	parsed, parseErr := url.Parse(urlErr.URL)
	if parseErr != nil {
		return &url.Error{Op: urlErr.Op, URL: "<redacted>", Err: urlErr.Err}
	}
	parsed.RawQuery = ""
	return &url.Error{Op: urlErr.Op, URL: parsed.String(), Err: urlErr.Err}
}
