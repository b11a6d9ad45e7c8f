package approval

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/url"
)

// TokenBytes is the amount of entropy in an approval token
const TokenBytes = 24

// NewToken returns a URL-safe random token
func NewToken() (string, error) {
	buf := make([]byte, TokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate approval token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Link appends the token to baseURL as the code query parameter
func Link(baseURL, token string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid approval base url %q: %w", baseURL, err)
	}
	query := u.Query()
	query.Set("code", token)
	u.RawQuery = query.Encode()
	return u.String(), nil
}
