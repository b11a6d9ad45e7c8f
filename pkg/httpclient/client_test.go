package httpclient_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/aster/pkg/httpclient"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func TestClient_Do_ReturnsBodyAndHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"above":[]}`))
	}))
	defer server.Close()

	client := httpclient.NewClient(httpclient.DefaultConfig(), testLogger())
	req, err := http.NewRequest(http.MethodGet, server.URL+"/rest/v1/satellite/above", nil)
	require.NoError(t, err)

	resp, err := client.Do(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Headers["Content-Type"])
	assert.Equal(t, `{"above":[]}`, string(resp.Body))

	require.NoError(t, httpclient.ParseJSON(resp))
	body, ok := resp.BodyJSON.(map[string]any)
	require.True(t, ok)
	assert.Contains(t, body, "above")
}

func TestClient_Do_NonSuccessIsNotAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := httpclient.NewClient(httpclient.DefaultConfig(), testLogger())
	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	require.NoError(t, err)

	resp, err := client.Do(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestParseJSON_Malformed(t *testing.T) {
	err := httpclient.ParseJSON(&httpclient.Response{Body: []byte("<html>")})
	require.Error(t, err)

	err = httpclient.ParseJSON(&httpclient.Response{})
	require.ErrorIs(t, err, httpclient.ErrEmptyBody)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		status int
		want   httpclient.Class
	}{
		{200, httpclient.ClassSuccess},
		{204, httpclient.ClassSuccess},
		{401, httpclient.ClassCredentialRejected},
		{403, httpclient.ClassCredentialRejected},
		{429, httpclient.ClassCredentialRejected},
		{400, httpclient.ClassClientError},
		{404, httpclient.ClassClientError},
		{500, httpclient.ClassServerError},
		{503, httpclient.ClassServerError},
		{302, httpclient.ClassServerError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, httpclient.Classify(tt.status), "status %d", tt.status)
	}
}

func TestClient_Do_SetsUserAgent(t *testing.T) {
	var agent string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agent = r.UserAgent()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	cfg := httpclient.DefaultConfig()
	cfg.UserAgent = "aster/test"
	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	require.NoError(t, err)

	_, err = httpclient.NewClient(cfg, testLogger()).Do(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "aster/test", agent)
}

func TestClient_Do_TransportErrorHidesAPIKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	server.Close()

	req, err := http.NewRequest(http.MethodGet, server.URL+"/rest/v1/satellite/tle/25544?apiKey=SECRET", nil)
	require.NoError(t, err)

	_, err = httpclient.NewClient(httpclient.DefaultConfig(), testLogger()).Do(context.Background(), req)
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "SECRET")
	assert.Contains(t, err.Error(), "/rest/v1/satellite/tle/25544")
}
