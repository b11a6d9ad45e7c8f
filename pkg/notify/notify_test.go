package notify_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/Ramsey-B/aster/pkg/notify"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func TestApprovalMessage(t *testing.T) {
	expires := time.Date(2024, 3, 1, 17, 0, 0, 0, time.UTC)
	msg := notify.ApprovalMessage("https://aster.example.com/api/v1/approvals/approve?code=abc", expires, "ops@example.com")

	assert.Equal(t, notify.ApprovalSubject, msg.Subject)
	assert.Equal(t, []string{"ops@example.com"}, msg.To)
	assert.Contains(t, msg.Body, "Click to approve the update:")
	assert.Contains(t, msg.Body, "?code=abc")
	assert.Contains(t, msg.Body, "Ignore if unexpected.")
}

func TestBuildRFC822(t *testing.T) {
	raw, err := notify.BuildRFC822("Aster <aster@example.com>", notify.Message{
		To:      []string{"ops@example.com", "Lead <lead@example.com>"},
		Subject: "Approve satellite update",
		Body:    "line one\nline two",
	})
	require.NoError(t, err)

	text := string(raw)
	assert.Contains(t, text, "From: \"Aster\" <aster@example.com>\r\n")
	assert.Contains(t, text, "To: <ops@example.com>, \"Lead\" <lead@example.com>\r\n")
	assert.Contains(t, text, "Subject: Approve satellite update\r\n")
	assert.True(t, strings.HasSuffix(text, "\r\n\r\nline one\r\nline two"))
}

func TestBuildRFC822_Rejects(t *testing.T) {
	_, err := notify.BuildRFC822("aster@example.com", notify.Message{Subject: "x"})
	assert.Error(t, err)

	_, err = notify.BuildRFC822("not an address", notify.Message{To: []string{"ops@example.com"}})
	assert.Error(t, err)
}

func TestGmailNotifier_Send(t *testing.T) {
	var raw string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/users/me/messages/send") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		var body struct {
			Raw string `json:"raw"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		raw = body.Raw

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg-1"}`))
	}))
	defer server.Close()

	cfg := notify.GmailConfig{From: "aster@example.com", To: []string{"ops@example.com"}}
	notifier, err := notify.NewGmailNotifier(context.Background(), cfg, testLogger(),
		option.WithEndpoint(server.URL+"/"), option.WithHTTPClient(server.Client()))
	require.NoError(t, err)

	err = notifier.Send(context.Background(), notify.Message{Subject: "Approve satellite update", Body: "link"})
	require.NoError(t, err)

	decoded, err := base64.URLEncoding.DecodeString(raw)
	require.NoError(t, err)
	assert.Contains(t, string(decoded), "To: <ops@example.com>")
	assert.Contains(t, string(decoded), "Subject: Approve satellite update")
}

func TestGmailNotifier_SendFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"code":403,"message":"insufficient scope"}}`))
	}))
	defer server.Close()

	cfg := notify.GmailConfig{From: "aster@example.com", To: []string{"ops@example.com"}}
	notifier, err := notify.NewGmailNotifier(context.Background(), cfg, testLogger(),
		option.WithEndpoint(server.URL+"/"), option.WithHTTPClient(server.Client()))
	require.NoError(t, err)

	err = notifier.Send(context.Background(), notify.Message{Subject: "s", Body: "b"})
	assert.Error(t, err)
}

func TestGmailConfig_Configured(t *testing.T) {
	assert.False(t, notify.GmailConfig{}.Configured())
	assert.True(t, notify.GmailConfig{ClientID: "id", ClientSecret: "secret", RefreshToken: "rt", From: "a@example.com"}.Configured())
}

func TestLogNotifier(t *testing.T) {
	notifier := notify.NewLogNotifier(testLogger())
	require.NoError(t, notifier.Send(context.Background(), notify.Message{Subject: "s", Body: "hello"}))
}
