package notifier

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"mailbox-poller/internal/mailbox"
)

func TestSlackSenderPostsMessage(t *testing.T) {
	var got slackMessage
	var auth, path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	s := NewSlackSender("xoxb-token", srv.URL+"/", srv.Client())
	require.NoError(t, s.Send(context.Background(), "U123", "hello"))

	assert.Equal(t, "/chat.postMessage", path)
	assert.Equal(t, "Bearer xoxb-token", auth)
	assert.Equal(t, slackMessage{Channel: "U123", Text: "hello"}, got)
}

func TestSlackSenderErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		message string
	}{
		{"api error", http.StatusOK, `{"ok":false,"error":"channel_not_found"}`, "channel_not_found"},
		{"server error", http.StatusInternalServerError, `oops`, "status 500"},
		{"bad json", http.StatusOK, `not json`, "decode"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			err := NewSlackSender("t", srv.URL, srv.Client()).Send(context.Background(), "U1", "x")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestGmailSenderSendsRawMessage(t *testing.T) {
	var raw string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.True(t, strings.HasSuffix(r.URL.Path, "/messages/send"), r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		var msg struct {
			Raw string `json:"raw"`
		}
		require.NoError(t, json.Unmarshal(body, &msg))
		raw = msg.Raw
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"sent-1"}`))
	}))
	defer srv.Close()

	g, err := NewGmailSender(context.Background(), GmailConfig{Sender: "alerts@example.com"},
		option.WithHTTPClient(srv.Client()), option.WithEndpoint(srv.URL+"/"))
	require.NoError(t, err)

	require.NoError(t, g.Send(context.Background(), "owner@example.com", "you have mail"))

	decoded, err := base64.URLEncoding.DecodeString(raw)
	require.NoError(t, err)
	text := string(decoded)
	assert.Contains(t, text, "To: <owner@example.com>")
	assert.Contains(t, text, "From: <alerts@example.com>")
	assert.Contains(t, text, "Subject: New mail notification")
	assert.Contains(t, text, "you have mail")
}

func TestFormatAlert(t *testing.T) {
	msg := mailbox.MessageSummary{
		Subject:    "Invoice",
		From:       "billing@example.com",
		ReceivedAt: time.Date(2026, 3, 4, 9, 5, 0, 0, time.UTC),
		Size:       2048,
	}
	text := FormatAlert("owner@example.com", msg)

	assert.Contains(t, text, "Invoice")
	assert.Contains(t, text, "`billing@example.com`")
	assert.Contains(t, text, "03-04 09:05")
	assert.Contains(t, text, "2.0 KB")
	assert.Contains(t, text, "owner@example.com")
}

func TestFormatSize(t *testing.T) {
	assert.Equal(t, "512 B", FormatSize(512))
	assert.Equal(t, "1.5 KB", FormatSize(1536))
	assert.Equal(t, "2.0 MB", FormatSize(2*1024*1024))
}
