package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const DefaultSlackAPIURL = "https://slack.com/api"

// SlackSender posts direct messages through chat.postMessage
type SlackSender struct {
	client  *http.Client
	token   string
	baseURL string
}

type slackMessage struct {
	Channel string `json:"channel"`
	Text    string `json:"text"`
}

type slackResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// NewSlackSender creates a sender. An empty baseURL selects the public API and
// a nil client gets a 10 second timeout.
func NewSlackSender(token, baseURL string, client *http.Client) *SlackSender {
	if baseURL == "" {
		baseURL = DefaultSlackAPIURL
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &SlackSender{
		client:  client,
		token:   token,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

func (s *SlackSender) Send(ctx context.Context, channelID, text string) error {
	payload, err := json.Marshal(slackMessage{Channel: channelID, Text: text})
	if err != nil {
		return fmt.Errorf("failed to encode slack message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/chat.postMessage", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+s.token)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("slack request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return fmt.Errorf("failed to read slack response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("slack API returned status %d", resp.StatusCode)
	}

	var result slackResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("failed to decode slack response: %w", err)
	}
	if !result.OK {
		return fmt.Errorf("slack chat.postMessage failed: %s", result.Error)
	}

	logrus.WithField("channel", channelID).Debug("Slack message sent")
	return nil
}
