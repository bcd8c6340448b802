package notifier

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

const alertSubject = "New mail notification"

// GmailConfig holds the OAuth2 client used to send alert emails
type GmailConfig struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	Sender       string
}

// GmailSender delivers notifications as plain text emails via the Gmail API.
// The channel id is the recipient address.
type GmailSender struct {
	service    *gmail.Service
	sender     string
	maxRetries int
	now        func() time.Time
}

// NewGmailSender builds the Gmail service from a refresh token. Extra client
// options are appended, which lets tests point the client at a fake endpoint.
func NewGmailSender(ctx context.Context, cfg GmailConfig, opts ...option.ClientOption) (*GmailSender, error) {
	oauth2Config := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Scopes:       []string{gmail.GmailSendScope},
		Endpoint:     google.Endpoint,
	}
	tokenSource := oauth2Config.TokenSource(ctx, &oauth2.Token{RefreshToken: cfg.RefreshToken})

	clientOpts := append([]option.ClientOption{option.WithTokenSource(tokenSource)}, opts...)
	service, err := gmail.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}

	sender := cfg.Sender
	if sender == "" {
		sender = "me"
	}

	return &GmailSender{
		service:    service,
		sender:     sender,
		maxRetries: 3,
		now:        time.Now,
	}, nil
}

func (g *GmailSender) Send(ctx context.Context, channelID, text string) error {
	raw, err := g.buildMessage(channelID, text)
	if err != nil {
		return fmt.Errorf("failed to build alert email: %w", err)
	}

	message := &gmail.Message{Raw: base64.URLEncoding.EncodeToString(raw)}

	var lastErr error
	for attempt := 1; attempt <= g.maxRetries; attempt++ {
		_, err := g.service.Users.Messages.Send("me", message).Context(ctx).Do()
		if err == nil {
			logrus.WithField("channel", channelID).Debug("Gmail alert sent")
			return nil
		}

		lastErr = err
		logrus.Warnf("Failed to send Gmail alert (attempt %d/%d): %v", attempt, g.maxRetries, err)

		if !isRateLimited(err) {
			break
		}
		wait := time.Duration(attempt*attempt) * time.Second
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}

	return fmt.Errorf("failed to send Gmail alert: %w", lastErr)
}

func (g *GmailSender) buildMessage(to, text string) ([]byte, error) {
	var h mail.Header
	h.SetDate(g.now())
	h.SetSubject(alertSubject)
	h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
	if g.sender != "me" {
		h.SetAddressList("From", []*mail.Address{{Address: g.sender}})
	}
	h.SetAddressList("To", []*mail.Address{{Address: to}})

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, err
	}
	if _, err := io.WriteString(w, text); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func isRateLimited(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "quota") || strings.Contains(msg, "rate")
}
