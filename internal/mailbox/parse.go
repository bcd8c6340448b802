package mailbox

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	stdmail "net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
)

const (
	maxMessageIDLength = 255
	bodyLimit          = 256 * 1024
)

// ParseMessage turns a raw RFC 5322 message into a summary. fetchedAt is
// used as the receive time only when no header carries a usable date.
func ParseMessage(raw []byte, fetchedAt time.Time) (MessageSummary, error) {
	reader, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil && (reader == nil || !message.IsUnknownCharset(err)) {
		return MessageSummary{}, fmt.Errorf("read message: %w", err)
	}
	defer reader.Close()

	summary := MessageSummary{
		Subject: subjectFromHeader(&reader.Header),
		From:    senderFromHeader(&reader.Header),
		Size:    len(raw),
	}

	headerTime, ok := receivedTime(&reader.Header)
	if ok {
		summary.ReceivedAt = headerTime
	} else {
		summary.ReceivedAt = fetchedAt
	}

	summary.Body, err = readBody(reader)
	if err != nil {
		return MessageSummary{}, err
	}

	summary.MessageID = normalizeMessageID(reader.Header.Get("Message-Id"))
	if summary.MessageID == "" {
		// headerTime is zero when absent so the identifier stays stable across fetches
		summary.MessageID = fallbackMessageID(summary.Subject, summary.From, headerTime, summary.Size)
	}

	return summary, nil
}

func subjectFromHeader(header *mail.Header) string {
	subject, err := header.Subject()
	if err != nil {
		subject = header.Get("Subject")
	}
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return defaultSubject
	}
	return subject
}

func senderFromHeader(header *mail.Header) string {
	if list, err := header.AddressList("From"); err == nil && len(list) > 0 {
		if addr := strings.TrimSpace(list[0].Address); addr != "" {
			return addr
		}
	}
	if raw := strings.TrimSpace(header.Get("From")); raw != "" {
		return raw
	}
	return defaultSender
}

// receivedTime prefers the topmost Received header, which the final hop
// prepends, and falls back to the Date header.
func receivedTime(header *mail.Header) (time.Time, bool) {
	for _, value := range header.Values("Received") {
		idx := strings.LastIndex(value, ";")
		if idx < 0 {
			continue
		}
		if t, err := stdmail.ParseDate(strings.TrimSpace(value[idx+1:])); err == nil {
			return t, true
		}
		break
	}
	if t, err := header.Date(); err == nil && !t.IsZero() {
		return t, true
	}
	return time.Time{}, false
}

// readBody returns the first text/plain part at any depth, otherwise the
// first text/html part converted to text. Entities in plain parts are decoded
// too, since some senders escape them there.
func readBody(reader *mail.Reader) (string, error) {
	var htmlBody *string
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil && !message.IsUnknownCharset(err) {
			return "", fmt.Errorf("read part: %w", err)
		}

		if part == nil {
			continue
		}
		header, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		mediaType, _, err := header.ContentType()
		if err != nil || mediaType == "" {
			mediaType = "text/plain"
		}
		mediaType = strings.ToLower(mediaType)

		switch mediaType {
		case "text/plain":
			text, err := readPart(part.Body)
			if err != nil {
				return "", err
			}
			return strings.TrimSpace(decodeEntities(text)), nil
		case "text/html":
			if htmlBody != nil {
				continue
			}
			text, err := readPart(part.Body)
			if err != nil {
				return "", err
			}
			htmlBody = &text
		}
	}

	if htmlBody != nil {
		return HTMLToText(*htmlBody), nil
	}
	return "", nil
}

func readPart(body io.Reader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(body, bodyLimit))
	if err != nil {
		return "", fmt.Errorf("read part body: %w", err)
	}
	return string(data), nil
}

func normalizeMessageID(value string) string {
	id := strings.TrimSpace(value)
	if len(id) > maxMessageIDLength {
		sum := sha256.Sum256([]byte(id))
		return "sha256-" + hex.EncodeToString(sum[:])
	}
	return id
}

// fallbackMessageID is used for messages without a Message-ID header.
func fallbackMessageID(subject, from string, receivedAt time.Time, size int) string {
	var millis int64
	if !receivedAt.IsZero() {
		millis = receivedAt.UnixMilli()
	}
	seed := subject + from + strconv.FormatInt(millis, 10) + strconv.Itoa(size)
	sum := sha256.Sum256([]byte(seed))
	return "fallback-" + hex.EncodeToString(sum[:])[:16]
}
