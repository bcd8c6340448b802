package mailbox

import (
	"errors"
	"time"
)

// ErrConnection marks failures to reach, authenticate against or talk to the
// mailbox server. Callers treat it as retryable with backoff.
var ErrConnection = errors.New("mailbox connection error")

const (
	defaultSubject = "(no subject)"
	defaultSender  = "(unknown sender)"
)

// MessageSummary is the parsed view of one fetched message
type MessageSummary struct {
	MessageID  string
	Subject    string
	From       string
	ReceivedAt time.Time
	Size       int
	Body       string
}
