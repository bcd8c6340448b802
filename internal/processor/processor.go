package processor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"
	"unicode/utf8"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"mailbox-poller/internal/crypto"
	"mailbox-poller/internal/enrichment"
	"mailbox-poller/internal/mailbox"
	"mailbox-poller/internal/metrics"
	"mailbox-poller/internal/model"
	"mailbox-poller/internal/notifier"
	"mailbox-poller/internal/repository"
)

// AccountStore loads and persists account polling state
type AccountStore interface {
	FindByID(ctx context.Context, id uint) (*model.Account, error)
	Save(ctx context.Context, account *model.Account) error
}

// Ledger remembers which messages were already handled per user
type Ledger interface {
	Exists(ctx context.Context, userID uint, messageID string) (bool, error)
	Save(ctx context.Context, msg *model.ProcessedMessage) error
}

// MailboxClient fetches recent messages for one mailbox
type MailboxClient interface {
	FetchRecent(ctx context.Context, identity, credential string) ([]mailbox.MessageSummary, error)
}

// Decrypter reveals stored credentials
type Decrypter interface {
	Decrypt(encoded string) (string, error)
}

// Dependencies groups the collaborators of a Processor
type Dependencies struct {
	Accounts AccountStore
	Ledger   Ledger
	Mailbox  MailboxClient
	Cipher   Decrypter
	Sender   notifier.Sender
	Enqueuer enrichment.Enqueuer
	Metrics  *metrics.Metrics
}

// Processor checks one user's mailbox, notifies new messages and maintains
// the account's backoff state.
type Processor struct {
	accounts AccountStore
	ledger   Ledger
	mailbox  MailboxClient
	cipher   Decrypter
	sender   notifier.Sender
	enqueuer enrichment.Enqueuer
	metrics  *metrics.Metrics
}

func New(deps Dependencies) *Processor {
	p := &Processor{
		accounts: deps.Accounts,
		ledger:   deps.Ledger,
		mailbox:  deps.Mailbox,
		cipher:   deps.Cipher,
		sender:   deps.Sender,
		enqueuer: deps.Enqueuer,
		metrics:  deps.Metrics,
	}
	if p.sender == nil {
		p.sender = notifier.NopSender{}
	}
	if p.enqueuer == nil {
		p.enqueuer = enrichment.LogEnqueuer{}
	}
	if p.metrics == nil {
		// unregistered collectors, nothing is exported
		p.metrics = metrics.NewMetrics(prometheus.NewRegistry())
	}
	return p
}

// Run adapts Process to the dispatcher's job signature.
func (p *Processor) Run(ctx context.Context, userID uint, now time.Time) {
	p.Process(ctx, userID, now)
}

// Process performs one complete check for userID. now is the tick time and
// is used for every timestamp the run writes.
func (p *Processor) Process(ctx context.Context, userID uint, now time.Time) (outcome Outcome) {
	start := time.Now()
	log := logrus.WithField("user_id", userID)

	defer func() {
		if r := recover(); r != nil {
			log.Errorf("Panic during mailbox check: %v\n%s", r, debug.Stack())
			outcome = p.fail(ctx, userID, now, FailureUnexpected, fmt.Errorf("panic: %v", r))
		}
		p.metrics.RunDuration.Observe(time.Since(start).Seconds())
		p.metrics.Runs.WithLabelValues(outcome.label()).Inc()
	}()

	account, err := p.accounts.FindByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		log.Warn("Account not found, skipping")
		return Outcome{State: StateSkipped}
	}
	if err != nil {
		return p.fail(ctx, userID, now, FailureUnexpected, fmt.Errorf("load account: %w", err))
	}
	log = log.WithField("email", account.Email)

	if !account.HasCredential() {
		return p.fail(ctx, userID, now, FailureDecrypt, errors.New("no stored mailbox credential"))
	}
	password, err := p.cipher.Decrypt(*account.EncryptedPOP3Password)
	if err != nil {
		return p.fail(ctx, userID, now, FailureDecrypt, err)
	}

	log.Debug("Fetching mailbox")
	messages, err := p.mailbox.FetchRecent(ctx, account.Email, password)
	if err != nil {
		kind := FailureUnexpected
		if errors.Is(err, mailbox.ErrConnection) {
			kind = FailureConnection
		}
		return p.fail(ctx, userID, now, kind, err)
	}

	log.Debugf("Filtering %d fetched messages", len(messages))
	cutoff := account.Cutoff()
	results := make([]messageResult, 0, len(messages))
	for _, msg := range messages {
		results = append(results, p.handleMessage(ctx, account, msg, cutoff, now))
	}

	summary := summarize(results)
	if summary.errorCount > 0 {
		return p.fail(ctx, userID, now, FailureUnexpected,
			fmt.Errorf("%d of %d messages failed: %w", summary.errorCount, len(messages), summary.firstErr))
	}

	account.RecordSuccess(now)
	if err := p.accounts.Save(ctx, account); err != nil {
		return p.fail(ctx, userID, now, FailureUnexpected, err)
	}

	if summary.newCount > 0 {
		log.Infof("Processed %d new messages", summary.newCount)
	} else {
		log.Debug("No new messages")
	}
	return Outcome{State: StateSucceeded, NewMessages: summary.newCount}
}

func (p *Processor) handleMessage(ctx context.Context, account *model.Account, msg mailbox.MessageSummary, cutoff, now time.Time) messageResult {
	log := logrus.WithFields(logrus.Fields{
		"user_id":    account.ID,
		"message_id": msg.MessageID,
	})

	if msg.ReceivedAt.Before(cutoff) {
		return p.skip(msg, "cutoff")
	}

	seen, err := p.ledger.Exists(ctx, account.ID, msg.MessageID)
	if err != nil {
		log.WithError(err).Error("Dedup lookup failed")
		return messageResult{status: resultError, messageID: msg.MessageID, err: err}
	}
	if seen {
		return p.skip(msg, "duplicate")
	}

	p.notify(ctx, account, msg)

	record := &model.ProcessedMessage{
		UserID:      account.ID,
		MessageID:   msg.MessageID,
		Subject:     truncate(msg.Subject, model.MaxSubjectLength),
		FromAddress: truncate(msg.From, model.MaxFromLength),
		Body:        msg.Body,
		ProcessedAt: now,
	}
	if err := p.ledger.Save(ctx, record); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			log.Debug("Message recorded concurrently, skipping")
			return p.skip(msg, "duplicate")
		}
		log.WithError(err).Error("Failed to record processed message")
		return messageResult{status: resultError, messageID: msg.MessageID, err: err}
	}

	// the row is committed; enrichment is strictly after
	p.enqueue(ctx, record.ID)

	p.metrics.NewMessages.Inc()
	return messageResult{status: resultNew, messageID: msg.MessageID}
}

func (p *Processor) skip(msg mailbox.MessageSummary, reason string) messageResult {
	p.metrics.SkippedMessages.WithLabelValues(reason).Inc()
	return messageResult{status: resultSkipped, messageID: msg.MessageID, reason: reason}
}

// notify is best-effort: failures are logged and never affect the run.
func (p *Processor) notify(ctx context.Context, account *model.Account, msg mailbox.MessageSummary) {
	log := logrus.WithFields(logrus.Fields{
		"user_id":    account.ID,
		"message_id": msg.MessageID,
	})

	if account.SlackUserID == nil || *account.SlackUserID == "" {
		log.Warn("No notification channel for account, skipping notification")
		p.metrics.Notifications.WithLabelValues("no_channel").Inc()
		return
	}

	if err := p.sender.Send(ctx, *account.SlackUserID, notifier.FormatAlert(account.Email, msg)); err != nil {
		log.WithError(err).Error("Failed to send notification, continuing")
		p.metrics.Notifications.WithLabelValues("failed").Inc()
		return
	}
	p.metrics.Notifications.WithLabelValues("sent").Inc()
}

func (p *Processor) enqueue(ctx context.Context, processedMessageID uint) {
	if err := p.enqueuer.Enqueue(ctx, processedMessageID); err != nil {
		logrus.WithField("processed_message_id", processedMessageID).WithError(err).Error("Failed to enqueue enrichment")
		p.metrics.Enrichment.WithLabelValues("failed").Inc()
		return
	}
	p.metrics.Enrichment.WithLabelValues("enqueued").Inc()
}

// fail records the failure on a freshly loaded copy of the account. Errors
// while doing so are logged and swallowed.
func (p *Processor) fail(ctx context.Context, userID uint, now time.Time, kind FailureKind, cause error) Outcome {
	outcome := Outcome{State: StateFailed, Kind: kind, Err: cause}
	log := logrus.WithFields(logrus.Fields{
		"user_id": userID,
		"kind":    kind,
	})

	account, err := p.accounts.FindByID(ctx, userID)
	if err != nil {
		log.WithError(err).Errorf("Failed to load account for backoff update after: %v", cause)
		return outcome
	}

	count := account.RecordFailure()
	delay := Backoff(count)
	account.ScheduleRetry(now, delay)

	log = log.WithFields(logrus.Fields{
		"email":         account.Email,
		"failure_count": count,
		"retry_in":      delay.String(),
	})
	switch kind {
	case FailureConnection:
		log.Warnf("Mailbox connection failed: %v", cause)
	case FailureDecrypt:
		log.Errorf("Credential could not be decrypted: %v", cause)
	default:
		log.Errorf("Unexpected error during mailbox check: %+v", cause)
	}

	if err := p.accounts.Save(ctx, account); err != nil {
		log.WithError(err).Error("Failed to save account backoff state")
	}
	return outcome
}

// truncate cuts s to at most max runes.
func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}

var _ Decrypter = (*crypto.Cipher)(nil)
