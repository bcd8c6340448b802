package model

import (
	"time"
)

// AccountStatus is the lifecycle state of a mail account
type AccountStatus string

const (
	AccountPending AccountStatus = "PENDING"
	AccountActive  AccountStatus = "ACTIVE"
	AccountLocked  AccountStatus = "LOCKED"
)

// Account is a user whose POP3 mailbox is polled
type Account struct {
	ID                    uint          `json:"id" gorm:"primaryKey;autoIncrement"`
	Email                 string        `json:"email" gorm:"type:varchar(200);not null;uniqueIndex"`
	EncryptedPOP3Password *string       `json:"-" gorm:"column:encrypted_pop3_password;type:varchar(500)"`
	Status                AccountStatus `json:"status" gorm:"type:varchar(20);not null;default:'PENDING';index"`
	MailPollingEnabled    bool          `json:"mail_polling_enabled" gorm:"not null;default:false"`
	ActivatedAt           *time.Time    `json:"activated_at"`
	SlackUserID           *string       `json:"slack_user_id" gorm:"type:varchar(50)"`
	LastCheckedAt         *time.Time    `json:"last_checked_at"`
	FailureCount          int           `json:"failure_count" gorm:"not null;default:0"`
	NextRetryAt           *time.Time    `json:"next_retry_at" gorm:"index"`
	CreatedAt             time.Time     `json:"created_at"`
	UpdatedAt             time.Time     `json:"updated_at"`
}

// TableName specifies the table name for Account
func (Account) TableName() string {
	return "accounts"
}

// HasCredential reports whether an encrypted POP3 password is stored.
func (a *Account) HasCredential() bool {
	return a.EncryptedPOP3Password != nil && *a.EncryptedPOP3Password != ""
}

// IsEligible mirrors the polling query: active, enabled, credentialed and not backing off.
func (a *Account) IsEligible(now time.Time) bool {
	if a.Status != AccountActive || !a.MailPollingEnabled || !a.HasCredential() {
		return false
	}
	return a.NextRetryAt == nil || !a.NextRetryAt.After(now)
}

// Cutoff is the earliest receive time a message may have to be notified.
// Accounts without an activation time fall back to their creation time.
func (a *Account) Cutoff() time.Time {
	if a.ActivatedAt != nil {
		return *a.ActivatedAt
	}
	return a.CreatedAt
}

// RecordSuccess clears any backoff after a completed check.
func (a *Account) RecordSuccess(now time.Time) {
	checked := now
	a.LastCheckedAt = &checked
	a.FailureCount = 0
	a.NextRetryAt = nil
}

// RecordFailure bumps the failure counter and returns the new count.
// The caller computes the delay and passes it to ScheduleRetry.
func (a *Account) RecordFailure() int {
	a.FailureCount++
	return a.FailureCount
}

func (a *Account) ScheduleRetry(now time.Time, delay time.Duration) {
	retryAt := now.Add(delay)
	a.NextRetryAt = &retryAt
}
