package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailbox-poller/internal/db/dbtest"
	"mailbox-poller/internal/model"
)

func strPtr(s string) *string { return &s }

func TestFindEligibleForPolling(t *testing.T) {
	ctx := context.Background()
	repo := NewAccountRepository(dbtest.NewSQLite(t))
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	future := now.Add(5 * time.Minute)

	seed := []model.Account{
		{Email: "ready@example.com", Status: model.AccountActive, MailPollingEnabled: true, EncryptedPOP3Password: strPtr("c1")},
		{Email: "retry-due@example.com", Status: model.AccountActive, MailPollingEnabled: true, EncryptedPOP3Password: strPtr("c2"), NextRetryAt: &past, FailureCount: 1},
		{Email: "backing-off@example.com", Status: model.AccountActive, MailPollingEnabled: true, EncryptedPOP3Password: strPtr("c3"), NextRetryAt: &future, FailureCount: 2},
		{Email: "disabled@example.com", Status: model.AccountActive, MailPollingEnabled: false, EncryptedPOP3Password: strPtr("c4")},
		{Email: "pending@example.com", Status: model.AccountPending, MailPollingEnabled: true, EncryptedPOP3Password: strPtr("c5")},
		{Email: "nocred@example.com", Status: model.AccountActive, MailPollingEnabled: true},
	}
	for i := range seed {
		require.NoError(t, repo.Create(ctx, &seed[i]))
	}

	accounts, err := repo.FindEligibleForPolling(ctx, now)
	require.NoError(t, err)

	var emails []string
	for _, a := range accounts {
		emails = append(emails, a.Email)
	}
	assert.Equal(t, []string{"ready@example.com", "retry-due@example.com"}, emails)
}

func TestAccountFindByIDAndSave(t *testing.T) {
	ctx := context.Background()
	repo := NewAccountRepository(dbtest.NewSQLite(t))
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	_, err := repo.FindByID(ctx, 42)
	assert.ErrorIs(t, err, ErrNotFound)

	account := &model.Account{Email: "user@example.com", Status: model.AccountActive, MailPollingEnabled: true}
	require.NoError(t, repo.Create(ctx, account))

	account.RecordFailure()
	account.ScheduleRetry(now, time.Minute)
	require.NoError(t, repo.Save(ctx, account))

	loaded, err := repo.FindByID(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.FailureCount)
	require.NotNil(t, loaded.NextRetryAt)
	assert.True(t, now.Add(time.Minute).Equal(*loaded.NextRetryAt))

	loaded.RecordSuccess(now)
	require.NoError(t, repo.Save(ctx, loaded))

	reloaded, err := repo.FindByID(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, reloaded.FailureCount)
	assert.Nil(t, reloaded.NextRetryAt)
	require.NotNil(t, reloaded.LastCheckedAt)
}

func TestProcessedMessageLedger(t *testing.T) {
	ctx := context.Background()
	repo := NewProcessedMessageRepository(dbtest.NewSQLite(t))
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	exists, err := repo.Exists(ctx, 1, "<a@example.com>")
	require.NoError(t, err)
	assert.False(t, exists)

	first := &model.ProcessedMessage{UserID: 1, MessageID: "<a@example.com>", Subject: "hi", ProcessedAt: now}
	require.NoError(t, repo.Save(ctx, first))
	assert.NotZero(t, first.ID)

	exists, err = repo.Exists(ctx, 1, "<a@example.com>")
	require.NoError(t, err)
	assert.True(t, exists)

	// same message id for a different user is a separate entry
	other := &model.ProcessedMessage{UserID: 2, MessageID: "<a@example.com>", ProcessedAt: now}
	require.NoError(t, repo.Save(ctx, other))

	dup := &model.ProcessedMessage{UserID: 1, MessageID: "<a@example.com>", ProcessedAt: now}
	assert.ErrorIs(t, repo.Save(ctx, dup), ErrDuplicate)

	count, err := repo.CountByUser(ctx, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	loaded, err := repo.FindByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "hi", loaded.Subject)

	_, err = repo.FindByID(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)
}
