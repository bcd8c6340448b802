package processor

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailbox-poller/internal/crypto"
	"mailbox-poller/internal/db/dbtest"
	"mailbox-poller/internal/dispatcher"
	"mailbox-poller/internal/mailbox"
	"mailbox-poller/internal/metrics"
	"mailbox-poller/internal/model"
	"mailbox-poller/internal/repository"
)

func TestProcessAgainstDatabase(t *testing.T) {
	ctx := context.Background()
	gdb := dbtest.NewSQLite(t)
	accounts := repository.NewAccountRepository(gdb)
	ledger := repository.NewProcessedMessageRepository(gdb)

	cipher, err := crypto.NewCipher(make([]byte, 32))
	require.NoError(t, err)
	sealed, err := cipher.Encrypt("pop-secret")
	require.NoError(t, err)

	activated := testActivated
	good := &model.Account{
		Email:                 "good@example.com",
		EncryptedPOP3Password: &sealed,
		Status:                model.AccountActive,
		MailPollingEnabled:    true,
		ActivatedAt:           &activated,
		SlackUserID:           strPtr("UGOOD"),
	}
	broken := &model.Account{
		Email:                 "broken@example.com",
		EncryptedPOP3Password: &sealed,
		Status:                model.AccountActive,
		MailPollingEnabled:    true,
		ActivatedAt:           &activated,
		SlackUserID:           strPtr("UBROKEN"),
	}
	require.NoError(t, accounts.Create(ctx, good))
	require.NoError(t, accounts.Create(ctx, broken))

	box := &fakeMailbox{
		messages: map[string][]mailbox.MessageSummary{
			good.Email: {
				testMessage("<1@x>", testNow.Add(-time.Hour)),
				testMessage("<2@x>", testNow.Add(-time.Minute)),
			},
		},
		errs: map[string]error{
			broken.Email: fmt.Errorf("%w: connection refused", mailbox.ErrConnection),
		},
	}
	sender := &fakeSender{}
	enqueuer := &fakeEnqueuer{}
	m := metrics.NewMetrics(prometheus.NewRegistry())
	proc := New(Dependencies{
		Accounts: accounts,
		Ledger:   ledger,
		Mailbox:  box,
		Cipher:   cipher,
		Sender:   sender,
		Enqueuer: enqueuer,
		Metrics:  m,
	})

	d := dispatcher.New(dispatcher.Config{
		CoreWorkers:   2,
		MaxWorkers:    2,
		QueueCapacity: 4,
		NamePrefix:    "test-",
		DrainTimeout:  5 * time.Second,
	}, proc.Run, dispatcher.NewInFlight(), m)

	eligible, err := accounts.FindEligibleForPolling(ctx, testNow)
	require.NoError(t, err)
	require.Len(t, eligible, 2)
	for _, a := range eligible {
		result, err := d.Dispatch(a.ID, testNow)
		require.NoError(t, err)
		assert.Equal(t, dispatcher.Accepted, result)
	}
	require.NoError(t, d.Shutdown(ctx))

	assert.Equal(t, "pop-secret", box.lastPass)

	count, err := ledger.CountByUser(ctx, good.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
	assert.Equal(t, 2, sender.count())
	require.Len(t, enqueuer.ids, 2)
	for _, id := range enqueuer.ids {
		row, err := ledger.FindByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, good.ID, row.UserID)
	}

	reloadedGood, err := accounts.FindByID(ctx, good.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, reloadedGood.FailureCount)
	require.NotNil(t, reloadedGood.LastCheckedAt)
	assert.WithinDuration(t, testNow, *reloadedGood.LastCheckedAt, time.Second)

	reloadedBroken, err := accounts.FindByID(ctx, broken.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, reloadedBroken.FailureCount)
	require.NotNil(t, reloadedBroken.NextRetryAt)
	assert.WithinDuration(t, testNow.Add(time.Minute), *reloadedBroken.NextRetryAt, time.Second)

	// the broken account is backing off; the good one is polled again
	eligible, err = accounts.FindEligibleForPolling(ctx, testNow.Add(30*time.Second))
	require.NoError(t, err)
	require.Len(t, eligible, 1)
	assert.Equal(t, good.ID, eligible[0].ID)

	outcome := proc.Process(ctx, good.ID, testNow.Add(30*time.Second))
	assert.Equal(t, StateSucceeded, outcome.State)
	assert.Equal(t, 0, outcome.NewMessages)
	assert.Equal(t, 2, sender.count())
}
