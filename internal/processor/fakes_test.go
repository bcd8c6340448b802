package processor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"mailbox-poller/internal/mailbox"
	"mailbox-poller/internal/model"
	"mailbox-poller/internal/repository"
)

type fakeAccounts struct {
	mu       sync.Mutex
	accounts map[uint]model.Account
	saves    int
	findErr  error
	saveErr  error
}

func newFakeAccounts(accounts ...model.Account) *fakeAccounts {
	f := &fakeAccounts{accounts: map[uint]model.Account{}}
	for _, a := range accounts {
		f.accounts[a.ID] = a
	}
	return f
}

func (f *fakeAccounts) FindByID(_ context.Context, id uint) (*model.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	a, ok := f.accounts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &a, nil
}

func (f *fakeAccounts) Save(_ context.Context, a *model.Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	if f.saveErr != nil {
		return f.saveErr
	}
	f.accounts[a.ID] = *a
	return nil
}

func (f *fakeAccounts) get(id uint) model.Account {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.accounts[id]
}

type fakeLedger struct {
	mu        sync.Mutex
	rows      map[string]*model.ProcessedMessage
	nextID    uint
	existsErr error
	saveErr   error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{rows: map[string]*model.ProcessedMessage{}}
}

func ledgerKey(userID uint, messageID string) string {
	return fmt.Sprintf("%d/%s", userID, messageID)
}

func (f *fakeLedger) Exists(_ context.Context, userID uint, messageID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.existsErr != nil {
		return false, f.existsErr
	}
	_, ok := f.rows[ledgerKey(userID, messageID)]
	return ok, nil
}

func (f *fakeLedger) Save(_ context.Context, msg *model.ProcessedMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	key := ledgerKey(msg.UserID, msg.MessageID)
	if _, ok := f.rows[key]; ok {
		return repository.ErrDuplicate
	}
	f.nextID++
	msg.ID = f.nextID
	stored := *msg
	f.rows[key] = &stored
	return nil
}

func (f *fakeLedger) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

type fakeMailbox struct {
	mu       sync.Mutex
	messages map[string][]mailbox.MessageSummary
	errs     map[string]error
	calls    int
	lastPass string
}

func (f *fakeMailbox) FetchRecent(_ context.Context, identity, credential string) ([]mailbox.MessageSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastPass = credential
	if err := f.errs[identity]; err != nil {
		return nil, err
	}
	return f.messages[identity], nil
}

type fakeCipher struct {
	err error
}

func (f fakeCipher) Decrypt(encoded string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "plain-" + encoded, nil
}

type sentNotification struct {
	channel string
	text    string
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentNotification
	err  error
}

func (f *fakeSender) Send(_ context.Context, channelID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentNotification{channel: channelID, text: text})
	return f.err
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fakeEnqueuer struct {
	mu  sync.Mutex
	ids []uint
	err error
}

func (f *fakeEnqueuer) Enqueue(_ context.Context, id uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids = append(f.ids, id)
	return f.err
}

var errBoom = errors.New("boom")
