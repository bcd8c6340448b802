package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"mailbox-poller/internal/model"
)

// AccountRepository is the gorm-backed account store
type AccountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// FindEligibleForPolling returns every account that should be checked at now:
// active, polling enabled, credentialed and not inside a backoff window.
func (r *AccountRepository) FindEligibleForPolling(ctx context.Context, now time.Time) ([]model.Account, error) {
	var accounts []model.Account
	result := r.db.WithContext(ctx).
		Where("status = ? AND mail_polling_enabled = ?", model.AccountActive, true).
		Where("encrypted_pop3_password IS NOT NULL AND encrypted_pop3_password <> ''").
		Where("next_retry_at IS NULL OR next_retry_at <= ?", now).
		Order("id").
		Find(&accounts)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to find eligible accounts: %w", result.Error)
	}
	return accounts, nil
}

func (r *AccountRepository) FindByID(ctx context.Context, id uint) (*model.Account, error) {
	var account model.Account
	result := r.db.WithContext(ctx).First(&account, id)
	if result.Error == nil {
		return &account, nil
	}
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	return nil, fmt.Errorf("database error loading account %d: %w", id, result.Error)
}

func (r *AccountRepository) Create(ctx context.Context, account *model.Account) error {
	if err := r.db.WithContext(ctx).Create(account).Error; err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

// Save writes every column of the account, including nil pointers.
func (r *AccountRepository) Save(ctx context.Context, account *model.Account) error {
	if err := r.db.WithContext(ctx).Save(account).Error; err != nil {
		return fmt.Errorf("failed to save account %d: %w", account.ID, err)
	}
	return nil
}
