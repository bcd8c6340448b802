package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"mailbox-poller/internal/model"
)

// ProcessedMessageRepository is the dedup ledger
type ProcessedMessageRepository struct {
	db *gorm.DB
}

func NewProcessedMessageRepository(db *gorm.DB) *ProcessedMessageRepository {
	return &ProcessedMessageRepository{db: db}
}

func (r *ProcessedMessageRepository) Exists(ctx context.Context, userID uint, messageID string) (bool, error) {
	var count int64
	result := r.db.WithContext(ctx).
		Model(&model.ProcessedMessage{}).
		Where("user_id = ? AND message_id = ?", userID, messageID).
		Count(&count)
	if result.Error != nil {
		return false, fmt.Errorf("database error checking processed message: %w", result.Error)
	}
	return count > 0, nil
}

// Save inserts the record in its own transaction. A concurrent insert of the
// same (user_id, message_id) yields ErrDuplicate.
func (r *ProcessedMessageRepository) Save(ctx context.Context, msg *model.ProcessedMessage) error {
	err := r.db.WithContext(ctx).Create(msg).Error
	if err == nil {
		return nil
	}
	if isDuplicateKey(err) {
		return fmt.Errorf("user %d message %s: %w", msg.UserID, msg.MessageID, ErrDuplicate)
	}
	return fmt.Errorf("failed to save processed message: %w", err)
}

func (r *ProcessedMessageRepository) FindByID(ctx context.Context, id uint) (*model.ProcessedMessage, error) {
	var msg model.ProcessedMessage
	result := r.db.WithContext(ctx).First(&msg, id)
	if result.Error == nil {
		return &msg, nil
	}
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	return nil, fmt.Errorf("database error loading processed message %d: %w", id, result.Error)
}

func (r *ProcessedMessageRepository) CountByUser(ctx context.Context, userID uint) (int64, error) {
	var count int64
	result := r.db.WithContext(ctx).Model(&model.ProcessedMessage{}).Where("user_id = ?", userID).Count(&count)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to count processed messages: %w", result.Error)
	}
	return count, nil
}

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "Duplicate entry")
}
