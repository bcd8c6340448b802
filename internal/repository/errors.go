package repository

import "errors"

var (
	// ErrNotFound is returned when a lookup by primary key matches nothing.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when the ledger already holds (user_id, message_id).
	ErrDuplicate = errors.New("message already processed")
)
