package sale_errors

import (
	"errors"
	"time"
)

// Common errors
var (
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrAlreadyFinal      = errors.New("sale already in requested final state")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrNotFound          = errors.New("not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrAlreadyProcessed  = errors.New("message already processed")
	ErrMalformedMessage  = errors.New("malformed message")
	ErrTxActive          = errors.New("transaction already active")
	ErrNoTx              = errors.New("no active transaction")
)

// NowPtr returns a pointer to current time
func NowPtr() *time.Time {
	now := time.Now().UTC()
	return &now
}
