package sale

import (
	"fmt"
	"strings"
	"time"

	sale_errors "sale-service/pkg/errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status is the saga state of a sale
type Status string

const (
	StatusPendingDetails Status = "PENDING_DETAILS"
	StatusApproved       Status = "APPROVED"
	StatusRejected       Status = "REJECTED"
)

// DefaultRejectionReason is used when a failure event carries no reason.
const DefaultRejectionReason = "unknown"

// AmountScale is the number of decimal places stored for amounts.
const AmountScale = 2

// MaxTotalAmount is the largest total the sales table can hold (NUMERIC(18,2)).
var MaxTotalAmount = decimal.New(1, 16).Sub(decimal.New(1, -AmountScale))

func (s Status) Valid() bool {
	switch s {
	case StatusPendingDetails, StatusApproved, StatusRejected:
		return true
	}
	return false
}

func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// Sale represents the sales table
type Sale struct {
	ID              uuid.UUID       `json:"id"`
	Date            time.Time       `json:"date"`
	TotalAmount     decimal.Decimal `json:"totalAmount"`
	ClientID        string          `json:"clientId"`
	Status          Status          `json:"status"`
	RejectionReason *string         `json:"rejection_reason"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       *time.Time      `json:"updated_at"`
	CreatedBy       *string         `json:"created_by"`
	UpdatedBy       *string         `json:"updated_by"`
	IsDeleted       bool            `json:"is_deleted"`
}

// Item is a requested sale line. Items are persisted by the details service,
// this service only forwards them in the creation event.
type Item struct {
	MedID    string          `json:"MedId"`
	Quantity int             `json:"Quantity"`
	Price    decimal.Decimal `json:"Price"`
}

// New builds a sale in PENDING_DETAILS with a zero total.
func New(clientID, createdBy string, now time.Time) *Sale {
	now = now.UTC()
	s := &Sale{
		ID:          uuid.New(),
		Date:        now,
		TotalAmount: decimal.Zero,
		ClientID:    strings.TrimSpace(clientID),
		Status:      StatusPendingDetails,
		CreatedAt:   now,
	}
	if createdBy != "" {
		s.CreatedBy = &createdBy
	}
	return s
}

// CanTransition reports whether status may move from -> to.
// Staying in place is always allowed.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	return from == StatusPendingDetails && to.Terminal()
}

func (s *Sale) Validate() error {
	if s.ClientID == "" {
		return fmt.Errorf("%w: client id is required", sale_errors.ErrInvalidInput)
	}
	if !s.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", sale_errors.ErrInvalidInput, s.Status)
	}
	if err := checkTotal(s.TotalAmount); err != nil {
		return err
	}
	hasReason := s.RejectionReason != nil && *s.RejectionReason != ""
	if s.Status == StatusRejected && !hasReason {
		return fmt.Errorf("%w: rejected sale needs a rejection reason", sale_errors.ErrInvalidInput)
	}
	if s.Status != StatusRejected && hasReason {
		return fmt.Errorf("%w: rejection reason only allowed on rejected sales", sale_errors.ErrInvalidInput)
	}
	return nil
}

// ApplyDetails records the total computed by the details service. Status is untouched.
func (s *Sale) ApplyDetails(total decimal.Decimal, now time.Time) error {
	if err := checkTotal(total); err != nil {
		return err
	}
	s.TotalAmount = total.Round(AmountScale)
	s.touch(now, nil)
	return nil
}

// Approve finalizes the sale after stock was reserved. A nil total keeps the current one.
// Approving an approved sale returns ErrAlreadyFinal and changes nothing.
func (s *Sale) Approve(total *decimal.Decimal, now time.Time) error {
	if err := s.finalize(StatusApproved); err != nil {
		return err
	}
	if total != nil {
		if err := checkTotal(*total); err != nil {
			return err
		}
		s.TotalAmount = total.Round(AmountScale)
	}
	s.Status = StatusApproved
	s.touch(now, nil)
	return nil
}

// Reject finalizes the sale after stock reservation failed.
func (s *Sale) Reject(reason string, now time.Time) error {
	if err := s.finalize(StatusRejected); err != nil {
		return err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = DefaultRejectionReason
	}
	s.Status = StatusRejected
	s.RejectionReason = &reason
	s.touch(now, nil)
	return nil
}

func checkTotal(total decimal.Decimal) error {
	if total.IsNegative() {
		return fmt.Errorf("%w: total amount must not be negative", sale_errors.ErrInvalidInput)
	}
	if total.Round(AmountScale).GreaterThan(MaxTotalAmount) {
		return fmt.Errorf("%w: total amount exceeds %s", sale_errors.ErrInvalidInput, MaxTotalAmount.StringFixed(AmountScale))
	}
	return nil
}

func (s *Sale) finalize(target Status) error {
	if s.Status == target {
		return sale_errors.ErrAlreadyFinal
	}
	if !CanTransition(s.Status, target) {
		return fmt.Errorf("%w: %s -> %s", sale_errors.ErrInvalidTransition, s.Status, target)
	}
	return nil
}

// SoftDelete flags the sale as deleted. Status is left as is.
func (s *Sale) SoftDelete(updatedBy string, now time.Time) {
	s.IsDeleted = true
	s.touch(now, &updatedBy)
}

// Touch stamps the audit fields for an update made by updatedBy.
func (s *Sale) Touch(updatedBy string, now time.Time) {
	s.touch(now, &updatedBy)
}

func (s *Sale) touch(now time.Time, by *string) {
	t := now.UTC()
	s.UpdatedAt = &t
	if by != nil && *by != "" {
		s.UpdatedBy = by
	}
}
