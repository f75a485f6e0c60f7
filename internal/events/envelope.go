package events

import (
	"time"

	"sale-service/internal/domain/sale"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Amounts go on the wire as JSON numbers, which is what the other saga
// participants read. decimal quotes them by default.
func init() {
	decimal.MarshalJSONWithoutQuotes = true
}

// Outbound bodies. Every body carries MessageId so consumers can dedupe redeliveries.

type SaleHeaderCreated struct {
	MessageID string      `json:"MessageId"`
	SaleID    uuid.UUID   `json:"sale_id"`
	ClientID  string      `json:"client_id"`
	CreatedBy string      `json:"created_by"`
	Items     []sale.Item `json:"items"`
}

type SaleUpdated struct {
	MessageID     string     `json:"MessageId"`
	SaleID        uuid.UUID  `json:"sale_id"`
	UpdatedFields *sale.Sale `json:"updated_fields"`
	UpdatedBy     string     `json:"updated_by"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

type SaleCancelled struct {
	MessageID   string    `json:"MessageId"`
	SaleID      uuid.UUID `json:"sale_id"`
	Reason      string    `json:"reason"`
	CancelledBy string    `json:"cancelled_by,omitempty"`
}

type SaleCompleted struct {
	MessageID   string          `json:"MessageId"`
	SaleID      uuid.UUID       `json:"sale_id"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	CompletedAt time.Time       `json:"completed_at"`
}

type SaleFailed struct {
	MessageID string    `json:"MessageId"`
	SaleID    uuid.UUID `json:"sale_id"`
	Reason    string    `json:"reason"`
	FailedAt  time.Time `json:"failed_at"`
}
