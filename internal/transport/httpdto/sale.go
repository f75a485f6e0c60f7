package httpdto

import (
	"time"

	"sale-service/internal/domain/sale"

	"github.com/shopspring/decimal"
)

type SaleItemRequest struct {
	MedID    string          `json:"MedId" binding:"required"`
	Quantity int             `json:"Quantity" binding:"required,gt=0"`
	Price    decimal.Decimal `json:"Price"`
}

type CreateSaleRequest struct {
	ClientID string            `json:"client_id" binding:"required"`
	Items    []SaleItemRequest `json:"items" binding:"dive"`
}

// UpdateSaleRequest carries the full set of mutable fields; omitted fields are reset.
type UpdateSaleRequest struct {
	ClientID        string          `json:"client_id" binding:"required"`
	Date            *time.Time      `json:"date"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	Status          string          `json:"status" binding:"required"`
	RejectionReason *string         `json:"rejection_reason"`
}

type SaleResponse struct {
	ID              string     `json:"id"`
	Date            time.Time  `json:"date"`
	TotalAmount     string     `json:"total_amount"`
	ClientID        string     `json:"client_id"`
	Status          string     `json:"status"`
	RejectionReason *string    `json:"rejection_reason,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       *time.Time `json:"updated_at,omitempty"`
	CreatedBy       *string    `json:"created_by,omitempty"`
	UpdatedBy       *string    `json:"updated_by,omitempty"`
}

type ListSalesResponse struct {
	Sales []SaleResponse `json:"sales"`
	Total int            `json:"total"`
}

func (r CreateSaleRequest) ToItems() []sale.Item {
	items := make([]sale.Item, 0, len(r.Items))
	for _, it := range r.Items {
		items = append(items, sale.Item{MedID: it.MedID, Quantity: it.Quantity, Price: it.Price})
	}
	return items
}

func FromSale(s *sale.Sale) SaleResponse {
	return SaleResponse{
		ID:              s.ID.String(),
		Date:            s.Date,
		TotalAmount:     s.TotalAmount.StringFixed(2),
		ClientID:        s.ClientID,
		Status:          string(s.Status),
		RejectionReason: s.RejectionReason,
		CreatedAt:       s.CreatedAt,
		UpdatedAt:       s.UpdatedAt,
		CreatedBy:       s.CreatedBy,
		UpdatedBy:       s.UpdatedBy,
	}
}

func FromSales(items []sale.Sale) ListSalesResponse {
	out := make([]SaleResponse, 0, len(items))
	for i := range items {
		out = append(out, FromSale(&items[i]))
	}
	return ListSalesResponse{Sales: out, Total: len(out)}
}
