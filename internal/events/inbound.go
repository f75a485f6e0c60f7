package events

import (
	"bytes"
	"encoding/json"
	"fmt"

	sale_errors "sale-service/pkg/errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Inbound is the closed set of saga outcomes this service reacts to.
// Match it with a type switch; Unknown covers routing keys outside the set.
type Inbound interface {
	Key() RoutingKey
	// BodyMessageID is the MessageId carried in the body, "" when absent.
	BodyMessageID() string
	sealed()
}

type DetailsPersisted struct {
	MessageID       string
	SaleID          uuid.UUID
	TotalCalculated decimal.Decimal
}

type StockReserved struct {
	MessageID string
	SaleID    uuid.UUID
	// TotalCalculated is nil when the stock service did not send a total.
	TotalCalculated *decimal.Decimal
}

type StockReservationFailed struct {
	MessageID string
	SaleID    uuid.UUID
	Reason    string
}

type Unknown struct {
	RoutingKey RoutingKey
	MessageID  string
}

func (e DetailsPersisted) Key() RoutingKey       { return RoutingKeySaleDetailsPersisted }
func (e StockReserved) Key() RoutingKey          { return RoutingKeyStockReserved }
func (e StockReservationFailed) Key() RoutingKey { return RoutingKeyStockReservationFailed }
func (e Unknown) Key() RoutingKey                { return e.RoutingKey }

func (e DetailsPersisted) BodyMessageID() string       { return e.MessageID }
func (e StockReserved) BodyMessageID() string          { return e.MessageID }
func (e StockReservationFailed) BodyMessageID() string { return e.MessageID }
func (e Unknown) BodyMessageID() string                { return e.MessageID }

func (DetailsPersisted) sealed()       {}
func (StockReserved) sealed()          {}
func (StockReservationFailed) sealed() {}
func (Unknown) sealed()                {}

type inboundBody struct {
	MessageID       json.RawMessage  `json:"MessageId"`
	SaleID          string           `json:"sale_id"`
	TotalCalculated *decimal.Decimal `json:"total_calculated"`
	Reason          *string          `json:"reason"`
}

// ParseInbound decodes body for routing key rk. Any decoding problem or missing
// required field is reported as ErrMalformedMessage, since redelivery cannot fix it.
func ParseInbound(rk RoutingKey, body []byte) (Inbound, error) {
	if !rk.IsInbound() {
		return Unknown{RoutingKey: rk, MessageID: peekMessageID(body)}, nil
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("%w: body is not a JSON object", sale_errors.ErrMalformedMessage)
	}

	var raw inboundBody
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", sale_errors.ErrMalformedMessage, err)
	}

	saleID, err := uuid.Parse(raw.SaleID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid sale_id %q", sale_errors.ErrMalformedMessage, raw.SaleID)
	}
	messageID := stringOrEmpty(raw.MessageID)

	switch rk {
	case RoutingKeySaleDetailsPersisted:
		if raw.TotalCalculated == nil {
			return nil, fmt.Errorf("%w: total_calculated is required", sale_errors.ErrMalformedMessage)
		}
		return DetailsPersisted{MessageID: messageID, SaleID: saleID, TotalCalculated: *raw.TotalCalculated}, nil
	case RoutingKeyStockReserved:
		return StockReserved{MessageID: messageID, SaleID: saleID, TotalCalculated: raw.TotalCalculated}, nil
	case RoutingKeyStockReservationFailed:
		reason := ""
		if raw.Reason != nil {
			reason = *raw.Reason
		}
		return StockReservationFailed{MessageID: messageID, SaleID: saleID, Reason: reason}, nil
	}
	return Unknown{RoutingKey: rk, MessageID: messageID}, nil
}

func peekMessageID(body []byte) string {
	var raw struct {
		MessageID json.RawMessage `json:"MessageId"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return ""
	}
	return stringOrEmpty(raw.MessageID)
}

// stringOrEmpty accepts only JSON strings; other MessageId shapes fall back to the fingerprint.
func stringOrEmpty(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}
