package events

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
)

// Fingerprint is the content-addressed fallback id for messages without a MessageId:
// upper-case hex SHA-256 of routingKey + "|" + body.
func Fingerprint(routingKey string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(routingKey))
	h.Write([]byte("|"))
	h.Write(body)
	return strings.ToUpper(hex.EncodeToString(h.Sum(nil)))
}

// ResolveMessageID picks the body MessageId, then the transport message-id property,
// then the fingerprint.
func ResolveMessageID(bodyID, propertyID, routingKey string, body []byte) string {
	if id := strings.TrimSpace(bodyID); id != "" {
		return id
	}
	if id := strings.TrimSpace(propertyID); id != "" {
		return id
	}
	return Fingerprint(routingKey, body)
}

var notificationNamespace = uuid.MustParse("6f1c2a51-3f0e-4d53-9b0a-5b9d8f6e2c10")

// DerivedMessageID gives follow-up notifications a stable id per inbound message,
// so a redelivered inbound message republishes under the same id.
func DerivedMessageID(inboundID string, rk RoutingKey) string {
	return uuid.NewSHA1(notificationNamespace, []byte(string(rk)+"|"+inboundID)).String()
}

// NewMessageID returns a fresh id for outbox bodies.
func NewMessageID() string {
	return uuid.NewString()
}
