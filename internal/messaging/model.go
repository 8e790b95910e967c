package messaging

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidStatus is returned for a delivery status outside the vocabulary.
var ErrInvalidStatus = errors.New("messaging: invalid delivery status")

// Direction of a conversation message relative to the dealership.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// DeliveryStatus tracks a message through the transport.
type DeliveryStatus string

const (
	StatusReceived  DeliveryStatus = "received"
	StatusSent      DeliveryStatus = "sent"
	StatusDelivered DeliveryStatus = "delivered"
	StatusRead      DeliveryStatus = "read"
	StatusFailed    DeliveryStatus = "failed"
)

// ParseDeliveryStatus validates a provider status string.
func ParseDeliveryStatus(raw string) (DeliveryStatus, error) {
	s := DeliveryStatus(strings.ToLower(strings.TrimSpace(raw)))
	switch s {
	case StatusReceived, StatusSent, StatusDelivered, StatusRead, StatusFailed:
		return s, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
}

// replaceable lists the statuses a callback may overwrite. Callbacks arrive
// unordered, so a late "delivered" must not downgrade "read".
func (s DeliveryStatus) replaceable() []string {
	switch s {
	case StatusSent:
		return []string{string(StatusReceived)}
	case StatusDelivered:
		return []string{string(StatusReceived), string(StatusSent)}
	case StatusRead:
		return []string{string(StatusReceived), string(StatusSent), string(StatusDelivered)}
	case StatusFailed:
		return []string{string(StatusReceived), string(StatusSent), string(StatusDelivered)}
	}
	return nil
}

// Message is one inbound or outbound turn of a lead conversation. Only
// Status and ErrorMessage change after insert.
type Message struct {
	ID           string
	LeadID       string
	Direction    Direction
	Content      string
	ExternalID   string
	Status       DeliveryStatus
	ErrorMessage string
	Embedding    []float32
	SentAt       *time.Time
	CreatedAt    time.Time
}
