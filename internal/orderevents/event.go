package orderevents

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	TypeOrderPaid      = "order.paid"
	TypeOrderCancelled = "order.cancelled"
	TypeOrderRefunded  = "order.refunded"
)

var (
	ErrInvalidEvent     = errors.New("invalid_order_event")
	ErrUnknownEventType = errors.New("unknown_order_event_type")
)

// Event is the notification the order subsystem publishes when an order
// changes payment state.
type Event struct {
	OrderID    uuid.UUID `json:"order_id"`
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (e Event) Validate() error {
	if e.OrderID == uuid.Nil {
		return ErrInvalidEvent
	}
	switch e.Type {
	case TypeOrderPaid, TypeOrderCancelled, TypeOrderRefunded:
		return nil
	default:
		return ErrUnknownEventType
	}
}

func DecodeEvent(raw []byte) (Event, error) {
	var evt Event
	if err := json.Unmarshal(raw, &evt); err != nil {
		return Event{}, ErrInvalidEvent
	}
	evt.Type = strings.ToLower(strings.TrimSpace(evt.Type))
	if err := evt.Validate(); err != nil {
		return Event{}, err
	}
	return evt, nil
}
