package event

import (
	"encoding/json"
	"fmt"
	"time"
)

// Type names a server-originated event as it appears on the wire.
type Type string

const (
	TypePaymentReceived    Type = "payment_received"
	TypeMaintenanceRequest Type = "maintenance_request"
	TypeLeaseExpiring      Type = "lease_expiring"
	TypeRentOverdue        Type = "rent_overdue"
	TypeRentOverdueNotice  Type = "rent_overdue_notice"
	TypeSystemMaintenance  Type = "system_maintenance"
	TypeUserTyping         Type = "user_typing"
	TypeUserStoppedTyping  Type = "user_stopped_typing"
)

// Envelope is the payload of every outbound server frame. All four fields
// are always present on the wire; data is null when an event carries none.
type Envelope struct {
	Type      Type      `json:"type"`
	Message   string    `json:"message"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// NewEnvelope stamps an envelope with the default summary text for its type.
func NewEnvelope(t Type, data any) Envelope {
	return Envelope{
		Type:      t,
		Message:   t.summary(),
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}

func (t Type) summary() string {
	switch t {
	case TypePaymentReceived:
		return "Payment received"
	case TypeMaintenanceRequest:
		return "New maintenance request"
	case TypeLeaseExpiring:
		return "Lease expiring soon"
	case TypeRentOverdue:
		return "Rent payment overdue"
	case TypeRentOverdueNotice:
		return "Overdue rent notice issued"
	case TypeSystemMaintenance:
		return "Scheduled system maintenance"
	case TypeUserTyping:
		return "User is typing"
	case TypeUserStoppedTyping:
		return "User stopped typing"
	default:
		return string(t)
	}
}

// ServerMessage is the outer frame written to the client transport.
type ServerMessage struct {
	Event   Type     `json:"event"`
	Payload Envelope `json:"payload"`
}

// Marshal encodes a complete outbound frame for the given event type.
func Marshal(t Type, data any) ([]byte, error) {
	msg := ServerMessage{Event: t, Payload: NewEnvelope(t, data)}
	b, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s frame: %w", t, err)
	}
	return b, nil
}
