package conversations

import (
	"time"

	"github.com/google/uuid"
)

// Status is the conversation lifecycle state. Conversations are closed,
// never deleted.
type Status string

const (
	StatusActive Status = "active"
	StatusClosed Status = "closed"
)

// Direction distinguishes messages received from WhatsApp from messages
// the assistant sent.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// SenderType identifies who authored a message.
type SenderType string

const (
	SenderCustomer  SenderType = "customer"
	SenderStaff     SenderType = "staff"
	SenderAssistant SenderType = "assistant"
)

// Conversation is a customer's ongoing thread with the assistant. At
// most one active conversation exists per (org, customer); a partial
// unique index enforces that under concurrency.
type Conversation struct {
	ID            uuid.UUID
	OrgID         uuid.UUID
	CustomerID    uuid.UUID
	Status        Status
	LastMessageAt *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Message is one WhatsApp message, inbound or outbound. ConversationID
// is nil for staff and onboarding traffic, which has no customer
// conversation. WAMessageID is the provider's id and doubles as the
// idempotency key for inbound messages.
type Message struct {
	ID             uuid.UUID
	ConversationID *uuid.UUID
	OrgID          uuid.UUID
	Direction      Direction
	SenderType     SenderType
	ContentType    string
	Content        string
	WAMessageID    *string
	CreatedAt      time.Time
}
