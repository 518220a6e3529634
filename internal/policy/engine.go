package policy

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/diegovillafuerte/parlo/internal/catalog"
	"github.com/diegovillafuerte/parlo/internal/organizations"
)

// ChatRole identifies who authored a chat message.
type ChatRole string

const (
	ChatRoleUser      ChatRole = "user"
	ChatRoleAssistant ChatRole = "assistant"
)

// ChatMessage is one turn of conversation context fed to the engine.
type ChatMessage struct {
	Role    ChatRole `json:"role"`
	Content string   `json:"content"`
}

// ActionKind names an operation the engine can request.
type ActionKind string

const (
	ActionCheckAvailability ActionKind = "check_availability"
	ActionBook              ActionKind = "book_appointment"
	ActionCancel            ActionKind = "cancel_appointment"
	ActionListAppointments  ActionKind = "list_appointments"
)

// Action is a structured operation request returned by the engine
// instead of (or before) a plain reply. Fields are populated per kind.
type Action struct {
	Kind          ActionKind `json:"action"`
	ServiceTypeID uuid.UUID  `json:"service_type_id,omitempty"`
	StaffID       *uuid.UUID `json:"staff_id,omitempty"`
	AppointmentID uuid.UUID  `json:"appointment_id,omitempty"`
	Start         time.Time  `json:"start,omitempty"`
	DateFrom      time.Time  `json:"date_from,omitempty"`
	DateTo        time.Time  `json:"date_to,omitempty"`
	Reason        string     `json:"reason,omitempty"`
}

// Reply is the engine's answer: plain text, or an action for the
// executor with Text empty.
type Reply struct {
	Text   string
	Action *Action
}

// Prompt carries everything the engine needs for one turn.
type Prompt struct {
	Org        *organizations.Organization
	SenderRole string
	SenderName string
	Services   []catalog.ServiceType
	History    []ChatMessage
	Content    string
}

// Engine is the conversation-policy boundary. Respond produces either
// text or an action; PhraseResult turns an executed action's outcome
// into the final user-facing text.
type Engine interface {
	Respond(ctx context.Context, p Prompt) (Reply, error)
	PhraseResult(ctx context.Context, p Prompt, action Action, result ActionResult) (string, error)
}
