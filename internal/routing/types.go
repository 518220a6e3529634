package routing

import (
	"time"

	"github.com/google/uuid"
)

// InboundMessage is the normalized envelope produced by a channel
// adapter. SenderPhone may arrive without a plus; the router normalizes
// it to E.164 before any lookup.
type InboundMessage struct {
	TenantChannelID string
	SenderPhone     string
	SenderName      string
	MessageID       string
	Content         string
	Timestamp       time.Time
}

// Role is the resolved sender identity class.
type Role string

const (
	RoleStaff    Role = "staff"
	RoleCustomer Role = "customer"
	RoleNone     Role = "none"
)

// Decision names which routing case handled the message.
type Decision string

const (
	DecisionDuplicate          Decision = "duplicate"
	DecisionOnboardingStart    Decision = "onboarding_start"
	DecisionOnboardingContinue Decision = "onboarding_continue"
	DecisionNotReady           Decision = "not_ready"
	DecisionStaff              Decision = "staff"
	DecisionCustomer           Decision = "customer"
)

// ResultStatus reports how routing ended.
type ResultStatus string

const (
	StatusOK        ResultStatus = "ok"
	StatusDuplicate ResultStatus = "duplicate"
	StatusError     ResultStatus = "error"
)

// RoutingResult exposes which case the router took and the resolved
// identity, for observability and tests.
type RoutingResult struct {
	Decision Decision
	Status   ResultStatus
	OrgID    uuid.UUID
	Role     Role
	Reply    string
}
