package staff

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Role distinguishes the business owner from hired staff.
type Role string

const (
	RoleOwner    Role = "owner"
	RoleEmployee Role = "employee"
)

// PermissionLevel determines what actions a staff member can perform.
type PermissionLevel string

const (
	PermissionOwner  PermissionLevel = "owner"
	PermissionAdmin  PermissionLevel = "admin"
	PermissionStaff  PermissionLevel = "staff"
	PermissionViewer PermissionLevel = "viewer"
)

// Permissions is the recognized per-member permission set. Extra keeps
// unvalidated keys for forward compatibility.
type Permissions struct {
	CanViewSchedule bool `json:"can_view_schedule"`
	CanBook         bool `json:"can_book"`
	CanCancel       bool `json:"can_cancel"`
	CanManageStaff  bool `json:"can_manage_staff"`

	Extra map[string]json.RawMessage `json:"-"`
}

// DefaultPermissions returns the permission set granted to a level.
func DefaultPermissions(level PermissionLevel) Permissions {
	switch level {
	case PermissionOwner, PermissionAdmin:
		return Permissions{CanViewSchedule: true, CanBook: true, CanCancel: true, CanManageStaff: true}
	case PermissionStaff:
		return Permissions{CanViewSchedule: true, CanBook: true, CanCancel: true}
	default:
		return Permissions{CanViewSchedule: true}
	}
}

// Member is a person who provides services and talks to the assistant
// from their personal WhatsApp number.
type Member struct {
	ID              uuid.UUID
	OrgID           uuid.UUID
	LocationID      *uuid.UUID
	DefaultSpotID   *uuid.UUID
	Name            string
	PhoneNumber     string
	Role            Role
	PermissionLevel PermissionLevel
	Permissions     Permissions
	IsActive        bool
	// FirstMessageAt is nil until the member's first WhatsApp message.
	// It separates staff who still need their own onboarding from staff
	// who have already talked to the assistant.
	FirstMessageAt *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
