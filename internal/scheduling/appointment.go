package scheduling

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// AppointmentStatus is the appointment lifecycle state.
type AppointmentStatus string

const (
	StatusPending   AppointmentStatus = "pending"
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusCancelled AppointmentStatus = "cancelled"
	StatusCompleted AppointmentStatus = "completed"
	StatusNoShow    AppointmentStatus = "no_show"
)

// Terminal reports whether the status releases the reserved resources.
func (s AppointmentStatus) Terminal() bool {
	switch s {
	case StatusCancelled, StatusCompleted, StatusNoShow:
		return true
	default:
		return false
	}
}

// ErrSlotTaken is returned when a write loses the race against a
// concurrent booking: the database exclusion constraint rejected the
// overlap. Callers surface it the same way as a pre-flight conflict.
var ErrSlotTaken = errors.New("scheduling: slot no longer available")

// ErrNotFound is returned when no appointment matches the lookup.
var ErrNotFound = errors.New("scheduling: appointment not found")

// Appointment reserves a staff member and/or a spot for a half-open
// interval [ScheduledStart, ScheduledEnd). Rows are never deleted, only
// transitioned between statuses.
type Appointment struct {
	ID                 uuid.UUID
	OrgID              uuid.UUID
	LocationID         uuid.UUID
	CustomerID         uuid.UUID
	ServiceTypeID      uuid.UUID
	StaffID            *uuid.UUID
	SpotID             *uuid.UUID
	ScheduledStart     time.Time
	ScheduledEnd       time.Time
	Status             AppointmentStatus
	Source             string
	CancellationReason string
	CompletionNotes    string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// ConflictQuery describes a proposed reservation to check before writing.
// ExcludeAppointmentID removes one appointment from consideration so a
// reschedule does not collide with its own current slot.
type ConflictQuery struct {
	OrgID                uuid.UUID
	StaffID              *uuid.UUID
	SpotID               *uuid.UUID
	Start                time.Time
	End                  time.Time
	ExcludeAppointmentID *uuid.UUID
}
