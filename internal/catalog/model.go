package catalog

import (
	"time"

	"github.com/google/uuid"
)

// ServiceType is a bookable service. Duration is the unit the scheduler
// reserves; price is in minor currency units, never a float.
type ServiceType struct {
	ID              uuid.UUID
	OrgID           uuid.UUID
	Name            string
	DurationMinutes int
	PriceCents      int
	IsActive        bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Duration returns the reservation length.
func (s ServiceType) Duration() time.Duration {
	return time.Duration(s.DurationMinutes) * time.Minute
}

// Location is a physical place of business.
type Location struct {
	ID        uuid.UUID
	OrgID     uuid.UUID
	Name      string
	Timezone  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Spot is a physical station at a location (a chair, a room, a bay).
// Spots are a contended scheduling resource alongside staff.
type Spot struct {
	ID         uuid.UUID
	LocationID uuid.UUID
	Name       string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
