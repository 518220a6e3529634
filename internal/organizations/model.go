package organizations

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Status is the tenant lifecycle state.
type Status string

const (
	StatusOnboarding Status = "onboarding"
	StatusActive     Status = "active"
	StatusSuspended  Status = "suspended"
	StatusChurned    Status = "churned"
)

// Settings is the recognized per-tenant configuration. Unrecognized keys
// survive round trips through Extra so older rows keep forward-compatible
// data without the rest of the code having to guess at them.
type Settings struct {
	DefaultCountryCode string `json:"default_country_code,omitempty"`
	BookingWindowDays  int    `json:"booking_window_days,omitempty"`
	ReminderLeadHours  int    `json:"reminder_lead_hours,omitempty"`
	Greeting           string `json:"greeting,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

const (
	defaultBookingWindowDays = 30
	defaultReminderLeadHours = 24
)

// WithDefaults fills zero-valued recognized keys with their documented defaults.
func (s Settings) WithDefaults() Settings {
	if s.BookingWindowDays == 0 {
		s.BookingWindowDays = defaultBookingWindowDays
	}
	if s.ReminderLeadHours == 0 {
		s.ReminderLeadHours = defaultReminderLeadHours
	}
	return s
}

// MarshalJSON merges recognized keys with the opaque extension keys.
func (s Settings) MarshalJSON() ([]byte, error) {
	type plain Settings
	known, err := json.Marshal(plain(s))
	if err != nil {
		return nil, err
	}
	if len(s.Extra) == 0 {
		return known, nil
	}
	merged := map[string]json.RawMessage{}
	for k, v := range s.Extra {
		merged[k] = v
	}
	var recognized map[string]json.RawMessage
	if err := json.Unmarshal(known, &recognized); err != nil {
		return nil, err
	}
	for k, v := range recognized {
		merged[k] = v
	}
	return json.Marshal(merged)
}

// UnmarshalJSON splits recognized keys from extension keys.
func (s *Settings) UnmarshalJSON(data []byte) error {
	type plain Settings
	var known plain
	if err := json.Unmarshal(data, &known); err != nil {
		return err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	delete(all, "default_country_code")
	delete(all, "booking_window_days")
	delete(all, "reminder_lead_hours")
	delete(all, "greeting")
	*s = Settings(known)
	if len(all) > 0 {
		s.Extra = all
	}
	return nil
}

// Organization is one business tenant. All other entities hang off it.
type Organization struct {
	ID                    uuid.UUID
	Name                  string
	PhoneCountryCode      string
	PhoneNumber           string
	WhatsAppPhoneNumberID string
	Timezone              string
	Status                Status
	Settings              Settings
	OnboardingState       string
	LastMessageAt         *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// Location returns the tz location for the org, falling back to UTC.
func (o *Organization) Location() *time.Location {
	loc, err := time.LoadLocation(o.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
