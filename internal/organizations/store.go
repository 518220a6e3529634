package organizations

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when no organization matches the lookup.
var ErrNotFound = errors.New("organizations: not found")

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists organizations in Postgres.
type Store struct {
	pool querier
}

func NewStore(pool *pgxpool.Pool) *Store {
	if pool == nil {
		panic("organizations: pgx pool required")
	}
	return &Store{pool: pool}
}

func newStoreWithQuerier(q querier) *Store {
	return &Store{pool: q}
}

const orgColumns = `id, name, phone_country_code, phone_number,
		whatsapp_phone_number_id, timezone, status, settings,
		onboarding_state, last_message_at, created_at, updated_at`

// GetByChannelID resolves the tenant that owns an inbound WhatsApp number id.
func (s *Store) GetByChannelID(ctx context.Context, phoneNumberID string) (*Organization, error) {
	query := `
		SELECT ` + orgColumns + `
		FROM organizations
		WHERE whatsapp_phone_number_id = $1
	`
	return s.scanOne(s.pool.QueryRow(ctx, query, phoneNumberID))
}

// GetByID fetches an organization by primary key.
func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (*Organization, error) {
	query := `
		SELECT ` + orgColumns + `
		FROM organizations
		WHERE id = $1
	`
	return s.scanOne(s.pool.QueryRow(ctx, query, id))
}

// CreateOnboardingParams carries the minimum known about a brand-new tenant.
type CreateOnboardingParams struct {
	PhoneCountryCode string
	PhoneNumber      string
	Timezone         string
}

// CreateOnboarding inserts a tenant in onboarding status. The name stays
// empty until the onboarding conversation collects it.
func (s *Store) CreateOnboarding(ctx context.Context, p CreateOnboardingParams) (*Organization, error) {
	if p.Timezone == "" {
		p.Timezone = "America/Mexico_City"
	}
	settings, err := json.Marshal(Settings{}.WithDefaults())
	if err != nil {
		return nil, fmt.Errorf("organizations: marshal settings: %w", err)
	}
	id := uuid.New()
	query := `
		INSERT INTO organizations (
			id, phone_country_code, phone_number, timezone,
			status, settings, onboarding_state
		)
		VALUES ($1, $2, $3, $4, $5, $6, 'initiated')
		RETURNING ` + orgColumns + `
	`
	return s.scanOne(s.pool.QueryRow(ctx, query,
		id, p.PhoneCountryCode, p.PhoneNumber, p.Timezone, StatusOnboarding, settings))
}

// AttachChannel binds a WhatsApp phone number id to the tenant without
// touching its status. Used at onboarding start so later messages on
// the channel resolve to the tenant while it is still being set up.
func (s *Store) AttachChannel(ctx context.Context, orgID uuid.UUID, phoneNumberID string) error {
	query := `
		UPDATE organizations
		SET whatsapp_phone_number_id = $2, updated_at = now()
		WHERE id = $1
	`
	ct, err := s.pool.Exec(ctx, query, orgID, phoneNumberID)
	if err != nil {
		return fmt.Errorf("organizations: attach channel: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ConnectChannel binds a WhatsApp phone number id to the tenant and
// activates it. Onboarding completion flows through here.
func (s *Store) ConnectChannel(ctx context.Context, orgID uuid.UUID, phoneNumberID string) error {
	query := `
		UPDATE organizations
		SET whatsapp_phone_number_id = $2,
			status = $3,
			updated_at = now()
		WHERE id = $1
	`
	ct, err := s.pool.Exec(ctx, query, orgID, phoneNumberID, StatusActive)
	if err != nil {
		return fmt.Errorf("organizations: connect channel: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateOnboarding advances the onboarding progress markers.
func (s *Store) UpdateOnboarding(ctx context.Context, orgID uuid.UUID, state string, name string) error {
	query := `
		UPDATE organizations
		SET onboarding_state = $2,
			name = COALESCE(NULLIF($3, ''), name),
			updated_at = now()
		WHERE id = $1
	`
	if _, err := s.pool.Exec(ctx, query, orgID, state, name); err != nil {
		return fmt.Errorf("organizations: update onboarding: %w", err)
	}
	return nil
}

// SetStatus transitions the tenant lifecycle state.
func (s *Store) SetStatus(ctx context.Context, orgID uuid.UUID, status Status) error {
	query := `
		UPDATE organizations
		SET status = $2, updated_at = now()
		WHERE id = $1
	`
	ct, err := s.pool.Exec(ctx, query, orgID, status)
	if err != nil {
		return fmt.Errorf("organizations: set status: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// TouchLastMessage records inbound activity for abandoned-session detection.
func (s *Store) TouchLastMessage(ctx context.Context, orgID uuid.UUID, at time.Time) error {
	query := `
		UPDATE organizations
		SET last_message_at = $2
		WHERE id = $1
	`
	if _, err := s.pool.Exec(ctx, query, orgID, at); err != nil {
		return fmt.Errorf("organizations: touch last message: %w", err)
	}
	return nil
}

func (s *Store) scanOne(row pgx.Row) (*Organization, error) {
	var (
		org      Organization
		name     *string
		waID     *string
		settings []byte
	)
	if err := row.Scan(
		&org.ID,
		&name,
		&org.PhoneCountryCode,
		&org.PhoneNumber,
		&waID,
		&org.Timezone,
		&org.Status,
		&settings,
		&org.OnboardingState,
		&org.LastMessageAt,
		&org.CreatedAt,
		&org.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("organizations: scan: %w", err)
	}
	if name != nil {
		org.Name = *name
	}
	if waID != nil {
		org.WhatsAppPhoneNumberID = *waID
	}
	if len(settings) > 0 {
		if err := json.Unmarshal(settings, &org.Settings); err != nil {
			return nil, fmt.Errorf("organizations: decode settings: %w", err)
		}
	}
	org.Settings = org.Settings.WithDefaults()
	return &org, nil
}
