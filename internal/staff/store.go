package staff

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when no active staff member matches the lookup.
var ErrNotFound = errors.New("staff: not found")

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists staff members in Postgres.
type Store struct {
	pool querier
}

func NewStore(pool *pgxpool.Pool) *Store {
	if pool == nil {
		panic("staff: pgx pool required")
	}
	return &Store{pool: pool}
}

func newStoreWithQuerier(q querier) *Store {
	return &Store{pool: q}
}

const memberColumns = `id, organization_id, location_id, default_spot_id, name,
		phone_number, role, permission_level, permissions, is_active,
		first_message_at, created_at, updated_at`

// GetActiveByPhone is the routing lookup: is this sender registered staff?
// Inactive members are deliberately excluded so they fall through to the
// customer path.
func (s *Store) GetActiveByPhone(ctx context.Context, orgID uuid.UUID, phone string) (*Member, error) {
	query := `
		SELECT ` + memberColumns + `
		FROM staff_members
		WHERE organization_id = $1 AND phone_number = $2 AND is_active = true
	`
	return s.scanOne(s.pool.QueryRow(ctx, query, orgID, phone))
}

// GetByID fetches a member by primary key.
func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (*Member, error) {
	query := `
		SELECT ` + memberColumns + `
		FROM staff_members
		WHERE id = $1
	`
	return s.scanOne(s.pool.QueryRow(ctx, query, id))
}

// CreateParams describes a new staff member.
type CreateParams struct {
	OrgID           uuid.UUID
	LocationID      *uuid.UUID
	Name            string
	PhoneNumber     string
	Role            Role
	PermissionLevel PermissionLevel
}

// Create inserts a staff member with the default permission set for the level.
func (s *Store) Create(ctx context.Context, p CreateParams) (*Member, error) {
	if p.Role == "" {
		p.Role = RoleEmployee
	}
	if p.PermissionLevel == "" {
		p.PermissionLevel = PermissionStaff
	}
	perms, err := json.Marshal(DefaultPermissions(p.PermissionLevel))
	if err != nil {
		return nil, fmt.Errorf("staff: marshal permissions: %w", err)
	}
	id := uuid.New()
	query := `
		INSERT INTO staff_members (
			id, organization_id, location_id, name, phone_number,
			role, permission_level, permissions, is_active
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, true)
		RETURNING ` + memberColumns + `
	`
	return s.scanOne(s.pool.QueryRow(ctx, query,
		id, p.OrgID, p.LocationID, p.Name, p.PhoneNumber, p.Role, p.PermissionLevel, perms))
}

// MarkFirstMessage stamps first_message_at once. Returns true when this
// call was the one that set it.
func (s *Store) MarkFirstMessage(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `
		UPDATE staff_members
		SET first_message_at = now(), updated_at = now()
		WHERE id = $1 AND first_message_at IS NULL
	`
	ct, err := s.pool.Exec(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("staff: mark first message: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}

// Deactivate soft-deletes a member. Appointment history stays intact.
func (s *Store) Deactivate(ctx context.Context, orgID, id uuid.UUID) error {
	query := `
		UPDATE staff_members
		SET is_active = false, updated_at = now()
		WHERE id = $1 AND organization_id = $2
	`
	ct, err := s.pool.Exec(ctx, query, id, orgID)
	if err != nil {
		return fmt.Errorf("staff: deactivate: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListCapable returns active members who can perform the service type,
// ordered by name. The availability engine iterates this set.
func (s *Store) ListCapable(ctx context.Context, orgID, serviceTypeID uuid.UUID) ([]Member, error) {
	query := `
		SELECT ` + memberColumns + `
		FROM staff_members m
		JOIN staff_service_types st ON st.staff_member_id = m.id
		WHERE m.organization_id = $1 AND st.service_type_id = $2 AND m.is_active = true
		ORDER BY m.name
	`
	rows, err := s.pool.Query(ctx, query, orgID, serviceTypeID)
	if err != nil {
		return nil, fmt.Errorf("staff: list capable: %w", err)
	}
	defer rows.Close()
	return s.scanMany(rows)
}

// AssignService records that a member can perform a service type.
func (s *Store) AssignService(ctx context.Context, memberID, serviceTypeID uuid.UUID) error {
	query := `
		INSERT INTO staff_service_types (staff_member_id, service_type_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`
	if _, err := s.pool.Exec(ctx, query, memberID, serviceTypeID); err != nil {
		return fmt.Errorf("staff: assign service: %w", err)
	}
	return nil
}

func (s *Store) scanMany(rows pgx.Rows) ([]Member, error) {
	var members []Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, *m)
	}
	return members, rows.Err()
}

func (s *Store) scanOne(row pgx.Row) (*Member, error) {
	m, err := scanMember(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return m, nil
}

func scanMember(row pgx.Row) (*Member, error) {
	var (
		m     Member
		perms []byte
	)
	if err := row.Scan(
		&m.ID,
		&m.OrgID,
		&m.LocationID,
		&m.DefaultSpotID,
		&m.Name,
		&m.PhoneNumber,
		&m.Role,
		&m.PermissionLevel,
		&perms,
		&m.IsActive,
		&m.FirstMessageAt,
		&m.CreatedAt,
		&m.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("staff: scan: %w", err)
	}
	if len(perms) > 0 {
		if err := json.Unmarshal(perms, &m.Permissions); err != nil {
			return nil, fmt.Errorf("staff: decode permissions: %w", err)
		}
	}
	return &m, nil
}
