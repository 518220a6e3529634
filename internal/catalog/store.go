package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a catalog row does not exist.
var ErrNotFound = errors.New("catalog: not found")

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists service types, locations, and spots.
type Store struct {
	pool querier
}

func NewStore(pool *pgxpool.Pool) *Store {
	if pool == nil {
		panic("catalog: pgx pool required")
	}
	return &Store{pool: pool}
}

func newStoreWithQuerier(q querier) *Store {
	return &Store{pool: q}
}

// GetServiceType fetches a service type scoped to the org.
func (s *Store) GetServiceType(ctx context.Context, orgID, id uuid.UUID) (*ServiceType, error) {
	query := `
		SELECT id, organization_id, name, duration_minutes, price_cents, is_active, created_at, updated_at
		FROM service_types
		WHERE id = $1 AND organization_id = $2
	`
	var st ServiceType
	if err := s.pool.QueryRow(ctx, query, id, orgID).Scan(
		&st.ID, &st.OrgID, &st.Name, &st.DurationMinutes, &st.PriceCents,
		&st.IsActive, &st.CreatedAt, &st.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("catalog: get service type: %w", err)
	}
	return &st, nil
}

// ListActiveServiceTypes returns the bookable services for an org.
func (s *Store) ListActiveServiceTypes(ctx context.Context, orgID uuid.UUID) ([]ServiceType, error) {
	query := `
		SELECT id, organization_id, name, duration_minutes, price_cents, is_active, created_at, updated_at
		FROM service_types
		WHERE organization_id = $1 AND is_active = true
		ORDER BY name
	`
	rows, err := s.pool.Query(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("catalog: list service types: %w", err)
	}
	defer rows.Close()

	var out []ServiceType
	for rows.Next() {
		var st ServiceType
		if err := rows.Scan(
			&st.ID, &st.OrgID, &st.Name, &st.DurationMinutes, &st.PriceCents,
			&st.IsActive, &st.CreatedAt, &st.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("catalog: scan service type: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// CreateServiceType inserts a bookable service.
func (s *Store) CreateServiceType(ctx context.Context, orgID uuid.UUID, name string, durationMinutes, priceCents int) (*ServiceType, error) {
	id := uuid.New()
	query := `
		INSERT INTO service_types (id, organization_id, name, duration_minutes, price_cents, is_active)
		VALUES ($1, $2, $3, $4, $5, true)
		RETURNING id, organization_id, name, duration_minutes, price_cents, is_active, created_at, updated_at
	`
	var st ServiceType
	if err := s.pool.QueryRow(ctx, query, id, orgID, name, durationMinutes, priceCents).Scan(
		&st.ID, &st.OrgID, &st.Name, &st.DurationMinutes, &st.PriceCents,
		&st.IsActive, &st.CreatedAt, &st.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("catalog: create service type: %w", err)
	}
	return &st, nil
}

// CreateLocation inserts a location for an org.
func (s *Store) CreateLocation(ctx context.Context, orgID uuid.UUID, name, timezone string) (*Location, error) {
	id := uuid.New()
	query := `
		INSERT INTO locations (id, organization_id, name, timezone)
		VALUES ($1, $2, $3, $4)
		RETURNING id, organization_id, name, timezone, created_at, updated_at
	`
	var loc Location
	if err := s.pool.QueryRow(ctx, query, id, orgID, name, timezone).Scan(
		&loc.ID, &loc.OrgID, &loc.Name, &loc.Timezone, &loc.CreatedAt, &loc.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("catalog: create location: %w", err)
	}
	return &loc, nil
}

// DefaultLocation returns the oldest location for the org.
func (s *Store) DefaultLocation(ctx context.Context, orgID uuid.UUID) (*Location, error) {
	query := `
		SELECT id, organization_id, name, timezone, created_at, updated_at
		FROM locations
		WHERE organization_id = $1
		ORDER BY created_at
		LIMIT 1
	`
	var loc Location
	if err := s.pool.QueryRow(ctx, query, orgID).Scan(
		&loc.ID, &loc.OrgID, &loc.Name, &loc.Timezone, &loc.CreatedAt, &loc.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("catalog: default location: %w", err)
	}
	return &loc, nil
}

// CreateSpot inserts a station at a location.
func (s *Store) CreateSpot(ctx context.Context, locationID uuid.UUID, name string) (*Spot, error) {
	id := uuid.New()
	query := `
		INSERT INTO spots (id, location_id, name)
		VALUES ($1, $2, $3)
		RETURNING id, location_id, name, created_at, updated_at
	`
	var spot Spot
	if err := s.pool.QueryRow(ctx, query, id, locationID, name).Scan(
		&spot.ID, &spot.LocationID, &spot.Name, &spot.CreatedAt, &spot.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("catalog: create spot: %w", err)
	}
	return &spot, nil
}

// AssignSpotService records that a service can be performed at a spot.
func (s *Store) AssignSpotService(ctx context.Context, spotID, serviceTypeID uuid.UUID) error {
	query := `
		INSERT INTO spot_service_types (spot_id, service_type_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`
	if _, err := s.pool.Exec(ctx, query, spotID, serviceTypeID); err != nil {
		return fmt.Errorf("catalog: assign spot service: %w", err)
	}
	return nil
}

// SpotsForService lists spots where the service can be performed.
func (s *Store) SpotsForService(ctx context.Context, serviceTypeID uuid.UUID) ([]Spot, error) {
	query := `
		SELECT sp.id, sp.location_id, sp.name, sp.created_at, sp.updated_at
		FROM spots sp
		JOIN spot_service_types sst ON sst.spot_id = sp.id
		WHERE sst.service_type_id = $1
		ORDER BY sp.name
	`
	rows, err := s.pool.Query(ctx, query, serviceTypeID)
	if err != nil {
		return nil, fmt.Errorf("catalog: spots for service: %w", err)
	}
	defer rows.Close()

	var out []Spot
	for rows.Next() {
		var spot Spot
		if err := rows.Scan(&spot.ID, &spot.LocationID, &spot.Name, &spot.CreatedAt, &spot.UpdatedAt); err != nil {
			return nil, fmt.Errorf("catalog: scan spot: %w", err)
		}
		out = append(out, spot)
	}
	return out, rows.Err()
}
