package customers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when no customer matches the lookup.
var ErrNotFound = errors.New("customers: not found")

// Customer is an end customer of a tenant. Created from nothing but a
// phone number and enriched as the conversation learns more.
type Customer struct {
	ID          uuid.UUID
	OrgID       uuid.UUID
	PhoneNumber string
	Name        string
	Email       string
	Notes       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists customers in Postgres.
type Store struct {
	pool querier
}

func NewStore(pool *pgxpool.Pool) *Store {
	if pool == nil {
		panic("customers: pgx pool required")
	}
	return &Store{pool: pool}
}

func newStoreWithQuerier(q querier) *Store {
	return &Store{pool: q}
}

const customerColumns = `id, organization_id, phone_number, name, email, notes, created_at, updated_at`

// GetOrCreateByPhone returns the customer for (org, phone), inserting one
// when missing. The upsert makes concurrent deliveries converge on a
// single row, and an already-set name is never overwritten by the
// sender's display name.
func (s *Store) GetOrCreateByPhone(ctx context.Context, orgID uuid.UUID, phone, displayName string) (*Customer, error) {
	id := uuid.New()
	query := `
		INSERT INTO customers (id, organization_id, phone_number, name)
		VALUES ($1, $2, $3, NULLIF($4, ''))
		ON CONFLICT (organization_id, phone_number) DO UPDATE
		SET name = COALESCE(customers.name, EXCLUDED.name),
			updated_at = now()
		RETURNING ` + customerColumns + `
	`
	return s.scanOne(s.pool.QueryRow(ctx, query, id, orgID, phone, displayName))
}

// GetByPhone fetches a customer without creating one.
func (s *Store) GetByPhone(ctx context.Context, orgID uuid.UUID, phone string) (*Customer, error) {
	query := `
		SELECT ` + customerColumns + `
		FROM customers
		WHERE organization_id = $1 AND phone_number = $2
	`
	return s.scanOne(s.pool.QueryRow(ctx, query, orgID, phone))
}

// Enrich fills in profile fields learned during conversation. Empty
// arguments leave the stored value alone.
func (s *Store) Enrich(ctx context.Context, orgID, id uuid.UUID, name, email, notes string) error {
	query := `
		UPDATE customers
		SET name = COALESCE(NULLIF($3, ''), name),
			email = COALESCE(NULLIF($4, ''), email),
			notes = COALESCE(NULLIF($5, ''), notes),
			updated_at = now()
		WHERE id = $1 AND organization_id = $2
	`
	ct, err := s.pool.Exec(ctx, query, id, orgID, name, email, notes)
	if err != nil {
		return fmt.Errorf("customers: enrich: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) scanOne(row pgx.Row) (*Customer, error) {
	var (
		c     Customer
		name  *string
		email *string
		notes *string
	)
	if err := row.Scan(
		&c.ID,
		&c.OrgID,
		&c.PhoneNumber,
		&name,
		&email,
		&notes,
		&c.CreatedAt,
		&c.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("customers: scan: %w", err)
	}
	if name != nil {
		c.Name = *name
	}
	if email != nil {
		c.Email = *email
	}
	if notes != nil {
		c.Notes = *notes
	}
	return &c, nil
}
