package scheduling

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

// SQLSTATE for a violated exclusion constraint. The appointments table
// carries GiST exclusion constraints on (staff, period) and (spot,
// period), so an overlapping insert fails with this code even when two
// writers pass the pre-flight check concurrently.
const exclusionViolation = "23P01"

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository persists appointments and availability rules.
type Repository struct {
	pool querier
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	if pool == nil {
		panic("scheduling: pgx pool required")
	}
	return &Repository{pool: pool}
}

func newRepositoryWithQuerier(q querier) *Repository {
	return &Repository{pool: q}
}

const appointmentColumns = `
	id, organization_id, location_id, customer_id, service_type_id,
	staff_member_id, spot_id, scheduled_start, scheduled_end, status,
	source, cancellation_reason, completion_notes, created_at, updated_at`

// FindConflicts returns the non-terminal appointments whose interval
// overlaps [q.Start, q.End) on the staff or spot dimension. Back-to-back
// appointments sharing a boundary instant do not overlap. When the query
// names neither resource there is nothing to contend for and no query
// is issued.
func (r *Repository) FindConflicts(ctx context.Context, q ConflictQuery) ([]Appointment, error) {
	if q.StaffID == nil && q.SpotID == nil {
		return nil, nil
	}
	query := `
		SELECT` + appointmentColumns + `
		FROM appointments
		WHERE organization_id = $1
		  AND status IN ('pending', 'confirmed')
		  AND scheduled_start < $2
		  AND $3 < scheduled_end
		  AND (($4::uuid IS NOT NULL AND staff_member_id = $4)
		    OR ($5::uuid IS NOT NULL AND spot_id = $5))
		  AND ($6::uuid IS NULL OR id <> $6)
		ORDER BY scheduled_start
	`
	rows, err := r.pool.Query(ctx, query, q.OrgID, q.End, q.Start, q.StaffID, q.SpotID, q.ExcludeAppointmentID)
	if err != nil {
		return nil, fmt.Errorf("scheduling: find conflicts: %w", err)
	}
	defer rows.Close()
	return scanAppointments(rows)
}

// CreateParams carries the fields for a new reservation.
type CreateParams struct {
	OrgID         uuid.UUID
	LocationID    uuid.UUID
	CustomerID    uuid.UUID
	ServiceTypeID uuid.UUID
	StaffID       *uuid.UUID
	SpotID        *uuid.UUID
	Start         time.Time
	End           time.Time
	Source        string
}

// Create inserts a pending appointment. A lost race against a
// concurrent overlapping booking surfaces as ErrSlotTaken.
func (r *Repository) Create(ctx context.Context, p CreateParams) (*Appointment, error) {
	id := uuid.New()
	source := p.Source
	if source == "" {
		source = "whatsapp"
	}
	query := `
		INSERT INTO appointments (
			id, organization_id, location_id, customer_id, service_type_id,
			staff_member_id, spot_id, scheduled_start, scheduled_end, status, source
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 'pending', $10)
		RETURNING` + appointmentColumns + `
	`
	appt, err := scanAppointment(r.pool.QueryRow(ctx, query,
		id, p.OrgID, p.LocationID, p.CustomerID, p.ServiceTypeID,
		p.StaffID, p.SpotID, p.Start, p.End, source,
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == exclusionViolation {
			return nil, ErrSlotTaken
		}
		return nil, fmt.Errorf("scheduling: create appointment: %w", err)
	}
	return appt, nil
}

// GetByID fetches an appointment scoped to the org.
func (r *Repository) GetByID(ctx context.Context, orgID, id uuid.UUID) (*Appointment, error) {
	query := `
		SELECT` + appointmentColumns + `
		FROM appointments
		WHERE id = $1 AND organization_id = $2
	`
	appt, err := scanAppointment(r.pool.QueryRow(ctx, query, id, orgID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scheduling: get appointment: %w", err)
	}
	return appt, nil
}

// UpdateStatus transitions an appointment. The note lands in
// cancellation_reason for cancellations and no-shows, and in
// completion_notes for completions.
func (r *Repository) UpdateStatus(ctx context.Context, orgID, id uuid.UUID, status AppointmentStatus, note string) error {
	query := `
		UPDATE appointments
		SET status = $3,
		    cancellation_reason = CASE WHEN $3 IN ('cancelled', 'no_show') THEN NULLIF($4, '') ELSE cancellation_reason END,
		    completion_notes = CASE WHEN $3 = 'completed' THEN NULLIF($4, '') ELSE completion_notes END,
		    updated_at = now()
		WHERE id = $1 AND organization_id = $2
	`
	tag, err := r.pool.Exec(ctx, query, id, orgID, status, note)
	if err != nil {
		return fmt.Errorf("scheduling: update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListUpcomingForCustomer returns the customer's non-terminal
// appointments starting at or after the given instant.
func (r *Repository) ListUpcomingForCustomer(ctx context.Context, orgID, customerID uuid.UUID, from time.Time) ([]Appointment, error) {
	query := `
		SELECT` + appointmentColumns + `
		FROM appointments
		WHERE organization_id = $1
		  AND customer_id = $2
		  AND status IN ('pending', 'confirmed')
		  AND scheduled_start >= $3
		ORDER BY scheduled_start
	`
	rows, err := r.pool.Query(ctx, query, orgID, customerID, from)
	if err != nil {
		return nil, fmt.Errorf("scheduling: list upcoming: %w", err)
	}
	defer rows.Close()
	return scanAppointments(rows)
}

// ListUpcoming returns every non-terminal appointment for the org
// starting within [from, to). Staff use it to review the calendar.
func (r *Repository) ListUpcoming(ctx context.Context, orgID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	query := `
		SELECT` + appointmentColumns + `
		FROM appointments
		WHERE organization_id = $1
		  AND status IN ('pending', 'confirmed')
		  AND scheduled_start >= $2
		  AND scheduled_start < $3
		ORDER BY scheduled_start
	`
	rows, err := r.pool.Query(ctx, query, orgID, from, to)
	if err != nil {
		return nil, fmt.Errorf("scheduling: list org upcoming: %w", err)
	}
	defer rows.Close()
	return scanAppointments(rows)
}

// ListBusy returns the non-terminal appointments that overlap [from, to)
// and hold any of the given staff members or spots. The availability
// engine subtracts these from working windows; spot matches catch
// appointments that occupy a member's chair through another member.
func (r *Repository) ListBusy(ctx context.Context, orgID uuid.UUID, staffIDs, spotIDs []uuid.UUID, from, to time.Time) ([]Appointment, error) {
	if len(staffIDs) == 0 && len(spotIDs) == 0 {
		return nil, nil
	}
	query := `
		SELECT` + appointmentColumns + `
		FROM appointments
		WHERE organization_id = $1
		  AND (staff_member_id = ANY($2) OR spot_id = ANY($3))
		  AND status IN ('pending', 'confirmed')
		  AND scheduled_start < $5
		  AND $4 < scheduled_end
		ORDER BY scheduled_start
	`
	rows, err := r.pool.Query(ctx, query, orgID, staffIDs, spotIDs, from, to)
	if err != nil {
		return nil, fmt.Errorf("scheduling: list busy: %w", err)
	}
	defer rows.Close()
	return scanAppointments(rows)
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var cancellation, completion *string
	if err := row.Scan(
		&a.ID, &a.OrgID, &a.LocationID, &a.CustomerID, &a.ServiceTypeID,
		&a.StaffID, &a.SpotID, &a.ScheduledStart, &a.ScheduledEnd, &a.Status,
		&a.Source, &cancellation, &completion, &a.CreatedAt, &a.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if cancellation != nil {
		a.CancellationReason = *cancellation
	}
	if completion != nil {
		a.CompletionNotes = *completion
	}
	return &a, nil
}

func scanAppointments(rows pgx.Rows) ([]Appointment, error) {
	var out []Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("scheduling: scan appointment: %w", err)
		}
		out = append(out, *appt)
	}
	return out, rows.Err()
}
