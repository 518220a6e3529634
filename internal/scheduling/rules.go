package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RuleType distinguishes weekly working patterns from single-date
// overrides.
type RuleType string

const (
	RuleRecurring RuleType = "recurring"
	RuleException RuleType = "exception"
)

// AvailabilityRule declares when a staff member works. Recurring rules
// repeat weekly on DayOfWeek (0 is Monday, 6 is Sunday). Exception
// rules apply to a single ExceptionDate and replace every recurring
// rule for that day; an exception with IsAvailable=false blocks the
// whole day. Minutes count from local midnight.
type AvailabilityRule struct {
	ID            uuid.UUID
	StaffID       uuid.UUID
	Type          RuleType
	DayOfWeek     int
	StartMinute   int
	EndMinute     int
	ExceptionDate *time.Time
	IsAvailable   bool
}

// ListRules returns the availability rules for the given staff members:
// every recurring rule plus the exceptions dated within [from, to].
func (r *Repository) ListRules(ctx context.Context, staffIDs []uuid.UUID, from, to time.Time) ([]AvailabilityRule, error) {
	if len(staffIDs) == 0 {
		return nil, nil
	}
	query := `
		SELECT id, staff_member_id, rule_type, day_of_week, start_minute, end_minute, exception_date, is_available
		FROM availability_rules
		WHERE staff_member_id = ANY($1)
		  AND (rule_type = 'recurring' OR (exception_date >= $2 AND exception_date <= $3))
		ORDER BY staff_member_id, start_minute
	`
	rows, err := r.pool.Query(ctx, query, staffIDs, from, to)
	if err != nil {
		return nil, fmt.Errorf("scheduling: list rules: %w", err)
	}
	defer rows.Close()

	var out []AvailabilityRule
	for rows.Next() {
		var rule AvailabilityRule
		if err := rows.Scan(
			&rule.ID, &rule.StaffID, &rule.Type, &rule.DayOfWeek,
			&rule.StartMinute, &rule.EndMinute, &rule.ExceptionDate, &rule.IsAvailable,
		); err != nil {
			return nil, fmt.Errorf("scheduling: scan rule: %w", err)
		}
		out = append(out, rule)
	}
	return out, rows.Err()
}

// CreateRuleParams carries the fields for a new availability rule.
type CreateRuleParams struct {
	StaffID       uuid.UUID
	Type          RuleType
	DayOfWeek     int
	StartMinute   int
	EndMinute     int
	ExceptionDate *time.Time
	IsAvailable   bool
}

// CreateRule inserts an availability rule.
func (r *Repository) CreateRule(ctx context.Context, p CreateRuleParams) (*AvailabilityRule, error) {
	id := uuid.New()
	query := `
		INSERT INTO availability_rules (id, staff_member_id, rule_type, day_of_week, start_minute, end_minute, exception_date, is_available)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, staff_member_id, rule_type, day_of_week, start_minute, end_minute, exception_date, is_available
	`
	var rule AvailabilityRule
	if err := r.pool.QueryRow(ctx, query,
		id, p.StaffID, p.Type, p.DayOfWeek, p.StartMinute, p.EndMinute, p.ExceptionDate, p.IsAvailable,
	).Scan(
		&rule.ID, &rule.StaffID, &rule.Type, &rule.DayOfWeek,
		&rule.StartMinute, &rule.EndMinute, &rule.ExceptionDate, &rule.IsAvailable,
	); err != nil {
		return nil, fmt.Errorf("scheduling: create rule: %w", err)
	}
	return &rule, nil
}

// DeleteRule removes an availability rule.
func (r *Repository) DeleteRule(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM availability_rules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("scheduling: delete rule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
