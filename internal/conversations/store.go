package conversations

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

// ErrDuplicateMessage is returned when an inbound message's provider id
// was already recorded.
var ErrDuplicateMessage = errors.New("conversations: duplicate message")

// ErrNotFound is returned when no conversation matches the lookup.
var ErrNotFound = errors.New("conversations: not found")

const uniqueViolation = "23505"

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists conversations and messages.
type Store struct {
	pool querier
}

func NewStore(pool *pgxpool.Pool) *Store {
	if pool == nil {
		panic("conversations: pgx pool required")
	}
	return &Store{pool: pool}
}

func newStoreWithQuerier(q querier) *Store {
	return &Store{pool: q}
}

// BeginProcessing claims a provider message id before any routing work.
// It returns false when another request (or a provider retry) already
// claimed the id. The insert-or-nothing makes the check safe under
// concurrent deliveries of the same message.
func (s *Store) BeginProcessing(ctx context.Context, waMessageID string) (bool, error) {
	query := `
		INSERT INTO processed_messages (wa_message_id)
		VALUES ($1)
		ON CONFLICT DO NOTHING
	`
	ct, err := s.pool.Exec(ctx, query, waMessageID)
	if err != nil {
		return false, fmt.Errorf("conversations: begin processing: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}

const conversationColumns = `id, organization_id, customer_id, status, last_message_at, created_at, updated_at`

// GetOrCreateActive returns the customer's active conversation, creating
// one when none exists. Two concurrent first messages race on the
// partial unique index; the loser retries the select.
func (s *Store) GetOrCreateActive(ctx context.Context, orgID, customerID uuid.UUID) (*Conversation, error) {
	query := `
		INSERT INTO conversations (id, organization_id, customer_id, status)
		VALUES ($1, $2, $3, 'active')
		ON CONFLICT (organization_id, customer_id) WHERE status = 'active' DO NOTHING
		RETURNING ` + conversationColumns
	conv, err := scanConversation(s.pool.QueryRow(ctx, query, uuid.New(), orgID, customerID))
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("conversations: get or create: %w", err)
	}
	// DO NOTHING returned no row: the active conversation already exists.
	sel := `
		SELECT ` + conversationColumns + `
		FROM conversations
		WHERE organization_id = $1 AND customer_id = $2 AND status = 'active'
	`
	conv, err = scanConversation(s.pool.QueryRow(ctx, sel, orgID, customerID))
	if err != nil {
		return nil, fmt.Errorf("conversations: get or create: %w", err)
	}
	return conv, nil
}

// Close ends a conversation. A later message starts a fresh one.
func (s *Store) Close(ctx context.Context, orgID, id uuid.UUID) error {
	query := `
		UPDATE conversations
		SET status = 'closed', updated_at = now()
		WHERE id = $1 AND organization_id = $2 AND status = 'active'
	`
	tag, err := s.pool.Exec(ctx, query, id, orgID)
	if err != nil {
		return fmt.Errorf("conversations: close: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordParams carries the fields for one stored message.
type RecordParams struct {
	ConversationID *uuid.UUID
	OrgID          uuid.UUID
	SenderType     SenderType
	ContentType    string
	Content        string
	WAMessageID    string
}

// RecordInbound stores a received message. The unique index on
// wa_message_id is the storage-level idempotency backstop; a violation
// surfaces as ErrDuplicateMessage.
func (s *Store) RecordInbound(ctx context.Context, p RecordParams) (*Message, error) {
	return s.record(ctx, DirectionInbound, p)
}

// RecordOutbound stores a message the assistant sent.
func (s *Store) RecordOutbound(ctx context.Context, p RecordParams) (*Message, error) {
	return s.record(ctx, DirectionOutbound, p)
}

func (s *Store) record(ctx context.Context, dir Direction, p RecordParams) (*Message, error) {
	contentType := p.ContentType
	if contentType == "" {
		contentType = "text"
	}
	query := `
		INSERT INTO messages (id, conversation_id, organization_id, direction, sender_type, content_type, content, wa_message_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''))
		RETURNING id, conversation_id, organization_id, direction, sender_type, content_type, content, wa_message_id, created_at
	`
	var m Message
	if err := s.pool.QueryRow(ctx, query,
		uuid.New(), p.ConversationID, p.OrgID, dir, p.SenderType, contentType, p.Content, p.WAMessageID,
	).Scan(
		&m.ID, &m.ConversationID, &m.OrgID, &m.Direction, &m.SenderType,
		&m.ContentType, &m.Content, &m.WAMessageID, &m.CreatedAt,
	); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, ErrDuplicateMessage
		}
		return nil, fmt.Errorf("conversations: record %s: %w", dir, err)
	}
	if p.ConversationID != nil {
		touch := `UPDATE conversations SET last_message_at = now(), updated_at = now() WHERE id = $1`
		if _, err := s.pool.Exec(ctx, touch, *p.ConversationID); err != nil {
			return nil, fmt.Errorf("conversations: touch: %w", err)
		}
	}
	return &m, nil
}

// RecentMessages returns the conversation's latest messages in
// chronological order, capped at limit. The policy engine feeds these to
// the model as context.
func (s *Store) RecentMessages(ctx context.Context, conversationID uuid.UUID, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `
		SELECT id, conversation_id, organization_id, direction, sender_type, content_type, content, wa_message_id, created_at
		FROM (
			SELECT id, conversation_id, organization_id, direction, sender_type, content_type, content, wa_message_id, created_at
			FROM messages
			WHERE conversation_id = $1
			ORDER BY created_at DESC
			LIMIT $2
		) recent
		ORDER BY created_at
	`
	rows, err := s.pool.Query(ctx, query, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("conversations: recent messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(
			&m.ID, &m.ConversationID, &m.OrgID, &m.Direction, &m.SenderType,
			&m.ContentType, &m.Content, &m.WAMessageID, &m.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("conversations: scan message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func scanConversation(row pgx.Row) (*Conversation, error) {
	var c Conversation
	var last *time.Time
	if err := row.Scan(&c.ID, &c.OrgID, &c.CustomerID, &c.Status, &last, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.LastMessageAt = last
	return &c, nil
}
