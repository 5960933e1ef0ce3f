package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"dmchat/internal/app/message"
	"dmchat/internal/pkg/randx"
)

const messageColumns = `id::text, sender, receiver, type, content, reply_id, reply_sender, reply_message, status, read_at, created_at`

// MessageStore implements message.Store on PostgreSQL.
type MessageStore struct {
	pool *pgxpool.Pool
}

var _ message.Store = (*MessageStore)(nil)

// NewMessageStore wraps pool.
func NewMessageStore(pool *pgxpool.Pool) *MessageStore {
	return &MessageStore{pool: pool}
}

func scanMessage(row pgx.Row) (*message.Message, error) {
	var (
		m            message.Message
		msgType      string
		status       string
		replyID      *string
		replySender  *string
		replyMessage *string
		readAt       *time.Time
	)

	err := row.Scan(
		&m.ID, &m.Sender, &m.Receiver, &msgType, &m.Content,
		&replyID, &replySender, &replyMessage,
		&status, &readAt, &m.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	m.Type = message.Type(msgType)
	m.Status = message.Status(status)
	m.ReadAt = readAt
	if replyID != nil {
		m.ReplyTo = &message.ReplyRef{ID: *replyID}
		if replySender != nil {
			m.ReplyTo.Sender = *replySender
		}
		if replyMessage != nil {
			m.ReplyTo.Message = *replyMessage
		}
	}

	return &m, nil
}

func collectMessages(rows pgx.Rows) ([]message.Message, error) {
	defer rows.Close()

	out := make([]message.Message, 0)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}

	return out, rows.Err()
}

// Insert stores m. created_at never goes backwards relative to earlier rows.
func (s *MessageStore) Insert(ctx context.Context, m *message.Message) (*message.Message, error) {
	var replyID, replySender, replyMessage *string
	if m.ReplyTo != nil {
		replyID, replySender, replyMessage = &m.ReplyTo.ID, &m.ReplyTo.Sender, &m.ReplyTo.Message
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO messages (id, sender, receiver, type, content, reply_id, reply_sender, reply_message, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'sent',
			GREATEST(clock_timestamp(), COALESCE((SELECT max(created_at) FROM messages), '-infinity'::timestamptz)))
		RETURNING `+messageColumns,
		randx.MessageID(), m.Sender, m.Receiver, string(m.Type), m.Content, replyID, replySender, replyMessage,
	)

	stored, err := scanMessage(row)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return stored, nil
}

// FindByID returns message.ErrNotFound for unknown or malformed ids.
func (s *MessageStore) FindByID(ctx context.Context, id string) (*message.Message, error) {
	if !randx.IsValidID(id) {
		return nil, message.ErrNotFound
	}

	row := s.pool.QueryRow(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = $1`, id)

	m, err := scanMessage(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, message.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find message %s: %w", id, err)
	}
	return m, nil
}

// Update applies u in a single statement.
func (s *MessageStore) Update(ctx context.Context, id string, u message.Update) (*message.Message, error) {
	if !randx.IsValidID(id) {
		return nil, message.ErrNotFound
	}

	var status *string
	if u.Status != nil {
		v := string(*u.Status)
		status = &v
	}

	row := s.pool.QueryRow(ctx, `
		UPDATE messages SET
			content = COALESCE($2, content),
			status  = COALESCE($3, status),
			read_at = CASE WHEN $5 THEN NULL ELSE COALESCE($4, read_at) END
		WHERE id = $1
		RETURNING `+messageColumns,
		id, u.Content, status, u.ReadAt, u.ClearReadAt,
	)

	m, err := scanMessage(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, message.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update message %s: %w", id, err)
	}
	return m, nil
}

// Delete removes the row with id.
func (s *MessageStore) Delete(ctx context.Context, id string) (bool, error) {
	if !randx.IsValidID(id) {
		return false, nil
	}

	tag, err := s.pool.Exec(ctx, `DELETE FROM messages WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete message %s: %w", id, err)
	}
	return tag.RowsAffected() > 0, nil
}

// FindConversation lists the conversation {a, b} oldest first.
func (s *MessageStore) FindConversation(ctx context.Context, a, b string) ([]message.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE LEAST(sender, receiver) = LEAST($1::text, $2::text)
		  AND GREATEST(sender, receiver) = GREATEST($1::text, $2::text)
		ORDER BY created_at ASC, seq ASC`,
		a, b,
	)
	if err != nil {
		return nil, fmt.Errorf("find conversation: %w", err)
	}

	return collectMessages(rows)
}

// SearchText lists matching text messages of {a, b} newest first.
func (s *MessageStore) SearchText(ctx context.Context, a, b, substring string, caseInsensitive bool) ([]message.Message, error) {
	op := "LIKE"
	if caseInsensitive {
		op = "ILIKE"
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE LEAST(sender, receiver) = LEAST($1::text, $2::text)
		  AND GREATEST(sender, receiver) = GREATEST($1::text, $2::text)
		  AND type = 'text'
		  AND content `+op+` $3
		ORDER BY created_at DESC, seq DESC`,
		a, b, likePattern(substring),
	)
	if err != nil {
		return nil, fmt.Errorf("search conversation: %w", err)
	}

	return collectMessages(rows)
}
