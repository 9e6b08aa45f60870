package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ragline/ragline/internal/domain"
	"github.com/ragline/ragline/internal/domain/chat"
)

// Store implements database.Store using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// scannable abstracts pgx.Row and pgx.Rows for shared scan helpers.
type scannable interface {
	Scan(dest ...any) error
}

// --- Conversations ---

func (s *Store) CreateConversation(ctx context.Context, title string) (*chat.Conversation, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO conversations (title) VALUES ($1)
		 RETURNING id, title, created_at, updated_at`, title)

	c, err := scanConversation(row)
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	return &c, nil
}

func (s *Store) GetConversation(ctx context.Context, id string) (*chat.Conversation, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, title, created_at, updated_at FROM conversations WHERE id = $1`, id)

	c, err := scanConversation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get conversation %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get conversation %s: %w", id, err)
	}
	return &c, nil
}

func (s *Store) ListConversations(ctx context.Context) ([]chat.Conversation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, title, created_at, updated_at FROM conversations ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var out []chat.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) DeleteConversation(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM conversations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete conversation %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete conversation %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// --- Messages ---

func (s *Store) AppendMessage(ctx context.Context, m *chat.StoredMessage) (*chat.StoredMessage, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO conversation_messages (conversation_id, role, content, tool_note, turn)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at`,
		m.ConversationID, string(m.Role), m.Content, m.ToolNote, m.Turn)

	out := *m
	if err := row.Scan(&out.ID, &out.CreatedAt); err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}

	if _, err := s.pool.Exec(ctx,
		`UPDATE conversations SET updated_at = now() WHERE id = $1`, m.ConversationID); err != nil {
		return nil, fmt.Errorf("touch conversation %s: %w", m.ConversationID, err)
	}
	return &out, nil
}

func (s *Store) ListMessages(ctx context.Context, conversationID string) ([]chat.StoredMessage, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, conversation_id, role, content, tool_note, turn, created_at
		 FROM conversation_messages WHERE conversation_id = $1 ORDER BY created_at ASC`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []chat.StoredMessage
	for rows.Next() {
		var m chat.StoredMessage
		var role string
		if err := rows.Scan(&m.ID, &m.ConversationID, &role, &m.Content, &m.ToolNote, &m.Turn, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Role = chat.Role(role)
		out = append(out, m)
	}
	return out, rows.Err()
}

func scanConversation(row scannable) (chat.Conversation, error) {
	var c chat.Conversation
	var created, updated time.Time
	err := row.Scan(&c.ID, &c.Title, &created, &updated)
	c.CreatedAt = created
	c.UpdatedAt = updated
	return c, err
}
