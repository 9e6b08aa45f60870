// Package database defines the persistence port (interface).
package database

import (
	"context"

	"github.com/ragline/ragline/internal/domain/chat"
	"github.com/ragline/ragline/internal/domain/retrieval"
	"github.com/ragline/ragline/internal/domain/usage"
)

// Store is the port interface for durable conversation state: transcripts,
// the token ledger, and retrieval audits.
type Store interface {
	CreateConversation(ctx context.Context, title string) (*chat.Conversation, error)
	GetConversation(ctx context.Context, id string) (*chat.Conversation, error)
	ListConversations(ctx context.Context) ([]chat.Conversation, error)
	DeleteConversation(ctx context.Context, id string) error

	AppendMessage(ctx context.Context, m *chat.StoredMessage) (*chat.StoredMessage, error)
	ListMessages(ctx context.Context, conversationID string) ([]chat.StoredMessage, error)

	InsertLedgerEntries(ctx context.Context, conversationID string, entries []usage.Entry) error
	UsageByComponent(ctx context.Context, conversationID string) ([]usage.ComponentSummary, error)

	InsertAudits(ctx context.Context, conversationID string, turn int, audits []retrieval.Audit) error
	ListAudits(ctx context.Context, conversationID string) ([]retrieval.Audit, error)
}
