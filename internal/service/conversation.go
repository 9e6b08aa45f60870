package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ragline/ragline/internal/domain/chat"
	"github.com/ragline/ragline/internal/domain/retrieval"
	"github.com/ragline/ragline/internal/domain/turn"
	"github.com/ragline/ragline/internal/domain/usage"
	"github.com/ragline/ragline/internal/port/database"
	"github.com/ragline/ragline/internal/port/messagequeue"
)

// Session is the in-memory state of one active conversation: the windowed
// history plus the pool of passages the relevance worker has memorized.
type Session struct {
	mu        sync.Mutex
	history   *chat.History
	memorized map[string]retrieval.Passage
	nextTurn  int
}

func newSession(window int) *Session {
	return &Session{
		history:   chat.NewHistory(window),
		memorized: make(map[string]retrieval.Passage),
		nextTurn:  1,
	}
}

// Memorize folds a screened passage into the pool, deduplicating by
// content.
func (s *Session) Memorize(p retrieval.Passage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := passageKey(p)
	if _, ok := s.memorized[key]; !ok {
		s.memorized[key] = p
	}
}

// MemorizedCount returns the size of the deduplicated pool.
func (s *Session) MemorizedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.memorized)
}

// Conversations manages durable conversations and runs turns through the
// agent loop.
type Conversations struct {
	store  database.Store
	agent  *Agent
	queue  messagequeue.Queue
	window int

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewConversations creates the conversation service. queue may be nil; turn
// completion events are then not published.
func NewConversations(store database.Store, agent *Agent, queue messagequeue.Queue, window int) *Conversations {
	return &Conversations{
		store:    store,
		agent:    agent,
		queue:    queue,
		window:   window,
		sessions: make(map[string]*Session),
	}
}

// Create starts a new conversation.
func (c *Conversations) Create(ctx context.Context, title string) (*chat.Conversation, error) {
	return c.store.CreateConversation(ctx, title)
}

// List returns all conversations, most recently active first.
func (c *Conversations) List(ctx context.Context) ([]chat.Conversation, error) {
	return c.store.ListConversations(ctx)
}

// Get returns a conversation with its display transcript.
func (c *Conversations) Get(ctx context.Context, id string) (*chat.Conversation, []chat.StoredMessage, error) {
	conv, err := c.store.GetConversation(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	messages, err := c.store.ListMessages(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if messages == nil {
		messages = []chat.StoredMessage{}
	}
	return conv, messages, nil
}

// Delete removes a conversation and its session state.
func (c *Conversations) Delete(ctx context.Context, id string) error {
	if err := c.store.DeleteConversation(ctx, id); err != nil {
		return err
	}
	c.mu.Lock()
	delete(c.sessions, id)
	c.mu.Unlock()
	return nil
}

// SendMessage runs one full turn: load or restore the session, run the
// loop, fold the exchange into the history, and persist the transcript,
// ledger, and audits.
func (c *Conversations) SendMessage(ctx context.Context, id, content string) (*turn.Result, error) {
	conv, err := c.store.GetConversation(ctx, id)
	if err != nil {
		return nil, err
	}

	session, err := c.session(ctx, conv.ID)
	if err != nil {
		return nil, err
	}

	session.mu.Lock()
	turnNo := session.nextTurn
	session.nextTurn++
	modelView := session.history.ModelView()
	session.mu.Unlock()

	result := c.agent.RunTurn(ctx, conv.ID, turnNo, session, modelView, content)

	toolNote := buildToolNote(&result)
	session.mu.Lock()
	session.history.AddUserMessage(content)
	session.history.AddAssistantMessage(result.Answer, toolNote)
	session.mu.Unlock()

	c.persistTurn(ctx, conv.ID, turnNo, content, toolNote, &result)
	c.publishCompleted(ctx, conv.ID, turnNo, &result)

	return &result, nil
}

// Usage returns the per-component ledger aggregate for a conversation.
func (c *Conversations) Usage(ctx context.Context, id string) ([]usage.ComponentSummary, error) {
	if _, err := c.store.GetConversation(ctx, id); err != nil {
		return nil, err
	}
	summaries, err := c.store.UsageByComponent(ctx, id)
	if err != nil {
		return nil, err
	}
	if summaries == nil {
		summaries = []usage.ComponentSummary{}
	}
	return summaries, nil
}

// Audits returns every retrieval audit recorded for a conversation.
func (c *Conversations) Audits(ctx context.Context, id string) ([]retrieval.Audit, error) {
	if _, err := c.store.GetConversation(ctx, id); err != nil {
		return nil, err
	}
	audits, err := c.store.ListAudits(ctx, id)
	if err != nil {
		return nil, err
	}
	if audits == nil {
		audits = []retrieval.Audit{}
	}
	return audits, nil
}

// session returns the live session for a conversation, restoring the
// history from the store on first access.
func (c *Conversations) session(ctx context.Context, id string) (*Session, error) {
	c.mu.Lock()
	if s, ok := c.sessions[id]; ok {
		c.mu.Unlock()
		return s, nil
	}
	c.mu.Unlock()

	messages, err := c.store.ListMessages(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("restore session %s: %w", id, err)
	}

	s := newSession(c.window)
	maxTurn := 0
	for _, m := range messages {
		switch m.Role {
		case chat.RoleUser:
			s.history.AddUserMessage(m.Content)
		case chat.RoleAssistant:
			s.history.AddAssistantMessage(m.Content, m.ToolNote)
		}
		if m.Turn > maxTurn {
			maxTurn = m.Turn
		}
	}
	s.nextTurn = maxTurn + 1

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.sessions[id]; ok {
		return existing, nil
	}
	c.sessions[id] = s
	return s, nil
}

// persistTurn writes the turn-boundary messages, the ledger entries, and
// the audits. Persistence failures do not void the answer; they are logged
// and the result still returns to the caller.
func (c *Conversations) persistTurn(ctx context.Context, id string, turnNo int, question, toolNote string, result *turn.Result) {
	if _, err := c.store.AppendMessage(ctx, &chat.StoredMessage{
		ConversationID: id,
		Role:           chat.RoleUser,
		Content:        question,
		Turn:           turnNo,
	}); err != nil {
		slog.Error("persist user message failed", "conversation_id", id, "error", err)
	}

	if _, err := c.store.AppendMessage(ctx, &chat.StoredMessage{
		ConversationID: id,
		Role:           chat.RoleAssistant,
		Content:        result.Answer,
		ToolNote:       toolNote,
		Turn:           turnNo,
	}); err != nil {
		slog.Error("persist assistant message failed", "conversation_id", id, "error", err)
	}

	if err := c.store.InsertLedgerEntries(ctx, id, result.Usage.Entries); err != nil {
		slog.Error("persist ledger failed", "conversation_id", id, "error", err)
	}

	if err := c.store.InsertAudits(ctx, id, turnNo, result.RetrievalAudits); err != nil {
		slog.Error("persist audits failed", "conversation_id", id, "error", err)
	}
}

func (c *Conversations) publishCompleted(ctx context.Context, id string, turnNo int, result *turn.Result) {
	if c.queue == nil {
		return
	}
	payload := messagequeue.TurnCompletedPayload{
		ConversationID: id,
		Turn:           turnNo,
		Success:        result.Success,
		Error:          string(result.Error),
		Iterations:     result.Iterations,
		ToolCalls:      result.ToolCalls,
		CostUSD:        result.Usage.Totals.CostUSD,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if err := c.queue.Publish(ctx, messagequeue.SubjectTurnCompleted, data); err != nil {
		slog.Warn("publish turn completed failed", "conversation_id", id, "error", err)
	}
}

// buildToolNote summarizes the turn's tool activity for the model view of
// the history. Empty when no tools ran.
func buildToolNote(result *turn.Result) string {
	if result.ToolCalls == 0 {
		return ""
	}
	return fmt.Sprintf("note: this answer used %d tool call(s) over %d iteration(s), including %d knowledge base search(es)",
		result.ToolCalls, result.Iterations, len(result.RetrievalAudits))
}
