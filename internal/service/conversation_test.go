package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ragline/ragline/internal/domain"
	"github.com/ragline/ragline/internal/domain/chat"
	"github.com/ragline/ragline/internal/domain/retrieval"
	"github.com/ragline/ragline/internal/domain/turn"
	"github.com/ragline/ragline/internal/domain/usage"
)

// memStore is an in-memory Store for tests.
type memStore struct {
	mu            sync.Mutex
	conversations map[string]*chat.Conversation
	messages      map[string][]chat.StoredMessage
	entries       map[string][]usage.Entry
	audits        map[string][]retrieval.Audit
	nextID        int
}

func newMemStore() *memStore {
	return &memStore{
		conversations: make(map[string]*chat.Conversation),
		messages:      make(map[string][]chat.StoredMessage),
		entries:       make(map[string][]usage.Entry),
		audits:        make(map[string][]retrieval.Audit),
	}
}

func (s *memStore) CreateConversation(_ context.Context, title string) (*chat.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	c := &chat.Conversation{
		ID:        fmt.Sprintf("conv-%d", s.nextID),
		Title:     title,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	s.conversations[c.ID] = c
	return c, nil
}

func (s *memStore) GetConversation(_ context.Context, id string) (*chat.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return c, nil
}

func (s *memStore) ListConversations(_ context.Context) ([]chat.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []chat.Conversation
	for _, c := range s.conversations {
		out = append(out, *c)
	}
	return out, nil
}

func (s *memStore) DeleteConversation(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[id]; !ok {
		return domain.ErrNotFound
	}
	delete(s.conversations, id)
	delete(s.messages, id)
	return nil
}

func (s *memStore) AppendMessage(_ context.Context, m *chat.StoredMessage) (*chat.StoredMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *m
	stored.ID = fmt.Sprintf("msg-%d", len(s.messages[m.ConversationID])+1)
	stored.CreatedAt = time.Now().UTC()
	s.messages[m.ConversationID] = append(s.messages[m.ConversationID], stored)
	return &stored, nil
}

func (s *memStore) ListMessages(_ context.Context, conversationID string) ([]chat.StoredMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]chat.StoredMessage(nil), s.messages[conversationID]...), nil
}

func (s *memStore) InsertLedgerEntries(_ context.Context, conversationID string, entries []usage.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[conversationID] = append(s.entries[conversationID], entries...)
	return nil
}

func (s *memStore) UsageByComponent(_ context.Context, conversationID string) ([]usage.ComponentSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byComp := make(map[string]usage.ComponentSummary)
	for _, e := range s.entries[conversationID] {
		sum := byComp[e.Component]
		sum.Component = e.Component
		sum.Calls++
		sum.Usage = sum.Usage.Add(e.Usage)
		sum.CostUSD += e.CostUSD
		byComp[e.Component] = sum
	}
	var out []usage.ComponentSummary
	for _, v := range byComp {
		out = append(out, v)
	}
	return out, nil
}

func (s *memStore) InsertAudits(_ context.Context, conversationID string, _ int, audits []retrieval.Audit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audits[conversationID] = append(s.audits[conversationID], audits...)
	return nil
}

func (s *memStore) ListAudits(_ context.Context, conversationID string) ([]retrieval.Audit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]retrieval.Audit(nil), s.audits[conversationID]...), nil
}

func newTestConversations(t *testing.T, steps []step) (*Conversations, *memStore) {
	t.Helper()
	client := &scriptedLLM{steps: steps}
	agent := newTestAgent(client, &fakeIndex{results: testPassages()}, testAgentConfig())
	store := newMemStore()
	return NewConversations(store, agent, nil, 20), store
}

func TestSendMessagePersistsTurn(t *testing.T) {
	svc, store := newTestConversations(t, []step{
		{resp: toolResponse(searchCall("c1", "what is X"))},
		{resp: textResponse("X is documented.")},
	})

	conv, err := svc.Create(context.Background(), "test")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	result, err := svc.SendMessage(context.Background(), conv.ID, "what is X?")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if !result.Success || result.Answer != "X is documented." {
		t.Fatalf("unexpected result: %+v", result)
	}

	msgs := store.messages[conv.ID]
	if len(msgs) != 2 {
		t.Fatalf("expected one user+assistant pair persisted, got %d messages", len(msgs))
	}
	if msgs[0].Role != chat.RoleUser || msgs[0].Content != "what is X?" || msgs[0].Turn != 1 {
		t.Errorf("unexpected user message: %+v", msgs[0])
	}
	if msgs[1].Role != chat.RoleAssistant || msgs[1].Content != "X is documented." {
		t.Errorf("unexpected assistant message: %+v", msgs[1])
	}
	if msgs[1].ToolNote == "" || !strings.Contains(msgs[1].ToolNote, "1 tool call(s)") {
		t.Errorf("expected tool note on assistant message, got %q", msgs[1].ToolNote)
	}

	if len(store.entries[conv.ID]) == 0 {
		t.Error("expected ledger entries persisted")
	}
	if len(store.audits[conv.ID]) != 1 {
		t.Errorf("expected 1 audit persisted, got %d", len(store.audits[conv.ID]))
	}
}

func TestSendMessageNoToolsNoNote(t *testing.T) {
	svc, store := newTestConversations(t, []step{
		{resp: textResponse("just an answer")},
	})

	conv, _ := svc.Create(context.Background(), "test")
	result, err := svc.SendMessage(context.Background(), conv.ID, "hi")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if result.ToolCalls != 0 || result.Iterations != 1 {
		t.Errorf("expected no-tool single iteration, got %d calls %d iterations", result.ToolCalls, result.Iterations)
	}
	if len(result.RetrievalAudits) != 0 {
		t.Errorf("expected no audits, got %d", len(result.RetrievalAudits))
	}

	msgs := store.messages[conv.ID]
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[1].ToolNote != "" {
		t.Errorf("expected no tool note without tools, got %q", msgs[1].ToolNote)
	}
}

func TestSendMessageUnknownConversation(t *testing.T) {
	svc, _ := newTestConversations(t, []step{{resp: textResponse("x")}})
	if _, err := svc.SendMessage(context.Background(), "missing", "hi"); err == nil {
		t.Fatal("expected not-found error")
	}
}

func TestSendMessageTurnNumbersIncrement(t *testing.T) {
	svc, store := newTestConversations(t, []step{{resp: textResponse("a")}})

	conv, _ := svc.Create(context.Background(), "test")
	svc.SendMessage(context.Background(), conv.ID, "first")
	svc.SendMessage(context.Background(), conv.ID, "second")

	msgs := store.messages[conv.ID]
	if len(msgs) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(msgs))
	}
	if msgs[0].Turn != 1 || msgs[2].Turn != 2 {
		t.Errorf("expected turns 1 and 2, got %d and %d", msgs[0].Turn, msgs[2].Turn)
	}
}

func TestSessionRestoreFromStore(t *testing.T) {
	svc, store := newTestConversations(t, []step{{resp: textResponse("restored answer")}})

	conv, _ := svc.Create(context.Background(), "test")
	ctx := context.Background()
	store.AppendMessage(ctx, &chat.StoredMessage{ConversationID: conv.ID, Role: chat.RoleUser, Content: "old q", Turn: 1})
	store.AppendMessage(ctx, &chat.StoredMessage{ConversationID: conv.ID, Role: chat.RoleAssistant, Content: "old a", ToolNote: "note: this answer used 1 tool call(s)", Turn: 1})

	result, err := svc.SendMessage(ctx, conv.ID, "new question")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if !result.Success {
		t.Fatalf("unexpected failure: %q", result.Error)
	}

	msgs := store.messages[conv.ID]
	last := msgs[len(msgs)-1]
	if last.Turn != 2 {
		t.Errorf("expected restored session to continue at turn 2, got %d", last.Turn)
	}
}

func TestSessionRestoreAnnotatesModelView(t *testing.T) {
	client := &scriptedLLM{steps: []step{{resp: textResponse("ok")}}}
	agent := newTestAgent(client, &fakeIndex{}, testAgentConfig())
	store := newMemStore()
	svc := NewConversations(store, agent, nil, 20)

	conv, _ := svc.Create(context.Background(), "test")
	ctx := context.Background()
	store.AppendMessage(ctx, &chat.StoredMessage{ConversationID: conv.ID, Role: chat.RoleUser, Content: "q", Turn: 1})
	store.AppendMessage(ctx, &chat.StoredMessage{ConversationID: conv.ID, Role: chat.RoleAssistant, Content: "a", ToolNote: "note: used tools", Turn: 1})

	if _, err := svc.SendMessage(ctx, conv.ID, "followup"); err != nil {
		t.Fatalf("send: %v", err)
	}

	sent := client.transcripts[0]
	found := false
	for _, m := range sent {
		if m.Role == chat.RoleAssistant && strings.Contains(m.Content, "[note: used tools]") {
			found = true
		}
	}
	if !found {
		t.Error("restored history should carry the tool note in the model view")
	}
}

func TestDeleteConversationDropsSession(t *testing.T) {
	svc, _ := newTestConversations(t, []step{{resp: textResponse("a")}})

	conv, _ := svc.Create(context.Background(), "test")
	svc.SendMessage(context.Background(), conv.ID, "hi")

	if err := svc.Delete(context.Background(), conv.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	svc.mu.Lock()
	_, ok := svc.sessions[conv.ID]
	svc.mu.Unlock()
	if ok {
		t.Error("expected session dropped on delete")
	}
}

func TestUsageAndAuditsRequireConversation(t *testing.T) {
	svc, _ := newTestConversations(t, nil)

	if _, err := svc.Usage(context.Background(), "missing"); err == nil {
		t.Error("expected not-found error from Usage")
	}
	if _, err := svc.Audits(context.Background(), "missing"); err == nil {
		t.Error("expected not-found error from Audits")
	}
}

func TestUsageAndAuditsEmptyNotNil(t *testing.T) {
	svc, _ := newTestConversations(t, nil)
	conv, _ := svc.Create(context.Background(), "test")

	summaries, err := svc.Usage(context.Background(), conv.ID)
	if err != nil {
		t.Fatalf("usage: %v", err)
	}
	if summaries == nil {
		t.Error("expected empty slice, not nil")
	}

	audits, err := svc.Audits(context.Background(), conv.ID)
	if err != nil {
		t.Fatalf("audits: %v", err)
	}
	if audits == nil {
		t.Error("expected empty slice, not nil")
	}
}

func TestBuildToolNote(t *testing.T) {
	if got := buildToolNote(&turn.Result{ToolCalls: 0, Iterations: 1}); got != "" {
		t.Errorf("expected empty note without tools, got %q", got)
	}

	r := &turn.Result{
		ToolCalls:       3,
		Iterations:      2,
		RetrievalAudits: []retrieval.Audit{{}, {}},
	}
	got := buildToolNote(r)
	if !strings.Contains(got, "3 tool call(s)") ||
		!strings.Contains(got, "2 iteration(s)") ||
		!strings.Contains(got, "2 knowledge base search(es)") {
		t.Errorf("unexpected note: %q", got)
	}
}
