package http

import (
	"net/http"

	"github.com/ragline/ragline/internal/adapter/indexnats"
	"github.com/ragline/ragline/internal/adapter/ws"
	"github.com/ragline/ragline/internal/domain/chat"
	"github.com/ragline/ragline/internal/service"
)

const maxBodyBytes = 1 << 20 // 1 MiB

// Handlers bundles the dependencies the HTTP layer needs.
type Handlers struct {
	conversations *service.Conversations
	index         *indexnats.Index
	hub           *ws.Hub
}

// NewHandlers creates the handler set.
func NewHandlers(conversations *service.Conversations, index *indexnats.Index, hub *ws.Hub) *Handlers {
	return &Handlers{
		conversations: conversations,
		index:         index,
		hub:           hub,
	}
}

// Health reports liveness.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- Conversations ---

type createConversationRequest struct {
	Title string `json:"title"`
}

func (h *Handlers) CreateConversation(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[createConversationRequest](w, r, maxBodyBytes)
	if !ok {
		return
	}

	conv, err := h.conversations.Create(r.Context(), req.Title)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, conv)
}

func (h *Handlers) ListConversations(w http.ResponseWriter, r *http.Request) {
	convs, err := h.conversations.List(r.Context())
	if err != nil {
		writeInternalError(w, err)
		return
	}
	if convs == nil {
		convs = []chat.Conversation{}
	}
	writeJSON(w, http.StatusOK, convs)
}

func (h *Handlers) GetConversation(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	conv, messages, err := h.conversations.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "conversation not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"conversation": conv,
		"messages":     messages,
	})
}

func (h *Handlers) DeleteConversation(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	if err := h.conversations.Delete(r.Context(), id); err != nil {
		writeDomainError(w, err, "conversation not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Turns ---

type sendMessageRequest struct {
	Content string `json:"content"`
}

// SendMessage runs one full conversation turn and returns the turn result,
// including the token ledger and retrieval audits.
func (h *Handlers) SendMessage(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	req, ok := readJSON[sendMessageRequest](w, r, maxBodyBytes)
	if !ok {
		return
	}
	if !requireField(w, req.Content, "content") {
		return
	}

	result, err := h.conversations.SendMessage(r.Context(), id, req.Content)
	if err != nil {
		writeDomainError(w, err, "conversation not found")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// --- Accounting ---

func (h *Handlers) GetUsage(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	summaries, err := h.conversations.Usage(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "conversation not found")
		return
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (h *Handlers) GetAudits(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	audits, err := h.conversations.Audits(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "conversation not found")
		return
	}
	writeJSON(w, http.StatusOK, audits)
}

// --- Index ---

func (h *Handlers) IndexStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.index.CurrentStatus())
}
