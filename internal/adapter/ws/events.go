package ws

import (
	"context"
	"encoding/json"
	"log/slog"
)

// Event type constants for WebSocket messages.
const (
	EventTurnStarted  = "turn.started"
	EventToolCall     = "turn.toolcall"
	EventTurnFinished = "turn.finished"
	EventIndexStatus  = "index.status"
)

// TurnStartedEvent is broadcast when a conversation turn begins.
type TurnStartedEvent struct {
	ConversationID string `json:"conversation_id"`
	Turn           int    `json:"turn"`
}

// ToolCallEvent is broadcast for every tool call the loop dispatches.
type ToolCallEvent struct {
	ConversationID string `json:"conversation_id"`
	Turn           int    `json:"turn"`
	Iteration      int    `json:"iteration"`
	Tool           string `json:"tool"`
	Query          string `json:"query,omitempty"`
}

// TurnFinishedEvent is broadcast when a turn completes or fails.
type TurnFinishedEvent struct {
	ConversationID string  `json:"conversation_id"`
	Turn           int     `json:"turn"`
	Success        bool    `json:"success"`
	Error          string  `json:"error,omitempty"`
	Iterations     int     `json:"iterations"`
	CostUSD        float64 `json:"cost_usd"`
}

// IndexStatusEvent mirrors the index worker's status for connected UIs.
type IndexStatusEvent struct {
	Status         string `json:"status"`
	FileCount      int    `json:"file_count"`
	ChunkCount     int    `json:"chunk_count"`
	EmbeddingModel string `json:"embedding_model"`
	Error          string `json:"error,omitempty"`
}

// BroadcastEvent is a convenience method that marshals a typed event and broadcasts it.
func (h *Hub) BroadcastEvent(ctx context.Context, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal ws event payload", "type", eventType, "error", err)
		return
	}

	h.Broadcast(ctx, Message{
		Type:    eventType,
		Payload: json.RawMessage(data),
	})
}
