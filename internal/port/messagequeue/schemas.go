package messagequeue

import "github.com/ragline/ragline/internal/domain/retrieval"

// IndexStatusPayload is published by the index worker whenever the index
// state changes.
type IndexStatusPayload struct {
	Status         string `json:"status"` // "building", "ready", "error"
	FileCount      int    `json:"file_count"`
	ChunkCount     int    `json:"chunk_count"`
	EmbeddingModel string `json:"embedding_model"`
	Error          string `json:"error,omitempty"`
}

// SearchRequestPayload asks the index worker for a similarity search.
// RequestID correlates the asynchronous reply.
type SearchRequestPayload struct {
	RequestID string           `json:"request_id"`
	Query     string           `json:"query"`
	TopK      int              `json:"top_k"`
	Filter    retrieval.Filter `json:"filter,omitempty"`
}

// SearchHit is one scored chunk in a search reply.
type SearchHit struct {
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Score    float64           `json:"score"`
}

// SearchResultPayload is the index worker's reply to a search request.
type SearchResultPayload struct {
	RequestID string      `json:"request_id"`
	Results   []SearchHit `json:"results"`
	Error     string      `json:"error,omitempty"`
}

// TurnCompletedPayload summarizes a finished conversation turn for
// downstream observers.
type TurnCompletedPayload struct {
	ConversationID string  `json:"conversation_id"`
	Turn           int     `json:"turn"`
	Success        bool    `json:"success"`
	Error          string  `json:"error,omitempty"`
	Iterations     int     `json:"iterations"`
	ToolCalls      int     `json:"tool_calls"`
	CostUSD        float64 `json:"cost_usd"`
}
