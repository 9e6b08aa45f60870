// Package llm defines the port interface for chat model calls.
package llm

import (
	"context"

	"github.com/ragline/ragline/internal/domain/chat"
	"github.com/ragline/ragline/internal/domain/usage"
)

// ToolDef declares one tool bound to a model call. Parameters is a JSON
// Schema object describing the arguments.
type ToolDef struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Response is the normalized result of one model call. Usage carries the
// raw provider usage payload; extraction into a canonical record happens in
// the usage package, selected by the Provider tag.
type Response struct {
	Content   string
	ToolCalls []chat.ToolCall
	Model     string
	Provider  usage.Provider
	Usage     map[string]any
}

// Client is the port interface for invoking chat models. The tool schema
// stays bound for the duration of a loop; the model is chosen per call so
// the planner can run on a cheaper model than the agent.
type Client interface {
	Invoke(ctx context.Context, model string, messages []chat.Message, tools []ToolDef) (*Response, error)
}
