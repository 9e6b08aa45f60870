// Package turn defines the result surface one conversation turn returns to
// its caller, and the pure aggregation that assembles it.
package turn

import (
	"github.com/ragline/ragline/internal/domain/chat"
	"github.com/ragline/ragline/internal/domain/retrieval"
	"github.com/ragline/ragline/internal/domain/usage"
)

// ErrorKind classifies turn-level failures. Tool-level and accounting
// errors are absorbed inside the loop and never appear here.
type ErrorKind string

const (
	ErrorNone             ErrorKind = ""
	ErrorMaxIterations    ErrorKind = "max_iterations_reached"
	ErrorStoreUnavailable ErrorKind = "store_unavailable"
	ErrorModelCall        ErrorKind = "model_call_failed"
)

// Apology is the fixed user-facing answer on any turn failure. Raw provider
// errors are never surfaced to the end user.
const Apology = "I'm sorry, I wasn't able to finish answering that. Please try again or rephrase your question."

// UsageReport merges the tracker's per-component and total summaries.
type UsageReport struct {
	ByComponent map[string]usage.ComponentSummary `json:"by_component"`
	Totals      usage.Summary                     `json:"totals"`
	Entries     []usage.Entry                     `json:"entries,omitempty"`
}

// Result is the exit surface of one turn. RetrievalAudits inline chunk
// contents in full; auditability beats payload size here.
type Result struct {
	Success         bool              `json:"success"`
	Answer          string            `json:"answer"`
	Error           ErrorKind         `json:"error,omitempty"`
	Iterations      int               `json:"iteration_count"`
	LLMCalls        int               `json:"llm_call_count"`
	ToolCalls       int               `json:"tool_call_count"`
	Usage           UsageReport       `json:"token_summary"`
	RetrievalAudits []retrieval.Audit `json:"retrieval_audits"`
	Transcript      []chat.Message    `json:"transcript,omitempty"`
}

// Assemble builds a successful Result from already-collected turn state.
// It is a pure aggregation: no state is mutated, counters are filled in by
// the loop afterwards.
func Assemble(answer string, audits []retrieval.Audit, tracker *usage.Tracker) Result {
	if audits == nil {
		audits = []retrieval.Audit{}
	}
	return Result{
		Success: true,
		Answer:  answer,
		Usage: UsageReport{
			ByComponent: tracker.ByComponent(),
			Totals:      tracker.Totals(),
			Entries:     tracker.Entries(),
		},
		RetrievalAudits: audits,
	}
}

// Failure builds a failed Result with the fixed apology answer.
func Failure(kind ErrorKind, tracker *usage.Tracker, audits []retrieval.Audit) Result {
	r := Assemble(Apology, audits, tracker)
	r.Success = false
	r.Error = kind
	return r
}
