package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ragline/ragline/internal/adapter/otel"
	"github.com/ragline/ragline/internal/adapter/ws"
	"github.com/ragline/ragline/internal/config"
	"github.com/ragline/ragline/internal/domain/chat"
	"github.com/ragline/ragline/internal/domain/retrieval"
	"github.com/ragline/ragline/internal/domain/turn"
	"github.com/ragline/ragline/internal/domain/usage"
	"github.com/ragline/ragline/internal/port/broadcast"
	"github.com/ragline/ragline/internal/port/llm"
	"github.com/ragline/ragline/internal/port/vectorindex"
)

// Tool names the loop dispatches on. The set is fixed at compile time; a
// model asking for anything else gets an error-text tool result.
const (
	toolSearch      = "search_knowledge_base"
	toolListSources = "list_sources"
)

const listSourcesK = 100

const steeringMessage = "You have already searched the knowledge base several times this turn. " +
	"Answer with the passages you have, or ask the user to clarify. Do not search again."

// Agent runs the tool-use conversation loop: call the model, dispatch the
// tools it asks for, feed the results back, and finish when the model
// answers in plain text or the iteration cap is hit.
type Agent struct {
	llm       llm.Client
	retriever *Retriever
	planner   *Planner
	relevance *RelevanceWorker
	cfg       config.AgentConfig
	topK      int
	cost      usage.CostFunc

	headings map[string]string
	metrics  *otel.Metrics
	hub      broadcast.Broadcaster
}

// NewAgent creates the loop. planner, relevance, metrics, and hub are
// optional; topK is the result count the search tool declares.
func NewAgent(client llm.Client, retriever *Retriever, cfg config.AgentConfig, topK int, cost usage.CostFunc) *Agent {
	return &Agent{
		llm:       client,
		retriever: retriever,
		cfg:       cfg,
		topK:      topK,
		cost:      cost,
	}
}

// SetPlanner attaches the two-stage search planner.
func (a *Agent) SetPlanner(p *Planner) { a.planner = p }

// SetRelevanceWorker attaches the background passage screener.
func (a *Agent) SetRelevanceWorker(w *RelevanceWorker) { a.relevance = w }

// SetHeadings installs the section heading map the planner selects from.
func (a *Agent) SetHeadings(h map[string]string) { a.headings = h }

// SetMetrics attaches metric instruments.
func (a *Agent) SetMetrics(m *otel.Metrics) { a.metrics = m }

// SetBroadcaster attaches the progress event sink.
func (a *Agent) SetBroadcaster(b broadcast.Broadcaster) { a.hub = b }

// turnState carries everything one turn owns. Nothing here outlives the
// turn or is shared with other turns.
type turnState struct {
	conversationID string
	turn           int
	session        *Session
	tracker        *usage.Tracker
	audits         *retrieval.Accumulator
	retrieverCalls int
	steered        bool
}

// RunTurn executes one full turn. history is the model view of prior
// exchanges; question is the new user message. The returned result is
// complete: answer or apology, counters, ledger, and audits.
func (a *Agent) RunTurn(ctx context.Context, conversationID string, turnNo int, session *Session, history []chat.Message, question string) turn.Result {
	st := &turnState{
		conversationID: conversationID,
		turn:           turnNo,
		session:        session,
		tracker:        usage.NewTracker(a.cost),
		audits:         &retrieval.Accumulator{},
	}

	ctx, span := otel.StartTurnSpan(ctx, conversationID, turnNo)
	defer span.End()

	start := time.Now()
	if a.metrics != nil {
		a.metrics.TurnsStarted.Add(ctx, 1)
	}
	a.broadcast(ctx, ws.EventTurnStarted, ws.TurnStartedEvent{ConversationID: conversationID, Turn: turnNo})

	msgs := make([]chat.Message, 0, len(history)+2)
	msgs = append(msgs, chat.SystemMessage(a.cfg.SystemPrompt))
	msgs = append(msgs, history...)
	msgs = append(msgs, chat.UserMessage(question))

	result := a.loop(ctx, st, msgs)
	a.settle(ctx, st, &result, time.Since(start))
	return result
}

func (a *Agent) loop(ctx context.Context, st *turnState, msgs []chat.Message) turn.Result {
	var llmCalls, toolCalls int

	finish := func(r turn.Result) turn.Result {
		r.LLMCalls = llmCalls
		r.ToolCalls = toolCalls
		r.Transcript = msgs
		return r
	}

	for iteration := 1; iteration <= a.cfg.MaxIterations; iteration++ {
		callStart := time.Now()
		resp, err := a.llm.Invoke(ctx, a.cfg.Model, msgs, a.toolDefs())
		if err != nil {
			slog.Error("model call failed", "conversation_id", st.conversationID, "turn", st.turn, "error", err)
			r := finish(turn.Failure(turn.ErrorModelCall, st.tracker, st.audits.All()))
			r.Iterations = iteration
			return r
		}
		llmCalls++
		if a.metrics != nil {
			a.metrics.LLMCalls.Add(ctx, 1)
		}
		st.tracker.Register("agent", resp.Model, usage.Extract(resp.Provider, resp.Usage), time.Since(callStart), st.turn)

		if len(resp.ToolCalls) == 0 {
			if a.relevance != nil {
				a.relevance.Wait()
			}
			r := finish(turn.Assemble(resp.Content, st.audits.All(), st.tracker))
			r.Iterations = iteration
			return r
		}

		msgs = append(msgs, chat.AssistantMessage(resp.Content, resp.ToolCalls))

		results, err := a.dispatchTools(ctx, st, resp.ToolCalls)
		if err != nil {
			kind := turn.ErrorModelCall
			if errors.Is(err, vectorindex.ErrStoreUnavailable) {
				kind = turn.ErrorStoreUnavailable
			}
			slog.Error("tool dispatch failed", "conversation_id", st.conversationID, "turn", st.turn, "error", err)
			r := finish(turn.Failure(kind, st.tracker, st.audits.All()))
			r.Iterations = iteration
			return r
		}
		msgs = append(msgs, results...)
		toolCalls += len(resp.ToolCalls)
		if a.metrics != nil {
			a.metrics.ToolCalls.Add(ctx, int64(len(resp.ToolCalls)))
		}

		if !st.steered && a.cfg.SoftRetrievalLimit > 0 && st.retrieverCalls >= a.cfg.SoftRetrievalLimit {
			msgs = append(msgs, chat.SystemMessage(steeringMessage))
			st.steered = true
			slog.Info("soft retrieval limit reached, steering model to answer",
				"conversation_id", st.conversationID, "turn", st.turn, "retriever_calls", st.retrieverCalls)
		}
	}

	if a.relevance != nil {
		a.relevance.Wait()
	}
	slog.Warn("turn hit iteration cap", "conversation_id", st.conversationID, "turn", st.turn, "max", a.cfg.MaxIterations)
	r := finish(turn.Failure(turn.ErrorMaxIterations, st.tracker, st.audits.All()))
	r.Iterations = a.cfg.MaxIterations
	return r
}

// dispatchTools executes the calls of one assistant turn, independent calls
// concurrently, and returns the tool results in issue order. Only fatal
// conditions surface as an error; everything else becomes error text the
// model can react to.
func (a *Agent) dispatchTools(ctx context.Context, st *turnState, calls []chat.ToolCall) ([]chat.Message, error) {
	results := make([]chat.Message, len(calls))

	g, gctx := errgroup.WithContext(ctx)
	for i, call := range calls {
		g.Go(func() error {
			a.broadcast(gctx, ws.EventToolCall, ws.ToolCallEvent{
				ConversationID: st.conversationID,
				Turn:           st.turn,
				Tool:           call.Name,
				Query:          stringArg(call.Arguments, "query"),
			})

			callCtx, span := otel.StartToolCallSpan(gctx, call.ID, call.Name)
			msg, err := a.executeTool(callCtx, st, call)
			span.End()
			if err != nil {
				return err
			}
			results[i] = msg
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, call := range calls {
		if call.Name == toolSearch || call.Name == toolListSources {
			st.retrieverCalls++
		}
	}
	return results, nil
}

// executeTool runs one call. The returned error is reserved for fatal
// conditions (an unavailable index); tool-level failures come back as
// error-text tool results.
func (a *Agent) executeTool(ctx context.Context, st *turnState, call chat.ToolCall) (chat.Message, error) {
	switch call.Name {
	case toolSearch:
		return a.execSearch(ctx, st, call)
	case toolListSources:
		return a.execListSources(ctx, st, call)
	default:
		slog.Warn("model requested unknown tool", "tool", call.Name)
		return chat.ToolResult(call.ID, call.Name, fmt.Sprintf("error: unknown tool %s", call.Name)), nil
	}
}

func (a *Agent) execSearch(ctx context.Context, st *turnState, call chat.ToolCall) (chat.Message, error) {
	query := stringArg(call.Arguments, "query")
	if query == "" {
		return chat.ToolResult(call.ID, call.Name, "error: query argument is required"), nil
	}
	filter := filterArg(call.Arguments, "filter")

	// With no explicit filter, let the planner narrow the search first.
	if len(filter) == 0 && a.planner != nil {
		plan := a.planner.Plan(ctx, query, a.headings, st.tracker, st.turn)
		filter = plan.Filter
		if !plan.Semantic {
			query = ""
		}
	}

	passages, err := a.retriever.SearchWithAudit(ctx, query, a.topK, filter, toolSearch, st.audits)
	if err != nil {
		if errors.Is(err, vectorindex.ErrStoreUnavailable) {
			return chat.Message{}, err
		}
		return chat.ToolResult(call.ID, call.Name, "error: search failed: "+err.Error()), nil
	}

	if a.relevance != nil {
		a.relevance.Submit(query, passages, st.session, st.tracker, st.turn)
	}
	return chat.ToolResult(call.ID, call.Name, formatPassages(passages)), nil
}

func (a *Agent) execListSources(ctx context.Context, st *turnState, call chat.ToolCall) (chat.Message, error) {
	filter := filterArg(call.Arguments, "filter")

	// Empty query: pure metadata filtering, no semantic ranking.
	passages, err := a.retriever.SearchWithAudit(ctx, "", listSourcesK, filter, toolListSources, st.audits)
	if err != nil {
		if errors.Is(err, vectorindex.ErrStoreUnavailable) {
			return chat.Message{}, err
		}
		return chat.ToolResult(call.ID, call.Name, "error: listing sources failed: "+err.Error()), nil
	}

	summary := retrieval.Summarize(passages)
	if len(summary.Sources) == 0 {
		return chat.ToolResult(call.ID, call.Name, "no sources found"), nil
	}
	return chat.ToolResult(call.ID, call.Name, "available sources:\n- "+strings.Join(summary.Sources, "\n- ")), nil
}

// settle finishes accounting and emits the turn-level signals.
func (a *Agent) settle(ctx context.Context, st *turnState, result *turn.Result, elapsed time.Duration) {
	// The relevance worker may have registered entries after assembly.
	result.Usage = turn.UsageReport{
		ByComponent: st.tracker.ByComponent(),
		Totals:      st.tracker.Totals(),
		Entries:     st.tracker.Entries(),
	}

	if a.metrics != nil {
		if result.Success {
			a.metrics.TurnsCompleted.Add(ctx, 1)
		} else {
			a.metrics.TurnsFailed.Add(ctx, 1)
		}
		a.metrics.TurnDuration.Record(ctx, elapsed.Seconds())
		a.metrics.TurnCost.Record(ctx, result.Usage.Totals.CostUSD)
	}

	a.broadcast(ctx, ws.EventTurnFinished, ws.TurnFinishedEvent{
		ConversationID: st.conversationID,
		Turn:           st.turn,
		Success:        result.Success,
		Error:          string(result.Error),
		Iterations:     result.Iterations,
		CostUSD:        result.Usage.Totals.CostUSD,
	})
}

func (a *Agent) broadcast(ctx context.Context, eventType string, payload any) {
	if a.hub != nil {
		a.hub.BroadcastEvent(ctx, eventType, payload)
	}
}

// toolDefs declares the bound tool schema. The set stays fixed for the
// whole loop.
func (a *Agent) toolDefs() []llm.ToolDef {
	return []llm.ToolDef{
		{
			Name:        toolSearch,
			Description: fmt.Sprintf("Search the knowledge base. Returns the %d most similar passages.", a.topK),
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{
						"type":        "string",
						"description": "The search query.",
					},
					"filter": map[string]any{
						"type":        "object",
						"description": "Optional metadata filter: field name to list of accepted values.",
					},
				},
				"required": []string{"query"},
			},
		},
		{
			Name:        toolListSources,
			Description: "List the distinct source documents available in the knowledge base.",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
		},
	}
}

// formatPassages renders search results as numbered passages with their
// source attribution and similarity score.
func formatPassages(passages []retrieval.ScoredPassage) string {
	if len(passages) == 0 {
		return "no passages found"
	}
	var sb strings.Builder
	for i, p := range passages {
		fmt.Fprintf(&sb, "[%d] (score %.3f", i+1, p.Score)
		if src := p.Metadata["source"]; src != "" {
			fmt.Fprintf(&sb, ", source %s", src)
		}
		sb.WriteString(")\n")
		sb.WriteString(p.Content)
		sb.WriteString("\n\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func stringArg(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

// filterArg decodes a filter argument. Values may arrive as a single string
// or a list of strings.
func filterArg(args map[string]any, key string) retrieval.Filter {
	raw, ok := args[key].(map[string]any)
	if !ok || len(raw) == 0 {
		return nil
	}
	filter := retrieval.Filter{}
	for field, v := range raw {
		switch vv := v.(type) {
		case string:
			filter[field] = []string{vv}
		case []any:
			var vals []string
			for _, item := range vv {
				if s, ok := item.(string); ok {
					vals = append(vals, s)
				}
			}
			if len(vals) > 0 {
				filter[field] = vals
			}
		}
	}
	if len(filter) == 0 {
		return nil
	}
	return filter
}
