package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/ragline/ragline/internal/domain/chat"
	"github.com/ragline/ragline/internal/domain/retrieval"
	"github.com/ragline/ragline/internal/domain/usage"
	"github.com/ragline/ragline/internal/port/llm"
)

// SearchPlan is the outcome of the two-stage planning pass: the filter to
// apply and whether to run a semantic query at all. A non-semantic plan
// searches with an empty query, which performs pure metadata filtering.
type SearchPlan struct {
	Query    string
	Filter   retrieval.Filter
	Semantic bool
}

// Planner narrows a search with two cheap model calls before the index is
// queried: stage one classifies the question into document filters, stage
// two picks section headings from the known heading map.
type Planner struct {
	llm   llm.Client
	model string
}

// NewPlanner creates a planner that runs on the given (cheap) model.
func NewPlanner(client llm.Client, model string) *Planner {
	return &Planner{llm: client, model: model}
}

type stageOneReply struct {
	SourceTypes []string `json:"source_types"`
	Sources     []string `json:"sources"`
}

type stageTwoReply struct {
	HeadingIDs []string `json:"heading_ids"`
	Semantic   bool     `json:"semantic"`
}

// Plan builds a SearchPlan for the question. headings maps stable section
// IDs to their display labels; IDs the model invents are dropped. Planning
// is best-effort: on any model or parse failure the fallback is a plain
// semantic search with no filter. Both stages register their token usage.
func (p *Planner) Plan(ctx context.Context, question string, headings map[string]string, tracker *usage.Tracker, turn int) SearchPlan {
	fallback := SearchPlan{Query: question, Semantic: true}

	filter := retrieval.Filter{}

	one, err := p.stageOne(ctx, question, tracker, turn)
	if err != nil {
		slog.Warn("retrieval planning stage 1 failed, using plain search", "error", err)
		return fallback
	}
	if len(one.SourceTypes) > 0 {
		filter["source_type"] = one.SourceTypes
	}
	if len(one.Sources) > 0 {
		filter["source"] = one.Sources
	}

	two, err := p.stageTwo(ctx, question, headings, tracker, turn)
	if err != nil {
		slog.Warn("retrieval planning stage 2 failed, using stage 1 filter only", "error", err)
		if len(filter) == 0 {
			return fallback
		}
		return SearchPlan{Query: question, Filter: filter, Semantic: true}
	}

	if ids := validHeadingIDs(two.HeadingIDs, headings); len(ids) > 0 {
		filter["heading_id"] = ids
	}

	plan := SearchPlan{Filter: filter, Semantic: two.Semantic}
	if two.Semantic {
		plan.Query = question
	}
	if len(plan.Filter) == 0 {
		plan.Filter = nil
	}
	return plan
}

func (p *Planner) stageOne(ctx context.Context, question string, tracker *usage.Tracker, turn int) (*stageOneReply, error) {
	prompt := "Classify this question against a document knowledge base. " +
		"Reply with JSON only: {\"source_types\": [...], \"sources\": [...]}. " +
		"Leave a list empty when the question does not commit to it.\n\nQuestion: " + question

	var out stageOneReply
	if err := p.call(ctx, "retriever_step1", prompt, tracker, turn, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (p *Planner) stageTwo(ctx context.Context, question string, headings map[string]string, tracker *usage.Tracker, turn int) (*stageTwoReply, error) {
	var sb strings.Builder
	sb.WriteString("Pick the section headings relevant to the question from this list, ")
	sb.WriteString("and decide whether a semantic search is needed on top of the heading filter. ")
	sb.WriteString("Reply with JSON only: {\"heading_ids\": [...], \"semantic\": true|false}.\n\nHeadings:\n")
	for _, id := range sortedHeadingIDs(headings) {
		fmt.Fprintf(&sb, "- %s: %s\n", id, headings[id])
	}
	sb.WriteString("\nQuestion: " + question)

	var out stageTwoReply
	if err := p.call(ctx, "retriever_step2", sb.String(), tracker, turn, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// call runs one planning completion, registers its usage under component,
// and parses the JSON reply into out.
func (p *Planner) call(ctx context.Context, component, prompt string, tracker *usage.Tracker, turn int, out any) error {
	start := time.Now()
	resp, err := p.llm.Invoke(ctx, p.model, []chat.Message{chat.UserMessage(prompt)}, nil)
	if err != nil {
		return err
	}
	tracker.Register(component, resp.Model, usage.Extract(resp.Provider, resp.Usage), time.Since(start), turn)

	if err := json.Unmarshal([]byte(extractJSON(resp.Content)), out); err != nil {
		return fmt.Errorf("parse %s reply: %w", component, err)
	}
	return nil
}

// validHeadingIDs keeps only IDs present in the heading map, in input order.
func validHeadingIDs(ids []string, headings map[string]string) []string {
	var out []string
	for _, id := range ids {
		if _, ok := headings[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

func sortedHeadingIDs(headings map[string]string) []string {
	ids := make([]string, 0, len(headings))
	for id := range headings {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// extractJSON strips markdown code fences models tend to wrap JSON in.
func extractJSON(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
	}
	return strings.TrimSpace(s)
}
