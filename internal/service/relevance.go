package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ragline/ragline/internal/domain/chat"
	"github.com/ragline/ragline/internal/domain/retrieval"
	"github.com/ragline/ragline/internal/domain/usage"
	"github.com/ragline/ragline/internal/port/llm"
)

// relevanceJob is one batch of retrieved passages to screen for a session.
type relevanceJob struct {
	question string
	passages []retrieval.ScoredPassage
	session  *Session
	tracker  *usage.Tracker
	turn     int
}

// RelevanceWorker screens retrieved passages in the background and folds the
// keepers into the session's memorized chunk pool. One dedicated goroutine
// consumes jobs in submission order, so pool updates never race.
type RelevanceWorker struct {
	llm      llm.Client
	model    string
	minScore float64

	ch      chan relevanceJob
	pending sync.WaitGroup
	done    chan struct{}
}

// NewRelevanceWorker starts the worker goroutine. client may be nil, in
// which case screening falls back to the similarity score threshold.
func NewRelevanceWorker(client llm.Client, model string, minScore float64) *RelevanceWorker {
	w := &RelevanceWorker{
		llm:      client,
		model:    model,
		minScore: minScore,
		ch:       make(chan relevanceJob, 64),
		done:     make(chan struct{}),
	}
	go w.run()
	return w
}

// Submit queues one batch for screening. Fire-and-forget: the loop does not
// block on screening. Returns false when the queue is full or closed.
func (w *RelevanceWorker) Submit(question string, passages []retrieval.ScoredPassage, session *Session, tracker *usage.Tracker, turn int) bool {
	if len(passages) == 0 {
		return true
	}
	w.pending.Add(1)
	select {
	case w.ch <- relevanceJob{question: question, passages: passages, session: session, tracker: tracker, turn: turn}:
		return true
	default:
		w.pending.Done()
		slog.Warn("relevance queue full, dropping batch", "passages", len(passages))
		return false
	}
}

// Wait blocks until every submitted job has been processed. The loop calls
// this before settling a turn so the pool and ledger are complete.
func (w *RelevanceWorker) Wait() {
	w.pending.Wait()
}

// Close stops the worker after draining outstanding jobs.
func (w *RelevanceWorker) Close() {
	close(w.ch)
	<-w.done
}

func (w *RelevanceWorker) run() {
	defer close(w.done)
	for job := range w.ch {
		w.process(job)
		w.pending.Done()
	}
}

func (w *RelevanceWorker) process(job relevanceJob) {
	keep := w.screen(job)
	for _, p := range keep {
		job.session.Memorize(p.Passage)
	}
}

// screen decides which passages are worth memorizing. With a model
// configured it asks for a keep/drop verdict per passage in one call and
// registers the usage under the relevance component; otherwise (or on any
// failure) it falls back to the similarity threshold.
func (w *RelevanceWorker) screen(job relevanceJob) []retrieval.ScoredPassage {
	if w.llm == nil || w.model == "" {
		return w.byScore(job.passages)
	}

	var sb strings.Builder
	sb.WriteString("For each numbered passage, decide whether it helps answer the question. ")
	sb.WriteString("Reply with JSON only: {\"keep\": [indices]}.\n\nQuestion: ")
	sb.WriteString(job.question)
	sb.WriteString("\n\n")
	for i, p := range job.passages {
		fmt.Fprintf(&sb, "[%d] %s\n\n", i, p.Content)
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	resp, err := w.llm.Invoke(ctx, w.model, []chat.Message{chat.UserMessage(sb.String())}, nil)
	if err != nil {
		slog.Warn("relevance screening call failed, falling back to score threshold", "error", err)
		return w.byScore(job.passages)
	}
	job.tracker.Register("relevance", resp.Model, usage.Extract(resp.Provider, resp.Usage), time.Since(start), job.turn)

	var verdict struct {
		Keep []int `json:"keep"`
	}
	if err := json.Unmarshal([]byte(extractJSON(resp.Content)), &verdict); err != nil {
		slog.Warn("relevance verdict unparseable, falling back to score threshold", "error", err)
		return w.byScore(job.passages)
	}

	var out []retrieval.ScoredPassage
	for _, i := range verdict.Keep {
		if i >= 0 && i < len(job.passages) {
			out = append(out, job.passages[i])
		}
	}
	return out
}

func (w *RelevanceWorker) byScore(passages []retrieval.ScoredPassage) []retrieval.ScoredPassage {
	var out []retrieval.ScoredPassage
	for _, p := range passages {
		if p.Score >= w.minScore {
			out = append(out, p)
		}
	}
	return out
}

// passageKey identifies a passage by content for deduplication.
func passageKey(p retrieval.Passage) string {
	sum := sha256.Sum256([]byte(p.Content))
	return hex.EncodeToString(sum[:])
}
