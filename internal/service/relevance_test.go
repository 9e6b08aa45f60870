package service

import (
	"testing"

	"github.com/ragline/ragline/internal/domain/retrieval"
	"github.com/ragline/ragline/internal/domain/usage"
)

func scoredPassage(content string, score float64) retrieval.ScoredPassage {
	return retrieval.ScoredPassage{Passage: retrieval.Passage{Content: content}, Score: score}
}

func TestRelevanceScoreThresholdFallback(t *testing.T) {
	w := NewRelevanceWorker(nil, "", 0.5)
	defer w.Close()

	session := newSession(20)
	tracker := usage.NewTracker(nil)

	w.Submit("question", []retrieval.ScoredPassage{
		scoredPassage("keeper", 0.8),
		scoredPassage("dropped", 0.2),
	}, session, tracker, 1)
	w.Wait()

	if got := session.MemorizedCount(); got != 1 {
		t.Fatalf("expected 1 memorized passage, got %d", got)
	}
}

func TestRelevanceDedupAcrossBatches(t *testing.T) {
	w := NewRelevanceWorker(nil, "", 0.1)
	defer w.Close()

	session := newSession(20)
	tracker := usage.NewTracker(nil)

	batch := []retrieval.ScoredPassage{scoredPassage("same content", 0.9)}
	w.Submit("q1", batch, session, tracker, 1)
	w.Submit("q2", batch, session, tracker, 1)
	w.Wait()

	if got := session.MemorizedCount(); got != 1 {
		t.Fatalf("expected duplicate passage memorized once, got %d", got)
	}
}

func TestRelevanceLLMVerdict(t *testing.T) {
	client := &scriptedLLM{steps: []step{
		{resp: textResponse(`{"keep": [0, 2]}`)},
	}}
	w := NewRelevanceWorker(client, "gpt-5-mini", 0.5)
	defer w.Close()

	session := newSession(20)
	tracker := usage.NewTracker(nil)

	w.Submit("question", []retrieval.ScoredPassage{
		scoredPassage("a", 0.1),
		scoredPassage("b", 0.9),
		scoredPassage("c", 0.1),
	}, session, tracker, 1)
	w.Wait()

	if got := session.MemorizedCount(); got != 2 {
		t.Fatalf("expected verdict to keep 2 passages, got %d", got)
	}

	byComp := tracker.ByComponent()
	if _, ok := byComp["relevance"]; !ok {
		t.Error("expected relevance component in ledger")
	}
}

func TestRelevanceVerdictFencedJSON(t *testing.T) {
	client := &scriptedLLM{steps: []step{
		{resp: textResponse("```json\n{\"keep\": [1]}\n```")},
	}}
	w := NewRelevanceWorker(client, "gpt-5-mini", 0.5)
	defer w.Close()

	session := newSession(20)
	w.Submit("q", []retrieval.ScoredPassage{
		scoredPassage("a", 0.1),
		scoredPassage("b", 0.1),
	}, session, usage.NewTracker(nil), 1)
	w.Wait()

	if got := session.MemorizedCount(); got != 1 {
		t.Fatalf("expected fenced verdict parsed, got %d memorized", got)
	}
}

func TestRelevanceVerdictOutOfRangeIndices(t *testing.T) {
	client := &scriptedLLM{steps: []step{
		{resp: textResponse(`{"keep": [0, 5, -1]}`)},
	}}
	w := NewRelevanceWorker(client, "gpt-5-mini", 0.5)
	defer w.Close()

	session := newSession(20)
	w.Submit("q", []retrieval.ScoredPassage{scoredPassage("a", 0.1)}, session, usage.NewTracker(nil), 1)
	w.Wait()

	if got := session.MemorizedCount(); got != 1 {
		t.Fatalf("expected invented indices dropped, got %d memorized", got)
	}
}

func TestRelevanceUnparseableFallsBackToScore(t *testing.T) {
	client := &scriptedLLM{steps: []step{
		{resp: textResponse("I think passages 1 and 2 are relevant.")},
	}}
	w := NewRelevanceWorker(client, "gpt-5-mini", 0.5)
	defer w.Close()

	session := newSession(20)
	w.Submit("q", []retrieval.ScoredPassage{
		scoredPassage("high", 0.9),
		scoredPassage("low", 0.1),
	}, session, usage.NewTracker(nil), 1)
	w.Wait()

	if got := session.MemorizedCount(); got != 1 {
		t.Fatalf("expected score fallback to keep 1, got %d", got)
	}
}

func TestRelevanceEmptyBatchNoop(t *testing.T) {
	w := NewRelevanceWorker(nil, "", 0.5)
	defer w.Close()

	if !w.Submit("q", nil, newSession(20), usage.NewTracker(nil), 1) {
		t.Fatal("empty batch should be accepted")
	}
	w.Wait()
}

func TestPassageKeyStable(t *testing.T) {
	a := passageKey(retrieval.Passage{Content: "same"})
	b := passageKey(retrieval.Passage{Content: "same", Metadata: map[string]string{"source": "x"}})
	if a != b {
		t.Error("passage key should depend on content only")
	}
	if a == passageKey(retrieval.Passage{Content: "different"}) {
		t.Error("different content should produce different keys")
	}
}
