// Package indexnats implements the vectorindex port by request/reply
// against the embedding index worker over the message queue.
package indexnats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ragline/ragline/internal/domain/retrieval"
	"github.com/ragline/ragline/internal/port/messagequeue"
	"github.com/ragline/ragline/internal/port/vectorindex"
)

const defaultSearchTimeout = 30 * time.Second

// Status holds the last reported state of the index worker.
type Status struct {
	Status         string `json:"status"` // "unknown", "building", "ready", "error"
	FileCount      int    `json:"file_count"`
	ChunkCount     int    `json:"chunk_count"`
	EmbeddingModel string `json:"embedding_model"`
	Error          string `json:"error,omitempty"`
}

// Index implements vectorindex.Index over the queue. Search requests carry
// a correlation ID; replies are delivered to the waiting caller.
type Index struct {
	queue   messagequeue.Queue
	timeout time.Duration

	mu      sync.Mutex
	status  Status
	waiters map[string]chan *messagequeue.SearchResultPayload
}

// New creates an Index with the given search timeout. A timeout <= 0 uses
// the default.
func New(queue messagequeue.Queue, timeout time.Duration) *Index {
	if timeout <= 0 {
		timeout = defaultSearchTimeout
	}
	return &Index{
		queue:   queue,
		timeout: timeout,
		status:  Status{Status: "unknown"},
		waiters: make(map[string]chan *messagequeue.SearchResultPayload),
	}
}

// Search issues one similarity query and waits synchronously for the
// worker's reply. It fails with vectorindex.ErrStoreUnavailable when the
// worker has not reported a ready index.
func (x *Index) Search(ctx context.Context, query string, k int, filter retrieval.Filter) ([]retrieval.ScoredPassage, error) {
	if !x.Ready() {
		return nil, vectorindex.ErrStoreUnavailable
	}

	requestID := uuid.NewString()

	ch := make(chan *messagequeue.SearchResultPayload, 1)
	x.mu.Lock()
	x.waiters[requestID] = ch
	x.mu.Unlock()

	defer func() {
		x.mu.Lock()
		delete(x.waiters, requestID)
		x.mu.Unlock()
	}()

	payload := messagequeue.SearchRequestPayload{
		RequestID: requestID,
		Query:     query,
		TopK:      k,
		Filter:    filter,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal search request: %w", err)
	}

	if err := x.queue.Publish(ctx, messagequeue.SubjectIndexSearchRequest, data); err != nil {
		return nil, fmt.Errorf("publish search request: %w", err)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, x.timeout)
	defer cancel()

	select {
	case result := <-ch:
		if result.Error != "" {
			return nil, fmt.Errorf("index search: %s", result.Error)
		}
		out := make([]retrieval.ScoredPassage, 0, len(result.Results))
		for _, hit := range result.Results {
			out = append(out, retrieval.ScoredPassage{
				Passage: retrieval.Passage{Content: hit.Content, Metadata: hit.Metadata},
				Score:   hit.Score,
			})
		}
		return out, nil
	case <-timeoutCtx.Done():
		return nil, fmt.Errorf("index search timed out after %s", x.timeout)
	}
}

// Ready reports whether the worker has announced a ready index.
func (x *Index) Ready() bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.status.Status == "ready"
}

// CurrentStatus returns the last reported worker status.
func (x *Index) CurrentStatus() Status {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.status
}

// handleStatus records an index status report from the worker.
func (x *Index) handleStatus(payload *messagequeue.IndexStatusPayload) {
	x.mu.Lock()
	x.status = Status{
		Status:         payload.Status,
		FileCount:      payload.FileCount,
		ChunkCount:     payload.ChunkCount,
		EmbeddingModel: payload.EmbeddingModel,
		Error:          payload.Error,
	}
	x.mu.Unlock()

	if payload.Error != "" {
		slog.Error("index worker reported error", "error", payload.Error)
		return
	}
	slog.Info("index status",
		"status", payload.Status,
		"files", payload.FileCount,
		"chunks", payload.ChunkCount,
		"embedding_model", payload.EmbeddingModel,
	)
}

// handleSearchResult delivers a reply to its waiting caller. Late replies
// after a timeout have no waiter and are dropped.
func (x *Index) handleSearchResult(payload *messagequeue.SearchResultPayload) {
	x.mu.Lock()
	ch, ok := x.waiters[payload.RequestID]
	if ok {
		delete(x.waiters, payload.RequestID)
	}
	x.mu.Unlock()

	if !ok {
		slog.Warn("no waiter for search result", "request_id", payload.RequestID)
		return
	}
	ch <- payload
}

// StartSubscribers subscribes to the worker's status and result subjects.
// The returned funcs cancel the subscriptions.
func (x *Index) StartSubscribers(ctx context.Context) ([]func(), error) {
	cancelStatus, err := x.queue.Subscribe(ctx, messagequeue.SubjectIndexStatus, func(_ context.Context, _ string, data []byte) error {
		var payload messagequeue.IndexStatusPayload
		if err := json.Unmarshal(data, &payload); err != nil {
			return fmt.Errorf("unmarshal index status: %w", err)
		}
		x.handleStatus(&payload)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe index status: %w", err)
	}

	cancelResult, err := x.queue.Subscribe(ctx, messagequeue.SubjectIndexSearchResult, func(_ context.Context, _ string, data []byte) error {
		var payload messagequeue.SearchResultPayload
		if err := json.Unmarshal(data, &payload); err != nil {
			return fmt.Errorf("unmarshal search result: %w", err)
		}
		x.handleSearchResult(&payload)
		return nil
	})
	if err != nil {
		cancelStatus()
		return nil, fmt.Errorf("subscribe search result: %w", err)
	}

	return []func(){cancelStatus, cancelResult}, nil
}
