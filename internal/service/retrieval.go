// Package service implements the application logic: the retrieval client,
// the agent loop, conversation sessions, and the relevance worker.
package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/ragline/ragline/internal/config"
	"github.com/ragline/ragline/internal/domain/retrieval"
	"github.com/ragline/ragline/internal/port/cache"
	"github.com/ragline/ragline/internal/port/vectorindex"
)

// Retriever executes similarity searches against the vector index, caches
// result sets, and records one audit per call on the turn's accumulator.
type Retriever struct {
	index    vectorindex.Index
	cache    cache.Cache
	cacheTTL time.Duration
}

// NewRetriever creates a retrieval client. cache may be nil to disable
// read-through caching.
func NewRetriever(index vectorindex.Index, c cache.Cache, cfg config.RetrievalConfig) *Retriever {
	return &Retriever{
		index:    index,
		cache:    c,
		cacheTTL: cfg.CacheTTL,
	}
}

// SearchWithAudit runs one search and appends its audit to acc. Cached
// result sets still produce an audit with the cached results and the
// (near-zero) observed elapsed time. An unavailable index propagates
// vectorindex.ErrStoreUnavailable to the caller.
func (r *Retriever) SearchWithAudit(ctx context.Context, query string, k int, filter retrieval.Filter, toolName string, acc *retrieval.Accumulator) ([]retrieval.ScoredPassage, error) {
	start := time.Now()

	results, err := r.search(ctx, query, k, filter)
	if err != nil {
		return nil, err
	}

	audit := retrieval.NewAudit(query, k, filter, toolName, results, time.Since(start))
	acc.Append(audit)
	return audit.Results, nil
}

func (r *Retriever) search(ctx context.Context, query string, k int, filter retrieval.Filter) ([]retrieval.ScoredPassage, error) {
	key := cacheKey(query, k, filter)

	if r.cache != nil {
		if data, ok, err := r.cache.Get(ctx, key); err == nil && ok {
			var cached []retrieval.ScoredPassage
			if err := json.Unmarshal(data, &cached); err == nil {
				slog.Debug("retrieval cache hit", "query", query, "k", k)
				return cached, nil
			}
		}
	}

	results, err := r.index.Search(ctx, query, k, filter)
	if err != nil {
		return nil, err
	}

	if r.cache != nil {
		if data, err := json.Marshal(results); err == nil {
			_ = r.cache.Set(ctx, key, data, r.cacheTTL)
		}
	}
	return results, nil
}

// cacheKey hashes the full search request. Filter values are sorted so that
// logically equal filters produce the same key.
func cacheKey(query string, k int, filter retrieval.Filter) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%d\x00", query, k)

	keys := make([]string, 0, len(filter))
	for fk := range filter {
		keys = append(keys, fk)
	}
	sort.Strings(keys)
	for _, fk := range keys {
		vals := append([]string(nil), filter[fk]...)
		sort.Strings(vals)
		fmt.Fprintf(h, "%s=%v\x00", fk, vals)
	}
	return "search:" + hex.EncodeToString(h.Sum(nil))
}
