// Package vectorindex defines the port interface for the external
// nearest-neighbor search service.
package vectorindex

import (
	"context"
	"errors"

	"github.com/ragline/ragline/internal/domain/retrieval"
)

// ErrStoreUnavailable indicates the index has not been initialized. This is
// fatal for any retrieval-dependent turn and must propagate to the caller.
var ErrStoreUnavailable = errors.New("vector index not initialized")

// Index is the port interface for similarity search. An empty query with a
// non-empty filter performs pure metadata filtering without semantic
// ranking. Results are ordered best-first; scores are similarities.
type Index interface {
	Search(ctx context.Context, query string, k int, filter retrieval.Filter) ([]retrieval.ScoredPassage, error)
}
