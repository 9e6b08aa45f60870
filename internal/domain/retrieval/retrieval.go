// Package retrieval provides the passage and audit model for vector-index
// queries. Scores are similarities: higher is always better. Adapters for
// indexes that report distances must convert before returning results.
package retrieval

import (
	"sort"
	"time"
)

// Filter constrains a search by metadata field. Each key matches when the
// passage's metadata value is one of the listed values.
type Filter map[string][]string

// Passage is one indexed chunk of the knowledge base.
type Passage struct {
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// ScoredPassage pairs a passage with its similarity score.
type ScoredPassage struct {
	Passage
	Score float64 `json:"score"`
}

// MetadataSummary aggregates the distinct metadata values and the score
// range across one result set.
type MetadataSummary struct {
	Sources     []string `json:"sources,omitempty"`
	SourceTypes []string `json:"source_types,omitempty"`
	MinScore    float64  `json:"min_score"`
	MaxScore    float64  `json:"max_score"`
	AvgScore    float64  `json:"avg_score"`
}

// Audit records one retrieval call in full: the query, the constraints,
// every returned chunk, and timing. Immutable once built.
type Audit struct {
	Query          string          `json:"query"`
	K              int             `json:"k"`
	Filter         Filter          `json:"filter,omitempty"`
	ToolName       string          `json:"tool_name"`
	Results        []ScoredPassage `json:"results"`
	ElapsedSeconds float64         `json:"elapsed_seconds"`
	Summary        MetadataSummary `json:"metadata_summary"`
}

// NewAudit builds the audit record for a completed retrieval call. The
// result list is capped at k.
func NewAudit(query string, k int, filter Filter, toolName string, results []ScoredPassage, elapsed time.Duration) Audit {
	if len(results) > k {
		results = results[:k]
	}
	return Audit{
		Query:          query,
		K:              k,
		Filter:         filter,
		ToolName:       toolName,
		Results:        results,
		ElapsedSeconds: elapsed.Seconds(),
		Summary:        Summarize(results),
	}
}

// Summarize computes the metadata summary for a result set. Distinct
// "source" and "source_type" metadata values are collected sorted.
func Summarize(results []ScoredPassage) MetadataSummary {
	if len(results) == 0 {
		return MetadataSummary{}
	}

	sources := map[string]bool{}
	sourceTypes := map[string]bool{}

	s := MetadataSummary{
		MinScore: results[0].Score,
		MaxScore: results[0].Score,
	}
	var sum float64
	for _, r := range results {
		if r.Score < s.MinScore {
			s.MinScore = r.Score
		}
		if r.Score > s.MaxScore {
			s.MaxScore = r.Score
		}
		sum += r.Score
		if v := r.Metadata["source"]; v != "" {
			sources[v] = true
		}
		if v := r.Metadata["source_type"]; v != "" {
			sourceTypes[v] = true
		}
	}
	s.AvgScore = sum / float64(len(results))
	s.Sources = sortedKeys(sources)
	s.SourceTypes = sortedKeys(sourceTypes)
	return s
}

func sortedKeys(m map[string]bool) []string {
	if len(m) == 0 {
		return nil
	}
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
