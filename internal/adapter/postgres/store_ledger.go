package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ragline/ragline/internal/domain/retrieval"
	"github.com/ragline/ragline/internal/domain/usage"
)

// --- Token ledger ---

func (s *Store) InsertLedgerEntries(ctx context.Context, conversationID string, entries []usage.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	for i, e := range entries {
		_, err := tx.Exec(ctx,
			`INSERT INTO token_ledger
			   (conversation_id, component, turn, model,
			    input_tokens, output_tokens, reasoning_tokens,
			    cache_creation_tokens, cache_read_tokens, total_tokens,
			    cost_usd, elapsed_seconds, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
			conversationID, e.Component, e.Turn, e.Model,
			e.Usage.Input, e.Usage.Output, e.Usage.Reasoning,
			e.Usage.CacheCreation, e.Usage.CacheRead, e.Usage.Total,
			e.CostUSD, e.ElapsedSeconds, e.Timestamp)
		if err != nil {
			return fmt.Errorf("insert ledger entry %d: %w", i, err)
		}
	}

	return tx.Commit(ctx)
}

func (s *Store) UsageByComponent(ctx context.Context, conversationID string) ([]usage.ComponentSummary, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT component, COUNT(*),
		        COALESCE(SUM(input_tokens), 0), COALESCE(SUM(output_tokens), 0),
		        COALESCE(SUM(reasoning_tokens), 0), COALESCE(SUM(cache_creation_tokens), 0),
		        COALESCE(SUM(cache_read_tokens), 0), COALESCE(SUM(total_tokens), 0),
		        COALESCE(SUM(cost_usd), 0), COALESCE(SUM(elapsed_seconds), 0)
		 FROM token_ledger WHERE conversation_id = $1
		 GROUP BY component ORDER BY component`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("usage by component: %w", err)
	}
	defer rows.Close()

	var out []usage.ComponentSummary
	for rows.Next() {
		var cs usage.ComponentSummary
		if err := rows.Scan(&cs.Component, &cs.Calls,
			&cs.Usage.Input, &cs.Usage.Output,
			&cs.Usage.Reasoning, &cs.Usage.CacheCreation,
			&cs.Usage.CacheRead, &cs.Usage.Total,
			&cs.CostUSD, &cs.ElapsedSeconds); err != nil {
			return nil, fmt.Errorf("scan component summary: %w", err)
		}
		out = append(out, cs)
	}
	return out, rows.Err()
}

// --- Retrieval audits ---

func (s *Store) InsertAudits(ctx context.Context, conversationID string, turn int, audits []retrieval.Audit) error {
	if len(audits) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	for i, a := range audits {
		var filterJSON []byte
		if a.Filter != nil {
			filterJSON, err = json.Marshal(a.Filter)
			if err != nil {
				return fmt.Errorf("marshal audit filter %d: %w", i, err)
			}
		}
		resultsJSON, err := json.Marshal(a.Results)
		if err != nil {
			return fmt.Errorf("marshal audit results %d: %w", i, err)
		}
		summaryJSON, err := json.Marshal(a.Summary)
		if err != nil {
			return fmt.Errorf("marshal audit summary %d: %w", i, err)
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO retrieval_audits
			   (conversation_id, turn, query, k, tool_name, filter, results, metadata_summary, elapsed_seconds)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			conversationID, turn, a.Query, a.K, a.ToolName, filterJSON, resultsJSON, summaryJSON, a.ElapsedSeconds)
		if err != nil {
			return fmt.Errorf("insert audit %d: %w", i, err)
		}
	}

	return tx.Commit(ctx)
}

func (s *Store) ListAudits(ctx context.Context, conversationID string) ([]retrieval.Audit, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT query, k, tool_name, filter, results, metadata_summary, elapsed_seconds
		 FROM retrieval_audits WHERE conversation_id = $1 ORDER BY created_at ASC`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list audits: %w", err)
	}
	defer rows.Close()

	var out []retrieval.Audit
	for rows.Next() {
		var a retrieval.Audit
		var filterJSON, resultsJSON, summaryJSON []byte
		if err := rows.Scan(&a.Query, &a.K, &a.ToolName, &filterJSON, &resultsJSON, &summaryJSON, &a.ElapsedSeconds); err != nil {
			return nil, fmt.Errorf("scan audit: %w", err)
		}
		if filterJSON != nil {
			if err := json.Unmarshal(filterJSON, &a.Filter); err != nil {
				return nil, fmt.Errorf("unmarshal audit filter: %w", err)
			}
		}
		if err := json.Unmarshal(resultsJSON, &a.Results); err != nil {
			return nil, fmt.Errorf("unmarshal audit results: %w", err)
		}
		if err := json.Unmarshal(summaryJSON, &a.Summary); err != nil {
			return nil, fmt.Errorf("unmarshal audit summary: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
