package usage

import (
	"sync"
	"time"
)

// CostFunc maps a usage record and model identifier to a USD cost.
type CostFunc func(u Usage, model string) float64

// Entry is one row in the per-call ledger. Cost is computed once at insert
// time and never recomputed.
type Entry struct {
	Component      string    `json:"component"`
	Turn           int       `json:"turn"`
	Model          string    `json:"model"`
	Usage          Usage     `json:"usage"`
	CostUSD        float64   `json:"cost_usd"`
	ElapsedSeconds float64   `json:"elapsed_seconds"`
	Timestamp      time.Time `json:"timestamp"`
}

// ComponentSummary aggregates ledger rows for one component label.
type ComponentSummary struct {
	Component      string  `json:"component"`
	Calls          int     `json:"calls"`
	Usage          Usage   `json:"usage"`
	CostUSD        float64 `json:"cost_usd"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
}

// Summary aggregates the whole ledger.
type Summary struct {
	Calls          int     `json:"calls"`
	TotalTokens    int64   `json:"total_tokens"`
	CostUSD        float64 `json:"cost_usd"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
}

// Tracker is an append-only ledger of per-call token and cost records.
// Register is safe for concurrent use; background workers report into the
// same tracker as the main loop.
type Tracker struct {
	mu      sync.Mutex
	cost    CostFunc
	entries []Entry
}

// NewTracker creates a tracker that prices entries with the given CostFunc.
func NewTracker(cost CostFunc) *Tracker {
	return &Tracker{cost: cost}
}

// Register appends one ledger entry, pricing it at insertion time.
func (t *Tracker) Register(component, model string, u Usage, elapsed time.Duration, turn int) {
	var c float64
	if t.cost != nil {
		c = t.cost(u, model)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = append(t.entries, Entry{
		Component:      component,
		Turn:           turn,
		Model:          model,
		Usage:          u,
		CostUSD:        c,
		ElapsedSeconds: elapsed.Seconds(),
		Timestamp:      time.Now().UTC(),
	})
}

// ByComponent aggregates the ledger by component label.
func (t *Tracker) ByComponent() map[string]ComponentSummary {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[string]ComponentSummary)
	for _, e := range t.entries {
		s := out[e.Component]
		s.Component = e.Component
		s.Calls++
		s.Usage = s.Usage.Add(e.Usage)
		s.CostUSD += e.CostUSD
		s.ElapsedSeconds += e.ElapsedSeconds
		out[e.Component] = s
	}
	return out
}

// Totals aggregates the whole ledger.
func (t *Tracker) Totals() Summary {
	t.mu.Lock()
	defer t.mu.Unlock()

	var s Summary
	for _, e := range t.entries {
		s.Calls++
		s.TotalTokens += e.Usage.Total
		s.CostUSD += e.CostUSD
		s.ElapsedSeconds += e.ElapsedSeconds
	}
	return s
}

// Entries returns a copy of the raw ledger for export and debugging.
func (t *Tracker) Entries() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Clear empties the ledger. The caller chooses the accounting granularity
// by clearing at turn or conversation boundaries.
func (t *Tracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = nil
}
