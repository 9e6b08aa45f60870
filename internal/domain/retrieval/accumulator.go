package retrieval

import "sync"

// Accumulator collects audit records for one turn. Each turn owns its own
// accumulator; nothing is shared across turns or conversations. Append is
// safe for concurrent use because tool calls may run in parallel.
type Accumulator struct {
	mu     sync.Mutex
	audits []Audit
}

// Append records one audit.
func (a *Accumulator) Append(audit Audit) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.audits = append(a.audits, audit)
}

// All returns a copy of the collected audits in append order.
func (a *Accumulator) All() []Audit {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Audit, len(a.audits))
	copy(out, a.audits)
	return out
}

// Len returns the number of collected audits.
func (a *Accumulator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.audits)
}
