// Package usage provides token accounting for model calls: the normalized
// usage record, per-provider extraction from raw response payloads, and the
// append-only per-call ledger.
package usage

// Provider tags the billing family of a model response.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderUnknown   Provider = "unknown"
)

// Usage is the canonical token-count record for one model call.
// Total is authoritative when the upstream response supplies it; otherwise
// it is the sum of the other fields.
type Usage struct {
	Input         int64 `json:"input"`
	Output        int64 `json:"output"`
	Reasoning     int64 `json:"reasoning"`
	CacheCreation int64 `json:"cache_creation"`
	CacheRead     int64 `json:"cache_read"`
	Total         int64 `json:"total"`
}

// IsZero reports whether every field is zero.
func (u Usage) IsZero() bool {
	return u == Usage{}
}

// Add returns the field-wise sum of two records.
func (u Usage) Add(o Usage) Usage {
	return Usage{
		Input:         u.Input + o.Input,
		Output:        u.Output + o.Output,
		Reasoning:     u.Reasoning + o.Reasoning,
		CacheCreation: u.CacheCreation + o.CacheCreation,
		CacheRead:     u.CacheRead + o.CacheRead,
		Total:         u.Total + o.Total,
	}
}

// sum is the fallback total when the upstream payload omits one.
func (u Usage) sum() int64 {
	return u.Input + u.Output + u.Reasoning + u.CacheCreation + u.CacheRead
}
