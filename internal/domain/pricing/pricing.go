// Package pricing maps model identifiers and token counts to USD cost.
// Rates are static configuration in USD per million tokens, loaded once at
// process start. Cost estimation failures never block a turn: an unknown
// model logs a warning and prices at zero.
package pricing

import (
	"log/slog"
	"strings"

	"github.com/ragline/ragline/internal/domain/usage"
)

// Rates holds per-million-token prices for one model. OpenAI-style models
// use Input/CachedInput/Output; Anthropic-style models additionally carry
// cache-write rates for the two cache TTL tiers.
type Rates struct {
	Input        float64
	CachedInput  float64
	Output       float64
	CacheWrite5m float64
	CacheWrite1h float64
	CacheRead    float64
}

// table is keyed by normalized model identifier.
var table = map[string]Rates{
	"gpt-5":        {Input: 1.25, CachedInput: 0.125, Output: 10.00},
	"gpt-5-mini":   {Input: 0.25, CachedInput: 0.025, Output: 2.00},
	"gpt-5-nano":   {Input: 0.05, CachedInput: 0.005, Output: 0.40},
	"gpt-4.1":      {Input: 2.00, CachedInput: 0.50, Output: 8.00},
	"gpt-4.1-mini": {Input: 0.40, CachedInput: 0.10, Output: 1.60},
	"gpt-4o":       {Input: 2.50, CachedInput: 1.25, Output: 10.00},
	"gpt-4o-mini":  {Input: 0.15, CachedInput: 0.075, Output: 0.60},
	"o3":           {Input: 2.00, CachedInput: 0.50, Output: 8.00},
	"o4-mini":      {Input: 1.10, CachedInput: 0.275, Output: 4.40},

	"claude-opus-4.1":   {Input: 15.00, CacheWrite5m: 18.75, CacheWrite1h: 30.00, CacheRead: 1.50, Output: 75.00},
	"claude-sonnet-4.5": {Input: 3.00, CacheWrite5m: 3.75, CacheWrite1h: 6.00, CacheRead: 0.30, Output: 15.00},
	"claude-sonnet-4":   {Input: 3.00, CacheWrite5m: 3.75, CacheWrite1h: 6.00, CacheRead: 0.30, Output: 15.00},
	"claude-haiku-3.5":  {Input: 0.80, CacheWrite5m: 1.00, CacheWrite1h: 1.60, CacheRead: 0.08, Output: 4.00},

	"text-embedding-3-small": {Input: 0.02},
	"text-embedding-3-large": {Input: 0.13},
}

// aliases resolves dated snapshot names to canonical identifiers. Values
// are canonical (never themselves alias keys), so Normalize is idempotent.
var aliases = map[string]string{
	"gpt-5-2025-08-07":           "gpt-5",
	"gpt-5-mini-2025-08-07":      "gpt-5-mini",
	"gpt-4.1-2025-04-14":         "gpt-4.1",
	"gpt-4o-2024-08-06":          "gpt-4o",
	"gpt-4o-mini-2024-07-18":     "gpt-4o-mini",
	"claude-opus-4-1-20250805":   "claude-opus-4.1",
	"claude-sonnet-4-5-20250929": "claude-sonnet-4.5",
	"claude-sonnet-4-20250514":   "claude-sonnet-4",
	"claude-3-5-haiku-20241022":  "claude-haiku-3.5",
}

// Normalize strips a provider routing prefix ("openai/gpt-5" -> "gpt-5")
// and resolves dated snapshot names to canonical identifiers.
func Normalize(raw string) string {
	id := raw
	if i := strings.LastIndex(id, "/"); i >= 0 {
		id = id[i+1:]
	}
	if canon, ok := aliases[id]; ok {
		return canon
	}
	return id
}

// DetectProvider classifies a normalized model identifier into the billing
// family that decides which cost formula applies.
func DetectProvider(id string) usage.Provider {
	switch {
	case strings.HasPrefix(id, "claude-"):
		return usage.ProviderAnthropic
	case strings.HasPrefix(id, "gpt-"),
		strings.HasPrefix(id, "o1"),
		strings.HasPrefix(id, "o3"),
		strings.HasPrefix(id, "o4"),
		strings.HasPrefix(id, "text-embedding-"):
		return usage.ProviderOpenAI
	default:
		return usage.ProviderUnknown
	}
}

// Cost prices one call. Input counts include cache traffic; the formula
// splits them into normal, cache-write, and cache-read buckets and prices
// each at its own rate. Reasoning tokens bill at the output rate. No
// rounding happens here; formatting is a presentation concern.
func Cost(u usage.Usage, model string) float64 {
	id := Normalize(model)
	r, ok := table[id]
	if !ok {
		slog.Warn("no pricing for model, cost recorded as zero", "model", model)
		return 0
	}

	var cost float64
	switch DetectProvider(id) {
	case usage.ProviderAnthropic:
		normal := u.Input - u.CacheCreation - u.CacheRead
		if normal < 0 {
			normal = 0
		}
		cost = float64(normal)*r.Input +
			float64(u.CacheCreation)*r.CacheWrite5m +
			float64(u.CacheRead)*r.CacheRead +
			float64(u.Output+u.Reasoning)*r.Output
	default:
		normal := u.Input - u.CacheRead
		if normal < 0 {
			normal = 0
		}
		cost = float64(normal)*r.Input +
			float64(u.CacheRead)*r.CachedInput +
			float64(u.Output+u.Reasoning)*r.Output
	}

	return cost / 1_000_000
}

// Known reports whether the model has a pricing entry.
func Known(model string) bool {
	_, ok := table[Normalize(model)]
	return ok
}
