package pricing_test

import (
	"math"
	"testing"

	"github.com/ragline/ragline/internal/domain/pricing"
	"github.com/ragline/ragline/internal/domain/usage"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestCostCacheAwareAnthropic(t *testing.T) {
	u := usage.Usage{
		Input:         10000,
		Output:        2000,
		CacheCreation: 5000,
		CacheRead:     2000,
	}
	// 3000*3.00 + 5000*3.75 + 2000*0.30 + 2000*15.00, per million.
	got := pricing.Cost(u, "claude-sonnet-4.5")
	if !almostEqual(got, 0.05835) {
		t.Fatalf("expected 0.05835, got %.6f", got)
	}
}

func TestCostReasoningBilledAsOutput(t *testing.T) {
	u := usage.Usage{
		Input:     10000,
		Output:    2000,
		Reasoning: 1000,
	}
	// 10000*2.00 + 2000*8.00 + 1000*8.00, per million.
	got := pricing.Cost(u, "gpt-4.1")
	if !almostEqual(got, 0.044) {
		t.Fatalf("expected 0.044, got %.6f", got)
	}
}

func TestCostUnknownModelIsZero(t *testing.T) {
	u := usage.Usage{Input: 1000, Output: 1000}
	if got := pricing.Cost(u, "nonexistent-model-xyz"); got != 0 {
		t.Fatalf("expected 0 for unknown model, got %.6f", got)
	}
}

func TestCostZeroUsageIsZero(t *testing.T) {
	if got := pricing.Cost(usage.Usage{}, "gpt-4.1"); got != 0 {
		t.Fatalf("expected 0 for zero usage, got %.6f", got)
	}
}

func TestCostMonotonicity(t *testing.T) {
	base := usage.Usage{Input: 1000, Output: 500, Reasoning: 100}
	baseCost := pricing.Cost(base, "gpt-4.1")

	grow := []usage.Usage{
		{Input: 2000, Output: 500, Reasoning: 100},
		{Input: 1000, Output: 900, Reasoning: 100},
		{Input: 1000, Output: 500, Reasoning: 400},
	}
	for _, u := range grow {
		if c := pricing.Cost(u, "gpt-4.1"); c < baseCost {
			t.Errorf("cost decreased when a token field grew: %+v -> %.6f < %.6f", u, c, baseCost)
		}
	}
}

func TestNormalizeStripsPrefixAndAliases(t *testing.T) {
	cases := map[string]string{
		"openai/gpt-4.1":              "gpt-4.1",
		"anthropic/claude-sonnet-4.5": "claude-sonnet-4.5",
		"gpt-4.1":                     "gpt-4.1",
	}
	for in, want := range cases {
		if got := pricing.Normalize(in); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	models := []string{
		"gpt-5-2025-08-07",
		"claude-sonnet-4-5-20250929",
		"openai/gpt-4o-mini-2024-07-18",
		"gpt-4.1",
	}
	for _, model := range models {
		once := pricing.Normalize(model)
		twice := pricing.Normalize(once)
		if once != twice {
			t.Errorf("Normalize not idempotent for %q: %q != %q", model, once, twice)
		}
	}
}

func TestKnown(t *testing.T) {
	if !pricing.Known("gpt-5") {
		t.Error("expected gpt-5 to be known")
	}
	if !pricing.Known("openai/gpt-5-2025-08-07") {
		t.Error("expected aliased snapshot name to be known")
	}
	if pricing.Known("nonexistent-model-xyz") {
		t.Error("expected unknown model to not be known")
	}
}

func TestDetectProvider(t *testing.T) {
	cases := map[string]usage.Provider{
		"claude-sonnet-4.5": usage.ProviderAnthropic,
		"gpt-4.1":           usage.ProviderOpenAI,
		"o3":                usage.ProviderOpenAI,
		"mystery-model":     usage.ProviderUnknown,
	}
	for model, want := range cases {
		if got := pricing.DetectProvider(model); got != want {
			t.Errorf("DetectProvider(%q) = %s, want %s", model, got, want)
		}
	}
}
