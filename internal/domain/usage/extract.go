package usage

// Extract normalizes a raw usage payload into a Usage record. The adapter
// is selected by the provider tag the LLM client stamped on the response;
// a nil or unrecognizable payload yields an all-zero record, never an error.
// The surrounding loop must keep running no matter what shape arrives.
func Extract(provider Provider, payload map[string]any) Usage {
	if payload == nil {
		return Usage{}
	}

	var u Usage
	switch provider {
	case ProviderAnthropic:
		u = extractAnthropic(payload)
	case ProviderOpenAI:
		u = extractOpenAI(payload)
	default:
		return Usage{}
	}

	if u.Total == 0 {
		u.Total = u.sum()
	}
	return u
}

// extractOpenAI reads the chat-completions usage shape: prompt/completion
// counters with optional nested detail blocks for reasoning and cached input.
func extractOpenAI(p map[string]any) Usage {
	u := Usage{
		Input:  intField(p, "prompt_tokens", "input_tokens"),
		Output: intField(p, "completion_tokens", "output_tokens"),
		Total:  intField(p, "total_tokens"),
	}

	// Reasoning is reported either at the top level or inside the
	// completion detail block, depending on the model family.
	u.Reasoning = intField(p, "reasoning_tokens")
	if u.Reasoning == 0 {
		if details, ok := p["completion_tokens_details"].(map[string]any); ok {
			u.Reasoning = intField(details, "reasoning_tokens")
		}
	}

	if details, ok := p["prompt_tokens_details"].(map[string]any); ok {
		u.CacheRead = intField(details, "cached_tokens")
	}
	return u
}

// extractAnthropic reads the native Anthropic usage shape. Proxies that
// translate Anthropic models into the chat-completions shape pass the cache
// counters through at the top level, so those keys are probed either way.
func extractAnthropic(p map[string]any) Usage {
	u := Usage{
		Input:         intField(p, "input_tokens", "prompt_tokens"),
		Output:        intField(p, "output_tokens", "completion_tokens"),
		CacheCreation: intField(p, "cache_creation_input_tokens"),
		CacheRead:     intField(p, "cache_read_input_tokens"),
		Total:         intField(p, "total_tokens"),
	}

	u.Reasoning = intField(p, "reasoning_tokens")
	if u.Reasoning == 0 {
		if details, ok := p["completion_tokens_details"].(map[string]any); ok {
			u.Reasoning = intField(details, "reasoning_tokens")
		}
	}
	return u
}

// intField returns the first present key as a non-negative int64. JSON
// decoding yields float64 for numbers; other types are ignored.
func intField(m map[string]any, keys ...string) int64 {
	for _, k := range keys {
		switch v := m[k].(type) {
		case float64:
			if v > 0 {
				return int64(v)
			}
		case int64:
			if v > 0 {
				return v
			}
		case int:
			if v > 0 {
				return int64(v)
			}
		}
	}
	return 0
}
