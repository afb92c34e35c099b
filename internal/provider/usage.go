package provider

// Usage is the normalized token accounting for one node invocation.
type Usage struct {
	InputTokens  *int
	OutputTokens *int
	TotalTokens  *int
}

// NormalizeUsage applies spec §4.5's usage normalization: input+output
// tokens sum to a total, but any larger cumulative total already
// reported (total_tokens / tokensUsed / nested usage.*) is preserved
// rather than overwritten by the sum.
func NormalizeUsage(meta map[string]any) Usage {
	var out Usage
	input := intField(meta, "input_tokens", "inputTokens")
	output := intField(meta, "output_tokens", "outputTokens")
	out.InputTokens = input
	out.OutputTokens = output

	var sum *int
	if input != nil || output != nil {
		s := 0
		if input != nil {
			s += *input
		}
		if output != nil {
			s += *output
		}
		sum = &s
	}

	cumulative := intField(meta, "total_tokens", "totalTokens", "tokensUsed")
	if cumulative == nil {
		if nested, ok := meta["usage"].(map[string]any); ok {
			cumulative = intField(nested, "total_tokens", "totalTokens")
		}
	}

	switch {
	case sum == nil && cumulative == nil:
		out.TotalTokens = nil
	case sum == nil:
		out.TotalTokens = cumulative
	case cumulative == nil:
		out.TotalTokens = sum
	default:
		if *cumulative > *sum {
			out.TotalTokens = cumulative
		} else {
			out.TotalTokens = sum
		}
	}
	return out
}

func intField(m map[string]any, keys ...string) *int {
	for _, k := range keys {
		v, ok := m[k]
		if !ok {
			continue
		}
		switch n := v.(type) {
		case int:
			return &n
		case int64:
			i := int(n)
			return &i
		case float64:
			i := int(n)
			return &i
		}
	}
	return nil
}
