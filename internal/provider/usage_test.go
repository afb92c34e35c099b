package provider

import "testing"

func TestNormalizeUsageSumsInputAndOutput(t *testing.T) {
	u := NormalizeUsage(map[string]any{"input_tokens": 10, "output_tokens": 5})
	if u.TotalTokens == nil || *u.TotalTokens != 15 {
		t.Fatalf("expected total=15, got %v", u.TotalTokens)
	}
}

func TestNormalizeUsagePrefersLargerCumulativeTotal(t *testing.T) {
	u := NormalizeUsage(map[string]any{"input_tokens": 10, "output_tokens": 5, "total_tokens": 100})
	if u.TotalTokens == nil || *u.TotalTokens != 100 {
		t.Fatalf("expected cumulative total 100 to win over sum 15, got %v", u.TotalTokens)
	}
}

func TestNormalizeUsageKeepsSumWhenCumulativeIsSmaller(t *testing.T) {
	u := NormalizeUsage(map[string]any{"input_tokens": 10, "output_tokens": 20, "total_tokens": 5})
	if u.TotalTokens == nil || *u.TotalTokens != 30 {
		t.Fatalf("expected sum 30 to win over smaller cumulative 5, got %v", u.TotalTokens)
	}
}

func TestNormalizeUsageReadsNestedUsageObject(t *testing.T) {
	u := NormalizeUsage(map[string]any{"usage": map[string]any{"totalTokens": 42}})
	if u.TotalTokens == nil || *u.TotalTokens != 42 {
		t.Fatalf("expected nested usage.totalTokens=42, got %v", u.TotalTokens)
	}
}

func TestNormalizeUsageCamelCaseAliases(t *testing.T) {
	u := NormalizeUsage(map[string]any{"inputTokens": 3.0, "outputTokens": int64(4)})
	if u.InputTokens == nil || *u.InputTokens != 3 {
		t.Fatalf("expected inputTokens=3, got %v", u.InputTokens)
	}
	if u.OutputTokens == nil || *u.OutputTokens != 4 {
		t.Fatalf("expected outputTokens=4, got %v", u.OutputTokens)
	}
}

func TestNormalizeUsageEmptyMetadataYieldsNilTotal(t *testing.T) {
	u := NormalizeUsage(map[string]any{})
	if u.TotalTokens != nil {
		t.Fatalf("expected nil total for empty metadata, got %v", u.TotalTokens)
	}
}
