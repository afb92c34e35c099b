package cli

import (
	"reflect"
	"testing"
)

func TestParseFlagsRequiredAndOptional(t *testing.T) {
	flags, err := parseFlags([]string{"--tree", "review", "--branch", "main"},
		map[string]bool{"tree": true, "repo": false, "branch": false})
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	want := map[string]string{"tree": "review", "branch": "main"}
	if !reflect.DeepEqual(flags, want) {
		t.Fatalf("flags = %+v, want %+v", flags, want)
	}
}

func TestParseFlagsMissingRequired(t *testing.T) {
	if _, err := parseFlags([]string{"--branch", "main"}, map[string]bool{"tree": true}); err == nil {
		t.Fatal("expected error for missing required flag")
	}
}

func TestParseFlagsUnknownFlag(t *testing.T) {
	if _, err := parseFlags([]string{"--bogus", "x"}, map[string]bool{"tree": true}); err == nil {
		t.Fatal("expected error for unknown flag")
	}
}

func TestParseFlagsDanglingValue(t *testing.T) {
	if _, err := parseFlags([]string{"--tree"}, map[string]bool{"tree": true}); err == nil {
		t.Fatal("expected error when a flag has no value")
	}
}

func TestExtractRepeatedFlag(t *testing.T) {
	got := extractRepeatedFlag([]string{"--run", "1", "--node", "a", "--node", "b"}, "node")
	want := []string{"a", "b"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("extractRepeatedFlag = %+v, want %+v", got, want)
	}
}

func TestParsePositiveInt(t *testing.T) {
	if _, err := parsePositiveInt("0"); err == nil {
		t.Error("expected error for zero")
	}
	if _, err := parsePositiveInt("-1"); err == nil {
		t.Error("expected error for negative")
	}
	n, err := parsePositiveInt("42")
	if err != nil || n != 42 {
		t.Fatalf("parsePositiveInt(42) = %d, %v", n, err)
	}
}

func TestParsePositiveInt64(t *testing.T) {
	n, err := parsePositiveInt64("123")
	if err != nil || n != 123 {
		t.Fatalf("parsePositiveInt64(123) = %d, %v", n, err)
	}
	if _, err := parsePositiveInt64("not-a-number"); err == nil {
		t.Error("expected error for non-numeric input")
	}
}
