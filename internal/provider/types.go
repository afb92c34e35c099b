// Package provider is the provider adapter (C5): normalizes any agent
// provider into an ordered ProviderEvent stream and a discriminated
// ProviderError taxonomy, generalizing the teacher's single-shot
// ChatModel interface (graph/model) into a streaming event-producer
// contract.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
)

// EventType is the canonical provider event type (spec §4.5).
type EventType string

const (
	EventSystem     EventType = "system"
	EventAssistant  EventType = "assistant"
	EventToolUse    EventType = "tool_use"
	EventToolResult EventType = "tool_result"
	EventUsage      EventType = "usage"
	EventResult     EventType = "result"
)

// Event is one item of the canonical provider event stream.
type Event struct {
	Type     EventType
	Content  string
	Metadata map[string]any
}

// SystemMetadata is the required shape of the stream's opening system
// event (spec §4.5).
type SystemMetadata struct {
	Provider             string `json:"provider"`
	WorkingDirectory     string `json:"workingDirectory"`
	HasSystemPrompt      bool   `json:"hasSystemPrompt"`
	ContextItemCount     int    `json:"contextItemCount"`
	TimeoutSeconds       int    `json:"timeout,omitempty"`
	Model                string `json:"model,omitempty"`
	ExecutionPermissions string `json:"executionPermissions,omitempty"`
}

// InvokeRequest is the normalized input to a provider adapter.
type InvokeRequest struct {
	Provider             string
	Model                string
	SystemPrompt         string
	Prompt               string
	ContextItems         []string
	ExecutionPermissions string
	TimeoutSeconds       int
}

// Adapter streams a provider invocation as canonical events. Emit is
// called once per event, in order, before Invoke returns; Invoke
// itself returns only after the stream (including the terminal
// result event) has been fully delivered or an error occurs.
type Adapter interface {
	Name() string
	Invoke(ctx context.Context, req InvokeRequest, emit func(Event) error) error
}

// SerializeContent renders non-string content to a string per spec
// §4.5: JSON when serializable, otherwise a deep-inspected textual
// rendering that never collapses to a generic object marker like
// "[object Object]".
func SerializeContent(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err == nil {
		return string(b)
	}
	return fmt.Sprintf("%+v", v)
}
