// Package anthropic adapts the Anthropic SDK into the canonical
// provider.Adapter event stream, generalizing the teacher's single-shot
// graph/model/anthropic ChatModel into a streaming producer.
package anthropic

import (
	"context"
	"fmt"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/hansjm10/alphred/internal/provider"
)

// Adapter implements provider.Adapter for Anthropic's Messages API.
type Adapter struct {
	apiKey        string
	defaultModel  string
	newClient     func(apiKey string) anthropicsdk.Client
}

// New builds an Anthropic adapter. defaultModel is used when a request
// does not specify one.
func New(apiKey, defaultModel string) *Adapter {
	if defaultModel == "" {
		defaultModel = "claude-sonnet-4-5-20250929"
	}
	return &Adapter{
		apiKey:       apiKey,
		defaultModel: defaultModel,
		newClient: func(apiKey string) anthropicsdk.Client {
			return anthropicsdk.NewClient(option.WithAPIKey(apiKey))
		},
	}
}

// Name returns "anthropic".
func (a *Adapter) Name() string { return "anthropic" }

// Invoke streams a single Anthropic Messages.New call as the canonical
// event grammar: one opening system event, zero or more
// assistant/tool_use events, and exactly one terminal result event.
func (a *Adapter) Invoke(ctx context.Context, req provider.InvokeRequest, emit func(provider.Event) error) error {
	if a.apiKey == "" {
		return provider.NewError(provider.ErrInvalidConfig, "invalid_config", "anthropic API key is required", nil)
	}
	model := req.Model
	if model == "" {
		model = a.defaultModel
	}

	if err := emit(provider.Event{
		Type: provider.EventSystem,
		Metadata: map[string]any{
			"provider":         "anthropic",
			"hasSystemPrompt":  req.SystemPrompt != "",
			"contextItemCount": len(req.ContextItems),
			"model":            model,
		},
	}); err != nil {
		return err
	}

	client := a.newClient(a.apiKey)
	params := anthropicsdk.MessageNewParams{
		Model:     anthropicsdk.Model(model),
		Messages:  []anthropicsdk.MessageParam{anthropicsdk.NewUserMessage(anthropicsdk.NewTextBlock(req.Prompt))},
		MaxTokens: 4096,
	}
	if req.SystemPrompt != "" {
		params.System = []anthropicsdk.TextBlockParam{{Text: req.SystemPrompt}}
	}

	resp, err := client.Messages.New(ctx, params)
	if err != nil {
		if ctx.Err() != nil {
			return provider.NewError(provider.ErrTimeout, "timeout", "context cancelled before anthropic response", ctx.Err())
		}
		return provider.Classify(0, err)
	}

	var resultText string
	for _, block := range resp.Content {
		switch b := block.AsAny().(type) {
		case anthropicsdk.TextBlock:
			resultText += b.Text
			if err := emit(provider.Event{Type: provider.EventAssistant, Content: b.Text}); err != nil {
				return err
			}
		case anthropicsdk.ToolUseBlock:
			if err := emit(provider.Event{
				Type:    provider.EventToolUse,
				Content: provider.SerializeContent(b.Input),
				Metadata: map[string]any{"name": b.Name},
			}); err != nil {
				return err
			}
		}
	}

	usageMeta := map[string]any{
		"input_tokens":  int(resp.Usage.InputTokens),
		"output_tokens": int(resp.Usage.OutputTokens),
	}
	if err := emit(provider.Event{Type: provider.EventUsage, Metadata: usageMeta}); err != nil {
		return err
	}

	resultMeta := map[string]any{"routingDecisionSource": "result_content_contract_fallback"}
	for k, v := range usageMeta {
		resultMeta[k] = v
	}
	if resultText == "" {
		return provider.NewError(provider.ErrMissingResult, "missing_result", fmt.Sprintf("no text content in response (stop_reason=%s)", resp.StopReason), nil)
	}
	return emit(provider.Event{Type: provider.EventResult, Content: resultText, Metadata: resultMeta})
}
