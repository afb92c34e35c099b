// Package openai adapts the OpenAI SDK into the canonical
// provider.Adapter event stream, generalizing the teacher's
// graph/model/openai ChatModel into a streaming producer.
package openai

import (
	"context"
	"fmt"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/hansjm10/alphred/internal/provider"
)

// Adapter implements provider.Adapter for OpenAI's Chat Completions API.
type Adapter struct {
	apiKey       string
	defaultModel string
	newClient    func(apiKey string) openaisdk.Client
}

// New builds an OpenAI adapter.
func New(apiKey, defaultModel string) *Adapter {
	if defaultModel == "" {
		defaultModel = "gpt-4o"
	}
	return &Adapter{
		apiKey:       apiKey,
		defaultModel: defaultModel,
		newClient: func(apiKey string) openaisdk.Client {
			return openaisdk.NewClient(option.WithAPIKey(apiKey))
		},
	}
}

// Name returns "openai".
func (a *Adapter) Name() string { return "openai" }

// Invoke streams a single Chat Completions call as the canonical event
// grammar.
func (a *Adapter) Invoke(ctx context.Context, req provider.InvokeRequest, emit func(provider.Event) error) error {
	if a.apiKey == "" {
		return provider.NewError(provider.ErrInvalidConfig, "invalid_config", "openai API key is required", nil)
	}
	model := req.Model
	if model == "" {
		model = a.defaultModel
	}

	if err := emit(provider.Event{
		Type: provider.EventSystem,
		Metadata: map[string]any{
			"provider":         "openai",
			"hasSystemPrompt":  req.SystemPrompt != "",
			"contextItemCount": len(req.ContextItems),
			"model":            model,
		},
	}); err != nil {
		return err
	}

	var messages []openaisdk.ChatCompletionMessageParamUnion
	if req.SystemPrompt != "" {
		messages = append(messages, openaisdk.SystemMessage(req.SystemPrompt))
	}
	messages = append(messages, openaisdk.UserMessage(req.Prompt))

	client := a.newClient(a.apiKey)
	resp, err := client.Chat.Completions.New(ctx, openaisdk.ChatCompletionNewParams{
		Model:    model,
		Messages: messages,
	})
	if err != nil {
		if ctx.Err() != nil {
			return provider.NewError(provider.ErrTimeout, "timeout", "context cancelled before openai response", ctx.Err())
		}
		return provider.Classify(0, err)
	}
	if len(resp.Choices) == 0 {
		return provider.NewError(provider.ErrMissingResult, "missing_result", "no choices in openai response", nil)
	}

	text := resp.Choices[0].Message.Content
	if text != "" {
		if err := emit(provider.Event{Type: provider.EventAssistant, Content: text}); err != nil {
			return err
		}
	}
	for _, call := range resp.Choices[0].Message.ToolCalls {
		if err := emit(provider.Event{
			Type:     provider.EventToolUse,
			Content:  call.Function.Arguments,
			Metadata: map[string]any{"name": call.Function.Name},
		}); err != nil {
			return err
		}
	}

	usageMeta := map[string]any{
		"input_tokens":  int(resp.Usage.PromptTokens),
		"output_tokens": int(resp.Usage.CompletionTokens),
		"total_tokens":  int(resp.Usage.TotalTokens),
	}
	if err := emit(provider.Event{Type: provider.EventUsage, Metadata: usageMeta}); err != nil {
		return err
	}

	resultMeta := map[string]any{"routingDecisionSource": "result_content_contract_fallback"}
	for k, v := range usageMeta {
		resultMeta[k] = v
	}
	if text == "" {
		return provider.NewError(provider.ErrMissingResult, "missing_result", fmt.Sprintf("empty content (finish_reason=%s)", resp.Choices[0].FinishReason), nil)
	}
	return emit(provider.Event{Type: provider.EventResult, Content: text, Metadata: resultMeta})
}
