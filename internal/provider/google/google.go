// Package google adapts the Gemini SDK into the canonical
// provider.Adapter event stream, generalizing the teacher's
// graph/model/google ChatModel into a streaming producer.
package google

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/hansjm10/alphred/internal/provider"
)

// Adapter implements provider.Adapter for Google's Gemini API.
type Adapter struct {
	apiKey       string
	defaultModel string
}

// New builds a Gemini adapter.
func New(apiKey, defaultModel string) *Adapter {
	if defaultModel == "" {
		defaultModel = "gemini-2.5-flash"
	}
	return &Adapter{apiKey: apiKey, defaultModel: defaultModel}
}

// Name returns "google".
func (a *Adapter) Name() string { return "google" }

// Invoke streams a single GenerateContent call as the canonical event
// grammar. Gemini's safety-filter blocks surface as a classified
// provider.Error rather than a bare SDK error.
func (a *Adapter) Invoke(ctx context.Context, req provider.InvokeRequest, emit func(provider.Event) error) error {
	if a.apiKey == "" {
		return provider.NewError(provider.ErrInvalidConfig, "invalid_config", "google API key is required", nil)
	}
	model := req.Model
	if model == "" {
		model = a.defaultModel
	}

	if err := emit(provider.Event{
		Type: provider.EventSystem,
		Metadata: map[string]any{
			"provider":         "google",
			"hasSystemPrompt":  req.SystemPrompt != "",
			"contextItemCount": len(req.ContextItems),
			"model":            model,
		},
	}); err != nil {
		return err
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(a.apiKey))
	if err != nil {
		return provider.NewError(provider.ErrInvalidConfig, "invalid_config", "failed to create google client", err)
	}
	defer func() { _ = client.Close() }()

	genModel := client.GenerativeModel(model)
	if req.SystemPrompt != "" {
		genModel.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.SystemPrompt)}}
	}

	resp, err := genModel.GenerateContent(ctx, genai.Text(req.Prompt))
	if err != nil {
		if ctx.Err() != nil {
			return provider.NewError(provider.ErrTimeout, "timeout", "context cancelled before google response", ctx.Err())
		}
		return provider.Classify(0, err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return provider.NewError(provider.ErrMissingResult, "missing_result", fmt.Sprintf("no candidates in google response (block_reason=%v)", resp.PromptFeedback), nil)
	}

	var resultText string
	for _, part := range resp.Candidates[0].Content.Parts {
		switch p := part.(type) {
		case genai.Text:
			resultText += string(p)
			if err := emit(provider.Event{Type: provider.EventAssistant, Content: string(p)}); err != nil {
				return err
			}
		case genai.FunctionCall:
			if err := emit(provider.Event{
				Type:     provider.EventToolUse,
				Content:  provider.SerializeContent(p.Args),
				Metadata: map[string]any{"name": p.Name},
			}); err != nil {
				return err
			}
		}
	}

	usageMeta := map[string]any{}
	if resp.UsageMetadata != nil {
		usageMeta["input_tokens"] = int(resp.UsageMetadata.PromptTokenCount)
		usageMeta["output_tokens"] = int(resp.UsageMetadata.CandidatesTokenCount)
		usageMeta["total_tokens"] = int(resp.UsageMetadata.TotalTokenCount)
	}
	if err := emit(provider.Event{Type: provider.EventUsage, Metadata: usageMeta}); err != nil {
		return err
	}

	resultMeta := map[string]any{"routingDecisionSource": "result_content_contract_fallback"}
	for k, v := range usageMeta {
		resultMeta[k] = v
	}
	if resultText == "" {
		return provider.NewError(provider.ErrMissingResult, "missing_result", "empty text content in google response", nil)
	}
	return emit(provider.Event{Type: provider.EventResult, Content: resultText, Metadata: resultMeta})
}
