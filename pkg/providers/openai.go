package providers

import (
	"context"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/aegion/docbot/pkg/config"
)

type OpenAICompleter struct {
	client    openai.Client
	model     string
	maxTokens int64
}

func NewOpenAICompleter(cfg config.LLMConfig, extra ...option.RequestOption) *OpenAICompleter {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	opts = append(opts, extra...)

	return &OpenAICompleter{
		client:    openai.NewClient(opts...),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
	}
}

func (c *OpenAICompleter) Name() string { return config.ProviderOpenAI }

func (c *OpenAICompleter) Complete(ctx context.Context, system, user string) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
	}
	if c.maxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(c.maxTokens)
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", ErrEmptyCompletion
	}
	return resp.Choices[0].Message.Content, nil
}
