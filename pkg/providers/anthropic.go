package providers

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/aegion/docbot/pkg/config"
)

const defaultAnthropicMaxTokens = 1024

type AnthropicCompleter struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

func NewAnthropicCompleter(cfg config.LLMConfig, extra ...option.RequestOption) *AnthropicCompleter {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	opts = append(opts, extra...)

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}

	return &AnthropicCompleter{
		client:    anthropic.NewClient(opts...),
		model:     cfg.Model,
		maxTokens: maxTokens,
	}
}

func (c *AnthropicCompleter) Name() string { return config.ProviderAnthropic }

func (c *AnthropicCompleter) Complete(ctx context.Context, system, user string) (string, error) {
	msg, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		System:    []anthropic.TextBlockParam{{Text: system}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic message failed: %w", err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", ErrEmptyCompletion
	}
	return sb.String(), nil
}
