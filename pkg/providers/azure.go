package providers

import (
	"context"
	"errors"
	"fmt"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/aegion/docbot/pkg/config"
)

// AzureCompleter talks to an Azure OpenAI deployment. The configured model
// name is used as the deployment name.
type AzureCompleter struct {
	client     *goopenai.Client
	deployment string
	maxTokens  int
}

func NewAzureCompleter(cfg config.LLMConfig) (*AzureCompleter, error) {
	if cfg.AzureEndpoint == "" {
		return nil, errors.New("azure endpoint is empty")
	}

	clientCfg := goopenai.DefaultAzureConfig(cfg.APIKey, cfg.AzureEndpoint)
	if cfg.AzureAPIVersion != "" {
		clientCfg.APIVersion = cfg.AzureAPIVersion
	}
	clientCfg.AzureModelMapperFunc = func(model string) string { return model }

	return &AzureCompleter{
		client:     goopenai.NewClientWithConfig(clientCfg),
		deployment: cfg.Model,
		maxTokens:  int(cfg.MaxTokens),
	}, nil
}

func (c *AzureCompleter) Name() string { return config.ProviderAzure }

func (c *AzureCompleter) Complete(ctx context.Context, system, user string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model: c.deployment,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleSystem, Content: system},
			{Role: goopenai.ChatMessageRoleUser, Content: user},
		},
		MaxTokens: c.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("azure chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", ErrEmptyCompletion
	}
	return resp.Choices[0].Message.Content, nil
}
