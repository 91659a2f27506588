// Package providers adapts chat-completion backends to a single
// prompt-in, text-out contract.
package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aegion/docbot/pkg/config"
)

// ErrEmptyCompletion is returned when the backend answers without any text.
var ErrEmptyCompletion = errors.New("completion returned no content")

// Completer sends a system instruction and user text to a completion
// service and returns the raw answer text.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
	Name() string
}

// New builds the completer selected by cfg.Provider.
func New(cfg config.LLMConfig) (Completer, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("llm api key is empty")
	}

	var (
		c   Completer
		err error
	)
	switch strings.ToLower(cfg.Provider) {
	case config.ProviderOpenAI:
		c = NewOpenAICompleter(cfg)
	case config.ProviderAzure:
		c, err = NewAzureCompleter(cfg)
	case config.ProviderAnthropic:
		c = NewAnthropicCompleter(cfg)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	if cfg.Timeout > 0 {
		c = WithTimeout(c, cfg.Timeout)
	}
	return c, nil
}

type timeoutCompleter struct {
	next    Completer
	timeout time.Duration
}

// WithTimeout bounds every Complete call on next.
func WithTimeout(next Completer, timeout time.Duration) Completer {
	return &timeoutCompleter{next: next, timeout: timeout}
}

func (t *timeoutCompleter) Complete(ctx context.Context, system, user string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	out, err := t.next.Complete(ctx, system, user)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return "", fmt.Errorf("%s completion timed out after %s: %w", t.next.Name(), t.timeout, err)
	}
	return out, err
}

func (t *timeoutCompleter) Name() string { return t.next.Name() }
