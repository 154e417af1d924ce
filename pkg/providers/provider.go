// Package providers implements the completion service boundary: submit
// a prompt plus context turns, receive text. Failures are classified
// onto the retry taxonomy so the engine's retry wrapper can decide
// whether another attempt is worthwhile.
package providers

import (
	"context"
	"fmt"

	"github.com/pennyworth-bot/pennyworth/pkg/config"
	"github.com/pennyworth-bot/pennyworth/pkg/retry"
)

type Message struct {
	Role    string // "user" or "assistant"
	Content string
}

type CompletionProvider interface {
	Name() string
	Complete(ctx context.Context, system string, messages []Message) (string, error)
}

// classifyStatus maps an HTTP status onto the retry taxonomy.
// Rate limits and server-side trouble are worth retrying; the rest of
// the 4xx range is not.
func classifyStatus(status int, err error) error {
	switch {
	case status == 429 || status == 408 || status >= 500:
		return retry.Transient(err)
	case status >= 400:
		return retry.Permanent(err)
	default:
		return retry.Transient(err)
	}
}

// CreateProvider builds the configured completion provider.
func CreateProvider(cfg *config.Config) (CompletionProvider, error) {
	a := cfg.Assistant
	switch a.Provider {
	case "openai":
		if cfg.Providers.OpenAI.APIKey == "" {
			return nil, fmt.Errorf("openai api key not configured")
		}
		return NewOpenAIProvider(cfg.Providers.OpenAI, a.Model, a.MaxTokens, a.Temperature), nil
	case "anthropic":
		if cfg.Providers.Anthropic.APIKey == "" {
			return nil, fmt.Errorf("anthropic api key not configured")
		}
		return NewAnthropicProvider(cfg.Providers.Anthropic, a.Model, a.MaxTokens, a.Temperature), nil
	default:
		return nil, fmt.Errorf("unknown completion provider: %q", a.Provider)
	}
}
