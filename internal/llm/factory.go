package llm

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/Veraticus/spice-intake/internal/common"
)

// NewClient creates a raw LLM client for the configured provider.
func NewClient(cfg Config) (Client, error) {
	switch strings.ToLower(cfg.Provider) {
	case "openai":
		client, err := newOpenAIClient(cfg)
		if err != nil {
			return nil, err
		}
		return client, nil
	case "anthropic":
		client, err := newAnthropicClient(cfg)
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		return nil, fmt.Errorf("%w: unsupported LLM provider: %s", common.ErrInvalidConfig, cfg.Provider)
	}
}

// NewGuardedClient creates the provider client and wraps it in Guarded.
func NewGuardedClient(cfg Config, logger *slog.Logger) (*Guarded, error) {
	client, err := NewClient(cfg)
	if err != nil {
		return nil, err
	}
	return NewGuarded(client, cfg, logger), nil
}
