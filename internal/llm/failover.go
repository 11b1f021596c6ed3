package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// FailoverClient tries providers in order until one answers. The gateway
// goes first when configured; a local Ollama instance backs it up.
type FailoverClient struct {
	providers []Client
	logger    *slog.Logger
}

// NewFailoverClient creates a client that fails over across providers
// in the given order. At least one provider is required.
func NewFailoverClient(logger *slog.Logger, providers ...Client) (*FailoverClient, error) {
	if len(providers) == 0 {
		return nil, fmt.Errorf("no reasoning providers configured")
	}
	return &FailoverClient{providers: providers, logger: logger}, nil
}

// Name implements Client.
func (f *FailoverClient) Name() string {
	return "failover:" + f.providers[0].Name()
}

// Chat implements Client. Providers are tried in order; a canceled or
// expired context stops the chain immediately since later providers
// would fail the same way.
func (f *FailoverClient) Chat(ctx context.Context, messages []Message, tools []ToolSchema) (*ChatResponse, error) {
	var errs []error
	for i, p := range f.providers {
		resp, err := p.Chat(ctx, messages, tools)
		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
			break
		}
		if i < len(f.providers)-1 {
			f.logger.Warn("reasoning provider failed, trying next",
				"provider", p.Name(),
				"next", f.providers[i+1].Name(),
				"error", err,
			)
		}
		errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
	}
	return nil, fmt.Errorf("all reasoning providers failed: %w", errors.Join(errs...))
}

// Ping implements Client. Reachable means at least one provider answers.
func (f *FailoverClient) Ping(ctx context.Context) error {
	var errs []error
	for _, p := range f.providers {
		if err := p.Ping(ctx); err == nil {
			return nil
		} else {
			errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
		}
	}
	return errors.Join(errs...)
}
