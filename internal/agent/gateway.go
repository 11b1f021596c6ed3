// Package agent implements the reasoning loop: the model proposes
// actions, tools execute, and results fold back into the transcript
// until the model answers or the step budget runs out.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mnemo-agent/mnemo/internal/llm"
)

// Action is the outcome of one reasoning step. Exactly one of the two
// concrete types is produced per step: the model either answers or
// requests tools, never both.
type Action interface {
	isAction()
}

// FinalAnswer ends the turn with text for the user.
type FinalAnswer struct {
	Text string
}

// ToolCalls requests one or more tool invocations.
type ToolCalls struct {
	Calls []llm.ToolCall
}

func (FinalAnswer) isAction() {}
func (ToolCalls) isAction()   {}

// Reasoner produces the next assistant message for a transcript.
type Reasoner interface {
	Step(ctx context.Context, history []llm.Message, tools []llm.ToolSchema) (llm.Message, error)
}

// Gateway adapts an llm.Client into a Reasoner, adding a per-step
// deadline and a small retry budget for flaky providers.
type Gateway struct {
	client      llm.Client
	logger      *slog.Logger
	stepTimeout time.Duration
	retries     int
}

// NewGateway wraps client with stepTimeout per attempt and retries
// additional attempts after a failure.
func NewGateway(client llm.Client, logger *slog.Logger, stepTimeout time.Duration, retries int) *Gateway {
	if stepTimeout <= 0 {
		stepTimeout = 120 * time.Second
	}
	if retries < 0 {
		retries = 0
	}
	return &Gateway{
		client:      client,
		logger:      logger,
		stepTimeout: stepTimeout,
		retries:     retries,
	}
}

// Step implements Reasoner.
func (g *Gateway) Step(ctx context.Context, history []llm.Message, tools []llm.ToolSchema) (llm.Message, error) {
	var lastErr error
	for attempt := 0; attempt <= g.retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return llm.Message{}, err
		}
		if attempt > 0 {
			g.logger.Warn("retrying reasoning step",
				"attempt", attempt,
				"max_retries", g.retries,
				"error", lastErr,
			)
		}

		stepCtx, cancel := context.WithTimeout(ctx, g.stepTimeout)
		resp, err := g.client.Chat(stepCtx, history, tools)
		cancel()
		if err == nil {
			return resp.Message, nil
		}
		lastErr = err
	}
	return llm.Message{}, fmt.Errorf("reasoning step failed after %d attempts: %w", g.retries+1, lastErr)
}

// actionFrom classifies an assistant message. A message carrying both
// text and tool calls counts as tool calls; the text is dropped since
// the model gets to speak again after results arrive.
func actionFrom(msg llm.Message, logger *slog.Logger) Action {
	if len(msg.ToolCalls) > 0 {
		if msg.Content != "" {
			logger.Debug("discarding text alongside tool calls", "text_len", len(msg.Content))
		}
		return ToolCalls{Calls: msg.ToolCalls}
	}
	return FinalAnswer{Text: msg.Content}
}
