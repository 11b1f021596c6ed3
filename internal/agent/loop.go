package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mnemo-agent/mnemo/internal/checkpoint"
	"github.com/mnemo-agent/mnemo/internal/events"
	"github.com/mnemo-agent/mnemo/internal/llm"
	"github.com/mnemo-agent/mnemo/internal/tools"
)

// stepLimitAnswer is returned when the model keeps requesting tools
// past the iteration budget.
const stepLimitAnswer = "I wasn't able to finish working on that within my step limit. Could you rephrase or break the request into smaller parts?"

// Request is one user turn.
type Request struct {
	Message  string
	ThreadID string
}

// ToolUse records one tool invocation for the response's usage report.
type ToolUse struct {
	ID        string         `json:"id,omitempty"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"args"`
}

// Response is the outcome of one turn.
type Response struct {
	Content  string
	ThreadID string
	// ToolUsage groups invocations by reasoning step, in request order
	// within each step.
	ToolUsage  [][]ToolUse
	Iterations int
}

// Config assembles a Loop.
type Config struct {
	Logger        *slog.Logger
	Reasoner      Reasoner
	Registry      *tools.Registry
	Threads       checkpoint.Store
	Bus           *events.Bus
	MaxIterations int
	ToolTimeout   time.Duration
	SystemPrompt  string
	UserID        string
}

// Loop drives the reason/act cycle for chat turns.
type Loop struct {
	logger        *slog.Logger
	reasoner      Reasoner
	registry      *tools.Registry
	threads       checkpoint.Store
	bus           *events.Bus
	maxIterations int
	toolTimeout   time.Duration
	systemPrompt  string
	userID        string
}

// New creates a Loop.
func New(cfg Config) *Loop {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 8
	}
	if cfg.ToolTimeout <= 0 {
		cfg.ToolTimeout = 30 * time.Second
	}
	return &Loop{
		logger:        cfg.Logger,
		reasoner:      cfg.Reasoner,
		registry:      cfg.Registry,
		threads:       cfg.Threads,
		bus:           cfg.Bus,
		maxIterations: cfg.MaxIterations,
		toolTimeout:   cfg.ToolTimeout,
		systemPrompt:  cfg.SystemPrompt,
		userID:        cfg.UserID,
	}
}

// Run executes one chat turn. The thread's new messages are persisted
// in a single atomic append once the turn resolves; a failed turn
// leaves the transcript untouched.
func (l *Loop) Run(ctx context.Context, req Request) (*Response, error) {
	threadID := req.ThreadID
	if threadID == "" {
		threadID = "default"
	}

	l.bus.Publish(events.Event{Kind: events.KindTurnStarted, ThreadID: threadID})

	prior, err := l.threads.Load(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("load thread %s: %w", threadID, err)
	}

	userMsg := llm.UserMessage(req.Message)
	history := make([]llm.Message, 0, len(prior)+2)
	if l.systemPrompt != "" {
		history = append(history, llm.SystemMessage(l.systemPrompt))
	}
	history = append(history, prior...)
	history = append(history, userMsg)

	// Messages produced this turn, appended together at the end.
	turn := []llm.Message{userMsg}
	schemas := l.registry.Schemas()

	var usage [][]ToolUse
	for iteration := 1; iteration <= l.maxIterations; iteration++ {
		if err := ctx.Err(); err != nil {
			l.bus.Publish(events.Event{Kind: events.KindTurnFailed, ThreadID: threadID})
			return nil, err
		}

		msg, err := l.reasoner.Step(ctx, history, schemas)
		if err != nil {
			l.bus.Publish(events.Event{Kind: events.KindTurnFailed, ThreadID: threadID})
			return nil, fmt.Errorf("iteration %d: %w", iteration, err)
		}

		switch action := actionFrom(msg, l.logger).(type) {
		case FinalAnswer:
			turn = append(turn, llm.Message{Role: "assistant", Content: action.Text})
			if err := l.threads.Append(ctx, threadID, turn); err != nil {
				return nil, fmt.Errorf("persist thread %s: %w", threadID, err)
			}
			l.bus.Publish(events.Event{
				Kind:     events.KindTurnCompleted,
				ThreadID: threadID,
				Fields:   map[string]any{"iterations": iteration},
			})
			return &Response{
				Content:    action.Text,
				ThreadID:   threadID,
				ToolUsage:  usage,
				Iterations: iteration,
			}, nil

		case ToolCalls:
			history = append(history, msg)
			turn = append(turn, msg)

			results, uses := l.dispatch(ctx, threadID, action.Calls)
			usage = append(usage, uses)
			history = append(history, results...)
			turn = append(turn, results...)
		}
	}

	// Step budget exhausted with the model still asking for tools.
	l.logger.Warn("iteration limit reached", "thread_id", threadID, "max_iterations", l.maxIterations)
	turn = append(turn, llm.Message{Role: "assistant", Content: stepLimitAnswer})
	if err := l.threads.Append(ctx, threadID, turn); err != nil {
		return nil, fmt.Errorf("persist thread %s: %w", threadID, err)
	}
	l.bus.Publish(events.Event{
		Kind:     events.KindTurnCompleted,
		ThreadID: threadID,
		Fields:   map[string]any{"iterations": l.maxIterations, "step_limit": true},
	})
	return &Response{
		Content:    stepLimitAnswer,
		ThreadID:   threadID,
		ToolUsage:  usage,
		Iterations: l.maxIterations,
	}, nil
}

// dispatch runs one step's tool calls concurrently. Results come back
// in request order regardless of completion order, so the transcript
// the model sees is deterministic.
func (l *Loop) dispatch(ctx context.Context, threadID string, calls []llm.ToolCall) ([]llm.Message, []ToolUse) {
	results := make([]llm.Message, len(calls))
	uses := make([]ToolUse, len(calls))

	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call llm.ToolCall) {
			defer wg.Done()
			output, err := l.invoke(ctx, call)
			if err != nil {
				// Errors fold into the transcript as results; the model
				// decides how to recover.
				output = "Error: " + err.Error()
			}
			results[i] = llm.ToolResultMessage(call.ID, output)
			uses[i] = ToolUse{ID: call.ID, Name: call.Function.Name, Arguments: call.Function.Arguments}

			l.bus.Publish(events.Event{
				Kind:     events.KindToolCalled,
				ThreadID: threadID,
				Fields: map[string]any{
					"tool":  call.Function.Name,
					"error": err != nil,
				},
			})
		}(i, call)
	}
	wg.Wait()

	return results, uses
}

func (l *Loop) invoke(ctx context.Context, call llm.ToolCall) (string, error) {
	name := call.Function.Name

	tool, err := l.registry.Resolve(name)
	if err != nil {
		// The model hallucinated a tool. Feed the failure back instead
		// of aborting the turn.
		l.logger.Warn("model requested unknown tool", "tool", name)
		return "", err
	}

	toolCtx, cancel := context.WithTimeout(tools.WithUserID(ctx, l.userID), l.toolTimeout)
	defer cancel()

	start := time.Now()
	output, err := tool.Handler(toolCtx, call.Function.Arguments)
	elapsed := time.Since(start)

	if err != nil {
		l.logger.Warn("tool failed", "tool", name, "duration", elapsed, "error", err)
		return "", err
	}
	l.logger.Debug("tool completed", "tool", name, "duration", elapsed, "output_len", len(output))
	return output, nil
}
