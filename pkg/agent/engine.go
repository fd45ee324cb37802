package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"chatagent/pkg/api"
	"chatagent/pkg/llm"
	"chatagent/pkg/tools"
	"chatagent/pkg/utils"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DefaultMaxTurns caps the model consultations of a single run.
const DefaultMaxTurns = 10

// ErrIterationLimitExceeded is returned when the model keeps requesting
// tools past the configured turn cap.
var ErrIterationLimitExceeded = errors.New("iteration limit exceeded")

// State is a node of the reasoning loop state machine.
type State string

const (
	StateAwaitModel   State = "AWAIT_MODEL"
	StateExecuteTools State = "EXECUTE_TOOLS"
	StateDone         State = "DONE"
)

// Transition describes one edge taken by the loop.
type Transition struct {
	ThreadID string
	Turn     int
	From     State
	To       State
}

// Option configures an Engine.
type Option func(*Engine)

// WithMaxTurns sets the model consultation cap. Values <= 0 keep the default.
func WithMaxTurns(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxTurns = n
		}
	}
}

// WithDefaultLanguage sets the reply language for conversations without one.
func WithDefaultLanguage(lang string) Option {
	return func(e *Engine) {
		if strings.TrimSpace(lang) != "" {
			e.defaultLanguage = lang
		}
	}
}

// WithToolsEnabled toggles offering tool declarations to the model.
func WithToolsEnabled(enabled bool) Option {
	return func(e *Engine) {
		e.toolsEnabled = enabled
	}
}

// WithObserver registers a callback invoked synchronously on every
// transition.
func WithObserver(fn func(Transition)) Option {
	return func(e *Engine) {
		e.observer = fn
	}
}

// Engine manages the core reasoning loop: consult the model, execute the
// tools it requests one at a time, repeat until a plain reply arrives.
// An Engine is immutable after construction and safe for concurrent runs.
type Engine struct {
	gateway         llm.Gateway
	toolRegistry    api.ToolRegistry
	maxTurns        int
	defaultLanguage string
	toolsEnabled    bool
	observer        func(Transition)
}

// NewEngine initializes a new Engine.
func NewEngine(gateway llm.Gateway, registry api.ToolRegistry, opts ...Option) (*Engine, error) {
	if gateway == nil {
		return nil, errors.New("model gateway is required")
	}
	if registry == nil {
		return nil, errors.New("tool registry is required")
	}
	e := &Engine{
		gateway:         gateway,
		toolRegistry:    registry,
		maxTurns:        DefaultMaxTurns,
		defaultLanguage: DefaultLanguage,
		toolsEnabled:    true,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Chat implements api.ChatService: it builds a fresh conversation from the
// request, runs it and returns the final reply text. req is validated by
// the gateway before it gets here.
func (e *Engine) Chat(ctx context.Context, req api.ChatRequest) (string, error) {
	state := NewConversationState(req.ThreadID, req.Messages...)
	state.Language = req.Language

	reply, err := e.Run(ctx, state)
	if err != nil {
		return "", err
	}
	return reply.GetTextContent(), nil
}

// Run drives state to completion and returns the terminal assistant message.
//
// On success state ends with that message. On error state is rolled back to
// the last completed turn, so an assistant message is never left without
// its tool results.
func (e *Engine) Run(ctx context.Context, state *ConversationState) (llm.Message, error) {
	if state == nil {
		return llm.Message{}, errors.New("conversation state is required")
	}
	if llm.ThreadIDFromContext(ctx) == "" && state.ThreadID != "" {
		ctx = llm.WithThreadID(ctx, state.ThreadID)
	}

	system := state.SystemInstruction(e.defaultLanguage)
	var declarations []llm.Tool
	if e.toolsEnabled {
		declarations = e.toolRegistry.Declarations()
	}

	start := time.Now()
	committed := state.Len()
	current := StateAwaitModel
	turn := 0
	var reply llm.Message

	fail := func(err error) (llm.Message, error) {
		state.rollback(committed)
		slog.WarnContext(ctx, "Agent loop aborted", "state", current, "turn", turn, "error", err)
		return llm.Message{}, err
	}

	for {
		switch current {
		case StateAwaitModel:
			if err := ctx.Err(); err != nil {
				return fail(err)
			}
			if turn >= e.maxTurns {
				return fail(fmt.Errorf("%w: %d model turns", ErrIterationLimitExceeded, e.maxTurns))
			}
			turn++

			msg, err := e.gateway.Generate(ctx, llm.Request{
				System:            system,
				Messages:          state.Messages(),
				Tools:             declarations,
				ParallelToolCalls: false,
			})
			if err != nil {
				return fail(normalizeGatewayError(ctx, err))
			}
			if msg.Role == "" {
				msg.Role = llm.RoleAssistant
			}
			if msg.ID == "" {
				msg.ID = utils.GenerateID()
			}
			reply = msg
			state.Append(reply)

			if reply.HasToolCalls() {
				slog.DebugContext(ctx, "Model requested tools", "turn", turn, "count", len(reply.ToolCalls))
				current = e.transition(ctx, state, turn, current, StateExecuteTools)
			} else {
				current = e.transition(ctx, state, turn, current, StateDone)
			}

		case StateExecuteTools:
			for _, tc := range reply.ToolCalls {
				if err := ctx.Err(); err != nil {
					return fail(err)
				}
				text := e.ResolveToolCall(ctx, tc)
				if err := ctx.Err(); err != nil {
					return fail(err)
				}
				state.Append(llm.NewToolResultMessage(tc, text))
			}
			committed = state.Len()
			current = e.transition(ctx, state, turn, current, StateAwaitModel)

		case StateDone:
			slog.InfoContext(ctx, "Agent loop finished", "turns", turn, "duration", time.Since(start).String())
			return reply.Clone(), nil
		}
	}
}

func (e *Engine) transition(ctx context.Context, state *ConversationState, turn int, from, to State) State {
	slog.DebugContext(ctx, "Agent state transition", "turn", turn, "from", from, "to", to)
	if e.observer != nil {
		e.observer(Transition{ThreadID: state.ThreadID, Turn: turn, From: from, To: to})
	}
	return to
}

// ResolveToolCall executes one tool call and renders its outcome as the
// text of the tool-result message. Failures become text the model can
// react to; they never abort the loop.
func (e *Engine) ResolveToolCall(ctx context.Context, tc llm.ToolCall) string {
	name := strings.TrimPrefix(tc.Name, "functions.")
	if name == "" {
		name = strings.TrimPrefix(tc.Function.Name, "functions.")
	}

	if !e.toolsEnabled {
		slog.WarnContext(ctx, "Tool call while tools are disabled", "name", name)
		return fmt.Sprintf("Error: Tool '%s' is not available.", name)
	}

	args := map[string]any{}
	if raw := strings.TrimSpace(tc.Function.Arguments); raw != "" {
		if err := json.Unmarshal([]byte(raw), &args); err != nil {
			slog.ErrorContext(ctx, "Failed to parse tool args", "name", name, "error", err)
			return fmt.Sprintf("Error: Failed to parse tool arguments: %v", err)
		}
		if args == nil {
			args = map[string]any{}
		}
	}

	slog.InfoContext(ctx, "Executing tool", "name", name, "id", tc.ID, "args", args)
	res, err := e.toolRegistry.Execute(ctx, name, args)
	switch {
	case errors.Is(err, tools.ErrToolNotFound):
		slog.ErrorContext(ctx, "Unknown tool call", "name", tc.Name)
		return fmt.Sprintf("Error: Tool '%s' is not available.", name)
	case err != nil:
		slog.ErrorContext(ctx, "Tool execution error", "name", name, "error", err)
		return fmt.Sprintf("Error: Tool execution failed: %v", err)
	case res == "":
		return "(No output)"
	}
	return res
}

// normalizeGatewayError keeps cancellation errors as-is and makes every
// other model failure a *llm.GatewayError.
func normalizeGatewayError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var gwErr *llm.GatewayError
	if errors.As(err, &gwErr) {
		return err
	}
	return &llm.GatewayError{Err: err}
}
