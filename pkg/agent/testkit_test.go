package agent

import (
	"context"
	"fmt"
	"sync"

	"chatagent/pkg/llm"
)

type step func(ctx context.Context, req llm.Request) (llm.Message, error)

// scriptedGateway replays a fixed sequence of replies and records requests.
type scriptedGateway struct {
	mu       sync.Mutex
	steps    []step
	requests []llm.Request
}

func newScriptedGateway(steps ...step) *scriptedGateway {
	return &scriptedGateway{steps: steps}
}

func (g *scriptedGateway) Generate(ctx context.Context, req llm.Request) (llm.Message, error) {
	g.mu.Lock()
	idx := len(g.requests)
	g.requests = append(g.requests, req)
	g.mu.Unlock()

	if idx >= len(g.steps) {
		return llm.Message{}, fmt.Errorf("unexpected model call #%d", idx+1)
	}
	return g.steps[idx](ctx, req)
}

func (g *scriptedGateway) calls() []llm.Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]llm.Request(nil), g.requests...)
}

func reply(text string) step {
	return func(context.Context, llm.Request) (llm.Message, error) {
		return llm.NewAssistantMessage(text), nil
	}
}

func callTools(calls ...llm.ToolCall) step {
	return func(context.Context, llm.Request) (llm.Message, error) {
		msg := llm.NewAssistantMessage("")
		msg.Content = nil
		msg.ToolCalls = calls
		return msg, nil
	}
}

func toolCall(id, name, args string) llm.ToolCall {
	return llm.ToolCall{
		ID:       id,
		Name:     name,
		Function: llm.FunctionCall{Name: name, Arguments: args},
	}
}

// transitionLog collects observer callbacks.
type transitionLog struct {
	mu    sync.Mutex
	edges []Transition
}

func (l *transitionLog) observe(t Transition) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.edges = append(l.edges, t)
}

func (l *transitionLog) path() []State {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.edges) == 0 {
		return nil
	}
	out := []State{l.edges[0].From}
	for _, e := range l.edges {
		out = append(out, e.To)
	}
	return out
}
