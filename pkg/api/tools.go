package api

import (
	"context"

	"chatagent/pkg/llm"
)

// Tool defines the structural interface for any capability that the agent
// can execute. It includes metadata for prompt injection (JSON Schema)
// and the execution logic itself.
type Tool interface {
	llm.Tool
	// Execute performs the tool logic using the decoded argument map and
	// returns a plain text result.
	Execute(ctx context.Context, args map[string]any) (string, error)
}

// ToolRegistry defines the interface for managing and accessing tools.
type ToolRegistry interface {
	Register(tool Tool) error
	Resolve(name string) (Tool, error)
	// Declarations lists the tools in registration order.
	Declarations() []llm.Tool
	Execute(ctx context.Context, name string, args map[string]any) (string, error)
}
