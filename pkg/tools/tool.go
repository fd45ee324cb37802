package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"

	"chatagent/pkg/api"
	"chatagent/pkg/llm"
)

// Re-export types from api package via aliases
type Tool = api.Tool

var (
	// ErrToolNotFound is returned when a name has no registered tool.
	ErrToolNotFound = errors.New("tool not found")
	// ErrDuplicateTool rejects a second registration under the same name.
	ErrDuplicateTool = errors.New("tool already registered")
	// ErrRegistryFrozen rejects registration after startup.
	ErrRegistryFrozen = errors.New("tool registry is frozen")
	// ErrInvalidTool rejects nil tools and empty names.
	ErrInvalidTool = errors.New("invalid tool")
)

// ToolExecutionError wraps a failure raised by a registered tool.
type ToolExecutionError struct {
	Tool string
	Err  error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool %q failed: %v", e.Tool, e.Err)
}

func (e *ToolExecutionError) Unwrap() error {
	return e.Err
}

// ToolRegistry acts as a central inventory for all tools available to the
// agent. Tools are registered at startup, then the registry is frozen and
// shared read-only by every conversation.
type ToolRegistry struct {
	mu     sync.RWMutex    // Protects concurrent access to the tools map
	tools  map[string]Tool // Internal map of tool name to implementation
	order  []string        // Registration order, used for declarations
	frozen bool
}

// NewToolRegistry creates a registry holding the given tools.
func NewToolRegistry(tools ...Tool) (*ToolRegistry, error) {
	tr := &ToolRegistry{
		tools: make(map[string]Tool),
	}
	for _, t := range tools {
		if err := tr.Register(t); err != nil {
			return nil, err
		}
	}
	return tr, nil
}

// DefaultRegistry returns the frozen registry with the built-in tools.
func DefaultRegistry() *ToolRegistry {
	tr, err := NewToolRegistry(NewWeatherTool(), NewJobsTool())
	if err != nil {
		// Built-in names are distinct.
		panic(err)
	}
	tr.Freeze()
	return tr
}

// Register adds a tool to the registry.
func (tr *ToolRegistry) Register(tool Tool) error {
	if tool == nil {
		return fmt.Errorf("%w: nil tool", ErrInvalidTool)
	}
	name := tool.Name()
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidTool)
	}

	tr.mu.Lock()
	defer tr.mu.Unlock()
	if tr.frozen {
		return fmt.Errorf("%w: cannot register %q", ErrRegistryFrozen, name)
	}
	if _, ok := tr.tools[name]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateTool, name)
	}
	tr.tools[name] = tool
	tr.order = append(tr.order, name)
	return nil
}

// Freeze makes the registry immutable. It is safe to call more than once.
func (tr *ToolRegistry) Freeze() {
	tr.mu.Lock()
	tr.frozen = true
	tr.mu.Unlock()
}

// Resolve retrieves a tool by name.
func (tr *ToolRegistry) Resolve(name string) (Tool, error) {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	tool, ok := tr.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrToolNotFound, name)
	}
	return tool, nil
}

// Declarations returns all registered tools in registration order.
func (tr *ToolRegistry) Declarations() []llm.Tool {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	out := make([]llm.Tool, 0, len(tr.order))
	for _, name := range tr.order {
		out = append(out, tr.tools[name])
	}
	return out
}

// Execute runs the named tool. Failures, panics included, are returned as
// *ToolExecutionError; an unknown name yields ErrToolNotFound.
func (tr *ToolRegistry) Execute(ctx context.Context, name string, args map[string]any) (result string, err error) {
	tool, err := tr.Resolve(name)
	if err != nil {
		return "", err
	}

	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "Tool execution panicked", "tool", name, "panic", r, "stack", string(debug.Stack()))
			result = ""
			err = &ToolExecutionError{Tool: name, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	if args == nil {
		args = map[string]any{}
	}
	result, err = tool.Execute(ctx, args)
	if err != nil {
		return "", &ToolExecutionError{Tool: name, Err: err}
	}
	return result, nil
}

// stringArg extracts a required string argument.
func stringArg(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", fmt.Errorf("missing string parameter '%s'", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("parameter '%s' must be a string, got %T", key, v)
	}
	return s, nil
}
