package tools

import (
	"context"
	"errors"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"
)

type stubTool struct {
	name string
	run  func(ctx context.Context, args map[string]any) (string, error)
}

func (s *stubTool) Name() string                 { return s.name }
func (s *stubTool) Description() string          { return "stub " + s.name }
func (s *stubTool) Parameters() map[string]any   { return map[string]any{} }
func (s *stubTool) RequiredParameters() []string { return nil }
func (s *stubTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	return s.run(ctx, args)
}

func TestToolRegistry_RegisterRejectsInvalid(t *testing.T) {
	tr, err := NewToolRegistry()
	require.NoError(t, err)

	require.ErrorIs(t, tr.Register(nil), ErrInvalidTool)
	require.ErrorIs(t, tr.Register(&stubTool{name: "  "}), ErrInvalidTool)

	require.NoError(t, tr.Register(NewWeatherTool()))
	require.ErrorIs(t, tr.Register(NewWeatherTool()), ErrDuplicateTool)

	tr.Freeze()
	require.ErrorIs(t, tr.Register(NewJobsTool()), ErrRegistryFrozen)
}

func TestToolRegistry_DeclarationsKeepRegistrationOrder(t *testing.T) {
	tr := DefaultRegistry()
	decls := tr.Declarations()
	require.Len(t, decls, 2)
	require.Equal(t, "get_weather", decls[0].Name())
	require.Equal(t, "get_jobs", decls[1].Name())
}

func TestToolRegistry_ResolveUnknown(t *testing.T) {
	tr := DefaultRegistry()
	_, err := tr.Resolve("get_stock_price")
	require.ErrorIs(t, err, ErrToolNotFound)

	_, err = tr.Execute(context.Background(), "get_stock_price", nil)
	require.ErrorIs(t, err, ErrToolNotFound)
}

func TestToolRegistry_ExecuteWrapsFailures(t *testing.T) {
	cause := errors.New("upstream down")
	tr, err := NewToolRegistry(
		&stubTool{name: "fails", run: func(context.Context, map[string]any) (string, error) { return "", cause }},
		&stubTool{name: "panics", run: func(context.Context, map[string]any) (string, error) { panic("boom") }},
	)
	require.NoError(t, err)

	_, err = tr.Execute(context.Background(), "fails", nil)
	var execErr *ToolExecutionError
	require.ErrorAs(t, err, &execErr)
	require.Equal(t, "fails", execErr.Tool)
	require.ErrorIs(t, err, cause)

	_, err = tr.Execute(context.Background(), "panics", nil)
	require.ErrorAs(t, err, &execErr)
	require.Contains(t, err.Error(), "boom")
}

func TestToolRegistry_ExecuteMissingArgument(t *testing.T) {
	tr := DefaultRegistry()
	_, err := tr.Execute(context.Background(), "get_weather", map[string]any{})
	var execErr *ToolExecutionError
	require.ErrorAs(t, err, &execErr)

	_, err = tr.Execute(context.Background(), "get_jobs", map[string]any{"skill": 42})
	require.ErrorAs(t, err, &execErr)
	require.Contains(t, err.Error(), "must be a string")
}

func TestProperty_ResolveIsIdempotent(t *testing.T) {
	tr := DefaultRegistry()
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("resolve returns the same implementation every time", prop.ForAll(
		func(name string, repeats int) bool {
			first, firstErr := tr.Resolve(name)
			for i := 0; i < repeats; i++ {
				again, err := tr.Resolve(name)
				if (err == nil) != (firstErr == nil) || again != first {
					return false
				}
			}
			return true
		},
		gen.OneConstOf("get_weather", "get_jobs", "unknown", ""),
		gen.IntRange(1, 20),
	))

	properties.TestingRun(t)
}
