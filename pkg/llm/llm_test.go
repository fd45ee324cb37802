package llm

import (
	"context"
	"testing"

	"chatagent/pkg/config"

	"github.com/stretchr/testify/require"
)

type declaredTool struct {
	name     string
	required []string
}

func (d declaredTool) Name() string        { return d.name }
func (d declaredTool) Description() string { return "does " + d.name }
func (d declaredTool) Parameters() map[string]any {
	return map[string]any{"location": map[string]any{"type": "string"}}
}
func (d declaredTool) RequiredParameters() []string { return d.required }

func TestToolSchema(t *testing.T) {
	schema := ToolSchema(declaredTool{name: "get_weather", required: []string{"location"}})
	require.Equal(t, "object", schema["type"])
	require.Contains(t, schema["properties"], "location")
	require.Equal(t, []string{"location"}, schema["required"])

	schema = ToolSchema(declaredTool{name: "noop"})
	require.NotContains(t, schema, "required")
}

func TestToolsToFunctionFormat(t *testing.T) {
	require.Nil(t, ToolsToFunctionFormat(nil))

	out := ToolsToFunctionFormat([]Tool{declaredTool{name: "a"}, declaredTool{name: "b"}})
	require.Len(t, out, 2)
	require.Equal(t, "function", out[0]["type"])
	fn := out[1]["function"].(map[string]any)
	require.Equal(t, "b", fn["name"])
	require.Equal(t, "does b", fn["description"])
}

func TestMessageClone_IsDeep(t *testing.T) {
	orig := NewAssistantMessage("text")
	orig.ToolCalls = []ToolCall{{ID: "1", Name: "x", Meta: map[string]any{"sig": "a"}}}
	orig.Usage = &LLMUsage{TotalTokens: 3}

	cp := orig.Clone()
	cp.Content[0].Text = "changed"
	cp.ToolCalls[0].Meta["sig"] = "b"
	cp.Usage.TotalTokens = 99

	require.Equal(t, "text", orig.GetTextContent())
	require.Equal(t, "a", orig.ToolCalls[0].Meta["sig"])
	require.Equal(t, 3, orig.Usage.TotalTokens)
}

func TestNewToolResultMessage(t *testing.T) {
	msg := NewToolResultMessage(ToolCall{ID: "c1", Name: "get_jobs"}, "financial analyst")
	require.Equal(t, RoleTool, msg.Role)
	require.Equal(t, "c1", msg.ToolCallID)
	require.Equal(t, "get_jobs", msg.ToolName)
	require.Equal(t, "financial analyst", msg.GetTextContent())
}

func TestContextIDs(t *testing.T) {
	ctx := WithDebugID(WithThreadID(context.Background(), "t1"), "d1")
	require.Equal(t, "t1", ThreadIDFromContext(ctx))
	require.Equal(t, "d1", DebugIDFromContext(ctx))
	require.Empty(t, ThreadIDFromContext(context.Background()))
}

type fakeFactory struct {
	seen *ProviderGroupConfig
}

func (f *fakeFactory) Create(cfg ProviderGroupConfig, _ *config.SystemConfig) ([]LLMClient, error) {
	f.seen = &cfg
	var out []LLMClient
	for _, m := range cfg.Models {
		out = append(out, &fakeClient{name: m})
	}
	return out, nil
}

func TestNewFromConfig(t *testing.T) {
	factory := &fakeFactory{}
	RegisterProvider("faketest", factory)
	require.Contains(t, RegisteredProviders(), "faketest")

	t.Setenv("FAKETEST_API_KEY", "sk-env")

	client, err := NewFromConfig([]byte(`[{"type":"faketest","models":["m1"]}]`), nil)
	require.NoError(t, err)
	require.Equal(t, "m1", client.Provider())
	require.Equal(t, []string{"sk-env"}, factory.seen.APIKeys)

	client, err = NewFromConfig([]byte(`[{"type":"faketest","api_keys":["k"],"models":["m1","m2"]},{"type":"unknown","models":["x"]}]`), config.DefaultSystemConfig())
	require.NoError(t, err)
	fc, ok := client.(*FallbackClient)
	require.True(t, ok)
	require.Len(t, fc.Clients, 2)
	require.Equal(t, 3, fc.MaxRetries)
	require.Equal(t, []string{"k"}, factory.seen.APIKeys)

	_, err = NewFromConfig([]byte(`[{"type":"unknown","models":["x"]}]`), nil)
	require.Error(t, err)

	_, err = NewFromConfig(nil, nil)
	require.Error(t, err)
}
