package openailm

import (
	"errors"
	"testing"

	"chatagent/pkg/llm"

	"github.com/stretchr/testify/require"
)

type weatherDecl struct{}

func (weatherDecl) Name() string        { return "get_weather" }
func (weatherDecl) Description() string { return "Get the weather for a location" }
func (weatherDecl) Parameters() map[string]any {
	return map[string]any{"location": map[string]any{"type": "string"}}
}
func (weatherDecl) RequiredParameters() []string { return []string{"location"} }

func TestToolCallAccumulator_KeepsArrivalOrderAndCallIDs(t *testing.T) {
	acc := newToolCallAccumulator()
	acc.item("item_b", "call_b", "get_jobs")
	acc.item("item_a", "call_a", "get_weather")
	acc.appendArgs("item_b", `{"skill":`)
	acc.appendArgs("item_a", `{"location":"LA"}`)
	acc.appendArgs("item_b", `"math"}`)

	calls := acc.calls()
	require.Len(t, calls, 2)
	require.Equal(t, "call_b", calls[0].ID)
	require.Equal(t, "get_jobs", calls[0].Function.Name)
	require.Equal(t, `{"skill":"math"}`, calls[0].Function.Arguments)
	require.Equal(t, "call_a", calls[1].ID)
}

func TestToolCallAccumulator_FinalArgumentsWin(t *testing.T) {
	acc := newToolCallAccumulator()
	acc.appendArgs("item", `{"loc`)
	acc.setArgs("item", `{"location":"NYC"}`)
	acc.appendArgs("item", `garbage`)
	acc.item("item", "call_1", "get_weather")

	calls := acc.calls()
	require.Len(t, calls, 1)
	require.Equal(t, `{"location":"NYC"}`, calls[0].Function.Arguments)
}

func TestToolCallAccumulator_DropsNamelessItems(t *testing.T) {
	acc := newToolCallAccumulator()
	acc.appendArgs("orphan", "{}")
	require.Empty(t, acc.calls())
}

func TestBuildParams(t *testing.T) {
	c, err := NewClient("openai", "sk", "gpt-test", "", map[string]any{"thinking_effort": "low", "temperature": 0.2})
	require.NoError(t, err)

	params, opts := c.buildParams(llm.Request{
		System:   "You are a helpful assistant. Talk in english.",
		Messages: []llm.Message{llm.NewUserMessage("hi")},
		Tools:    []llm.Tool{weatherDecl{}},
	})
	require.Equal(t, "gpt-test", params.Model)
	require.Equal(t, "You are a helpful assistant. Talk in english.", params.Instructions.Value)
	require.True(t, params.ParallelToolCalls.Valid())
	require.False(t, params.ParallelToolCalls.Value)
	require.Len(t, params.Tools, 1)
	require.Equal(t, "get_weather", params.Tools[0].OfFunction.Name)
	require.Equal(t, "object", params.Tools[0].OfFunction.Parameters["type"])
	require.Len(t, opts, 1)
}

func TestConvertMessages(t *testing.T) {
	call := llm.ToolCall{ID: "call_1", Name: "get_weather", Function: llm.FunctionCall{Name: "get_weather", Arguments: `{"location":"LA"}`}}
	assistant := llm.NewAssistantMessage("")
	assistant.Content = nil
	assistant.ToolCalls = []llm.ToolCall{call}

	items := convertMessages([]llm.Message{
		llm.NewUserMessage("weather in LA?"),
		assistant,
		llm.NewToolResultMessage(call, "The weather for Los Angeles is 80 degrees."),
	})
	require.Len(t, items, 3)
	require.NotNil(t, items[0].OfMessage)
	require.NotNil(t, items[1].OfFunctionCall)
	require.Equal(t, "call_1", items[1].OfFunctionCall.CallID)
	require.NotNil(t, items[2].OfFunctionCallOutput)
	require.Equal(t, "call_1", items[2].OfFunctionCallOutput.CallID)
}

func TestIsTransient(t *testing.T) {
	require.True(t, isTransient(errors.New("503 Service Unavailable")))
	require.True(t, isTransient(errors.New("dial tcp: connection refused")))
	require.False(t, isTransient(errors.New("401 Unauthorized")))
	require.False(t, isTransient(nil))
}

func TestFactoryRequiresKey(t *testing.T) {
	f := &OpenAIFactory{}
	_, err := f.Create(llm.ProviderGroupConfig{Type: "openai", Models: []string{"m"}}, nil)
	require.Error(t, err)

	clients, err := f.Create(llm.ProviderGroupConfig{Type: "openai", APIKeys: []string{"k"}, Models: []string{"a", "b"}}, nil)
	require.NoError(t, err)
	require.Len(t, clients, 2)
	require.Equal(t, "openai", clients[0].Provider())
}
