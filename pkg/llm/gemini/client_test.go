package gemini

import (
	"testing"

	"chatagent/pkg/llm"

	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

type weatherDecl struct{}

func (weatherDecl) Name() string        { return "get_weather" }
func (weatherDecl) Description() string { return "Get the weather for a location" }
func (weatherDecl) Parameters() map[string]any {
	return map[string]any{"location": map[string]any{"type": "string"}}
}
func (weatherDecl) RequiredParameters() []string { return []string{"location"} }

func TestConvertCandidate_GeneratesMissingIDs(t *testing.T) {
	chunk, ok := convertCandidate(&genai.Candidate{Content: &genai.Content{Parts: []*genai.Part{
		{Text: "let me check", Thought: true},
		{FunctionCall: &genai.FunctionCall{Name: "get_weather", Args: map[string]any{"location": "Los Angeles"}}},
		{FunctionCall: &genai.FunctionCall{ID: "fc-2", Name: "get_jobs"}},
	}}})
	require.True(t, ok)
	require.Len(t, chunk.ContentBlocks, 1)
	require.Equal(t, llm.BlockTypeThinking, chunk.ContentBlocks[0].Type)

	require.Len(t, chunk.ToolCalls, 2)
	first := chunk.ToolCalls[0]
	require.NotEmpty(t, first.ID)
	require.Equal(t, "", callID(first))
	require.JSONEq(t, `{"location":"Los Angeles"}`, first.Function.Arguments)

	second := chunk.ToolCalls[1]
	require.Equal(t, "fc-2", callID(second))
	require.Equal(t, "{}", second.Function.Arguments)

	_, ok = convertCandidate(&genai.Candidate{})
	require.False(t, ok)
}

func TestConvertMessages_ToolResults(t *testing.T) {
	chunk, _ := convertCandidate(&genai.Candidate{Content: &genai.Content{Parts: []*genai.Part{
		{FunctionCall: &genai.FunctionCall{Name: "get_weather", Args: map[string]any{"location": "NYC"}}},
		{FunctionCall: &genai.FunctionCall{ID: "real", Name: "get_jobs", Args: map[string]any{"skill": "math"}}},
	}}})
	assistant := llm.NewAssistantMessage("")
	assistant.ToolCalls = chunk.ToolCalls

	contents := convertMessages([]llm.Message{
		llm.NewTextMessage(llm.RoleSystem, "ignored"),
		llm.NewUserMessage("weather and jobs"),
		assistant,
		llm.NewToolResultMessage(chunk.ToolCalls[0], "The weather for NYC is 70 degrees."),
		llm.NewToolResultMessage(chunk.ToolCalls[1], "The best job for you is financial analyst."),
	})

	require.Len(t, contents, 3)
	require.Equal(t, "user", contents[0].Role)
	require.Equal(t, "model", contents[1].Role)
	require.Len(t, contents[1].Parts, 2)

	results := contents[2]
	require.Equal(t, "user", results.Role)
	require.Len(t, results.Parts, 2)
	require.Equal(t, "", results.Parts[0].FunctionResponse.ID)
	require.Equal(t, "get_weather", results.Parts[0].FunctionResponse.Name)
	require.Equal(t, "real", results.Parts[1].FunctionResponse.ID)
	require.Equal(t, "The best job for you is financial analyst.", results.Parts[1].FunctionResponse.Response["output"])
}

func TestConvertTools(t *testing.T) {
	require.Nil(t, convertTools(nil))
	tools := convertTools([]llm.Tool{weatherDecl{}})
	require.Len(t, tools, 1)
	fd := tools[0].FunctionDeclarations[0]
	require.Equal(t, "get_weather", fd.Name)
	schema := fd.ParametersJsonSchema.(map[string]any)
	require.Equal(t, []string{"location"}, schema["required"])
}

func TestNormalizeFinishReason(t *testing.T) {
	require.Equal(t, llm.StopReasonStop, normalizeFinishReason(genai.FinishReasonStop))
	require.Equal(t, llm.StopReasonLength, normalizeFinishReason(genai.FinishReasonMaxTokens))
	require.Equal(t, "safety", normalizeFinishReason(genai.FinishReasonSafety))
}

func TestBuildConfig(t *testing.T) {
	g := &GeminiClient{model: "gemini-test", useThought: true}
	cfg := g.buildConfig(llm.Request{System: "Talk in english.", Tools: []llm.Tool{weatherDecl{}}})
	require.Equal(t, "Talk in english.", cfg.SystemInstruction.Parts[0].Text)
	require.Equal(t, genai.FunctionCallingConfigModeAuto, cfg.ToolConfig.FunctionCallingConfig.Mode)
	require.True(t, cfg.ThinkingConfig.IncludeThoughts)

	cfg = g.buildConfig(llm.Request{})
	require.Nil(t, cfg.SystemInstruction)
	require.Nil(t, cfg.ToolConfig)
}
