package ollama

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"chatagent/pkg/llm"

	"github.com/stretchr/testify/require"
)

type jobsDecl struct{}

func (jobsDecl) Name() string        { return "get_jobs" }
func (jobsDecl) Description() string { return "Get the best job for a skill" }
func (jobsDecl) Parameters() map[string]any {
	return map[string]any{"skill": map[string]any{"type": "string", "description": "the skill"}}
}
func (jobsDecl) RequiredParameters() []string { return []string{"skill"} }

func TestBuildRequest_PrependsSystem(t *testing.T) {
	c, err := NewOllamaClient("llama3", "localhost:11434", nil)
	require.NoError(t, err)

	req := c.buildRequest(llm.Request{
		System:   "You are a helpful assistant. Talk in english.",
		Messages: []llm.Message{llm.NewUserMessage("hi")},
		Tools:    []llm.Tool{jobsDecl{}},
	})
	require.Len(t, req.Messages, 2)
	require.Equal(t, "system", req.Messages[0].Role)
	require.Equal(t, "user", req.Messages[1].Role)
	require.Len(t, req.Tools, 1)
	require.Equal(t, "get_jobs", req.Tools[0].Function.Name)
	require.True(t, *req.Stream)
}

func TestConvertMessages_ToolRoundTrip(t *testing.T) {
	call := llm.ToolCall{ID: "c1", Name: "get_jobs", Function: llm.FunctionCall{Name: "get_jobs", Arguments: `{"skill":"math"}`}}
	assistant := llm.NewAssistantMessage("")
	assistant.ToolCalls = []llm.ToolCall{call}

	msgs := convertMessages([]llm.Message{
		assistant,
		llm.NewToolResultMessage(call, "The best job for you is financial analyst."),
	})
	require.Len(t, msgs, 2)
	require.Len(t, msgs[0].ToolCalls, 1)
	require.Equal(t, "get_jobs", msgs[0].ToolCalls[0].Function.Name)
	require.Equal(t, "tool", msgs[1].Role)
	require.Equal(t, "c1", msgs[1].ToolCallID)
	require.Equal(t, "get_jobs", msgs[1].ToolName)

	back := convertToolCalls(msgs[0].ToolCalls)
	require.JSONEq(t, `{"skill":"math"}`, back[0].Function.Arguments)
}

func TestStreamChat_AgainstFakeServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/x-ndjson")
		fmt.Fprintln(w, `{"model":"m","message":{"role":"assistant","content":"Price is \$5"},"done":false}`)
		fmt.Fprintln(w, `{"model":"m","message":{"role":"assistant","content":""},"done":true,"done_reason":"stop","prompt_eval_count":3,"eval_count":4}`)
	}))
	defer srv.Close()

	c, err := NewOllamaClient("m", srv.URL, nil)
	require.NoError(t, err)

	msg, err := llm.NewGateway(c).Generate(context.Background(), llm.Request{Messages: []llm.Message{llm.NewUserMessage("price?")}})
	require.NoError(t, err)
	require.Equal(t, "Price is $5", msg.GetTextContent())
	require.Equal(t, 7, msg.Usage.TotalTokens)
}

func TestStreamChat_StartErrorIsReturned(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error":"model 'm' not found"}`)
	}))
	defer srv.Close()

	c, err := NewOllamaClient("m", srv.URL, nil)
	require.NoError(t, err)

	_, err = c.StreamChat(context.Background(), llm.Request{})
	require.ErrorContains(t, err, "not found")
	require.False(t, c.IsTransientError(err))
}

func TestJSONFixingReadCloser(t *testing.T) {
	r := &jsonFixingReadCloser{body: io.NopCloser(strings.NewReader(`{"a":"\$x \"ok\""}`))}
	out, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, `{"a":"$x \"ok\""}`, string(out))
}
