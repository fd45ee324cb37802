package ollama

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"chatagent/pkg/llm"

	jsoniter "github.com/json-iterator/go"
	"github.com/ollama/ollama/api"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DefaultHost is used when neither the config nor OLLAMA_HOST name a server.
const DefaultHost = "http://127.0.0.1:11434"

// OllamaClient Ollama API client
type OllamaClient struct {
	client       *api.Client
	model        string
	options      map[string]any
	debugEnabled bool
}

// SetDebug implements llm.DebugSetter
func (o *OllamaClient) SetDebug(enabled bool) {
	o.debugEnabled = enabled
}

// NewOllamaClient creates an Ollama client
func NewOllamaClient(model string, baseURL string, options map[string]any) (*OllamaClient, error) {
	if model == "" {
		return nil, fmt.Errorf("ollama: model name is required")
	}
	if baseURL == "" {
		baseURL = os.Getenv("OLLAMA_HOST")
	}
	if baseURL == "" {
		baseURL = DefaultHost
	}
	if !strings.Contains(baseURL, "://") {
		baseURL = "http://" + baseURL
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	slog.Info("Ollama client initialized", "model", model, "base_url", u.String())

	return &OllamaClient{
		client:  api.NewClient(u, newHTTPClient()),
		model:   model,
		options: options,
	}, nil
}

func (o *OllamaClient) Provider() string {
	return "ollama"
}

func (o *OllamaClient) buildRequest(req llm.Request) *api.ChatRequest {
	msgs := convertMessages(req.Messages)
	if req.System != "" {
		msgs = append([]api.Message{{Role: llm.RoleSystem, Content: req.System}}, msgs...)
	}

	stream := true
	return &api.ChatRequest{
		Model:    o.model,
		Messages: msgs,
		Options:  o.options,
		Tools:    convertTools(req.Tools),
		Stream:   &stream,
	}
}

// StreamChat implements llm.LLMClient. Like the Gemini client it waits for
// the first callback so that model load failures surface as start errors.
func (o *OllamaClient) StreamChat(ctx context.Context, req llm.Request) (<-chan llm.StreamChunk, error) {
	chatReq := o.buildRequest(req)

	chunkCh := make(chan llm.StreamChunk, 100)
	startResultCh := make(chan error, 1)

	go func() {
		defer close(chunkCh)

		emit := func(chunk llm.StreamChunk) error {
			select {
			case chunkCh <- chunk:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		debugger := llm.NewStreamDebugger(ctx, o.Provider(), o.debugEnabled)
		defer debugger.Close()

		started := false
		chunkIdx := 0
		var thoughtsCount int

		err := o.client.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
			chunkIdx++
			debugger.WriteJSON(resp)

			if !started {
				started = true
				startResultCh <- nil
			}

			if resp.Message.Thinking != "" {
				thoughtsCount++
				if err := emit(llm.NewThinkingChunk(resp.Message.Thinking)); err != nil {
					return err
				}
			}
			if resp.Message.Content != "" {
				if err := emit(llm.NewTextChunk(resp.Message.Content)); err != nil {
					return err
				}
			}
			if len(resp.Message.ToolCalls) > 0 {
				if err := emit(llm.NewToolCallChunk(convertToolCalls(resp.Message.ToolCalls)...)); err != nil {
					return err
				}
			}

			if resp.Done {
				reason := normalizeDoneReason(resp.DoneReason)
				usage := &llm.LLMUsage{
					PromptTokens:     resp.PromptEvalCount,
					CompletionTokens: resp.EvalCount,
					TotalTokens:      resp.PromptEvalCount + resp.EvalCount,
					ThoughtsTokens:   thoughtsCount,
					StopReason:       reason,
				}
				if reason == llm.StopReasonLength {
					slog.WarnContext(ctx, "Response truncated due to length", "provider", "ollama")
				}
				llm.LogUsage(ctx, o.model, usage)
				return emit(llm.NewFinalChunk(reason, usage))
			}
			return nil
		})

		if err != nil {
			slog.ErrorContext(ctx, "Stream error", "provider", "ollama", "model", o.model, "chunks", chunkIdx, "error", err)
			if !started {
				startResultCh <- err
				return
			}
			if ctx.Err() == nil {
				emit(llm.NewErrorChunk(fmt.Sprintf("Stream interrupted: %v", err), err, true))
			}
			return
		}
		if !started {
			startResultCh <- nil
		}
	}()

	select {
	case err := <-startResultCh:
		if err != nil {
			return nil, err
		}
		return chunkCh, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func normalizeDoneReason(reason string) string {
	switch reason {
	case "", "stop":
		return llm.StopReasonStop
	case "length":
		return llm.StopReasonLength
	default:
		return reason
	}
}

// convertTools goes through JSON to stay independent of the SDK's tool
// parameter types, which change between releases.
func convertTools(tools []llm.Tool) api.Tools {
	if len(tools) == 0 {
		return nil
	}
	rawB, err := json.Marshal(llm.ToolsToFunctionFormat(tools))
	if err != nil {
		slog.Error("Failed to marshal tools", "provider", "ollama", "error", err)
		return nil
	}
	var out api.Tools
	if err := json.Unmarshal(rawB, &out); err != nil {
		slog.Error("Failed to unmarshal to api.Tool", "provider", "ollama", "error", err)
		return nil
	}
	return out
}

func convertToolCalls(calls []api.ToolCall) []llm.ToolCall {
	out := make([]llm.ToolCall, 0, len(calls))
	for _, tc := range calls {
		argsB, err := json.Marshal(tc.Function.Arguments)
		if err != nil || string(argsB) == "null" {
			argsB = []byte("{}")
		}
		out = append(out, llm.ToolCall{
			ID:   tc.ID,
			Name: tc.Function.Name,
			Function: llm.FunctionCall{
				Name:      tc.Function.Name,
				Arguments: string(argsB),
			},
		})
	}
	return out
}

// convertMessages converts messages to Ollama API format
func convertMessages(messages []llm.Message) []api.Message {
	out := make([]api.Message, 0, len(messages))

	for _, m := range messages {
		msg := api.Message{
			Role:     m.Role,
			Content:  m.GetTextContent(),
			Thinking: m.GetThinkingContent(),
		}

		if m.Role == llm.RoleAssistant {
			for _, tc := range m.ToolCalls {
				args := tc.Function.Arguments
				if strings.TrimSpace(args) == "" {
					args = "{}"
				}
				var apiArgs api.ToolCallFunctionArguments
				if err := json.Unmarshal([]byte(args), &apiArgs); err != nil {
					slog.Warn("Failed to unmarshal tool arguments for history", "provider", "ollama", "error", err)
				}
				name := tc.Function.Name
				if name == "" {
					name = tc.Name
				}
				msg.ToolCalls = append(msg.ToolCalls, api.ToolCall{
					ID: tc.ID,
					Function: api.ToolCallFunction{
						Name:      name,
						Arguments: apiArgs,
					},
				})
			}
		}

		if m.Role == llm.RoleTool {
			msg.ToolCallID = m.ToolCallID
			msg.ToolName = m.ToolName
		}

		out = append(out, msg)
	}

	return out
}

// IsTransientError implements the llm.LLMClient interface
func (o *OllamaClient) IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	errMsg := strings.ToLower(err.Error())

	// 1. Connection related errors (Connection refused, reset)
	if strings.Contains(errMsg, "connection refused") || strings.Contains(errMsg, "connection reset") {
		return true
	}

	// 2. High load
	if strings.Contains(errMsg, "overloaded") || strings.Contains(errMsg, "503") {
		return true
	}

	return false
}
