package openailm

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"strings"

	"chatagent/pkg/llm"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/responses"
	"github.com/openai/openai-go/v3/shared"
)

// Client is a wrapper around the official OpenAI Go SDK (Responses API).
type Client struct {
	client       *openai.Client
	provider     string
	model        string
	debugEnabled bool
	options      map[string]any
}

// NewClient creates a new OpenAI client
func NewClient(provider string, apiKey string, model string, baseURL string, options map[string]any) (*Client, error) {
	if model == "" {
		return nil, fmt.Errorf("%s: model name is required", provider)
	}
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}

	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	client := openai.NewClient(opts...)

	return &Client{
		client:   &client,
		provider: provider,
		model:    model,
		options:  options,
	}, nil
}

func (c *Client) Provider() string {
	return c.provider
}

func (c *Client) SetDebug(enabled bool) {
	c.debugEnabled = enabled
}

func (c *Client) IsTransientError(err error) bool {
	return isTransient(err)
}

func isTransient(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())

	// Transient: network-level issues
	if strings.Contains(msg, "context deadline exceeded") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "timeout") {
		return true
	}

	// Transient: server-side temporary failures
	if strings.Contains(msg, "429") ||
		strings.Contains(msg, "500 internal") ||
		strings.Contains(msg, "502 bad gateway") ||
		strings.Contains(msg, "503 service unavailable") ||
		strings.Contains(msg, "overloaded") {
		return true
	}

	// Everything else (400 Bad Request, 401 Unauthorized, etc.) is non-transient
	return false
}

// buildParams maps a gateway request onto the Responses API parameters.
func (c *Client) buildParams(req llm.Request) (responses.ResponseNewParams, []option.RequestOption) {
	params := responses.ResponseNewParams{
		Model: c.model,
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: convertMessages(req.Messages),
		},
		ParallelToolCalls: openai.Bool(req.ParallelToolCalls),
	}
	if req.System != "" {
		params.Instructions = openai.String(req.System)
	}

	opts := []option.RequestOption{}

	// Handle unified "thinking_effort" option
	if effortStr, ok := c.options["thinking_effort"].(string); ok && effortStr != "" && effortStr != "off" {
		var effort shared.ReasoningEffort
		switch effortStr {
		case "low":
			effort = shared.ReasoningEffortLow
		case "high":
			effort = shared.ReasoningEffortHigh
		default:
			effort = shared.ReasoningEffortMedium
		}
		params.Reasoning = shared.ReasoningParam{Effort: effort}
	}

	if t, ok := c.options["temperature"].(float64); ok {
		opts = append(opts, option.WithJSONSet("temperature", t))
	}
	if p, ok := c.options["top_p"].(float64); ok {
		opts = append(opts, option.WithJSONSet("top_p", p))
	}
	if maxTok, ok := c.options["max_tokens"].(float64); ok {
		opts = append(opts, option.WithJSONSet("max_output_tokens", int(maxTok)))
	}

	if tools := convertTools(req.Tools); len(tools) > 0 {
		params.Tools = tools
	}
	return params, opts
}

func (c *Client) StreamChat(ctx context.Context, req llm.Request) (<-chan llm.StreamChunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	chunkCh := make(chan llm.StreamChunk, 100)
	params, opts := c.buildParams(req)

	go func() {
		defer close(chunkCh)

		emit := func(chunk llm.StreamChunk) bool {
			select {
			case chunkCh <- chunk:
				return true
			case <-ctx.Done():
				return false
			}
		}

		stream := c.client.Responses.NewStreaming(ctx, params, opts...)
		defer stream.Close()

		// StreamDebugger handles file creation and lifecycle
		debugger := llm.NewStreamDebugger(ctx, c.provider, c.debugEnabled)
		defer debugger.Close()

		acc := newToolCallAccumulator()
		var lastFinishReason string
		var lastUsage *llm.LLMUsage
		var thinkingLog strings.Builder

		for stream.Next() {
			event := stream.Current()
			if raw := rawJSON(event.JSON); raw != "" {
				debugger.WriteString(raw)
			}

			switch variant := event.AsAny().(type) {
			case responses.ResponseTextDeltaEvent:
				if !emit(llm.NewTextChunk(variant.Delta)) {
					return
				}

			case responses.ResponseReasoningTextDeltaEvent:
				thinkingLog.WriteString(variant.Delta)
				if !emit(llm.NewThinkingChunk(variant.Delta)) {
					return
				}

			case responses.ResponseReasoningSummaryTextDeltaEvent:
				thinkingLog.WriteString(variant.Delta)
				if !emit(llm.NewThinkingChunk(variant.Delta)) {
					return
				}

			case responses.ResponseOutputItemAddedEvent:
				if variant.Item.Type == "function_call" {
					acc.item(variant.Item.ID, variant.Item.CallID, variant.Item.Name)
				}

			case responses.ResponseFunctionCallArgumentsDeltaEvent:
				acc.appendArgs(variant.ItemID, variant.Delta)

			case responses.ResponseFunctionCallArgumentsDoneEvent:
				acc.setArgs(variant.ItemID, variant.Arguments)
				acc.item(variant.ItemID, "", variant.Name)

			case responses.ResponseOutputItemDoneEvent:
				// Name and call id can arrive late on some gateways.
				if variant.Item.Type == "function_call" {
					acc.item(variant.Item.ID, variant.Item.CallID, variant.Item.Name)
				}

			case responses.ResponseCompletedEvent:
				lastFinishReason = llm.StopReasonStop
				if variant.Response.Usage.TotalTokens > 0 {
					lastUsage = &llm.LLMUsage{
						PromptTokens:     int(variant.Response.Usage.InputTokens),
						CompletionTokens: int(variant.Response.Usage.OutputTokens),
						TotalTokens:      int(variant.Response.Usage.TotalTokens),
						ThoughtsTokens:   int(variant.Response.Usage.OutputTokensDetails.ReasoningTokens),
						CachedTokens:     int(variant.Response.Usage.InputTokensDetails.CachedTokens),
					}
				}

			case responses.ResponseFailedEvent:
				lastFinishReason = llm.StopReasonFailed
				msg := "API Response Failed"
				if variant.Response.Error.Message != "" {
					msg = fmt.Sprintf("API Response Failed: %s", variant.Response.Error.Message)
				}
				emit(llm.NewErrorChunk(msg, nil, true))
				return

			case responses.ResponseIncompleteEvent:
				lastFinishReason = llm.StopReasonLength

			case responses.ResponseErrorEvent:
				emit(llm.NewErrorChunk(fmt.Sprintf("API Error: %s", variant.Message), nil, true))
				return
			}
		}
		if strings.TrimSpace(thinkingLog.String()) != "" {
			slog.DebugContext(ctx, "Captured full thinking process", "provider", c.provider, "content", thinkingLog.String())
		}

		if err := stream.Err(); err != nil {
			emit(llm.NewErrorChunk(fmt.Sprintf("Stream error: %v", err), err, true))
			return
		}

		calls := acc.calls()
		if len(calls) > 0 {
			if !emit(llm.NewToolCallChunk(calls...)) {
				return
			}
			lastFinishReason = llm.StopReasonToolCall
		}

		reason := lastFinishReason
		if reason == "" {
			reason = llm.StopReasonStop
		}
		if lastUsage != nil {
			lastUsage.StopReason = reason
		}
		llm.LogUsage(ctx, c.model, lastUsage)
		emit(llm.NewFinalChunk(reason, lastUsage))
	}()

	return chunkCh, nil
}

// rawJSON extracts the unexported raw payload the SDK keeps on every event's
// JSON metadata, for debug dumps.
func rawJSON(meta any) string {
	rv := reflect.ValueOf(meta)
	if rv.Kind() != reflect.Struct {
		return ""
	}
	if f := rv.FieldByName("raw"); f.IsValid() && f.Kind() == reflect.String {
		return f.String()
	}
	return ""
}

// toolCallAccumulator assembles streamed function calls. Output order is the
// order items were first seen; call ids are used for correlation.
type toolCallAccumulator struct {
	index map[string]int
	items []llm.ToolCall
	args  []string
	final []bool
}

func newToolCallAccumulator() *toolCallAccumulator {
	return &toolCallAccumulator{index: make(map[string]int)}
}

func (a *toolCallAccumulator) get(itemID string) int {
	if i, ok := a.index[itemID]; ok {
		return i
	}
	a.index[itemID] = len(a.items)
	a.items = append(a.items, llm.ToolCall{})
	a.args = append(a.args, "")
	a.final = append(a.final, false)
	return len(a.items) - 1
}

func (a *toolCallAccumulator) item(itemID, callID, name string) {
	i := a.get(itemID)
	if callID != "" {
		a.items[i].ID = callID
	}
	if name != "" {
		a.items[i].Name = name
		a.items[i].Function.Name = name
	}
}

func (a *toolCallAccumulator) appendArgs(itemID, delta string) {
	i := a.get(itemID)
	if !a.final[i] {
		a.args[i] += delta
	}
}

// setArgs replaces streamed deltas with the authoritative final arguments.
func (a *toolCallAccumulator) setArgs(itemID, args string) {
	if args == "" {
		return
	}
	i := a.get(itemID)
	a.args[i] = args
	a.final[i] = true
}

func (a *toolCallAccumulator) calls() []llm.ToolCall {
	out := make([]llm.ToolCall, 0, len(a.items))
	for i, tc := range a.items {
		if tc.Name == "" {
			continue
		}
		tc.Function.Arguments = a.args[i]
		out = append(out, tc)
	}
	return out
}

func convertMessages(messages []llm.Message) []responses.ResponseInputItemUnionParam {
	items := make([]responses.ResponseInputItemUnionParam, 0, len(messages))

	for _, m := range messages {
		switch m.Role {
		case llm.RoleSystem:
			items = append(items, responses.ResponseInputItemParamOfMessage(
				m.GetTextContent(),
				responses.EasyInputMessageRoleSystem,
			))
		case llm.RoleUser:
			items = append(items, responses.ResponseInputItemParamOfMessage(
				m.GetTextContent(),
				responses.EasyInputMessageRoleUser,
			))
		case llm.RoleAssistant:
			if text := m.GetTextContent(); text != "" {
				items = append(items, responses.ResponseInputItemParamOfMessage(
					text,
					responses.EasyInputMessageRoleAssistant,
				))
			}
			for _, tc := range m.ToolCalls {
				name := tc.Name
				if name == "" {
					name = tc.Function.Name
				}
				args := tc.Function.Arguments
				if args == "" {
					args = "{}"
				}
				items = append(items, responses.ResponseInputItemParamOfFunctionCall(args, tc.ID, name))
			}
		case llm.RoleTool:
			items = append(items, responses.ResponseInputItemParamOfFunctionCallOutput(
				m.ToolCallID,
				m.GetTextContent(),
			))
		}
	}

	return items
}

func convertTools(tools []llm.Tool) []responses.ToolUnionParam {
	if len(tools) == 0 {
		return nil
	}
	out := make([]responses.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		out = append(out, responses.ToolUnionParam{
			OfFunction: &responses.FunctionToolParam{
				Name:        t.Name(),
				Description: openai.String(t.Description()),
				Parameters:  llm.ToolSchema(t),
				Strict:      openai.Bool(false),
			},
		})
	}
	return out
}
