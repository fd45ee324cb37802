package gemini

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"chatagent/pkg/llm"
	"chatagent/pkg/utils"

	jsoniter "github.com/json-iterator/go"
	"google.golang.org/genai"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	metaFunctionCall = "gemini_function_call"
	// metaSyntheticID marks call ids we generated because Gemini sent none.
	// They are never echoed back to the API.
	metaSyntheticID = "gemini_synthetic_id"

	roleUser  = string(genai.RoleUser)
	roleModel = string(genai.RoleModel)
)

// GeminiClient Google Gemini API client
type GeminiClient struct {
	client       *genai.Client
	model        string
	useThought   bool
	debugEnabled bool
}

// SetDebug implements llm.DebugSetter
func (g *GeminiClient) SetDebug(enabled bool) {
	g.debugEnabled = enabled
}

// NewGeminiClient creates a Gemini client with a single model and API key
func NewGeminiClient(apiKey string, model string, useThought bool) (*GeminiClient, error) {
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiClient{
		client:     client,
		model:      model,
		useThought: useThought,
	}, nil
}

func (g *GeminiClient) Provider() string {
	return "gemini"
}

func (g *GeminiClient) buildConfig(req llm.Request) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		Tools: convertTools(req.Tools),
	}
	if len(cfg.Tools) > 0 {
		cfg.ToolConfig = &genai.ToolConfig{
			FunctionCallingConfig: &genai.FunctionCallingConfig{Mode: genai.FunctionCallingConfigModeAuto},
		}
	}
	if req.System != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.System}}}
	}
	if g.useThought {
		cfg.ThinkingConfig = &genai.ThinkingConfig{IncludeThoughts: true}
	}
	return cfg
}

// StreamChat implements llm.LLMClient.StreamChat. It blocks until the first
// response arrives so that start failures are returned as errors and can be
// retried by a FallbackClient.
func (g *GeminiClient) StreamChat(ctx context.Context, req llm.Request) (<-chan llm.StreamChunk, error) {
	contents := convertMessages(req.Messages)
	config := g.buildConfig(req)

	chunkCh := make(chan llm.StreamChunk, 100)
	startResultCh := make(chan error, 1)

	slog.DebugContext(ctx, "Gemini streaming", "model", g.model, "messages", len(contents))

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

		debugger := llm.NewStreamDebugger(ctx, g.Provider(), g.debugEnabled)
		defer debugger.Close()

		started := false
		sawToolCall := false
		var lastUsage *llm.LLMUsage
		var stopReason string

		for resp, err := range g.client.Models.GenerateContentStream(ctx, g.model, contents, config) {
			if resp != nil {
				debugger.WriteJSON(resp)
			}
			if err != nil && resp == nil {
				slog.WarnContext(ctx, "Gemini stream error", "model", g.model, "error", err)
				if !started {
					startResultCh <- err
					return
				}
				emit(llm.NewErrorChunk(fmt.Sprintf("Stream interrupted: %v", err), err, true))
				return
			}
			if err != nil {
				slog.WarnContext(ctx, "Gemini stream error (with data)", "model", g.model, "error", err)
			}

			if !started {
				started = true
				startResultCh <- nil
			}

			if u := resp.UsageMetadata; u != nil {
				lastUsage = &llm.LLMUsage{
					PromptTokens:     int(u.PromptTokenCount),
					CompletionTokens: int(u.CandidatesTokenCount),
					TotalTokens:      int(u.TotalTokenCount),
					ThoughtsTokens:   int(u.ThoughtsTokenCount),
					CachedTokens:     int(u.CachedContentTokenCount),
				}
			}

			for _, candidate := range resp.Candidates {
				if candidate.FinishReason != "" {
					stopReason = normalizeFinishReason(candidate.FinishReason)
					if candidate.FinishReason == genai.FinishReasonMaxTokens {
						if !emit(llm.NewErrorChunk("Response truncated due to max tokens limit.", nil, false)) {
							return
						}
					}
				}
				if chunk, ok := convertCandidate(candidate); ok {
					if len(chunk.ToolCalls) > 0 {
						sawToolCall = true
					}
					if !emit(chunk) {
						return
					}
				}
			}
		}

		if !started {
			// Empty stream: let the caller see an empty response.
			startResultCh <- nil
		}
		if sawToolCall {
			stopReason = llm.StopReasonToolCall
		}
		if stopReason == "" {
			stopReason = llm.StopReasonStop
		}
		if lastUsage != nil {
			lastUsage.StopReason = stopReason
		}
		llm.LogUsage(ctx, g.model, lastUsage)
		emit(llm.NewFinalChunk(stopReason, lastUsage))
	}()

	// Wait for initialization result (first chunk or immediate error)
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

// convertCandidate turns one candidate into a stream chunk. ok is false
// when the candidate carries nothing.
func convertCandidate(candidate *genai.Candidate) (llm.StreamChunk, bool) {
	if candidate == nil || candidate.Content == nil {
		return llm.StreamChunk{}, false
	}
	var chunk llm.StreamChunk
	for _, part := range candidate.Content.Parts {
		if part == nil {
			continue
		}
		if part.Text != "" {
			if part.Thought {
				chunk.ContentBlocks = append(chunk.ContentBlocks, llm.NewThinkingBlock(part.Text))
			} else {
				chunk.ContentBlocks = append(chunk.ContentBlocks, llm.NewTextBlock(part.Text))
			}
		}
		if fc := part.FunctionCall; fc != nil {
			argsB, _ := json.Marshal(fc.Args)
			if fc.Args == nil {
				argsB = []byte("{}")
			}
			tc := llm.ToolCall{
				ID:   fc.ID,
				Name: fc.Name,
				Function: llm.FunctionCall{
					Name:      fc.Name,
					Arguments: string(argsB),
				},
				// 保存原始 FunctionCall（含 thought_signature）以便回傳時重建
				Meta: map[string]any{metaFunctionCall: fc},
			}
			if tc.ID == "" {
				tc.ID = "call_" + utils.GenerateID()
				tc.Meta[metaSyntheticID] = true
			}
			chunk.ToolCalls = append(chunk.ToolCalls, tc)
		}
	}
	return chunk, len(chunk.ContentBlocks) > 0 || len(chunk.ToolCalls) > 0
}

func normalizeFinishReason(reason genai.FinishReason) string {
	switch reason {
	case genai.FinishReasonStop:
		return llm.StopReasonStop
	case genai.FinishReasonMaxTokens:
		return llm.StopReasonLength
	default:
		return strings.ToLower(string(reason))
	}
}

func convertTools(tools []llm.Tool) []*genai.Tool {
	if len(tools) == 0 {
		return nil
	}
	fds := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		fds = append(fds, &genai.FunctionDeclaration{
			Name:                 t.Name(),
			Description:          t.Description(),
			ParametersJsonSchema: llm.ToolSchema(t),
		})
	}
	return []*genai.Tool{{FunctionDeclarations: fds}}
}

// callID returns the id to echo to the API, empty for synthetic ids.
func callID(tc llm.ToolCall) string {
	if synthetic, _ := tc.Meta[metaSyntheticID].(bool); synthetic {
		return ""
	}
	return tc.ID
}

// convertMessages converts message list to GenAI format. System messages are
// skipped; the instruction travels in the request config.
func convertMessages(messages []llm.Message) []*genai.Content {
	var contents []*genai.Content
	// Synthetic ids map back to nothing; tool results keep only their name.
	synthetic := make(map[string]bool)

	for _, msg := range messages {
		switch msg.Role {
		case llm.RoleSystem:
			continue

		case llm.RoleTool:
			// Tool results are part of user role in Gemini
			id := msg.ToolCallID
			if synthetic[id] {
				id = ""
			}
			part := &genai.Part{FunctionResponse: &genai.FunctionResponse{
				ID:       id,
				Name:     strings.TrimPrefix(msg.ToolName, "functions."),
				Response: map[string]any{"output": msg.GetTextContent()},
			}}
			// Consecutive results are grouped into one turn.
			if n := len(contents); n > 0 && contents[n-1].Role == roleUser && isFunctionResponses(contents[n-1]) {
				contents[n-1].Parts = append(contents[n-1].Parts, part)
				continue
			}
			contents = append(contents, &genai.Content{Role: roleUser, Parts: []*genai.Part{part}})
			continue
		}

		role := roleUser
		if msg.Role == llm.RoleAssistant {
			role = roleModel
		}

		var parts []*genai.Part
		for _, block := range msg.Content {
			if block.Text == "" {
				continue
			}
			switch block.Type {
			case llm.BlockTypeText:
				parts = append(parts, &genai.Part{Text: block.Text})
			case llm.BlockTypeThinking:
				parts = append(parts, &genai.Part{Text: block.Text, Thought: true})
			}
		}

		for _, tc := range msg.ToolCalls {
			if callID(tc) == "" {
				synthetic[tc.ID] = true
			}
			// Use original FunctionCall if available (includes thought_signature)
			if originalFC, ok := tc.Meta[metaFunctionCall].(*genai.FunctionCall); ok && originalFC != nil {
				parts = append(parts, &genai.Part{FunctionCall: originalFC})
				continue
			}
			var args map[string]any
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				args = map[string]any{}
			}
			name := tc.Function.Name
			if name == "" {
				name = tc.Name
			}
			parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{
				ID:   callID(tc),
				Name: name,
				Args: args,
			}})
		}

		if len(parts) > 0 {
			contents = append(contents, &genai.Content{Role: role, Parts: parts})
		}
	}

	return contents
}

func isFunctionResponses(c *genai.Content) bool {
	for _, p := range c.Parts {
		if p.FunctionResponse == nil {
			return false
		}
	}
	return len(c.Parts) > 0
}

// IsTransientError implements the llm.LLMClient interface
func (g *GeminiClient) IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	errMsg := strings.ToLower(err.Error())

	// 1. Google API common 503 Service Unavailable / Overloaded
	if strings.Contains(errMsg, "503") || strings.Contains(errMsg, "overloaded") {
		return true
	}

	// 2. 429 Too Many Requests (Rate Limit)
	if strings.Contains(errMsg, "429") || strings.Contains(errMsg, "resource exhausted") {
		return true
	}

	// 3. 500 Internal Error (Occasional Google Gemini crashes)
	if strings.Contains(errMsg, "500") || strings.Contains(errMsg, "internal error") {
		return true
	}

	return false
}
