package llm

import (
	"strings"
	"time"

	"chatagent/pkg/utils"
)

//----------------------------------------------------------------
// Message - 通用訊息結構
//----------------------------------------------------------------

// Message 表示一條對話訊息
type Message struct {
	ID        string         `json:"id,omitempty"`
	Role      string         `json:"role"`    // "user", "assistant", "system", "tool"
	Content   []ContentBlock `json:"content"` // 內容區塊陣列
	Timestamp int64          `json:"timestamp,omitempty"`

	// ToolCalls 包含 LLM 產生的工具調用請求（僅 role: assistant 時有效）
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID 關聯此訊息所屬的工具調用 ID（僅 role: tool 時有效）
	ToolCallID string `json:"tool_call_id,omitempty"`
	// ToolName is the name of the tool that produced this result (role: tool).
	ToolName string `json:"tool_name,omitempty"`

	// Usage is the token accounting reported with an assistant reply.
	Usage *LLMUsage `json:"usage,omitempty"`
}

// ToolCall 表示 LLM 產生的工具調用請求
type ToolCall struct {
	ID       string       `json:"id"`
	Name     string       `json:"name"`
	Function FunctionCall `json:"function"`

	// Meta 保存提供者特定的元數據（例如 Gemini 的 thought_signature）
	// 不會被序列化到 JSON，僅用於內部傳遞
	Meta map[string]any `json:"-"`
}

// FunctionCall 包含具體的工具名稱與參數
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // JSON 字串
}

//----------------------------------------------------------------
// ContentBlock - 統一的內容區塊
//----------------------------------------------------------------

// ContentBlock 表示訊息中的一個內容區塊
// 支援類型：text, thinking, error
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

//----------------------------------------------------------------
// StreamChunk - 串流 chunk 結構
//----------------------------------------------------------------

// StreamChunk 表示 LLM 串流回應的一個 chunk（增量式）
type StreamChunk struct {
	// 內容區塊（增量，只包含新增的內容）
	ContentBlocks []ContentBlock `json:"content_blocks,omitempty"`

	// 工具調用（增量）
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// 是否為最後一個 chunk
	IsFinal bool `json:"is_final"`

	// 停止原因（只在最後 chunk 有值）
	FinishReason string `json:"finish_reason,omitempty"`

	// 用量統計（可能在中間 chunk 就有，但最後 chunk 一定有）
	Usage *LLMUsage `json:"usage,omitempty"`

	// Error is a human readable provider error. When Fatal is set the
	// stream must be treated as failed.
	Error string `json:"error,omitempty"`
	Fatal bool   `json:"fatal,omitempty"`
	// RawError keeps the underlying error for errors.Is/As inspection.
	RawError error `json:"-"`
}

//----------------------------------------------------------------
// Helper Functions - Message
//----------------------------------------------------------------

// NewTextMessage 建立純文字訊息
func NewTextMessage(role, text string) Message {
	return Message{
		ID:   utils.GenerateID(),
		Role: role,
		Content: []ContentBlock{{
			Type: BlockTypeText,
			Text: text,
		}},
		Timestamp: time.Now().Unix(),
	}
}

// NewUserMessage 建立使用者訊息
func NewUserMessage(text string) Message {
	return NewTextMessage(RoleUser, text)
}

// NewAssistantMessage 建立助理訊息
func NewAssistantMessage(text string) Message {
	return NewTextMessage(RoleAssistant, text)
}

// NewToolResultMessage builds the tool-result message answering call.
func NewToolResultMessage(call ToolCall, text string) Message {
	msg := NewTextMessage(RoleTool, text)
	msg.ToolCallID = call.ID
	msg.ToolName = call.Name
	return msg
}

// AddContentBlock 添加內容區塊到訊息
func (m *Message) AddContentBlock(block ContentBlock) {
	m.Content = append(m.Content, block)
}

// GetTextContent 提取所有文字內容（排除 thinking）
func (m *Message) GetTextContent() string {
	var sb strings.Builder
	for _, block := range m.Content {
		if block.Type == BlockTypeText {
			sb.WriteString(block.Text)
		}
	}
	return sb.String()
}

// GetThinkingContent 提取所有思考內容
func (m *Message) GetThinkingContent() string {
	var sb strings.Builder
	for _, block := range m.Content {
		if block.Type == BlockTypeThinking {
			sb.WriteString(block.Text)
		}
	}
	return sb.String()
}

// HasToolCalls reports whether the message requests any tool execution.
func (m *Message) HasToolCalls() bool {
	return len(m.ToolCalls) > 0
}

// Clone returns a deep copy so callers can't mutate shared history.
func (m Message) Clone() Message {
	out := m
	if m.Content != nil {
		out.Content = append([]ContentBlock(nil), m.Content...)
	}
	if m.ToolCalls != nil {
		out.ToolCalls = make([]ToolCall, len(m.ToolCalls))
		for i, tc := range m.ToolCalls {
			out.ToolCalls[i] = tc
			if tc.Meta != nil {
				meta := make(map[string]any, len(tc.Meta))
				for k, v := range tc.Meta {
					meta[k] = v
				}
				out.ToolCalls[i].Meta = meta
			}
		}
	}
	if m.Usage != nil {
		u := *m.Usage
		out.Usage = &u
	}
	return out
}

// CloneMessages deep copies a message slice.
func CloneMessages(msgs []Message) []Message {
	if msgs == nil {
		return nil
	}
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.Clone()
	}
	return out
}

//----------------------------------------------------------------
// Helper Functions - ContentBlock
//----------------------------------------------------------------

// NewTextBlock 建立文字區塊
func NewTextBlock(text string) ContentBlock {
	return ContentBlock{Type: BlockTypeText, Text: text}
}

// NewThinkingBlock 建立思考區塊
func NewThinkingBlock(text string) ContentBlock {
	return ContentBlock{Type: BlockTypeThinking, Text: text}
}

//----------------------------------------------------------------
// Helper Functions - StreamChunk
//----------------------------------------------------------------

// NewTextChunk 建立文字 chunk
func NewTextChunk(text string) StreamChunk {
	return StreamChunk{ContentBlocks: []ContentBlock{NewTextBlock(text)}}
}

// NewThinkingChunk 建立思考 chunk
func NewThinkingChunk(text string) StreamChunk {
	return StreamChunk{ContentBlocks: []ContentBlock{NewThinkingBlock(text)}}
}

// NewToolCallChunk wraps completed tool call requests.
func NewToolCallChunk(calls ...ToolCall) StreamChunk {
	return StreamChunk{ToolCalls: calls}
}

// NewErrorChunk 建立錯誤 chunk
func NewErrorChunk(msg string, err error, fatal bool) StreamChunk {
	return StreamChunk{Error: msg, RawError: err, Fatal: fatal}
}

// NewFinalChunk 建立最終 chunk（帶用量統計）
func NewFinalChunk(reason string, usage *LLMUsage) StreamChunk {
	return StreamChunk{
		IsFinal:      true,
		FinishReason: reason,
		Usage:        usage,
	}
}
