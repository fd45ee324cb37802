package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	jsoniter "github.com/json-iterator/go"
)

// json 用於 package llm 內部的 JSON 處理，統一使用 json-iterator
var json = jsoniter.ConfigCompatibleWithStandardLibrary

// LLMUsage 定義通用的用量統計結構
type LLMUsage struct {
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens"`
	ThoughtsTokens   int    `json:"thoughts_tokens,omitempty"`
	CachedTokens     int    `json:"cached_tokens,omitempty"`
	StopReason       string `json:"stop_reason,omitempty"`
}

// LogUsage 印出統一格式的用量統計
func LogUsage(ctx context.Context, model string, usage *LLMUsage) {
	if usage == nil {
		return
	}
	slog.DebugContext(ctx, "LLM usage",
		"model", model,
		"prompt", usage.PromptTokens,
		"completion", usage.CompletionTokens,
		"total", usage.TotalTokens,
		"thoughts", usage.ThoughtsTokens,
		"cached", usage.CachedTokens,
		"stop_reason", usage.StopReason,
	)
}

// Request is one model consultation: the synthesized system instruction,
// the ordered history and the tools the model may request.
type Request struct {
	System   string
	Messages []Message
	Tools    []Tool
	// ParallelToolCalls allows more than one tool call per reply. The
	// reasoning loop always sends false.
	ParallelToolCalls bool
}

// LLMClient 通用 LLM 客戶端介面
type LLMClient interface {
	// Provider returns the provider identifier (e.g. "openai").
	Provider() string

	// StreamChat 流式對話，返回 StreamChunk channel
	// 返回值: StreamChunk channel（增量式內容 + 最終用量統計）
	StreamChat(ctx context.Context, req Request) (<-chan StreamChunk, error)

	// IsTransientError 判斷是否為暫時性錯誤 (如 503, Rate Limit)
	IsTransientError(err error) bool
}

// DebugSetter is implemented by clients able to dump raw stream chunks.
type DebugSetter interface {
	SetDebug(enabled bool)
}

// FallbackClient 支援多個 Client 分級嘗試
type FallbackClient struct {
	Clients    []LLMClient
	MaxRetries int
	RetryDelay time.Duration
}

// Provider reports the composite identity of the chain.
func (f *FallbackClient) Provider() string {
	return "fallback"
}

// SetDebug forwards the debug switch to every child that supports it.
func (f *FallbackClient) SetDebug(enabled bool) {
	for _, c := range f.Clients {
		if d, ok := c.(DebugSetter); ok {
			d.SetDebug(enabled)
		}
	}
}

// StreamChat tries each provider in order. Only stream start is retried;
// once a stream is returned its failures belong to the caller.
func (f *FallbackClient) StreamChat(ctx context.Context, req Request) (<-chan StreamChunk, error) {
	var lastErr error
	for i, client := range f.Clients {
		if i > 0 {
			slog.WarnContext(ctx, "Previous provider failed, trying fallback", "index", i+1, "provider", client.Provider())
		}

		// 使用配置的重試次數，若為 0 則至少執行 1 次
		maxRetries := f.MaxRetries
		if maxRetries <= 0 {
			maxRetries = 1
		}

		for retry := 1; retry <= maxRetries; retry++ {
			if retry > 1 {
				slog.InfoContext(ctx, "Retrying provider", "index", i+1, "attempt", retry, "max", maxRetries)
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(time.Duration(retry-1) * f.RetryDelay):
				}
			}

			ch, err := client.StreamChat(ctx, req)
			if err == nil {
				return ch, nil
			}

			lastErr = err
			if ctx.Err() != nil {
				return nil, err
			}

			if client.IsTransientError(err) && retry < maxRetries {
				slog.WarnContext(ctx, "Provider failed with transient error", "index", i+1, "error", err)
				continue
			}

			// 非暫時性錯誤，或者已達最大重試次數
			slog.ErrorContext(ctx, "Provider failed", "index", i+1, "error", err)
			break
		}
	}
	return nil, fmt.Errorf("all fallback providers failed: %w", lastErr)
}

// IsTransientError 實作 LLMClient 介面
// FallbackClient 的錯誤意味著所有 Child 都失敗了，因此視為非暫時性
func (f *FallbackClient) IsTransientError(err error) bool {
	return false
}
