package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"chatagent/pkg/api"
	"chatagent/pkg/config"
	"chatagent/pkg/llm"
	"chatagent/pkg/monitor"
	"chatagent/pkg/utils"
)

// ErrNoChatService is returned by Chat before a service has been wired.
var ErrNoChatService = errors.New("gateway: no chat service configured")

// GatewayManager 負責管理所有的 Channels 並將對話路由到 ChatService
type GatewayManager struct {
	channels map[string]Channel
	order    []string // 註冊順序，啟動與停止都依此順序
	started  []Channel
	service  api.ChatService
	monitor  monitor.Monitor // 監控器
	stopped  bool            // StopAll 已執行
	timeout  time.Duration   // 單一請求的總時限
	mu       sync.RWMutex
}

// NewGatewayManager 建立一個新的 GatewayManager
func NewGatewayManager() *GatewayManager {
	return &GatewayManager{
		channels: make(map[string]Channel),
	}
}

// WithSystemConfig applies the per-request deadline.
func (g *GatewayManager) WithSystemConfig(cfg *config.SystemConfig) {
	if cfg != nil && cfg.LLMTimeoutMs > 0 {
		g.timeout = time.Duration(cfg.LLMTimeoutMs) * time.Millisecond
	}
}

// SetTimeout overrides the per-request deadline. Zero disables it.
func (g *GatewayManager) SetTimeout(d time.Duration) {
	g.timeout = d
}

// SetChatService 設定處理對話的核心邏輯 (通常是 agent.Engine)
func (g *GatewayManager) SetChatService(s api.ChatService) {
	g.service = s
}

// SetMonitor 設定監控器
func (g *GatewayManager) SetMonitor(m monitor.Monitor) {
	g.monitor = m
}

// Register 註冊一個 Channel；相同 ID 會覆蓋舊的
func (g *GatewayManager) Register(c Channel) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.channels[c.ID()]; exists {
		slog.Warn("Channel re-registered, replacing", "channel", c.ID())
	} else {
		g.order = append(g.order, c.ID())
	}
	g.channels[c.ID()] = c
}

// GetChannel 取得特定的 Channel
func (g *GatewayManager) GetChannel(id string) (Channel, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	c, ok := g.channels[id]
	return c, ok
}

// StartAll 依註冊順序啟動所有 Channels。任何一個失敗時，已啟動的會被停止。
func (g *GatewayManager) StartAll() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, id := range g.order {
		c := g.channels[id]
		slog.Info("Starting channel", "channel", id)
		// 啟動 Channel，並傳入 self 作為 Context
		if err := c.Start(g); err != nil {
			g.stopStartedLocked()
			return fmt.Errorf("failed to start channel %s: %w", id, err)
		}
		g.started = append(g.started, c)
	}
	return nil
}

// StopAll 停止所有已啟動的 Channels，最後停止監控器。重複呼叫不會有作用。
func (g *GatewayManager) StopAll() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.stopped {
		return
	}
	g.stopped = true
	g.stopStartedLocked()
	if g.monitor != nil {
		if err := g.monitor.Stop(); err != nil {
			slog.Error("Error stopping monitor", "error", err)
		}
	}
}

func (g *GatewayManager) stopStartedLocked() {
	for i := len(g.started) - 1; i >= 0; i-- {
		c := g.started[i]
		slog.Info("Stopping channel", "channel", c.ID())
		if err := c.Stop(); err != nil {
			slog.Error("Error stopping channel", "channel", c.ID(), "error", err)
		}
	}
	g.started = nil
}

// Chat 實作 ChannelContext 介面：驗證請求、建立 thread 範圍的 context，
// 交給 ChatService 執行並把往返內容送到監控器。
func (g *GatewayManager) Chat(ctx context.Context, req api.ChatRequest) (string, error) {
	if g.service == nil {
		return "", ErrNoChatService
	}
	if err := req.Validate(); err != nil {
		return "", err
	}

	channelID := api.ChannelIDFromContext(ctx)
	ctx = llm.WithThreadID(ctx, req.ThreadID)
	ctx = llm.WithDebugID(ctx, utils.GenerateID())
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	slog.InfoContext(ctx, "Received conversation", "channel", channelID, "messages", len(req.Messages))
	g.publish(monitor.MessageTypeUser, channelID, req.ThreadID, strings.Join(req.Messages, " | "))

	start := time.Now()
	reply, err := g.service.Chat(ctx, req)
	if err != nil {
		slog.ErrorContext(ctx, "Conversation failed", "channel", channelID, "duration", time.Since(start).String(), "error", err)
		g.publish(monitor.MessageTypeError, channelID, req.ThreadID, err.Error())
		return "", err
	}

	slog.InfoContext(ctx, "Conversation completed", "channel", channelID, "duration", time.Since(start).String())
	g.publish(monitor.MessageTypeAssistant, channelID, req.ThreadID, reply)
	return reply, nil
}

func (g *GatewayManager) publish(kind, channelID, threadID, content string) {
	if g.monitor == nil {
		return
	}
	g.monitor.OnMessage(monitor.MonitorMessage{
		Timestamp:   time.Now(),
		MessageType: kind,
		ChannelID:   channelID,
		ThreadID:    threadID,
		Content:     content,
	})
}
