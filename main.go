package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"chatagent/pkg/agent"
	"chatagent/pkg/channels"
	_ "chatagent/pkg/channels/autoload" // 自動註冊 Channels
	"chatagent/pkg/config"
	"chatagent/pkg/gateway"
	"chatagent/pkg/llm"
	_ "chatagent/pkg/llm/autoload" // 自動註冊 LLM Providers
	"chatagent/pkg/monitor"
	"chatagent/pkg/tools"
)

const (
	configPath = "config.json"
	systemPath = "system.json"
)

func main() {
	monitor.PrintBanner(os.Stdout)

	// --- 0. 讀取設定檔 ---
	cfg, system, err := config.Load(configPath, systemPath)
	monitor.SetupSlog(logLevel(system))
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// --- 1. LLM 設定 ---
	client, err := llm.NewFromConfig(cfg.LLM, system)
	if err != nil {
		slog.Error("Failed to init LLM client", "error", err)
		os.Exit(1)
	}

	// --- 2. Reasoning engine ---
	engine, err := agent.NewEngine(llm.NewGateway(client), tools.DefaultRegistry(),
		agent.WithMaxTurns(system.MaxTurns),
		agent.WithDefaultLanguage(system.DefaultLanguage),
		agent.WithToolsEnabled(system.EnableTools),
	)
	if err != nil {
		slog.Error("Failed to init engine", "error", err)
		os.Exit(1)
	}

	// --- 3. Gateway 初始化（使用 Builder 模式）---
	gw, err := gateway.NewGatewayBuilder().
		WithSystemConfig(system).
		WithMonitor(monitor.NewCLIMonitor()).
		WithChannel(channels.LoadFromConfig(cfg.Channels, system)...).
		WithChatService(engine).
		Build()
	if err != nil {
		slog.Error("Failed to build gateway", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// system.json 變更時只熱更新 log level，其餘設定需重啟
	reloads := config.WatchConfig(ctx, systemPath)
	systemAbs, _ := filepath.Abs(systemPath)

	for running := true; running; {
		select {
		case <-ctx.Done():
			running = false
		case file, ok := <-reloads:
			if !ok {
				reloads = nil
				continue
			}
			if file == systemAbs {
				monitor.SetLogLevel(config.LoadSystemConfig(systemPath).LogLevel)
			}
		}
	}

	slog.Info("Received shutdown signal. Stopping services...")
	gw.StopAll()
	slog.Info("Bye!")
}

func logLevel(system *config.SystemConfig) string {
	if system == nil {
		return config.DefaultSystemConfig().LogLevel
	}
	return system.LogLevel
}
