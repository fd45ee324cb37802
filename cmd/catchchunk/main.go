// Command catchchunk sends one prompt through the configured providers with
// raw chunk dumping forced on, then prints the merged reply. The dumps land
// under debug/chunks/<thread>/<provider>/.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"chatagent/pkg/agent"
	"chatagent/pkg/config"
	"chatagent/pkg/llm"
	_ "chatagent/pkg/llm/autoload" // 自動註冊 LLM Providers
	"chatagent/pkg/monitor"
	"chatagent/pkg/tools"
	"chatagent/pkg/utils"
)

func main() {
	configPath := flag.String("config", "config.json", "app config with the llm section")
	systemPath := flag.String("system", "system.json", "engine config")
	prompt := flag.String("prompt", "What is the weather in Los Angeles?", "user message to send")
	withTools := flag.Bool("tools", true, "declare get_weather and get_jobs")
	flag.Parse()

	monitor.SetupSlog("debug")

	cfg, system, err := config.Load(*configPath, *systemPath)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	system.DebugChunks = true

	client, err := llm.NewFromConfig(cfg.LLM, system)
	if err != nil {
		slog.Error("Failed to init LLM client", "error", err)
		os.Exit(1)
	}

	state := agent.NewConversationState("catchchunk", *prompt)
	req := llm.Request{
		System:   state.SystemInstruction(system.DefaultLanguage),
		Messages: state.Messages(),
		// ParallelToolCalls stays false, as in the reasoning loop.
	}
	if *withTools {
		req.Tools = tools.DefaultRegistry().Declarations()
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(system.LLMTimeoutMs)*time.Millisecond)
	defer cancel()
	ctx = llm.WithDebugID(llm.WithThreadID(ctx, "catchchunk"), utils.GenerateID())

	fmt.Println("=== 開始串流並存檔 ===")
	reply, err := llm.NewGateway(client).Generate(ctx, req)
	if err != nil {
		slog.Error("Generation failed", "error", err)
		os.Exit(1)
	}

	if thinking := reply.GetThinkingContent(); thinking != "" {
		fmt.Printf("[thinking] %s\n", thinking)
	}
	fmt.Println(reply.GetTextContent())
	for _, tc := range reply.ToolCalls {
		fmt.Printf("[tool call] %s %s(%s)\n", tc.ID, tc.Function.Name, tc.Function.Arguments)
	}
	if reply.Usage != nil {
		fmt.Printf("=== 完成！tokens=%d stop=%s ===\n", reply.Usage.TotalTokens, reply.Usage.StopReason)
	}
}
