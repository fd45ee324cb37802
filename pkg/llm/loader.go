package llm

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"chatagent/pkg/config"

	jsoniter "github.com/json-iterator/go"
)

// NewFromConfig 根據設定檔建立 LLM Client
func NewFromConfig(rawLLM jsoniter.RawMessage, system *config.SystemConfig) (LLMClient, error) {
	if len(rawLLM) == 0 {
		return nil, errors.New("missing 'llm' config")
	}
	if system == nil {
		system = config.DefaultSystemConfig()
	}

	var groups []ProviderGroupConfig
	if err := json.Unmarshal(rawLLM, &groups); err != nil {
		return nil, fmt.Errorf("failed to parse 'llm' config: %w", err)
	}

	var allAtomicClients []LLMClient
	for _, group := range groups {
		slog.Info("Loading LLM group", "type", group.Type, "models", len(group.Models))

		factory, ok := GetProviderFactory(group.Type)
		if !ok {
			slog.Warn("Unknown provider type", "type", group.Type, "known", RegisteredProviders())
			continue
		}

		if len(group.APIKeys) == 0 {
			if key := os.Getenv(apiKeyEnv(group.Type)); key != "" {
				group.APIKeys = []string{key}
			}
		}

		clients, err := factory.Create(group, system)
		if err != nil {
			slog.Warn("Failed to create clients", "type", group.Type, "error", err)
			continue
		}

		allAtomicClients = append(allAtomicClients, clients...)
	}

	if len(allAtomicClients) == 0 {
		return nil, errors.New("no LLM clients could be initialized")
	}

	for _, c := range allAtomicClients {
		if d, ok := c.(DebugSetter); ok {
			d.SetDebug(system.DebugChunks)
		}
	}

	slog.Info("Total atomic LLM clients initialized", "count", len(allAtomicClients))

	// 如果只有一個，直接回傳
	if len(allAtomicClients) == 1 {
		return allAtomicClients[0], nil
	}

	// 否則包裹在 FallbackClient 中，並代入系統層級的重試設定
	return &FallbackClient{
		Clients:    allAtomicClients,
		MaxRetries: system.MaxRetries,
		RetryDelay: time.Duration(system.RetryDelayMs) * time.Millisecond,
	}, nil
}

// apiKeyEnv maps a provider type to its conventional key variable,
// e.g. "openai" -> OPENAI_API_KEY.
func apiKeyEnv(providerType string) string {
	return strings.ToUpper(providerType) + "_API_KEY"
}
