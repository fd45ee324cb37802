package ollama

import (
	"log/slog"

	"chatagent/pkg/config"
	"chatagent/pkg/llm"
)

// OllamaFactory handles creation of Ollama Clients
type OllamaFactory struct{}

// Create implements ProviderFactory. Ollama needs no key; an empty base URL
// falls back to OLLAMA_HOST, then DefaultHost.
func (f *OllamaFactory) Create(cfg llm.ProviderGroupConfig, sys *config.SystemConfig) ([]llm.LLMClient, error) {
	var clients []llm.LLMClient
	for _, model := range cfg.Models {
		client, err := NewOllamaClient(model, cfg.BaseURL, cfg.Options)
		if err != nil {
			slog.Error("Failed to create Ollama client", "model", model, "error", err)
			continue
		}
		clients = append(clients, client)
	}
	return clients, nil
}

func init() {
	llm.RegisterProvider("ollama", &OllamaFactory{})
}
