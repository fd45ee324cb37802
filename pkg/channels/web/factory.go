package web

import (
	"fmt"

	"chatagent/pkg/api"
	"chatagent/pkg/channels"
	"chatagent/pkg/config"

	jsoniter "github.com/json-iterator/go"
)

// WebFactory 負責建立 Web Channels
type WebFactory struct{}

// Create 實作 ChannelFactory
func (f *WebFactory) Create(rawConfig jsoniter.RawMessage, system *config.SystemConfig) (api.Channel, error) {
	// 設定預設 Port
	pCfg := WebConfig{Port: DefaultPort}

	if len(rawConfig) > 0 {
		if err := json.Unmarshal(rawConfig, &pCfg); err != nil {
			return nil, fmt.Errorf("failed to parse web config: %w", err)
		}
	}
	if pCfg.Port < 0 || pCfg.Port > 65535 {
		return nil, fmt.Errorf("web: invalid port %d", pCfg.Port)
	}

	return NewWebChannel(pCfg), nil
}

func init() {
	channels.RegisterChannel("web", &WebFactory{})
}
