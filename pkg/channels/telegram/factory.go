package telegram

import (
	"fmt"
	"os"

	"chatagent/pkg/api"
	"chatagent/pkg/channels"
	"chatagent/pkg/config"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// TokenEnv is consulted when the channel config carries no token.
const TokenEnv = "TELEGRAM_BOT_TOKEN"

// TelegramFactory 負責建立 Telegram Channels
type TelegramFactory struct{}

// Create 實作 ChannelFactory
func (f *TelegramFactory) Create(rawConfig jsoniter.RawMessage, system *config.SystemConfig) (api.Channel, error) {
	tgCfg, err := parseConfig(rawConfig)
	if err != nil {
		return nil, err
	}

	limit := 0
	if system != nil {
		limit = system.TelegramMessageLimit
	}
	return NewTelegramChannel(tgCfg, limit)
}

func parseConfig(rawConfig jsoniter.RawMessage) (TelegramConfig, error) {
	var tgCfg TelegramConfig
	if len(rawConfig) > 0 {
		if err := json.Unmarshal(rawConfig, &tgCfg); err != nil {
			return tgCfg, fmt.Errorf("failed to parse telegram config: %w", err)
		}
	}
	if tgCfg.Token == "" {
		tgCfg.Token = os.Getenv(TokenEnv)
	}
	if tgCfg.Token == "" {
		return tgCfg, fmt.Errorf("missing telegram token (set \"token\" or %s)", TokenEnv)
	}
	return tgCfg, nil
}

func init() {
	channels.RegisterChannel("telegram", &TelegramFactory{})
}
