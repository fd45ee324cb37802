package channels

import (
	"log/slog"
	"sort"

	"chatagent/pkg/api"
	"chatagent/pkg/config"

	jsoniter "github.com/json-iterator/go"
)

// LoadFromConfig resolves a factory for every configured channel and returns
// the channels it built, ordered by name. Unknown or failing channels are
// logged and skipped.
func LoadFromConfig(configs map[string]jsoniter.RawMessage, system *config.SystemConfig) []api.Channel {
	if system == nil {
		system = config.DefaultSystemConfig()
	}

	names := make([]string, 0, len(configs))
	for name := range configs {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []api.Channel
	for _, name := range names {
		factory, ok := GetChannelFactory(name)
		if !ok {
			slog.Warn("Unknown channel type", "name", name, "known", RegisteredChannels())
			continue
		}

		channel, err := factory.Create(configs[name], system)
		if err != nil {
			slog.Error("Failed to create channel", "name", name, "error", err)
			continue
		}

		// If Create returns nil (e.g., disabled in config), skip
		if channel == nil {
			continue
		}

		out = append(out, channel)
		slog.Info("Channel loaded", "name", name)
	}
	return out
}
