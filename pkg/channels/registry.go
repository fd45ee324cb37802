package channels

import (
	"sort"
	"sync"

	"chatagent/pkg/api"
	"chatagent/pkg/config"

	jsoniter "github.com/json-iterator/go"
)

// ChannelFactory defines the abstract interface for platform-specific
// channel creators, so new transports can be added without touching the
// gateway.
type ChannelFactory interface {
	// Create instantiates a concrete Channel implementation using the
	// provided configuration and system parameters. A nil channel with a
	// nil error means the channel is disabled.
	Create(rawConfig jsoniter.RawMessage, system *config.SystemConfig) (api.Channel, error)
}

// channelRegistry maps platform names (e.g., "telegram") to their factories.
var (
	registryMu      sync.RWMutex
	channelRegistry = make(map[string]ChannelFactory)
)

// RegisterChannel adds a new ChannelFactory to the global internal registry.
// This is typically called during the package's init() phase.
func RegisterChannel(name string, factory ChannelFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	channelRegistry[name] = factory
}

// GetChannelFactory retrieves a registered ChannelFactory by platform name.
func GetChannelFactory(name string) (ChannelFactory, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := channelRegistry[name]
	return f, ok
}

// RegisteredChannels lists registered platform names, sorted.
func RegisteredChannels() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(channelRegistry))
	for name := range channelRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
