package gateway

import (
	"chatagent/pkg/api"
)

// Re-export types from api package via aliases
type Channel = api.Channel
type ChannelContext = api.ChannelContext
type ChatRequest = api.ChatRequest
