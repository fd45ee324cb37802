package api

import "context"

// Channel defines the standardized lifecycle interface for transport
// endpoints (HTTP, websocket, Telegram).
type Channel interface {
	ID() string
	Start(ctx ChannelContext) error
	Stop() error
}

// ChannelContext provides the interface for a Channel implementation to
// hand inbound conversations to the core.
type ChannelContext interface {
	ChatService
}

type channelKey struct{}

// WithChannelID tags ctx with the channel a request arrived on.
func WithChannelID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, channelKey{}, id)
}

// ChannelIDFromContext returns the channel id set by WithChannelID.
func ChannelIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(channelKey{}).(string)
	return id
}
