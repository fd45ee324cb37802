package api

import (
	"context"
	"errors"
	"fmt"
)

// ErrInvalidRequest marks a chat request rejected before reaching the engine.
var ErrInvalidRequest = errors.New("invalid chat request")

// ChatRequest is the inbound conversation: each entry of Messages becomes
// one human message, in order. ThreadID is required but opaque, only used
// for correlation.
type ChatRequest struct {
	Messages []string `json:"messages"`
	ThreadID string   `json:"thread_id"`
	// Language optionally overrides the reply language.
	Language string `json:"language,omitempty"`
}

// Validate checks the request shape.
func (r ChatRequest) Validate() error {
	if len(r.Messages) == 0 {
		return fmt.Errorf("%w: messages must not be empty", ErrInvalidRequest)
	}
	if r.ThreadID == "" {
		return fmt.Errorf("%w: thread_id is required", ErrInvalidRequest)
	}
	return nil
}

// ChatService runs one conversation to completion and returns the final
// assistant reply text.
type ChatService interface {
	Chat(ctx context.Context, req ChatRequest) (string, error)
}
