package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"chatagent/pkg/utils"
)

// ErrEmptyResponse is reported when a model turn yields neither text nor
// tool calls.
var ErrEmptyResponse = errors.New("model returned an empty response")

// GatewayError is a failure of the model call itself: the provider could not
// be reached, the stream broke, or the reply was unusable.
type GatewayError struct {
	Provider string
	Err      error
}

func (e *GatewayError) Error() string {
	if e.Provider == "" {
		return fmt.Sprintf("model gateway: %v", e.Err)
	}
	return fmt.Sprintf("model gateway (%s): %v", e.Provider, e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// Gateway is the single request/response boundary to a language model.
type Gateway interface {
	// Generate returns one assistant message which either carries tool call
	// requests or is a final textual answer.
	Generate(ctx context.Context, req Request) (Message, error)
}

// StreamGateway adapts a streaming LLMClient to the Gateway contract by
// draining the stream into a single message.
type StreamGateway struct {
	client LLMClient
}

// NewGateway wraps client. The client must be safe for concurrent use: one
// gateway is shared by every conversation.
func NewGateway(client LLMClient) *StreamGateway {
	return &StreamGateway{client: client}
}

// Generate implements Gateway.
func (g *StreamGateway) Generate(ctx context.Context, req Request) (Message, error) {
	provider := g.client.Provider()

	chunkCh, err := g.client.StreamChat(ctx, req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Message{}, ctxErr
		}
		return Message{}, &GatewayError{Provider: provider, Err: err}
	}

	msg, err := CollectChunks(ctx, chunkCh)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Message{}, ctxErr
		}
		return Message{}, &GatewayError{Provider: provider, Err: err}
	}
	return msg, nil
}

// CollectChunks drains a StreamChunk channel into one assistant message.
// Tool calls without a correlation id get a generated one.
func CollectChunks(ctx context.Context, chunkCh <-chan StreamChunk) (Message, error) {
	msg := Message{
		ID:        utils.GenerateID(),
		Role:      RoleAssistant,
		Content:   []ContentBlock{},
		Timestamp: time.Now().Unix(),
	}

	var streamErrors []string
	finished := false
	for !finished {
		select {
		case <-ctx.Done():
			return Message{}, ctx.Err()
		case chunk, ok := <-chunkCh:
			if !ok {
				finished = true
				break
			}
			if chunk.Error != "" {
				if chunk.Fatal {
					if chunk.RawError != nil {
						return Message{}, fmt.Errorf("%s: %w", chunk.Error, chunk.RawError)
					}
					return Message{}, errors.New(chunk.Error)
				}
				streamErrors = append(streamErrors, chunk.Error)
			}
			for _, block := range chunk.ContentBlocks {
				mergeBlock(&msg, block)
			}
			msg.ToolCalls = append(msg.ToolCalls, chunk.ToolCalls...)
			if chunk.Usage != nil {
				msg.Usage = chunk.Usage
			}
			if chunk.IsFinal {
				if chunk.FinishReason == StopReasonFailed {
					return Message{}, fmt.Errorf("response failed: %s", strings.Join(streamErrors, "; "))
				}
				finished = true
			}
		}
	}

	for i := range msg.ToolCalls {
		tc := &msg.ToolCalls[i]
		if tc.Name == "" {
			tc.Name = tc.Function.Name
		}
		if tc.Function.Name == "" {
			tc.Function.Name = tc.Name
		}
		if tc.Name == "" {
			return Message{}, fmt.Errorf("tool call %d has no name", i)
		}
		if tc.ID == "" {
			tc.ID = "call_" + utils.GenerateID()
		}
		if strings.TrimSpace(tc.Function.Arguments) == "" {
			tc.Function.Arguments = "{}"
		}
	}

	if msg.GetTextContent() == "" && len(msg.ToolCalls) == 0 {
		if len(streamErrors) > 0 {
			return Message{}, fmt.Errorf("%w: %s", ErrEmptyResponse, strings.Join(streamErrors, "; "))
		}
		return Message{}, ErrEmptyResponse
	}
	return msg, nil
}

// mergeBlock appends a streamed delta, concatenating consecutive blocks of
// the same type so history stays compact.
func mergeBlock(msg *Message, block ContentBlock) {
	if block.Text == "" {
		return
	}
	if n := len(msg.Content); n > 0 && msg.Content[n-1].Type == block.Type {
		msg.Content[n-1].Text += block.Text
		return
	}
	msg.AddContentBlock(block)
}
