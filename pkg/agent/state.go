package agent

import (
	"fmt"
	"strings"

	"chatagent/pkg/llm"
)

// DefaultLanguage is the reply language used when neither the conversation
// nor the engine configuration name one.
const DefaultLanguage = "english"

const systemPreamble = "You are a helpful assistant. Talk in %s."

// ConversationState is the record threaded through one loop execution: the
// ordered message history plus ancillary preferences. It is owned by a
// single request and must not be shared between concurrent runs.
//
// History is append-only; insertion order is chronological order.
type ConversationState struct {
	ThreadID string
	Language string
	// Skills is carried along for tools and callers; the loop does not read it.
	Skills string

	messages []llm.Message
}

// NewConversationState creates a fresh state with one human message per
// entry of humanMessages, in order.
func NewConversationState(threadID string, humanMessages ...string) *ConversationState {
	s := &ConversationState{
		ThreadID: threadID,
		messages: make([]llm.Message, 0, len(humanMessages)+4),
	}
	for _, text := range humanMessages {
		s.messages = append(s.messages, llm.NewUserMessage(text))
	}
	return s
}

// Append adds messages to the end of the history.
func (s *ConversationState) Append(msgs ...llm.Message) {
	for _, m := range msgs {
		s.messages = append(s.messages, m.Clone())
	}
}

// Messages returns a copy of the history.
func (s *ConversationState) Messages() []llm.Message {
	return llm.CloneMessages(s.messages)
}

// Len is the number of messages in the history.
func (s *ConversationState) Len() int {
	return len(s.messages)
}

// Last returns the most recent message.
func (s *ConversationState) Last() (llm.Message, bool) {
	if len(s.messages) == 0 {
		return llm.Message{}, false
	}
	return s.messages[len(s.messages)-1].Clone(), true
}

// rollback drops every message appended after the first n. Used to discard
// an aborted turn; it never reorders what remains.
func (s *ConversationState) rollback(n int) {
	if n < 0 || n >= len(s.messages) {
		return
	}
	clear(s.messages[n:])
	s.messages = s.messages[:n]
}

// SystemInstruction synthesizes the system prompt for this conversation.
// fallback is used when the state carries no language; DefaultLanguage
// when both are empty.
func (s *ConversationState) SystemInstruction(fallback string) string {
	lang := strings.TrimSpace(s.Language)
	if lang == "" {
		lang = strings.TrimSpace(fallback)
	}
	if lang == "" {
		lang = DefaultLanguage
	}
	return fmt.Sprintf(systemPreamble, lang)
}
