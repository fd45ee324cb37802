package agent

import (
	"testing"

	"chatagent/pkg/llm"

	"github.com/stretchr/testify/require"
)

func TestNewConversationState_HumanMessagesInOrder(t *testing.T) {
	s := NewConversationState("t", "first", "second", "third")
	require.Equal(t, 3, s.Len())

	msgs := s.Messages()
	for i, want := range []string{"first", "second", "third"} {
		require.Equal(t, llm.RoleUser, msgs[i].Role)
		require.Equal(t, want, msgs[i].GetTextContent())
	}
}

func TestConversationState_MessagesIsACopy(t *testing.T) {
	s := NewConversationState("t", "hi")
	msgs := s.Messages()
	msgs[0].Content[0].Text = "mutated"

	require.Equal(t, 1, s.Len())
	got, ok := s.Last()
	require.True(t, ok)
	require.Equal(t, "hi", got.GetTextContent())
}

func TestConversationState_AppendAndRollback(t *testing.T) {
	s := NewConversationState("t", "hi")
	s.Append(llm.NewAssistantMessage("a"), llm.NewAssistantMessage("b"))
	require.Equal(t, 3, s.Len())

	s.rollback(1)
	require.Equal(t, 1, s.Len())
	last, _ := s.Last()
	require.Equal(t, "hi", last.GetTextContent())

	// Out-of-range targets leave the history alone.
	s.rollback(5)
	s.rollback(-1)
	require.Equal(t, 1, s.Len())
}

func TestConversationState_LastOnEmpty(t *testing.T) {
	s := NewConversationState("t")
	_, ok := s.Last()
	require.False(t, ok)
}

func TestConversationState_SystemInstruction(t *testing.T) {
	s := NewConversationState("t")
	require.Equal(t, "You are a helpful assistant. Talk in english.", s.SystemInstruction(""))
	require.Equal(t, "You are a helpful assistant. Talk in german.", s.SystemInstruction("german"))

	s.Language = " japanese "
	require.Equal(t, "You are a helpful assistant. Talk in japanese.", s.SystemInstruction("german"))
}
