package llm

// StopReason constants define normalized reasons for LLM generation termination.
// All providers must normalize their native stop reasons to these values.
const (
	StopReasonStop     = "stop"      // Normal completion
	StopReasonLength   = "length"    // Output truncated due to token limit
	StopReasonToolCall = "tool_call" // Generation paused to request tool execution
	StopReasonFailed   = "failed"    // Provider reported a failed response
)

// ContentBlock Type constants define the supported content block formats
// used throughout the message pipeline.
const (
	BlockTypeText     = "text"     // Plain text content
	BlockTypeThinking = "thinking" // Internal reasoning/chain-of-thought
)

// Message roles. RoleUser is the human side of the conversation and
// RoleTool carries a tool result back to the model.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
	RoleTool      = "tool"
)
