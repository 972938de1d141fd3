// Package llms defines the generator-facing contracts: prompt messages,
// streaming chunks, tools, and prompt options. Concrete clients live in
// subpackages and adapt these types to their wire formats.
package llms

// MessageRole describes who a prompt message is from.
type MessageRole string

const (
	MessageRoleSystem    MessageRole = "system"
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
	MessageRoleTool      MessageRole = "tool"
)

// Message is a single prompt-context message.
type Message struct {
	Role    MessageRole
	Content string

	// ToolCalls carries the calls an assistant message requested.
	ToolCalls []ToolCall
	// ToolCallID links a tool-role message to the call it answers.
	ToolCallID string
}

// Response is the assembled result of one generation call.
type Response struct {
	Content   string
	ToolCalls []ToolCall
}

// ToolCall is one function invocation requested by the model. Response is
// filled in after the tool has been executed.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
	Response  string
}
