package openai

import (
	"github.com/chalklabs/chalk-core/core/llms"
)

type messageRole string

const (
	messageRoleSystem    messageRole = "system"
	messageRoleUser      messageRole = "user"
	messageRoleAssistant messageRole = "assistant"
	messageRoleTool      messageRole = "tool"
)

type message struct {
	Role       messageRole `json:"role"`
	Content    string      `json:"content"`
	ToolCallID string      `json:"tool_call_id,omitempty"`
	ToolCalls  []toolCall  `json:"tool_calls,omitempty"`
}

type toolCall struct {
	Index    *int             `json:"index,omitempty"`
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Function toolCallFunction `json:"function"`
}

type toolCallFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type tool struct {
	Type     string       `json:"type"`
	Function toolFunction `json:"function"`
}

type toolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  toolParameters `json:"parameters"`
}

type toolParameters struct {
	Type       string                   `json:"type"`
	Properties map[string]parameterBase `json:"properties"`
	Required   []string                 `json:"required"`
}

type parameterBase struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

// toMessages flattens conversation history into the wire format. Assistant
// messages that carried tool calls are followed by one tool message per
// completed call so the API sees the full call/response exchange.
func toMessages(options llms.PromptOptions) []message {
	messages := []message{}
	if options.Instructions != "" {
		messages = append(messages, message{
			Role:    messageRoleSystem,
			Content: options.Instructions,
		})
	}

	for _, msg := range options.Messages {
		switch msg.Role {
		case llms.MessageRoleSystem:
			messages = append(messages, message{
				Role:    messageRoleSystem,
				Content: msg.Content,
			})
		case llms.MessageRoleUser:
			messages = append(messages, message{
				Role:    messageRoleUser,
				Content: msg.Content,
			})
		case llms.MessageRoleAssistant:
			converted := message{
				Role:    messageRoleAssistant,
				Content: msg.Content,
			}
			for _, call := range msg.ToolCalls {
				converted.ToolCalls = append(converted.ToolCalls, toolCall{
					ID:   call.ID,
					Type: "function",
					Function: toolCallFunction{
						Name:      call.Name,
						Arguments: call.Arguments,
					},
				})
			}
			messages = append(messages, converted)
			for _, call := range msg.ToolCalls {
				messages = append(messages, message{
					Role:       messageRoleTool,
					Content:    call.Response,
					ToolCallID: call.ID,
				})
			}
		case llms.MessageRoleTool:
			messages = append(messages, message{
				Role:       messageRoleTool,
				Content:    msg.Content,
				ToolCallID: msg.ToolCallID,
			})
		}
	}

	return messages
}
