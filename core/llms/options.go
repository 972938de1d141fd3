package llms

// PromptOptions collects the context passed along with a prompt.
type PromptOptions struct {
	Instructions string
	Messages     []Message
	Tools        []Tool

	// ForceToolCall asks the model to call a tool rather than answer.
	ForceToolCall bool
}

// PromptOption mutates PromptOptions.
type PromptOption func(*PromptOptions)

// WithInstructions sets the system prompt. Repeating the option overwrites
// the previous value.
func WithInstructions(instructions string) PromptOption {
	return func(opts *PromptOptions) {
		opts.Instructions = instructions
	}
}

// WithMessages appends prior conversation messages to the prompt context.
// Repeating the option keeps appending.
func WithMessages(messages ...Message) PromptOption {
	return func(opts *PromptOptions) {
		opts.Messages = append(opts.Messages, messages...)
	}
}

// WithTools appends tools the model may call.
func WithTools(tools ...Tool) PromptOption {
	return func(opts *PromptOptions) {
		opts.Tools = append(opts.Tools, tools...)
	}
}

// WithForcedToolCall requires the model to answer with a tool call.
func WithForcedToolCall() PromptOption {
	return func(opts *PromptOptions) {
		opts.ForceToolCall = true
	}
}
