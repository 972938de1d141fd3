package llms

import "context"

// Stream is a lazy generation result. Chunks returns a push iterator that
// performs the request on first pull and yields chunks until the stream is
// exhausted, the context is cancelled, or the consumer stops.
type Stream interface {
	Chunks(context.Context) func(func(StreamChunk, error) bool)
}

// StreamChunk is one streamed piece of a generation.
type StreamChunk interface {
	FinishReason() *string
}

// StreamContentChunk carries a response text delta.
type StreamContentChunk interface {
	StreamChunk
	Content() string
}

// StreamToolCallChunk carries a completed tool-call request.
type StreamToolCallChunk interface {
	StreamChunk
	ToolCall() ToolCall
}

// StreamUsageChunk carries usage accounting, typically as the last chunk.
type StreamUsageChunk interface {
	StreamChunk
	Usage() Usage
}

// Usage aggregates token and latency accounting for one generation call.
// Timings are provider-reported approximations.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int

	QueueTime      float64
	PromptTime     float64
	CompletionTime float64
	TotalTime      float64
}
