package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/jinzhu/copier"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/chalklabs/chalk-core/core/llms"
)

const (
	endMessage  = "[DONE]"
	chunkPrefix = "data:"
)

type streamingRequestBody struct {
	Model         string         `json:"model"`
	Messages      []message      `json:"messages"`
	Stream        bool           `json:"stream"`
	StreamOptions *streamOptions `json:"stream_options,omitempty"`
	Temperature   *float64       `json:"temperature,omitempty"`
	Tools         []tool         `json:"tools,omitempty"`
	ToolChoice    string         `json:"tool_choice,omitempty"`
}

type streamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type streamingResponseBody struct {
	Choices []streamingChoice `json:"choices"`
	Usage   *usage            `json:"usage"`
}

type streamingChoice struct {
	Delta        streamingDelta `json:"delta"`
	FinishReason *string        `json:"finish_reason"`
}

type streamingDelta struct {
	Content   string     `json:"content"`
	ToolCalls []toolCall `json:"tool_calls"`
}

type usage struct {
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	TotalTokens      int     `json:"total_tokens"`
	QueueTime        float64 `json:"queue_time"`
	PromptTime       float64 `json:"prompt_time"`
	CompletionTime   float64 `json:"completion_time"`
	TotalTime        float64 `json:"total_time"`
}

type streamChunk struct {
	finishReason *string
}

func (c streamChunk) FinishReason() *string { return c.finishReason }

type contentChunk struct {
	streamChunk
	content string
}

func (c contentChunk) Content() string { return c.content }

type toolCallChunk struct {
	streamChunk
	toolCall llms.ToolCall
}

func (c toolCallChunk) ToolCall() llms.ToolCall { return c.toolCall }

type usageChunk struct {
	streamChunk
	usage llms.Usage
}

func (c usageChunk) Usage() llms.Usage { return c.usage }

// PromptWithStream prepares a streaming chat completion request. The request
// is not sent until the returned stream's Chunks iterator is consumed.
func (c *Client) PromptWithStream(ctx context.Context, prompt string, opts ...llms.PromptOption) llms.Stream {
	options := llms.PromptOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	messages := toMessages(options)
	if prompt != "" {
		messages = append(messages, message{
			Role:    messageRoleUser,
			Content: prompt,
		})
	}

	var tools []tool
	if len(options.Tools) > 0 {
		if err := copier.Copy(&tools, options.Tools); err != nil {
			return &Stream{client: c, err: fmt.Errorf("failed to prepare tools: %w", err)}
		}
	}

	toolChoice := ""
	if options.ForceToolCall && len(tools) > 0 {
		toolChoice = "required"
	}

	return &Stream{
		client:     c,
		messages:   messages,
		tools:      tools,
		toolChoice: toolChoice,
	}
}

// Stream is a single streaming chat completion exchange.
type Stream struct {
	client     *Client
	messages   []message
	tools      []tool
	toolChoice string

	err error
}

// Chunks returns an iterator over the streamed response. Content arrives as
// it is generated. Tool calls can be fragmented across many chunks on the
// wire, so they are accumulated and yielded whole once the stream ends,
// followed by token usage when the API reports it.
func (s *Stream) Chunks(ctx context.Context) func(yield func(llms.StreamChunk, error) bool) {
	return func(yield func(llms.StreamChunk, error) bool) {
		ctx, span := tracer.Start(ctx, "prompt stream")
		defer span.End()

		if s.err != nil {
			span.RecordError(s.err)
			span.SetStatus(codes.Error, "failed to prepare the request")
			yield(nil, s.err)
			return
		}

		toolNames := make([]string, 0, len(s.tools))
		for _, tool := range s.tools {
			toolNames = append(toolNames, tool.Function.Name)
		}
		span.SetAttributes(
			attribute.String("request.model", s.client.model),
			attribute.StringSlice("request.available_tools", toolNames),
		)

		payload, err := json.Marshal(streamingRequestBody{
			Model:         s.client.model,
			Messages:      s.messages,
			Stream:        true,
			StreamOptions: &streamOptions{IncludeUsage: true},
			Temperature:   s.client.Temperature,
			Tools:         s.tools,
			ToolChoice:    s.toolChoice,
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to prepare the request")
			yield(nil, fmt.Errorf("failed to marshal request body: %w", err))
			return
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.client.completionsURL(), bytes.NewReader(payload))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to prepare the request")
			yield(nil, fmt.Errorf("failed to create request: %w", err))
			return
		}
		req.Header.Set("Authorization", "Bearer "+s.client.apiKey)
		req.Header.Set("Content-Type", "application/json")

		requestTime := time.Now()
		resp, err := s.client.httpClient.Do(req)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "request failed")
			yield(nil, fmt.Errorf("failed to send request: %w", err))
			return
		}
		defer resp.Body.Close()

		span.SetAttributes(attribute.Int("response.status_code", resp.StatusCode))
		if resp.StatusCode != http.StatusOK {
			body, err := io.ReadAll(resp.Body)
			if err != nil {
				body = []byte(fmt.Sprintf("failed to read response body: %s", err.Error()))
			}
			err = fmt.Errorf("unexpected status code: %d (%s)", resp.StatusCode, string(body))
			span.RecordError(err)
			span.SetStatus(codes.Error, "request failed")
			yield(nil, err)
			return
		}

		var (
			firstTokenSeen bool
			finishReason   *string
			pendingUsage   *llms.Usage
			callOrder      []int
			calls          = map[int]*llms.ToolCall{}
		)

		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := scanner.Text()
			if line == "" || !strings.HasPrefix(line, chunkPrefix) {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, chunkPrefix))
			if data == endMessage {
				break
			}

			if !firstTokenSeen {
				firstTokenSeen = true
				span.SetAttributes(attribute.Float64("request_to_first_token_time", time.Since(requestTime).Seconds()))
			}

			var body streamingResponseBody
			if err := json.Unmarshal([]byte(data), &body); err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, "failed to decode a chunk")
				yield(nil, fmt.Errorf("failed to unmarshal chunk: %w", err))
				return
			}

			if body.Usage != nil {
				pendingUsage = &llms.Usage{
					InputTokens:    body.Usage.PromptTokens,
					OutputTokens:   body.Usage.CompletionTokens,
					TotalTokens:    body.Usage.TotalTokens,
					QueueTime:      body.Usage.QueueTime,
					PromptTime:     body.Usage.PromptTime,
					CompletionTime: body.Usage.CompletionTime,
					TotalTime:      body.Usage.TotalTime,
				}
			}

			for _, choice := range body.Choices {
				if choice.FinishReason != nil {
					finishReason = choice.FinishReason
				}

				for _, fragment := range choice.Delta.ToolCalls {
					index := len(callOrder)
					if fragment.Index != nil {
						index = *fragment.Index
					}
					call, ok := calls[index]
					if !ok {
						call = &llms.ToolCall{}
						calls[index] = call
						callOrder = append(callOrder, index)
					}
					if fragment.ID != "" {
						call.ID = fragment.ID
					}
					if fragment.Function.Name != "" {
						call.Name = fragment.Function.Name
					}
					call.Arguments += fragment.Function.Arguments
				}

				if choice.Delta.Content != "" {
					if !yield(contentChunk{
						streamChunk: streamChunk{finishReason: choice.FinishReason},
						content:     choice.Delta.Content,
					}, nil) {
						return
					}
				}
			}
		}
		if err := scanner.Err(); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "stream interrupted")
			yield(nil, fmt.Errorf("failed to read stream: %w", err))
			return
		}

		sort.Ints(callOrder)
		for _, index := range callOrder {
			if !yield(toolCallChunk{
				streamChunk: streamChunk{finishReason: finishReason},
				toolCall:    *calls[index],
			}, nil) {
				return
			}
		}

		if pendingUsage != nil {
			span.SetAttributes(
				attribute.Int("response.usage.input_tokens", pendingUsage.InputTokens),
				attribute.Int("response.usage.output_tokens", pendingUsage.OutputTokens),
				attribute.Int("response.usage.total_tokens", pendingUsage.TotalTokens),
			)
			yield(usageChunk{
				streamChunk: streamChunk{finishReason: finishReason},
				usage:       *pendingUsage,
			}, nil)
		}
	}
}
