package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/chalklabs/chalk-core/core/llms"
)

type requestBody struct {
	Model          string          `json:"model"`
	Messages       []message       `json:"messages"`
	Temperature    *float64        `json:"temperature,omitempty"`
	Tools          []tool          `json:"tools,omitempty"`
	ToolChoice     string          `json:"tool_choice,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseBody struct {
	Choices []responseChoice `json:"choices"`
	Usage   *usage           `json:"usage"`
}

type responseChoice struct {
	Message      responseMessage `json:"message"`
	FinishReason *string         `json:"finish_reason"`
}

type responseMessage struct {
	Content   string     `json:"content"`
	ToolCalls []toolCall `json:"tool_calls"`
}

// Prompt sends a single blocking chat completion request and returns the
// full response.
func (c *Client) Prompt(ctx context.Context, prompt string, opts ...llms.PromptOption) (*llms.Response, error) {
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

	return c.complete(ctx, requestBody{
		Model:       c.model,
		Messages:    messages,
		Temperature: c.Temperature,
	})
}

func (c *Client) complete(ctx context.Context, body requestBody) (*llms.Response, error) {
	ctx, span := tracer.Start(ctx, "prompt")
	defer span.End()
	span.SetAttributes(attribute.String("request.model", body.Model))

	payload, err := json.Marshal(body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to prepare the request")
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.completionsURL(), bytes.NewReader(payload))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to prepare the request")
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		return nil, fmt.Errorf("failed to send request: %w", err)
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
		return nil, err
	}

	var parsed responseBody
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to decode the response")
		return nil, fmt.Errorf("failed to unmarshal response body: %w", err)
	}
	if len(parsed.Choices) == 0 {
		err := fmt.Errorf("response contained no choices")
		span.RecordError(err)
		span.SetStatus(codes.Error, "empty response")
		return nil, err
	}

	response := &llms.Response{Content: parsed.Choices[0].Message.Content}
	for _, call := range parsed.Choices[0].Message.ToolCalls {
		response.ToolCalls = append(response.ToolCalls, llms.ToolCall{
			ID:        call.ID,
			Name:      call.Function.Name,
			Arguments: call.Function.Arguments,
		})
	}
	if parsed.Usage != nil {
		span.SetAttributes(attribute.Int("response.usage.total_tokens", parsed.Usage.TotalTokens))
	}

	return response, nil
}
