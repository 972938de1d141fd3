package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"

	"github.com/chalklabs/chalk-core/core/llms"
)

type responseFormat struct {
	Type       string            `json:"type"`
	JSONSchema *jsonSchemaFormat `json:"json_schema,omitempty"`
}

type jsonSchemaFormat struct {
	Name   string `json:"name"`
	Schema any    `json:"schema"`
	Strict bool   `json:"strict"`
}

// PromptJSONSchema sends a blocking chat completion request constrained to a
// JSON schema derived from outputSchema and unmarshals the response into
// that type.
func PromptJSONSchema[T any](ctx context.Context, client *Client, prompt string, outputSchema T, opts ...llms.PromptOption) (*T, error) {
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

	reflector := jsonschema.Reflector{DoNotReference: true}
	schema := reflector.Reflect(outputSchema)

	response, err := client.complete(ctx, requestBody{
		Model:       client.model,
		Messages:    messages,
		Temperature: client.Temperature,
		ResponseFormat: &responseFormat{
			Type: "json_schema",
			JSONSchema: &jsonSchemaFormat{
				Name:   "response",
				Schema: schema,
				Strict: true,
			},
		},
	})
	if err != nil {
		return nil, err
	}

	content := response.Content
	// Some models fence structured output in a markdown code block.
	if parts := strings.Split(content, "```"); len(parts) > 1 {
		content = strings.TrimPrefix(parts[1], "json")
	}

	var parsed T
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return nil, fmt.Errorf("failed to unmarshal structured response: %w", err)
	}

	return &parsed, nil
}
