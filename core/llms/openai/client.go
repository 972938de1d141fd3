// Package openai provides a client for OpenAI-compatible chat completion
// APIs. The base URL is configurable so the same client works against any
// provider that speaks the chat completions protocol.
package openai

import (
	"fmt"
	"net/http"
	"os"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "gpt-4o-mini"

	chatCompletionsPath = "/chat/completions"
)

type Client struct {
	apiKey  string
	model   string
	baseURL string

	httpClient *http.Client

	ClientOptions
}

type ClientOptions struct {
	// Temperature applied to every prompt issued through this client.
	Temperature *float64
}

type ClientOption func(*Client)

// WithModel overrides the model requested from the API.
func WithModel(model string) ClientOption {
	return func(c *Client) {
		c.model = model
	}
}

// WithBaseURL points the client at a different OpenAI-compatible endpoint.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithTemperature sets the sampling temperature for all prompts.
func WithTemperature(temperature float64) ClientOption {
	return func(c *Client) {
		c.Temperature = &temperature
	}
}

// NewClient creates a client for an OpenAI-compatible chat completions API.
// If apiKey is empty it is loaded from the OPENAI_API_KEY environment
// variable.
func NewClient(apiKey string, opts ...ClientOption) (*Client, error) {
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("api key was not provided and could not be found in the environment")
		}
	}

	client := &Client{
		apiKey:  apiKey,
		model:   defaultModel,
		baseURL: defaultBaseURL,
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport,
				otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
					return fmt.Sprintf("%s %s %s", operation, r.Method, r.URL.Path)
				}),
			),
		},
	}

	for _, opt := range opts {
		opt(client)
	}

	return client, nil
}

func (c *Client) completionsURL() string {
	return c.baseURL + chatCompletionsPath
}
