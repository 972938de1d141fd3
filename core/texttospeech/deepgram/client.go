// Package deepgram synthesizes speech through the deepgram speak API. Each
// request produces one complete audio segment, which is what the response
// pipeline expects when it fans sentences out for synthesis.
package deepgram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"slices"
	"strconv"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/chalklabs/chalk-core/core/audio"
	"github.com/chalklabs/chalk-core/core/texttospeech"
)

const speakHost = "api.deepgram.com"

type Client struct {
	apiKey   string
	voice    Voice
	encoding audio.EncodingInfo

	httpClient *http.Client
}

type ClientOption func(*Client)

// WithVoice sets the default voice used when a request does not ask for one.
func WithVoice(voice Voice) ClientOption {
	return func(c *Client) {
		c.voice = voice
	}
}

// WithEncodingInfo switches output from the default mp3 to raw audio in the
// given encoding, wrapped in a wav container. Zero encoding info is ignored.
func WithEncodingInfo(encodingInfo audio.EncodingInfo) ClientOption {
	return func(c *Client) {
		if encodingInfo.IsZero() {
			return
		}
		c.encoding = encodingInfo
	}
}

// NewClient creates a speak API client. If apiKey is empty it is loaded from
// the DEEPGRAM_API_KEY environment variable.
func NewClient(apiKey string, opts ...ClientOption) (*Client, error) {
	if apiKey == "" {
		var ok bool
		if apiKey, ok = os.LookupEnv("DEEPGRAM_API_KEY"); !ok {
			return nil, fmt.Errorf("api key was not provided and could not be found in the environment")
		}
	}

	client := &Client{
		apiKey: apiKey,
		voice:  defaultVoice,
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

	if !slices.Contains(AvailableVoices(), client.voice) {
		return nil, fmt.Errorf("invalid voice %q", client.voice)
	}

	return client, nil
}

type speakRequestBody struct {
	Text string `json:"text"`
}

// Synthesize converts text into a single audio segment.
func (c *Client) Synthesize(ctx context.Context, text string, opts ...texttospeech.SynthesizeOption) (*texttospeech.Audio, error) {
	options := texttospeech.SynthesizeOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	voice := c.voice
	if options.Voice != "" {
		requested := Voice(options.Voice)
		if slices.Contains(AvailableVoices(), requested) {
			voice = requested
		} else {
			logger.WarnContext(ctx, "unknown voice requested, using default",
				"requested", options.Voice, "default", string(c.voice))
		}
	}

	ctx, span := tracer.Start(ctx, "synthesize speech")
	defer span.End()
	span.SetAttributes(
		attribute.String("request.voice", string(voice)),
		attribute.Int("request.text_length", len(text)),
	)

	payload, err := json.Marshal(speakRequestBody{Text: text})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to prepare the request")
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.speakURL(voice), bytes.NewReader(payload))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to prepare the request")
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "token "+c.apiKey)
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

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to read the audio")
		return nil, fmt.Errorf("failed to read audio: %w", err)
	}

	span.SetAttributes(attribute.Int("response.audio_bytes", len(data)))
	return &texttospeech.Audio{Data: data, MimeType: c.mimeType()}, nil
}

func (c *Client) speakURL(voice Voice) string {
	values := url.Values{}
	values.Set("model", string(voice))
	if c.encoding.IsZero() {
		values.Set("encoding", "mp3")
	} else {
		values.Set("encoding", c.encoding.Format.Name())
		values.Set("sample_rate", strconv.Itoa(c.encoding.SampleRate))
		values.Set("container", "wav")
	}

	return (&url.URL{
		Scheme:   "https",
		Host:     speakHost,
		Path:     "/v1/speak",
		RawQuery: values.Encode(),
	}).String()
}

func (c *Client) mimeType() string {
	if c.encoding.IsZero() {
		return "audio/mpeg"
	}
	return "audio/wav"
}
