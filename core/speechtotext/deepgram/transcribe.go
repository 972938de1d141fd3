package deepgram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	api "github.com/deepgram/deepgram-go-sdk/pkg/api/listen/v1/websocket/interfaces"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/codes"

	"github.com/chalklabs/chalk-core/core/audio"
	"github.com/chalklabs/chalk-core/core/speechtotext"
	"github.com/chalklabs/chalk-core/internal/utils"
)

// Transcribe opens a listen stream. Audio is fed in through SendAudio and
// transcripts are delivered through the configured callbacks until the
// stream is stopped or the connection drops.
func (c *TranscriptionClient) Transcribe(ctx context.Context, opts ...speechtotext.TranscriptionOption) error {
	ctx, span := tracer.Start(ctx, "open transcription stream")
	defer span.End()

	options := &speechtotext.TranscriptionOptions{EncodingInfo: audio.GetDefaultEncodingInfo()}
	for _, opt := range opts {
		opt(options)
	}

	if err := validateEncoding(options.EncodingInfo); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid encoding")
		return fmt.Errorf("invalid encoding: %w", err)
	}

	callbacks, wsConfig := newCallbackConfig(*options)

	conn, err := c.connectWebsocket(options.EncodingInfo, wsConfig)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to connect")
		return fmt.Errorf("failed to open websocket: %w", err)
	}

	c.conn = conn
	c.lastMsgTs = time.Now()
	go c.readAndProcessMessages(ctx, conn, options.EncodingInfo, callbacks)

	return nil
}

func (c *TranscriptionClient) connectWebsocket(encoding audio.EncodingInfo, config websocketConfig) (*websocket.Conn, error) {
	listenURL, _ := url.Parse("wss://api.deepgram.com/v1/listen")
	queryParams := listenURL.Query()
	queryParams.Set("encoding", encoding.Format.Name())
	queryParams.Set("sample_rate", strconv.Itoa(encoding.SampleRate))
	queryParams.Set("channels", "1")
	queryParams.Set("model", "nova-3")
	queryParams.Set("language", "en-US")
	queryParams.Set("smart_format", "true")
	if config.shouldEnhanceSpeechEndingDetection {
		queryParams.Set("utterance_end_ms", "1000")
		queryParams.Set("interim_results", "true")
	} else if config.shouldRequestInterimResults {
		queryParams.Set("interim_results", "true")
	}
	queryParams.Set("endpointing", "300")
	if config.shouldDetectSpeechStart || config.shouldEnhanceSpeechEndingDetection {
		queryParams.Set("vad_events", "true")
	}

	listenURL.RawQuery = queryParams.Encode()
	conn, _, err := websocket.DefaultDialer.Dial(listenURL.String(),
		http.Header{"Authorization": {"Token " + c.apiKey}})
	if err != nil {
		return nil, fmt.Errorf("failed to open socket connection to deepgram: %w", err)
	}

	return conn, nil
}

// SendAudio forwards raw audio to the listen stream.
func (c *TranscriptionClient) SendAudio(audio []byte) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn == nil {
		return fmt.Errorf("transcription stream is not open")
	}

	c.lastMsgTs = time.Now()
	if err := c.conn.WriteMessage(websocket.BinaryMessage, audio); err != nil {
		return fmt.Errorf("failed to write to deepgram client: %w", err)
	}
	return nil
}

func (c *TranscriptionClient) sendSilence(audio []byte) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn == nil {
		return fmt.Errorf("transcription stream is not open")
	}

	if err := c.conn.WriteMessage(websocket.BinaryMessage, audio); err != nil {
		return fmt.Errorf("failed to write to deepgram client: %w", err)
	}
	return nil
}

func (c *TranscriptionClient) sendKeepAlive(ctx context.Context) {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn == nil {
		return
	}

	if err := c.conn.WriteJSON(struct {
		Type string `json:"type"`
	}{Type: "KeepAlive"}); err != nil {
		logger.WarnContext(ctx, "failed to send keep alive", "error", err)
	}
}

// StopStream asks the listen API to flush and close the stream. Remaining
// transcripts are still delivered before the connection closes.
func (c *TranscriptionClient) StopStream() error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn != nil {
		if err := c.conn.WriteJSON(struct {
			Type string `json:"type"`
		}{Type: string(api.TypeCloseStreamResponse)}); err != nil {
			return fmt.Errorf("failed to close listen stream through websocket: %w", err)
		}
	}
	return nil
}

func (c *TranscriptionClient) readAndProcessMessages(ctx context.Context, conn *websocket.Conn, encoding audio.EncodingInfo, callbacks callbackConfig) {
	silenceCtx, silenceCancel := context.WithCancel(ctx)
	defer silenceCancel()

	go c.generateSilence(silenceCtx, encoding)

	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			if err.Error() != "websocket: close 1000 (normal)" {
				logger.WarnContext(ctx, "failed to read listen websocket message", "error", err)
			}

			c.connMu.Lock()
			c.conn = nil
			c.connMu.Unlock()
			conn.Close()
			return
		}
		if msgType != websocket.BinaryMessage {
			go c.processMessage(ctx, msg, callbacks)
		}
	}
}

func (c *TranscriptionClient) processMessage(ctx context.Context, msg []byte, callbacks callbackConfig) {
	var parsedMsg struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(msg, &parsedMsg); err != nil {
		logger.WarnContext(ctx, "failed to unmarshal listen message", "error", err)
		return
	}

	switch api.TypeResponse(parsedMsg.Type) {
	case api.TypeMessageResponse:
		var msgResp api.MessageResponse
		if err := json.Unmarshal(msg, &msgResp); err != nil {
			logger.WarnContext(ctx, "failed to unmarshal listen transcript message", "error", err)
			return
		}
		if len(msgResp.Channel.Alternatives) == 0 {
			return
		}
		transcript := strings.TrimSpace(msgResp.Channel.Alternatives[0].Transcript)

		if msgResp.IsFinal {
			if transcript != "" {
				c.accumulatedTranscript += " " + transcript
				callbacks.partialTranscriptionCallback(transcript)
			}
			if msgResp.SpeechFinal {
				c.onSpeechEnded(callbacks)
			}
		} else if transcript != "" {
			callbacks.interimTranscriptionCallback(
				strings.TrimSpace(c.accumulatedTranscript + " " + transcript))
		}

	case api.TypeUtteranceEndResponse:
		var msgResp api.UtteranceEndResponse
		if err := json.Unmarshal(msg, &msgResp); err != nil {
			logger.WarnContext(ctx, "failed to unmarshal listen utterance end message", "error", err)
			return
		}

		if c.unendedSegment {
			c.onSpeechEnded(callbacks)
		}

	case api.TypeSpeechStartedResponse:
		var msgResp api.SpeechStartedResponse
		if err := json.Unmarshal(msg, &msgResp); err != nil {
			logger.WarnContext(ctx, "failed to unmarshal listen speech started message", "error", err)
			return
		}

		c.unendedSegment = true
		callbacks.startSpeechCallback()
	}
}

func (c *TranscriptionClient) onSpeechEnded(callbacks callbackConfig) {
	c.unendedSegment = false
	fullTranscript := strings.TrimSpace(c.accumulatedTranscript)
	c.accumulatedTranscript = ""
	if fullTranscript != "" {
		callbacks.transcriptionCallback(fullTranscript)
	}
	callbacks.endSpeechCallback()
}

// generateSilence keeps the listen stream alive while no real audio is
// arriving. Short gaps are padded with encoded silence, longer ones fall
// back to keep alive messages.
func (c *TranscriptionClient) generateSilence(ctx context.Context, encoding audio.EncodingInfo) {
	type silenceGeneratorState string
	const (
		silenceGeneratorStateWaiting   silenceGeneratorState = "waiting"
		silenceGeneratorStateSilence   silenceGeneratorState = "silence"
		silenceGeneratorStateKeepAlive silenceGeneratorState = "keepAlive"
	)

	const chunkDuration = 50 * time.Millisecond
	ticker := time.NewTicker(chunkDuration)
	chunk := encoding.SilenceChunk(chunkDuration)

	state := silenceGeneratorStateWaiting
	var firstSilenceTime *time.Time
	var lastKeepAliveTime *time.Time
	for {
		select {
		case <-ctx.Done():
			ticker.Stop()
			return
		case <-ticker.C:
			switch state {
			case silenceGeneratorStateWaiting:
				if time.Since(c.lastMsgTs) > chunkDuration {
					state = silenceGeneratorStateSilence
					firstSilenceTime = utils.Ptr(time.Now())
					continue
				}

			case silenceGeneratorStateSilence:
				if time.Since(c.lastMsgTs) < chunkDuration {
					state = silenceGeneratorStateWaiting
					firstSilenceTime = nil
					continue
				}
				if time.Since(*firstSilenceTime) >= time.Second {
					state = silenceGeneratorStateKeepAlive
					lastKeepAliveTime = utils.Ptr(time.Now())
					firstSilenceTime = nil
					continue
				}

				if err := c.sendSilence(chunk); err != nil {
					logger.WarnContext(ctx, "failed to send silence", "error", err)
				}

			case silenceGeneratorStateKeepAlive:
				if time.Since(c.lastMsgTs) < chunkDuration {
					state = silenceGeneratorStateWaiting
					continue
				}

				if time.Since(*lastKeepAliveTime) >= 5*time.Second {
					lastKeepAliveTime = utils.Ptr(time.Now())
					c.sendKeepAlive(ctx)
				}
			}
		}
	}
}
