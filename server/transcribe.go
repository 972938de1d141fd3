package server

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v5"

	"github.com/chalklabs/chalk-core/core/audio"
	"github.com/chalklabs/chalk-core/core/speechtotext"
)

const (
	// Uploaded question audio is short; anything above this is not a
	// spoken question.
	maxAudioBodyBytes = 16 << 20

	audioChunkBytes   = 8192
	transcribeTimeout = 30 * time.Second
)

type transcribeResponse struct {
	Transcript string `json:"transcript"`
}

// transcribe feeds an uploaded raw-audio body through a live transcription
// stream and answers with the final transcript. Encoding defaults to
// 16kHz linear16; override with the encoding and sample_rate query
// parameters.
func (s *Server) transcribe(c *echo.Context) error {
	if s.transcribers == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "transcription is not configured")
	}

	ctx := c.Request().Context()

	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxAudioBodyBytes))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to read audio body")
	}
	if len(body) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "audio body required")
	}

	encodingInfo := audio.GetDefaultEncodingInfo()
	if encoding := c.QueryParam("encoding"); encoding != "" {
		encodingInfo.Format = audio.Format(encoding)
	}
	if rate := c.QueryParam("sample_rate"); rate != "" {
		sampleRate, err := strconv.Atoi(rate)
		if err != nil || sampleRate <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid sample_rate")
		}
		encodingInfo.SampleRate = sampleRate
	}

	transcriber, err := s.transcribers()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	// The final callback fires once the provider hears the end of speech;
	// partials accumulate as a fallback for audio that never goes silent.
	var partialsMu sync.Mutex
	var partials []string
	finals := make(chan string, 1)

	streamCtx, cancelStream := context.WithCancel(ctx)
	defer cancelStream()

	err = transcriber.Transcribe(streamCtx,
		speechtotext.WithEncodingInfo(encodingInfo),
		speechtotext.WithTranscriptionCallback(func(transcript string) {
			select {
			case finals <- transcript:
			default:
			}
		}),
		speechtotext.WithPartialTranscriptionCallback(func(transcript string) {
			partialsMu.Lock()
			partials = append(partials, transcript)
			partialsMu.Unlock()
		}),
	)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, "failed to open transcription stream: "+err.Error())
	}

	for start := 0; start < len(body); start += audioChunkBytes {
		end := min(start+audioChunkBytes, len(body))
		if err := transcriber.SendAudio(body[start:end]); err != nil {
			return echo.NewHTTPError(http.StatusBadGateway, "failed to send audio: "+err.Error())
		}
	}
	if err := transcriber.StopStream(); err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, "failed to close transcription stream: "+err.Error())
	}

	select {
	case transcript := <-finals:
		return c.JSON(http.StatusOK, transcribeResponse{Transcript: transcript})
	case <-time.After(transcribeTimeout):
		partialsMu.Lock()
		transcript := strings.TrimSpace(strings.Join(partials, " "))
		partialsMu.Unlock()
		if transcript != "" {
			return c.JSON(http.StatusOK, transcribeResponse{Transcript: transcript})
		}
		return echo.NewHTTPError(http.StatusGatewayTimeout, "timed out waiting for the transcript")
	case <-ctx.Done():
		return ctx.Err()
	}
}
