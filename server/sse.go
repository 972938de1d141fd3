package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/chalklabs/chalk-core/core/events"
)

// Wire payloads for the SSE envelope. Audio bytes ride base64-encoded per
// encoding/json's []byte handling; canvas objects reuse the session model's
// own JSON shape.
type eventEnvelope struct {
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

type textChunkPayload struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
}

type audioChunkPayload struct {
	Index    int    `json:"index"`
	Audio    []byte `json:"audio"`
	MimeType string `json:"mimeType"`
}

type referencePayload struct {
	ObjectID string `json:"objectId"`
}

type errorPayload struct {
	Code          string `json:"code"`
	Message       string `json:"message"`
	SentenceIndex *int   `json:"sentenceIndex,omitempty"`
}

type donePayload struct {
	TurnID string `json:"turnId"`
}

func marshalEvent(event events.Event) ([]byte, error) {
	var payload any
	switch e := event.(type) {
	case events.ResponseTextSegment:
		payload = textChunkPayload{Index: e.Index, Text: e.Text}
	case events.ResponseAudioSegment:
		payload = audioChunkPayload{Index: e.Index, Audio: e.Audio, MimeType: e.MimeType}
	case events.CanvasObjectCreated:
		payload = e.Object
	case events.ObjectReferenced:
		payload = referencePayload{ObjectID: e.ObjectID}
	case events.ResponseError:
		payload = errorPayload{Code: e.Code, Message: e.Message, SentenceIndex: e.SentenceIndex}
	case events.ResponseDone:
		payload = donePayload{TurnID: e.TurnID}
	default:
		return nil, fmt.Errorf("unknown event kind %q", event.Kind())
	}

	inner, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(eventEnvelope{
		Type:      string(event.Kind()),
		Timestamp: event.Timestamp(),
		Payload:   inner,
	})
}

func writeServerSentEvent(rw http.ResponseWriter, data []byte) {
	fmt.Fprintf(rw, "data: %s\n\n", data)
	if f, ok := rw.(http.Flusher); ok {
		f.Flush()
	}
}
