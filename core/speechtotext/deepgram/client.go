// Package deepgram transcribes speech through the deepgram listen API over a
// websocket connection.
package deepgram

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

type TranscriptionClient struct {
	apiKey string

	conn   *websocket.Conn
	connMu sync.Mutex

	lastMsgTs time.Time

	accumulatedTranscript string
	unendedSegment        bool
}

// NewTranscriptionClient creates a listen API client. If apiKey is empty it
// is loaded from the DEEPGRAM_API_KEY environment variable.
func NewTranscriptionClient(apiKey string) (*TranscriptionClient, error) {
	if apiKey == "" {
		var ok bool
		if apiKey, ok = os.LookupEnv("DEEPGRAM_API_KEY"); !ok {
			return nil, fmt.Errorf("api key was not provided and could not be found in the environment")
		}
	}

	return &TranscriptionClient{apiKey: apiKey}, nil
}
