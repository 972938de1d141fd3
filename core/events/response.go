package events

const (
	// KindTextChunk identifies one complete sentence of assistant text.
	KindTextChunk Kind = "text_chunk"
	// KindAudioChunk identifies synthesized speech audio for one sentence.
	KindAudioChunk Kind = "audio_chunk"
	// KindError identifies a positioned or terminal failure report.
	KindError Kind = "error"
	// KindDone identifies the terminal marker of a successful response.
	KindDone Kind = "done"
)

// ResponseTextSegment carries one complete sentence of assistant text.
// Sentence indices start at 0 and increase by one per sentence.
type ResponseTextSegment struct {
	Base
	Index int
	Text  string
}

// NewResponseTextSegment creates a text_chunk event for one sentence.
func NewResponseTextSegment(index int, text string) ResponseTextSegment {
	return ResponseTextSegment{Base: NewBase(KindTextChunk), Index: index, Text: text}
}

// ResponseAudioSegment carries synthesized speech for the sentence with the
// matching index. MimeType describes the audio container/encoding.
type ResponseAudioSegment struct {
	Base
	Index    int
	Audio    []byte
	MimeType string
}

// NewResponseAudioSegment creates an audio_chunk event for one sentence.
func NewResponseAudioSegment(index int, audio []byte, mimeType string) ResponseAudioSegment {
	return ResponseAudioSegment{Base: NewBase(KindAudioChunk), Index: index, Audio: audio, MimeType: mimeType}
}

// ResponseError reports a failure. When SentenceIndex is set the error is
// positional (that sentence's synthesis failed, the stream continues); when
// nil the error is terminal and closes the stream.
type ResponseError struct {
	Base
	Code          string
	Message       string
	SentenceIndex *int
}

// NewResponseError creates a terminal error event.
func NewResponseError(code, message string) ResponseError {
	return ResponseError{Base: NewBase(KindError), Code: code, Message: message}
}

// NewSentenceError creates a positional error event standing in for the
// audio of the sentence at index.
func NewSentenceError(index int, code, message string) ResponseError {
	return ResponseError{Base: NewBase(KindError), Code: code, Message: message, SentenceIndex: &index}
}

// ResponseDone marks the successful end of a response stream. TurnID names
// the assistant turn that was appended to the session transcript.
type ResponseDone struct {
	Base
	TurnID string
}

// NewResponseDone creates the terminal done event.
func NewResponseDone(turnID string) ResponseDone {
	return ResponseDone{Base: NewBase(KindDone), TurnID: turnID}
}
