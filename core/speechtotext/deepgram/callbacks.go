package deepgram

import (
	"github.com/chalklabs/chalk-core/core/speechtotext"
)

// callbackConfig holds non-nil callbacks so message processing never has to
// check for missing ones.
type callbackConfig struct {
	interimTranscriptionCallback func(transcript string)
	partialTranscriptionCallback func(transcript string)
	transcriptionCallback        func(transcript string)
	startSpeechCallback          func()
	endSpeechCallback            func()
}

// websocketConfig captures which listen API features the configured
// callbacks require.
type websocketConfig struct {
	shouldDetectSpeechStart            bool
	shouldEnhanceSpeechEndingDetection bool
	shouldRequestInterimResults        bool
}

func newCallbackConfig(options speechtotext.TranscriptionOptions) (callbackConfig, websocketConfig) {
	callbacks := callbackConfig{
		interimTranscriptionCallback: func(string) {},
		partialTranscriptionCallback: func(string) {},
		transcriptionCallback:        func(string) {},
		startSpeechCallback:          func() {},
		endSpeechCallback:            func() {},
	}

	if options.InterimTranscriptionCallback != nil {
		callbacks.interimTranscriptionCallback = options.InterimTranscriptionCallback
	}
	if options.PartialTranscriptionCallback != nil {
		callbacks.partialTranscriptionCallback = options.PartialTranscriptionCallback
	}
	if options.TranscriptionCallback != nil {
		callbacks.transcriptionCallback = options.TranscriptionCallback
	}
	if options.SpeechStartedCallback != nil {
		callbacks.startSpeechCallback = options.SpeechStartedCallback
	}
	if options.SpeechEndedCallback != nil {
		callbacks.endSpeechCallback = options.SpeechEndedCallback
	}

	return callbacks, websocketConfig{
		shouldDetectSpeechStart: options.SpeechStartedCallback != nil,
		shouldEnhanceSpeechEndingDetection: options.TranscriptionCallback != nil ||
			options.SpeechEndedCallback != nil,
		shouldRequestInterimResults: options.InterimTranscriptionCallback != nil,
	}
}
