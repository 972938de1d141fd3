// Package texttospeech defines the speech synthesis contract used by the
// response pipeline. Synthesizers turn one sentence of text into one
// self-contained audio segment.
package texttospeech

// Audio is a fully synthesized speech segment.
type Audio struct {
	Data     []byte
	MimeType string
}

type SynthesizeOptions struct {
	// Voice overrides the synthesizer's default voice for a single request.
	Voice string
}

type SynthesizeOption func(*SynthesizeOptions)

// WithVoice requests a specific voice. An empty voice is ignored and the
// synthesizer's default is used.
func WithVoice(voice string) SynthesizeOption {
	return func(o *SynthesizeOptions) {
		if voice == "" {
			return
		}
		o.Voice = voice
	}
}
