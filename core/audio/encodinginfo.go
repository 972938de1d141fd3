// Package audio describes the raw audio stream formats shared by the speech
// adapters.
package audio

import "time"

// Format is a raw audio sample encoding.
type Format string

const (
	FormatLinear16 Format = "linear16"
	FormatMulaw    Format = "mulaw"
	FormatALaw     Format = "alaw"
)

const (
	DefaultSampleRate = 16000
	DefaultFormat     = FormatLinear16

	millisecondsPerSecond = 1000
)

func GetDefaultEncodingInfo() EncodingInfo {
	return EncodingInfo{SampleRate: DefaultSampleRate, Format: DefaultFormat}
}

type EncodingInfo struct {
	SampleRate int
	Format     Format
}

func (e EncodingInfo) IsZero() bool {
	return e.SampleRate == 0 || e.Format.Name() == ""
}

// SilenceChunk returns a duration's worth of silence encoded in this format.
func (e EncodingInfo) SilenceChunk(duration time.Duration) []byte {
	samples := int(duration.Milliseconds()) * e.SampleRate / millisecondsPerSecond
	chunk := make([]byte, samples*e.Format.BytesPerSample())
	if value := e.Format.silenceValue(); value != 0 {
		for i := range chunk {
			chunk[i] = value
		}
	}
	return chunk
}

func (f Format) Name() string { return string(f) }

func (f Format) BytesPerSample() int {
	switch f {
	case FormatLinear16:
		return 2
	case FormatMulaw, FormatALaw:
		return 1
	}
	return 0
}

func (f Format) silenceValue() byte {
	switch f {
	case FormatALaw:
		return 0x55
	case FormatMulaw:
		return 0xFF
	}
	return 0
}
