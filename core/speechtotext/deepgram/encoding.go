package deepgram

import (
	"fmt"

	"github.com/chalklabs/chalk-core/core/audio"
)

// validateEncoding checks that the listen API supports the encoding. The
// companded formats are only served at 8kHz.
func validateEncoding(encoding audio.EncodingInfo) error {
	switch encoding.SampleRate {
	case 8000, 16000, 24000, 32000, 48000:
	default:
		return fmt.Errorf("unsupported sample rate %d", encoding.SampleRate)
	}

	switch encoding.Format {
	case audio.FormatLinear16:
	case audio.FormatALaw:
		if encoding.SampleRate != 8000 {
			return fmt.Errorf("unsupported sample rate %d for alaw encoding", encoding.SampleRate)
		}
	case audio.FormatMulaw:
		if encoding.SampleRate != 8000 {
			return fmt.Errorf("unsupported sample rate %d for mulaw encoding", encoding.SampleRate)
		}
	default:
		return fmt.Errorf("unsupported encoding %q", encoding.Format.Name())
	}

	return nil
}
