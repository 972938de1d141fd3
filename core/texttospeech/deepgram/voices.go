package deepgram

// Voice is a deepgram aura voice model.
type Voice string

const (
	VoiceAsteria Voice = "aura-2-asteria-en"
	VoiceLuna    Voice = "aura-2-luna-en"
	VoiceOrion   Voice = "aura-2-orion-en"
	VoiceArcas   Voice = "aura-2-arcas-en"
	VoiceThalia  Voice = "aura-2-thalia-en"
)

const defaultVoice = VoiceAsteria

func AvailableVoices() []Voice {
	return []Voice{
		VoiceAsteria,
		VoiceLuna,
		VoiceOrion,
		VoiceArcas,
		VoiceThalia,
	}
}
