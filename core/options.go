package tutoring

import (
	"context"

	"github.com/chalklabs/chalk-core/core/knowledge"
	"github.com/chalklabs/chalk-core/core/llms"
	"github.com/chalklabs/chalk-core/core/texttospeech"
)

type OrchestratorOption func(*Orchestrator)

// Generator streams assistant text for a prompt. Fragments may embed canvas
// directive markers; the pipeline strips them before segmentation.
type Generator interface {
	PromptWithStream(ctx context.Context, prompt string, opts ...llms.PromptOption) llms.Stream
}

func WithGenerator(client Generator) OrchestratorOption {
	return func(o *Orchestrator) { o.generator = client }
}

// Synthesizer converts one sentence of text into speech audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, opts ...texttospeech.SynthesizeOption) (*texttospeech.Audio, error)
}

func WithSynthesizer(client Synthesizer) OrchestratorOption {
	return func(o *Orchestrator) { o.synthesizer = client }
}

func WithContextBuilder(builder ContextBuilder) OrchestratorOption {
	return func(o *Orchestrator) {
		if builder == nil {
			return
		}
		o.contextBuilder = builder
	}
}

// WithRetriever wires a knowledge retriever. The generator gets a search
// tool over it, scoped to the session's subject.
func WithRetriever(retriever knowledge.Retriever) OrchestratorOption {
	return func(o *Orchestrator) { o.retriever = retriever }
}

// WithTools appends tools the generator may call while responding.
func WithTools(tools ...llms.Tool) OrchestratorOption {
	return func(o *Orchestrator) { o.tools = append(o.tools, tools...) }
}

// WithSynthesisConcurrency bounds concurrent synthesis calls per response.
// Values below 1 are ignored.
func WithSynthesisConcurrency(limit int) OrchestratorOption {
	return func(o *Orchestrator) {
		if limit < 1 {
			return
		}
		o.synthesisConcurrency = limit
	}
}

// WithSegmenterOptions tunes the sentence segmenter used for every
// response.
func WithSegmenterOptions(opts ...SegmenterOption) OrchestratorOption {
	return func(o *Orchestrator) { o.segmenterOpts = append(o.segmenterOpts, opts...) }
}

// WithHistoryLimit bounds how many recent transcript turns accompany each
// prompt. Values below 1 are ignored.
func WithHistoryLimit(limit int) OrchestratorOption {
	return func(o *Orchestrator) {
		if limit < 1 {
			return
		}
		o.historyLimit = limit
	}
}

// Mode hints how the generator should answer. It is passed through to the
// prompt; the pipeline itself treats all modes alike.
type Mode string

const (
	// ModeGuided asks for step-by-step guidance that leads the student to
	// the answer instead of handing it over.
	ModeGuided Mode = "guided"
	// ModeDirect asks for the answer directly.
	ModeDirect Mode = "direct"
)

type responseOptions struct {
	highlightedObjectIDs []string
	mode                 Mode
	turnID               string
	voice                string
	extraContext         string
}

type ResponseOption func(*responseOptions)

// WithHighlightedObjects names canvas objects the student highlighted while
// asking. Their summary becomes part of the prompt context and is preserved
// on the assistant turn.
func WithHighlightedObjects(objectIDs ...string) ResponseOption {
	return func(o *responseOptions) {
		o.highlightedObjectIDs = append(o.highlightedObjectIDs, objectIDs...)
	}
}

func WithMode(mode Mode) ResponseOption {
	return func(o *responseOptions) { o.mode = mode }
}

// WithAssistantTurnID pre-allocates the assistant turn id so canvas objects
// created mid-stream can name the turn that produced them.
func WithAssistantTurnID(turnID string) ResponseOption {
	return func(o *responseOptions) { o.turnID = turnID }
}

// WithResponseVoice selects the synthesis voice for this response.
func WithResponseVoice(voice string) ResponseOption {
	return func(o *responseOptions) { o.voice = voice }
}

// WithExtraContext appends caller-provided context to the prompt
// instructions.
func WithExtraContext(extraContext string) ResponseOption {
	return func(o *responseOptions) { o.extraContext = extraContext }
}
