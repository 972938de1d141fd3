// Package tutoring drives streaming tutoring responses: generated text is
// cut into sentences, each sentence is synthesized to speech concurrently,
// and text, audio, canvas and terminal events are delivered to the consumer
// as one ordered stream while the session transcript is kept current.
package tutoring

import (
	"context"
	"fmt"
	"sync"

	"github.com/chalklabs/chalk-core/core/events"
	"github.com/chalklabs/chalk-core/core/knowledge"
	"github.com/chalklabs/chalk-core/core/llms"
	"github.com/chalklabs/chalk-core/core/sessions"
)

const defaultHistoryLimit = 20

// Orchestrator answers student questions against sessions held in the
// store. Collaborators are capability interfaces wired in through options;
// the zero collaborator set degrades to text-only responses.
type Orchestrator struct {
	store *sessions.Store

	generator      Generator
	synthesizer    Synthesizer
	contextBuilder ContextBuilder
	retriever      knowledge.Retriever
	tools          []llms.Tool

	synthesisConcurrency int
	historyLimit         int
	segmenterOpts        []SegmenterOption
}

func NewOrchestrator(store *sessions.Store, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		store:                store,
		contextBuilder:       objectSummaryBuilder{},
		synthesisConcurrency: defaultSynthesisConcurrency,
		historyLimit:         defaultHistoryLimit,
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

// StreamResponse answers one question in the context of a session. The
// caller appends the user's turn before calling; the orchestrator appends
// only the resulting assistant turn. Unknown session ids fail here, before
// any streaming starts.
//
// The returned stream is single-use: consume Events once, Cancel to abandon
// it early.
func (o *Orchestrator) StreamResponse(ctx context.Context, sessionID, question string, opts ...ResponseOption) (*ResponseStream, error) {
	if o.generator == nil {
		return nil, fmt.Errorf("no generator configured")
	}

	options := responseOptions{mode: ModeGuided}
	for _, opt := range opts {
		opt(&options)
	}

	session, err := o.store.Get(sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session %q: %w", sessionID, err)
	}

	return newResponseStream(ctx, newResponsePipeline(o, session, question, options)), nil
}

// ResponseStream is one in-flight response. Events blocks-and-yields the
// ordered event sequence; production starts when Events is first consumed.
type ResponseStream struct {
	ctx      context.Context
	pipeline *responsePipeline

	startOnce sync.Once
}

func newResponseStream(ctx context.Context, pipeline *responsePipeline) *ResponseStream {
	return &ResponseStream{ctx: ctx, pipeline: pipeline}
}

// Events yields the response's events in order: each sentence's text_chunk
// before its audio_chunk, audio_chunks in sentence order, canvas events as
// their directives resolve, and a terminal done or error event last unless
// the stream was cancelled. Breaking out and ranging again resumes without
// losing events.
func (s *ResponseStream) Events(yield func(events.Event) bool) {
	s.startOnce.Do(func() {
		go s.pipeline.Run(s.ctx)
	})
	s.pipeline.queue.All(yield)
}

// Cancel abandons the response: no further fragments are pulled, pending
// synthesis is dropped, and whatever was already delivered is appended to
// the transcript. A cancelled stream closes without a terminal event.
func (s *ResponseStream) Cancel() {
	s.pipeline.Cancel()
}

// promptHistory converts recent transcript turns into prompt messages. The
// caller already appended the question as the latest user turn; that turn
// is dropped so the question does not appear twice.
func promptHistory(turns []sessions.Turn, question string, limit int) []llms.Message {
	if n := len(turns); n > 0 && turns[n-1].Role == sessions.RoleUser && turns[n-1].Content == question {
		turns = turns[:n-1]
	}
	if len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}

	messages := make([]llms.Message, 0, len(turns))
	for _, turn := range turns {
		role := llms.MessageRoleUser
		if turn.Role == sessions.RoleAssistant {
			role = llms.MessageRoleAssistant
		}
		messages = append(messages, llms.Message{Role: role, Content: turn.Content})
	}
	return messages
}
