package tutoring

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/chalklabs/chalk-core/core/events"
	"github.com/chalklabs/chalk-core/core/llms"
	"github.com/chalklabs/chalk-core/core/sessions"
	"github.com/chalklabs/chalk-core/core/texttospeech"
)

type generatorFunc func(ctx context.Context, prompt string, opts ...llms.PromptOption) llms.Stream

func (f generatorFunc) PromptWithStream(ctx context.Context, prompt string, opts ...llms.PromptOption) llms.Stream {
	return f(ctx, prompt, opts...)
}

func fragmentGenerator(fragments ...string) Generator {
	return generatorFunc(func(context.Context, string, ...llms.PromptOption) llms.Stream {
		return scriptedStream{chunks: contentChunks(fragments...)}
	})
}

type scriptedChunk struct {
	content  string
	toolCall *llms.ToolCall
	err      error
}

func contentChunks(fragments ...string) []scriptedChunk {
	chunks := make([]scriptedChunk, 0, len(fragments))
	for _, fragment := range fragments {
		chunks = append(chunks, scriptedChunk{content: fragment})
	}
	return chunks
}

type scriptedStream struct {
	chunks []scriptedChunk
}

func (s scriptedStream) Chunks(context.Context) func(func(llms.StreamChunk, error) bool) {
	return func(yield func(llms.StreamChunk, error) bool) {
		for _, chunk := range s.chunks {
			if chunk.err != nil {
				if !yield(nil, chunk.err) {
					return
				}
				continue
			}
			if chunk.toolCall != nil {
				if !yield(toolCallChunkStub{call: *chunk.toolCall}, nil) {
					return
				}
				continue
			}
			if !yield(contentChunkStub{content: chunk.content}, nil) {
				return
			}
		}
	}
}

// feedStream delivers chunks pushed through a channel, ending when the
// channel closes or the stream context is cancelled.
type feedStream struct {
	chunks chan scriptedChunk
}

func (s feedStream) Chunks(ctx context.Context) func(func(llms.StreamChunk, error) bool) {
	return func(yield func(llms.StreamChunk, error) bool) {
		for {
			select {
			case chunk, ok := <-s.chunks:
				if !ok {
					return
				}
				if !yield(contentChunkStub{content: chunk.content}, nil) {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}
}

type contentChunkStub struct{ content string }

func (c contentChunkStub) FinishReason() *string { return nil }
func (c contentChunkStub) Content() string       { return c.content }

type toolCallChunkStub struct{ call llms.ToolCall }

func (c toolCallChunkStub) FinishReason() *string   { return nil }
func (c toolCallChunkStub) ToolCall() llms.ToolCall { return c.call }

type synthesizerFunc func(ctx context.Context, text string, opts ...texttospeech.SynthesizeOption) (*texttospeech.Audio, error)

func (f synthesizerFunc) Synthesize(ctx context.Context, text string, opts ...texttospeech.SynthesizeOption) (*texttospeech.Audio, error) {
	return f(ctx, text, opts...)
}

func echoSynthesizer() Synthesizer {
	return synthesizerFunc(func(_ context.Context, text string, _ ...texttospeech.SynthesizeOption) (*texttospeech.Audio, error) {
		return &texttospeech.Audio{Data: []byte(text), MimeType: "audio/mpeg"}, nil
	})
}

func collectEvents(t *testing.T, stream *ResponseStream) []events.Event {
	t.Helper()

	collected := make(chan []events.Event, 1)
	go func() {
		var all []events.Event
		for event := range stream.Events {
			all = append(all, event)
		}
		collected <- all
	}()

	select {
	case all := <-collected:
		return all
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for the response stream to close")
		return nil
	}
}

func textSegments(all []events.Event) []events.ResponseTextSegment {
	var segments []events.ResponseTextSegment
	for _, event := range all {
		if segment, ok := event.(events.ResponseTextSegment); ok {
			segments = append(segments, segment)
		}
	}
	return segments
}

func audioSegments(all []events.Event) []events.ResponseAudioSegment {
	var segments []events.ResponseAudioSegment
	for _, event := range all {
		if segment, ok := event.(events.ResponseAudioSegment); ok {
			segments = append(segments, segment)
		}
	}
	return segments
}

func TestOrchestratorStreamsTextBeforeAudioInOrder(t *testing.T) {
	store := sessions.NewStore()
	session := store.Create("calculus", "")

	o := NewOrchestrator(store,
		WithGenerator(fragmentGenerator(
			"The derivative measures how fast a function changes. ",
			"Picture the slope of a tangent line. ",
			"Limits make that idea precise.",
		)),
		WithSynthesizer(echoSynthesizer()),
	)

	stream, err := o.StreamResponse(context.Background(), session.ID, "What is a derivative?")
	if err != nil {
		t.Fatalf("expected stream to start, got: %v", err)
	}

	all := collectEvents(t, stream)

	wantSentences := []string{
		"The derivative measures how fast a function changes.",
		"Picture the slope of a tangent line.",
		"Limits make that idea precise.",
	}

	texts := textSegments(all)
	if len(texts) != len(wantSentences) {
		t.Fatalf("expected %d text segments, got %d: %v", len(wantSentences), len(texts), all)
	}
	for i, segment := range texts {
		if segment.Index != i {
			t.Fatalf("expected text segment %d to carry index %d, got %d", i, i, segment.Index)
		}
		if segment.Text != wantSentences[i] {
			t.Fatalf("expected text segment %d to be %q, got %q", i, wantSentences[i], segment.Text)
		}
	}

	audio := audioSegments(all)
	if len(audio) != len(wantSentences) {
		t.Fatalf("expected %d audio segments, got %d", len(wantSentences), len(audio))
	}
	for i, segment := range audio {
		if segment.Index != i {
			t.Fatalf("expected audio segments in index order, got index %d at position %d", segment.Index, i)
		}
		if string(segment.Audio) != wantSentences[i] {
			t.Fatalf("expected audio for sentence %d to carry its text, got %q", i, segment.Audio)
		}
	}

	textPosition := make(map[int]int)
	audioPosition := make(map[int]int)
	for position, event := range all {
		switch event := event.(type) {
		case events.ResponseTextSegment:
			textPosition[event.Index] = position
		case events.ResponseAudioSegment:
			audioPosition[event.Index] = position
		}
	}
	for i := 0; i < len(wantSentences); i++ {
		if textPosition[i] > audioPosition[i] {
			t.Fatalf("expected text for sentence %d to precede its audio", i)
		}
	}

	done, ok := all[len(all)-1].(events.ResponseDone)
	if !ok {
		t.Fatalf("expected the stream to end with a done event, got %T", all[len(all)-1])
	}
	if done.TurnID == "" {
		t.Fatalf("expected the done event to name the appended turn")
	}

	updated, err := store.Get(session.ID)
	if err != nil {
		t.Fatalf("failed to reload session: %v", err)
	}
	if len(updated.Turns) != 1 {
		t.Fatalf("expected exactly one appended turn, got %d", len(updated.Turns))
	}
	turn := updated.Turns[0]
	if turn.Role != sessions.RoleAssistant {
		t.Fatalf("expected an assistant turn, got %q", turn.Role)
	}
	if turn.ID != done.TurnID {
		t.Fatalf("expected done event to name turn %q, got %q", turn.ID, done.TurnID)
	}
	if want := strings.Join(wantSentences, " "); turn.Content != want {
		t.Fatalf("expected turn content %q, got %q", want, turn.Content)
	}
}

func TestOrchestratorEmitsAudioInSentenceOrderDespiteCompletionOrder(t *testing.T) {
	store := sessions.NewStore()
	session := store.Create("physics", "")

	wantSentences := []string{
		"Velocity is the rate of change of position.",
		"Acceleration is the rate of change of velocity.",
		"Force equals mass times acceleration.",
	}
	indexOf := func(text string) int {
		for i, sentence := range wantSentences {
			if sentence == text {
				return i
			}
		}
		return -1
	}

	// Chain the completions backwards: sentence 2 finishes first, then 1,
	// then 0. Emission order must still be 0, 1, 2.
	finished := []chan struct{}{make(chan struct{}), make(chan struct{}), make(chan struct{})}
	synthesizer := synthesizerFunc(func(_ context.Context, text string, _ ...texttospeech.SynthesizeOption) (*texttospeech.Audio, error) {
		index := indexOf(text)
		if index < 0 {
			return nil, fmt.Errorf("unexpected sentence %q", text)
		}
		defer close(finished[index])
		switch index {
		case 0:
			<-finished[1]
		case 1:
			<-finished[2]
		}
		return &texttospeech.Audio{Data: []byte{byte(index)}, MimeType: "audio/mpeg"}, nil
	})

	o := NewOrchestrator(store,
		WithGenerator(fragmentGenerator(strings.Join(wantSentences, " ")+" ")),
		WithSynthesizer(synthesizer),
		WithSynthesisConcurrency(3),
	)

	stream, err := o.StreamResponse(context.Background(), session.ID, "Summarize the basics.")
	if err != nil {
		t.Fatalf("expected stream to start, got: %v", err)
	}

	audio := audioSegments(collectEvents(t, stream))
	if len(audio) != 3 {
		t.Fatalf("expected 3 audio segments, got %d", len(audio))
	}
	for i, segment := range audio {
		if segment.Index != i {
			t.Fatalf("expected audio emitted in sentence order, got index %d at position %d", segment.Index, i)
		}
	}
}

func TestOrchestratorReportsSynthesisFailureInPosition(t *testing.T) {
	store := sessions.NewStore()
	session := store.Create("algebra", "")

	wantSentences := []string{
		"Factor the quadratic expression first.",
		"Then set each factor equal to zero.",
		"Finally solve the two linear equations.",
	}
	synthesizer := synthesizerFunc(func(_ context.Context, text string, _ ...texttospeech.SynthesizeOption) (*texttospeech.Audio, error) {
		if text == wantSentences[1] {
			return nil, errors.New("voice service unavailable")
		}
		return &texttospeech.Audio{Data: []byte(text), MimeType: "audio/mpeg"}, nil
	})

	o := NewOrchestrator(store,
		WithGenerator(fragmentGenerator(strings.Join(wantSentences, " ")+" ")),
		WithSynthesizer(synthesizer),
	)

	stream, err := o.StreamResponse(context.Background(), session.ID, "How do I solve it?")
	if err != nil {
		t.Fatalf("expected stream to start, got: %v", err)
	}

	all := collectEvents(t, stream)

	audio := audioSegments(all)
	if len(audio) != 2 {
		t.Fatalf("expected audio for the two surviving sentences, got %d segments", len(audio))
	}
	if audio[0].Index != 0 || audio[1].Index != 2 {
		t.Fatalf("expected audio for sentences 0 and 2, got %d and %d", audio[0].Index, audio[1].Index)
	}

	var positioned *events.ResponseError
	errorPosition := -1
	audioPosition := make(map[int]int)
	for position, event := range all {
		switch event := event.(type) {
		case events.ResponseError:
			positioned = &event
			errorPosition = position
		case events.ResponseAudioSegment:
			audioPosition[event.Index] = position
		}
	}
	if positioned == nil {
		t.Fatalf("expected a positioned synthesis error event")
	}
	if positioned.SentenceIndex == nil || *positioned.SentenceIndex != 1 {
		t.Fatalf("expected the error to stand in for sentence 1, got %v", positioned.SentenceIndex)
	}
	if positioned.Code != events.CodeSynthesisFailed {
		t.Fatalf("expected code %q, got %q", events.CodeSynthesisFailed, positioned.Code)
	}
	if errorPosition < audioPosition[0] || errorPosition > audioPosition[2] {
		t.Fatalf("expected the error in sentence 1's ordered slot, got position %d", errorPosition)
	}

	if _, ok := all[len(all)-1].(events.ResponseDone); !ok {
		t.Fatalf("expected the stream to still end with done, got %T", all[len(all)-1])
	}

	updated, _ := store.Get(session.ID)
	if len(updated.Turns) != 1 {
		t.Fatalf("expected the turn to be appended despite the synthesis failure")
	}
	if want := strings.Join(wantSentences, " "); updated.Turns[0].Content != want {
		t.Fatalf("expected the full text in the transcript, got %q", updated.Turns[0].Content)
	}
}

func TestOrchestratorReportsGenerationFailure(t *testing.T) {
	store := sessions.NewStore()
	session := store.Create("geometry", "")

	generator := generatorFunc(func(context.Context, string, ...llms.PromptOption) llms.Stream {
		return scriptedStream{chunks: []scriptedChunk{
			{content: "Here is the first idea explained fully. And then the"},
			{err: errors.New("model connection reset")},
		}}
	})

	o := NewOrchestrator(store, WithGenerator(generator))

	stream, err := o.StreamResponse(context.Background(), session.ID, "Explain congruence.")
	if err != nil {
		t.Fatalf("expected stream to start, got: %v", err)
	}

	all := collectEvents(t, stream)

	texts := textSegments(all)
	if len(texts) != 1 {
		t.Fatalf("expected the completed sentence to be delivered, got %d segments", len(texts))
	}
	if texts[0].Text != "Here is the first idea explained fully." {
		t.Fatalf("unexpected delivered sentence %q", texts[0].Text)
	}

	terminal, ok := all[len(all)-1].(events.ResponseError)
	if !ok {
		t.Fatalf("expected the stream to end with a terminal error, got %T", all[len(all)-1])
	}
	if terminal.SentenceIndex != nil {
		t.Fatalf("expected a terminal error, got one positioned at %d", *terminal.SentenceIndex)
	}
	if terminal.Code != events.CodeGenerationFailed {
		t.Fatalf("expected code %q, got %q", events.CodeGenerationFailed, terminal.Code)
	}
	if !strings.Contains(terminal.Message, "model connection reset") {
		t.Fatalf("expected the cause in the error message, got %q", terminal.Message)
	}
	for _, event := range all {
		if _, ok := event.(events.ResponseDone); ok {
			t.Fatalf("expected no done event after a generation failure")
		}
	}

	updated, _ := store.Get(session.ID)
	if len(updated.Turns) != 1 {
		t.Fatalf("expected the partial turn to be appended, got %d turns", len(updated.Turns))
	}
	if updated.Turns[0].Content != "Here is the first idea explained fully." {
		t.Fatalf("expected the transcript to hold what was delivered, got %q", updated.Turns[0].Content)
	}
}

func TestOrchestratorCancelKeepsDeliveredSentences(t *testing.T) {
	store := sessions.NewStore()
	session := store.Create("history", "")

	feed := make(chan scriptedChunk, 8)
	generator := generatorFunc(func(context.Context, string, ...llms.PromptOption) llms.Stream {
		return feedStream{chunks: feed}
	})

	o := NewOrchestrator(store, WithGenerator(generator))

	stream, err := o.StreamResponse(context.Background(), session.ID, "Tell me about the era.")
	if err != nil {
		t.Fatalf("expected stream to start, got: %v", err)
	}

	feed <- scriptedChunk{content: "The first sentence arrives now. "}
	feed <- scriptedChunk{content: "The second sentence arrives now. "}
	feed <- scriptedChunk{content: "A third idea starts but"}

	var all []events.Event
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		for event := range stream.Events {
			all = append(all, event)
			if len(textSegments(all)) == 2 {
				stream.Cancel()
			}
		}
	}()

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for the cancelled stream to close")
	}

	texts := textSegments(all)
	if len(texts) != 2 {
		t.Fatalf("expected exactly the two delivered sentences, got %d", len(texts))
	}
	for _, event := range all {
		switch event.(type) {
		case events.ResponseDone, events.ResponseError:
			t.Fatalf("expected no terminal event after cancellation, got %T", event)
		}
	}

	updated, _ := store.Get(session.ID)
	if len(updated.Turns) != 1 {
		t.Fatalf("expected one turn holding the delivered text, got %d", len(updated.Turns))
	}
	want := "The first sentence arrives now. The second sentence arrives now."
	if updated.Turns[0].Content != want {
		t.Fatalf("expected turn content %q, got %q", want, updated.Turns[0].Content)
	}
}

func TestOrchestratorAppliesCanvasDirectives(t *testing.T) {
	store := sessions.NewStore()
	session := store.Create("geometry", "")
	existing, err := store.AppendCanvasObjects(session.ID, sessions.CanvasObject{
		Type:    sessions.ObjectTypePlot,
		Payload: json.RawMessage(`{"points": []}`),
	})
	if err != nil {
		t.Fatalf("failed to seed a canvas object: %v", err)
	}

	o := NewOrchestrator(store,
		WithGenerator(fragmentGenerator(
			"Here is a right triangle for you. ",
			`[[object]]{"type": "diagram", "payload": {"shape": "triangle"}, "tags": ["geometry"]}[[/object]]`,
			" Compare it with the earlier plot. ",
			`[[ref]]{"objectId": "`+existing[0].ID+`"}[[/ref]]`,
		)),
	)

	stream, err := o.StreamResponse(context.Background(), session.ID, "Draw me a triangle.")
	if err != nil {
		t.Fatalf("expected stream to start, got: %v", err)
	}

	all := collectEvents(t, stream)

	var created *events.CanvasObjectCreated
	var referenced *events.ObjectReferenced
	createdPosition, firstTextPosition, secondTextPosition := -1, -1, -1
	for position, event := range all {
		switch event := event.(type) {
		case events.CanvasObjectCreated:
			if created != nil {
				t.Fatalf("expected a single canvas object event")
			}
			created = &event
			createdPosition = position
		case events.ObjectReferenced:
			referenced = &event
		case events.ResponseTextSegment:
			if event.Index == 0 {
				firstTextPosition = position
			} else {
				secondTextPosition = position
			}
		}
	}

	if created == nil {
		t.Fatalf("expected a canvas object event")
	}
	if created.Object.ID == "" || created.Object.Type != "diagram" {
		t.Fatalf("unexpected created object %+v", created.Object)
	}
	if len(created.Object.Meta.Tags) != 1 || created.Object.Meta.Tags[0] != "geometry" {
		t.Fatalf("expected directive tags on the stored object, got %v", created.Object.Meta.Tags)
	}
	if created.Object.Meta.Subject != "geometry" {
		t.Fatalf("expected the session subject on the stored object, got %q", created.Object.Meta.Subject)
	}
	if createdPosition < firstTextPosition || createdPosition > secondTextPosition {
		t.Fatalf("expected the object event between the two sentences, got position %d", createdPosition)
	}

	if referenced == nil {
		t.Fatalf("expected a reference event")
	}
	if referenced.ObjectID != existing[0].ID {
		t.Fatalf("expected reference to %q, got %q", existing[0].ID, referenced.ObjectID)
	}

	updated, _ := store.Get(session.ID)
	if len(updated.CanvasObjects) != 2 {
		t.Fatalf("expected the directive object appended to the canvas, got %d objects", len(updated.CanvasObjects))
	}
	if len(updated.Turns) != 1 {
		t.Fatalf("expected one appended turn, got %d", len(updated.Turns))
	}
	turn := updated.Turns[0]
	if len(turn.ObjectsCreated) != 1 || turn.ObjectsCreated[0] != created.Object.ID {
		t.Fatalf("expected the turn to list the created object, got %v", turn.ObjectsCreated)
	}
	if len(turn.ObjectsReferenced) != 1 || turn.ObjectsReferenced[0] != existing[0].ID {
		t.Fatalf("expected the turn to list the referenced object, got %v", turn.ObjectsReferenced)
	}
	want := "Here is a right triangle for you. Compare it with the earlier plot."
	if turn.Content != want {
		t.Fatalf("expected directive markers stripped from the text, got %q", turn.Content)
	}
}

func TestOrchestratorDropsMalformedDirectives(t *testing.T) {
	store := sessions.NewStore()
	session := store.Create("chemistry", "")

	o := NewOrchestrator(store,
		WithGenerator(fragmentGenerator(
			"Watch what happens next closely. ",
			`[[object]]{"type": }[[/object]]`,
			" The stream keeps going anyway.",
		)),
	)

	stream, err := o.StreamResponse(context.Background(), session.ID, "Show me the reaction.")
	if err != nil {
		t.Fatalf("expected stream to start, got: %v", err)
	}

	all := collectEvents(t, stream)

	for _, event := range all {
		if _, ok := event.(events.CanvasObjectCreated); ok {
			t.Fatalf("expected the malformed directive to be dropped")
		}
	}
	texts := textSegments(all)
	if len(texts) != 2 {
		t.Fatalf("expected both sentences to survive, got %d", len(texts))
	}
	if _, ok := all[len(all)-1].(events.ResponseDone); !ok {
		t.Fatalf("expected the stream to complete normally, got %T", all[len(all)-1])
	}

	updated, _ := store.Get(session.ID)
	if len(updated.CanvasObjects) != 0 {
		t.Fatalf("expected no canvas objects from a malformed directive")
	}
	if len(updated.Turns) != 1 || len(updated.Turns[0].ObjectsCreated) != 0 {
		t.Fatalf("expected a turn without created objects, got %+v", updated.Turns)
	}
}

func TestOrchestratorDropsUnterminatedDirectiveAtStreamEnd(t *testing.T) {
	store := sessions.NewStore()
	session := store.Create("math", "")

	o := NewOrchestrator(store,
		WithGenerator(fragmentGenerator(
			"The answer is forty two exactly. ",
			`[[object]]{"type": "diagram"`,
		)),
	)

	stream, err := o.StreamResponse(context.Background(), session.ID, "What is the answer?")
	if err != nil {
		t.Fatalf("expected stream to start, got: %v", err)
	}

	all := collectEvents(t, stream)

	texts := textSegments(all)
	if len(texts) != 1 || texts[0].Text != "The answer is forty two exactly." {
		t.Fatalf("expected the text before the directive to survive, got %v", texts)
	}
	if _, ok := all[len(all)-1].(events.ResponseDone); !ok {
		t.Fatalf("expected the stream to complete normally, got %T", all[len(all)-1])
	}

	updated, _ := store.Get(session.ID)
	if len(updated.CanvasObjects) != 0 {
		t.Fatalf("expected no canvas objects from an unterminated directive")
	}
}

func TestOrchestratorRunsToolCallRounds(t *testing.T) {
	store := sessions.NewStore()
	session := store.Create("math", "")

	var toolRuns atomic.Int32
	tool := llms.NewTool("lookup_constant", "Look up a mathematical constant",
		map[string]llms.ParameterBase{
			"name": {Type: "string", Description: "Constant name"},
		},
		func(parameters struct {
			Name string `json:"name"`
		}) (string, error) {
			toolRuns.Add(1)
			if parameters.Name != "pi" {
				return "", fmt.Errorf("unknown constant %q", parameters.Name)
			}
			return "pi = 3.14159265", nil
		})

	var mu sync.Mutex
	var prompts []string
	var recorded []llms.PromptOptions
	var calls atomic.Int32
	generator := generatorFunc(func(_ context.Context, prompt string, opts ...llms.PromptOption) llms.Stream {
		options := llms.PromptOptions{}
		for _, opt := range opts {
			opt(&options)
		}

		mu.Lock()
		prompts = append(prompts, prompt)
		recorded = append(recorded, options)
		mu.Unlock()

		if calls.Add(1) == 1 {
			return scriptedStream{chunks: []scriptedChunk{
				{toolCall: &llms.ToolCall{ID: "call-1", Name: "lookup_constant", Arguments: `{"name": "pi"}`}},
			}}
		}
		return scriptedStream{chunks: contentChunks("Pi is roughly 3.14159 for our purposes.")}
	})

	o := NewOrchestrator(store, WithGenerator(generator), WithTools(tool))

	stream, err := o.StreamResponse(context.Background(), session.ID, "What is pi?")
	if err != nil {
		t.Fatalf("expected stream to start, got: %v", err)
	}

	all := collectEvents(t, stream)

	if got := toolRuns.Load(); got != 1 {
		t.Fatalf("expected the tool to run once, ran %d times", got)
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("expected a second generation round after the tool call, got %d", got)
	}

	mu.Lock()
	defer mu.Unlock()
	if prompts[0] != "What is pi?" {
		t.Fatalf("expected the question as the first prompt, got %q", prompts[0])
	}
	if prompts[1] != "" {
		t.Fatalf("expected the question to move into messages on the second round, got prompt %q", prompts[1])
	}
	if recorded[1].Instructions == "" {
		t.Fatalf("expected instructions on the follow-up round")
	}

	messages := recorded[1].Messages
	if len(messages) != 2 {
		t.Fatalf("expected user and assistant messages on the second round, got %d", len(messages))
	}
	if messages[0].Role != llms.MessageRoleUser || messages[0].Content != "What is pi?" {
		t.Fatalf("expected the question as a user message, got %+v", messages[0])
	}
	if messages[1].Role != llms.MessageRoleAssistant || len(messages[1].ToolCalls) != 1 {
		t.Fatalf("expected the assistant tool-call message, got %+v", messages[1])
	}
	if messages[1].ToolCalls[0].Response != "pi = 3.14159265" {
		t.Fatalf("expected the executed tool response, got %q", messages[1].ToolCalls[0].Response)
	}

	texts := textSegments(all)
	if len(texts) != 1 || texts[0].Text != "Pi is roughly 3.14159 for our purposes." {
		t.Fatalf("expected the follow-up answer as text, got %v", texts)
	}
	if _, ok := all[len(all)-1].(events.ResponseDone); !ok {
		t.Fatalf("expected the stream to complete, got %T", all[len(all)-1])
	}
}

func TestOrchestratorThreadsVoiceToSynthesizer(t *testing.T) {
	store := sessions.NewStore()
	session := store.Create("music", "")

	var mu sync.Mutex
	var voices []string
	synthesizer := synthesizerFunc(func(_ context.Context, text string, opts ...texttospeech.SynthesizeOption) (*texttospeech.Audio, error) {
		options := texttospeech.SynthesizeOptions{}
		for _, opt := range opts {
			opt(&options)
		}

		mu.Lock()
		voices = append(voices, options.Voice)
		mu.Unlock()

		return &texttospeech.Audio{Data: []byte(text), MimeType: "audio/mpeg"}, nil
	})

	o := NewOrchestrator(store,
		WithGenerator(fragmentGenerator("Symmetry means invariance under a transformation.")),
		WithSynthesizer(synthesizer),
	)

	stream, err := o.StreamResponse(context.Background(), session.ID, "Explain symmetry.",
		WithResponseVoice("sage"),
	)
	if err != nil {
		t.Fatalf("expected stream to start, got: %v", err)
	}
	collectEvents(t, stream)

	mu.Lock()
	defer mu.Unlock()
	if len(voices) != 1 || voices[0] != "sage" {
		t.Fatalf("expected the requested voice on the synthesis call, got %v", voices)
	}
}

func TestOrchestratorRejectsUnknownSession(t *testing.T) {
	o := NewOrchestrator(sessions.NewStore(),
		WithGenerator(fragmentGenerator("Never reached.")),
	)

	_, err := o.StreamResponse(context.Background(), "missing", "Hello?")
	if !errors.Is(err, sessions.ErrNotFound) {
		t.Fatalf("expected sessions.ErrNotFound, got %v", err)
	}
}

func TestOrchestratorRequiresGenerator(t *testing.T) {
	store := sessions.NewStore()
	session := store.Create("", "")

	o := NewOrchestrator(store)

	if _, err := o.StreamResponse(context.Background(), session.ID, "Anyone there?"); err == nil {
		t.Fatalf("expected an error when no generator is configured")
	}
}
