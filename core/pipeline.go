package tutoring

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"text/template"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/chalklabs/chalk-core/core/events"
	"github.com/chalklabs/chalk-core/core/knowledge"
	"github.com/chalklabs/chalk-core/core/llms"
	"github.com/chalklabs/chalk-core/core/sessions"
	"github.com/chalklabs/chalk-core/core/texttospeech"
)

//go:embed responseinstructions.tmpl
var responseInstructions string

var responseInstructionsTemplate = template.Must(
	template.New("responseinstructions").Parse(responseInstructions))

const (
	maxToolCallRounds     = 6
	retrievedResultsLimit = 3
)

type instructionsData struct {
	Subject            string
	Mode               Mode
	RetrievedContext   string
	HighlightedContext string
	ExtraContext       string
}

type objectDirectivePayload struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
	Tags    []string        `json:"tags"`
}

type referenceDirectivePayload struct {
	ObjectID string `json:"objectId"`
}

// responsePipeline runs one response end to end: generation, sentence
// cutting, synthesis dispatch, canvas directives, turn append and terminal
// event. One pipeline per StreamResponse call; it is not restartable.
type responsePipeline struct {
	orchestrator *Orchestrator
	session      sessions.Session
	question     string
	options      responseOptions

	queue      *eventQueue
	segmenter  *SentenceSegmenter
	dispatcher *synthesisDispatcher

	// Turn assembly state. Written only by the generation worker and read
	// by finalisation after both workers are done.
	sentences          []string
	objectsCreated     []string
	objectsReferenced  []string
	highlightedContext string
	failureCode        string
	appendedTurnID     string

	cancelMu  sync.Mutex
	cancelRun func()
	cancelled atomic.Bool
}

func newResponsePipeline(orchestrator *Orchestrator, session sessions.Session, question string, options responseOptions) *responsePipeline {
	p := &responsePipeline{
		orchestrator: orchestrator,
		session:      session,
		question:     question,
		options:      options,
		queue:        newEventQueue(),
		segmenter:    NewSentenceSegmenter(orchestrator.segmenterOpts...),
	}
	p.dispatcher = newSynthesisDispatcher(orchestrator.synthesisConcurrency, p.synthesizeSentence)
	return p
}

// Run executes the pipeline to completion and then closes the event queue,
// so the consumer always sees a finite stream. Call it once, from its own
// goroutine. Cancellation of ctx cancels the response the same way an
// explicit Cancel does.
func (p *responsePipeline) Run(ctx context.Context) {
	hookDone := withContextCancelHook(ctx, p.Cancel)
	defer close(hookDone)

	ctx, span := tracer.Start(ctx, "stream response")
	defer span.End()
	span.SetAttributes(
		attribute.String("session.id", p.session.ID),
		attribute.String("response.mode", string(p.options.mode)),
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p.cancelMu.Lock()
	p.cancelRun = cancel
	p.cancelMu.Unlock()

	var workerErr error
	workerErrMu := sync.Mutex{}
	addWorkerErr := func(err error) {
		if err == nil {
			return
		}
		workerErrMu.Lock()
		workerErr = errors.Join(workerErr, err)
		workerErrMu.Unlock()
	}

	run := func(name string, f func(context.Context) error) {
		defer func() {
			if recovered := recover(); recovered != nil {
				addWorkerErr(fmt.Errorf("%s worker panicked: %v", name, recovered))
				cancel()
			}
		}()

		if err := f(ctx); err != nil {
			addWorkerErr(fmt.Errorf("%s worker failed: %w", name, err))
			cancel()
		}
	}

	wg := &sync.WaitGroup{}
	wg.Add(2)
	go func() {
		defer wg.Done()
		run("generation", p.generate)
	}()
	go func() {
		defer wg.Done()
		run("audio collection", p.collectAudio)
	}()
	wg.Wait()

	finaliseErr := func() (err error) {
		defer func() {
			if recovered := recover(); recovered != nil {
				err = fmt.Errorf("turn append panicked: %v", recovered)
			}
		}()

		return p.appendTurn()
	}()
	addWorkerErr(finaliseErr)

	if !p.IsCancelled() {
		if workerErr != nil {
			span.RecordError(workerErr)
			span.SetStatus(codes.Error, workerErr.Error())

			code := p.failureCode
			if code == "" {
				code = events.CodeInternal
			}
			p.queue.Push(events.NewResponseError(code, workerErr.Error()))
		} else {
			p.queue.Push(events.NewResponseDone(p.appendedTurnID))
		}
	}

	p.queue.Close()
}

// Cancel flips the pipeline into its cancelled terminal state: generation
// stops pulling fragments, queued synthesis is abandoned, and the stream
// closes without a terminal event. Safe to call at any time, once or more.
func (p *responsePipeline) Cancel() {
	if p == nil || !p.cancelled.CompareAndSwap(false, true) {
		return
	}

	p.dispatcher.Stop()

	p.cancelMu.Lock()
	if p.cancelRun != nil {
		p.cancelRun()
	}
	p.cancelMu.Unlock()
}

func (p *responsePipeline) IsCancelled() bool {
	if p == nil {
		return false
	}

	return p.cancelled.Load()
}

func (p *responsePipeline) generate(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "generate response")
	defer span.End()
	defer p.dispatcher.Close()

	if p.IsCancelled() {
		return nil
	}

	instructions, err := p.buildInstructions(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	scanner := newDirectiveScanner(
		func(text string) { p.handleText(ctx, text) },
		func(d directive) { p.handleDirective(ctx, d) },
	)

	tools := append([]llms.Tool(nil), p.orchestrator.tools...)
	if p.orchestrator.retriever != nil {
		tools = append(tools, knowledge.NewGeneratorTool(ctx, p.orchestrator.retriever, p.session.Subject))
	}

	messages := promptHistory(p.session.Turns, p.question, p.orchestrator.historyLimit)
	prompt := p.question

	for round := 0; ; round++ {
		stream := p.orchestrator.generator.PromptWithStream(ctx, prompt,
			llms.WithInstructions(instructions),
			llms.WithMessages(messages...),
			llms.WithTools(tools...),
		)

		var roundContent strings.Builder
		var toolCalls []llms.ToolCall
		for chunk, err := range stream.Chunks(ctx) {
			if p.IsCancelled() {
				return nil
			}
			if err != nil {
				p.failureCode = events.CodeGenerationFailed
				err = fmt.Errorf("failed to stream generation: %w", err)
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				return err
			}

			switch chunk := chunk.(type) {
			case llms.StreamContentChunk:
				roundContent.WriteString(chunk.Content())
				scanner.Write(chunk.Content())
			case llms.StreamToolCallChunk:
				toolCalls = append(toolCalls, chunk.ToolCall())
			}
		}

		if len(toolCalls) == 0 {
			break
		}
		if round == maxToolCallRounds-1 {
			logger.WarnContext(ctx, "tool call round limit reached, answering without further calls",
				"rounds", maxToolCallRounds)
			break
		}

		for i := range toolCalls {
			toolCalls[i].Response = p.callTool(ctx, tools, toolCalls[i])
		}

		if prompt != "" {
			messages = append(messages, llms.Message{Role: llms.MessageRoleUser, Content: prompt})
			prompt = ""
		}
		messages = append(messages, llms.Message{
			Role:      llms.MessageRoleAssistant,
			Content:   roundContent.String(),
			ToolCalls: toolCalls,
		})
	}

	if p.IsCancelled() {
		return nil
	}

	if err := scanner.Flush(); err != nil {
		logger.WarnContext(ctx, "discarding incomplete directive", "error", err)
	}
	if tail := p.segmenter.Flush(); tail != nil {
		p.emitSentence(ctx, *tail)
	}

	return nil
}

func (p *responsePipeline) collectAudio(ctx context.Context) error {
	_, span := tracer.Start(ctx, "collect synthesized audio")
	defer span.End()

	for result := range p.dispatcher.Results {
		if p.IsCancelled() {
			break
		}

		if result.Err == nil && result.Audio == nil {
			result.Err = fmt.Errorf("synthesizer returned no audio")
		}
		if result.Err != nil {
			err := fmt.Errorf("failed to synthesize sentence %d: %w", result.Sentence.Index, result.Err)
			span.RecordError(err)
			p.queue.Push(events.NewSentenceError(result.Sentence.Index, events.CodeSynthesisFailed, err.Error()))
			continue
		}

		p.queue.Push(events.NewResponseAudioSegment(result.Sentence.Index, result.Audio.Data, result.Audio.MimeType))
	}

	return nil
}

func (p *responsePipeline) buildInstructions(ctx context.Context) (string, error) {
	data := instructionsData{
		Subject:      p.session.Subject,
		Mode:         p.options.mode,
		ExtraContext: p.options.extraContext,
	}

	if len(p.options.highlightedObjectIDs) > 0 {
		summary, err := p.orchestrator.contextBuilder.SummarizeHighlighted(ctx, p.session.CanvasObjects, p.options.highlightedObjectIDs)
		if err != nil {
			return "", fmt.Errorf("failed to summarize highlighted objects: %w", err)
		}
		p.highlightedContext = summary
		data.HighlightedContext = summary
	}

	if p.orchestrator.retriever != nil {
		results, err := p.orchestrator.retriever.Search(ctx, p.session.Subject, p.question, retrievedResultsLimit)
		if err != nil {
			logger.WarnContext(ctx, "knowledge retrieval failed, continuing without it", "error", err)
		} else {
			data.RetrievedContext = formatRetrievedContext(results)
		}
	}

	var rendered bytes.Buffer
	if err := responseInstructionsTemplate.Execute(&rendered, data); err != nil {
		return "", fmt.Errorf("failed to render response instructions: %w", err)
	}
	return rendered.String(), nil
}

func (p *responsePipeline) handleText(ctx context.Context, text string) {
	for _, sentence := range p.segmenter.AddChunk(text) {
		p.emitSentence(ctx, sentence)
	}
}

func (p *responsePipeline) emitSentence(ctx context.Context, sentence Sentence) {
	if p.IsCancelled() {
		return
	}

	p.sentences = append(p.sentences, sentence.Text)
	p.queue.Push(events.NewResponseTextSegment(sentence.Index, sentence.Text))
	if p.orchestrator.synthesizer != nil {
		p.dispatcher.Submit(ctx, sentence)
	}
}

func (p *responsePipeline) handleDirective(ctx context.Context, d directive) {
	if p.IsCancelled() {
		return
	}

	span := trace.SpanFromContext(ctx)
	switch d.Kind {
	case directiveObject:
		var payload objectDirectivePayload
		if err := json.Unmarshal([]byte(d.Payload), &payload); err != nil {
			logger.WarnContext(ctx, "dropping malformed object directive", "error", err)
			return
		}
		if payload.Type == "" {
			logger.WarnContext(ctx, "dropping object directive without a type")
			return
		}

		object := sessions.CanvasObject{
			Type:    payload.Type,
			Payload: payload.Payload,
			Meta: sessions.ObjectMeta{
				TurnID:  p.options.turnID,
				Subject: p.session.Subject,
				Tags:    payload.Tags,
			},
		}
		stored, err := p.orchestrator.store.AppendCanvasObjects(p.session.ID, object)
		if err != nil || len(stored) == 0 {
			logger.WarnContext(ctx, "failed to append canvas object", "error", err)
			return
		}

		p.objectsCreated = append(p.objectsCreated, stored[0].ID)
		p.queue.Push(events.NewCanvasObjectCreated(stored[0]))
		span.AddEvent("canvas object appended", trace.WithAttributes(
			attribute.String("object.id", stored[0].ID),
			attribute.String("object.type", stored[0].Type),
		))

	case directiveRef:
		var payload referenceDirectivePayload
		if err := json.Unmarshal([]byte(d.Payload), &payload); err != nil || payload.ObjectID == "" {
			logger.WarnContext(ctx, "dropping malformed reference directive", "error", err)
			return
		}

		p.objectsReferenced = append(p.objectsReferenced, payload.ObjectID)
		p.queue.Push(events.NewObjectReferenced(payload.ObjectID))
		span.AddEvent("canvas object referenced", trace.WithAttributes(
			attribute.String("object.id", payload.ObjectID),
		))
	}
}

func (p *responsePipeline) callTool(ctx context.Context, tools []llms.Tool, call llms.ToolCall) string {
	ctx, span := tracer.Start(ctx, "execute tool")
	defer span.End()
	span.SetAttributes(attribute.String("tool.name", call.Name))

	for _, tool := range tools {
		if tool.Function.Name != call.Name {
			continue
		}

		response, err := tool.Execute(call.Arguments)
		if err != nil {
			err = fmt.Errorf("failed to execute tool %q: %w", call.Name, err)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return "Error: " + err.Error()
		}
		return response
	}

	err := fmt.Errorf("tool not found: %s", call.Name)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return "Error: " + err.Error()
}

// appendTurn records the assistant turn exactly once, after the workers are
// done, so the transcript reflects what was actually delivered even on
// partial failure. A cancelled response that delivered nothing appends
// nothing.
func (p *responsePipeline) appendTurn() error {
	content := strings.Join(p.sentences, " ")
	if p.IsCancelled() && content == "" && len(p.objectsCreated) == 0 && len(p.objectsReferenced) == 0 {
		return nil
	}

	stored, err := p.orchestrator.store.AppendTurn(p.session.ID, sessions.Turn{
		ID:                 p.options.turnID,
		Role:               sessions.RoleAssistant,
		Content:            content,
		ObjectsCreated:     p.objectsCreated,
		ObjectsReferenced:  p.objectsReferenced,
		HighlightedContext: p.highlightedContext,
	})
	if err != nil {
		return fmt.Errorf("failed to append assistant turn: %w", err)
	}

	p.appendedTurnID = stored.ID
	return nil
}

func (p *responsePipeline) synthesizeSentence(ctx context.Context, sentence Sentence) (*texttospeech.Audio, error) {
	return p.orchestrator.synthesizer.Synthesize(ctx, sentence.Text, texttospeech.WithVoice(p.options.voice))
}

func formatRetrievedContext(results []knowledge.Result) string {
	var sb strings.Builder
	for _, result := range results {
		passage := result.Content
		if len(passage) > 400 {
			passage = passage[:400] + "..."
		}
		sb.WriteString(fmt.Sprintf("- %s: %s\n", result.Title, passage))
	}
	return sb.String()
}
