package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/chalklabs/chalk-core/core/classify"
	"github.com/chalklabs/chalk-core/core/llms"
	"github.com/chalklabs/chalk-core/core/sessions"
)

func decodeEventStream(t *testing.T, body string) []eventEnvelope {
	t.Helper()

	var envelopes []eventEnvelope
	for _, line := range strings.Split(body, "\n") {
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}
		var envelope eventEnvelope
		if err := json.Unmarshal([]byte(data), &envelope); err != nil {
			t.Fatalf("failed to decode SSE line %q: %v", line, err)
		}
		envelopes = append(envelopes, envelope)
	}
	return envelopes
}

func waitForCondition(t *testing.T, timeout time.Duration, description string, condition func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", description)
}

func TestStreamResponseDeliversSSEEvents(t *testing.T) {
	store := sessions.NewStore()
	session := store.Create("geometry", "Right triangles")
	srv := newTestServer(store, fragmentGenerator(
		"The square on the hypotenuse equals the sum of the other two squares. ",
		"Try it with sides three and four.",
	))

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/sessions/"+session.ID+"/stream",
		`{"question": "What is the Pythagorean theorem?"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body)
	}
	if got := rec.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Fatalf("expected text/event-stream content type, got %q", got)
	}

	envelopes := decodeEventStream(t, rec.Body.String())
	if len(envelopes) != 3 {
		t.Fatalf("expected 3 events, got %d: %+v", len(envelopes), envelopes)
	}

	for i, want := range []string{
		"The square on the hypotenuse equals the sum of the other two squares.",
		"Try it with sides three and four.",
	} {
		if envelopes[i].Type != "text_chunk" {
			t.Fatalf("expected event %d to be text_chunk, got %q", i, envelopes[i].Type)
		}
		var text textChunkPayload
		if err := json.Unmarshal(envelopes[i].Payload, &text); err != nil {
			t.Fatalf("failed to decode text payload: %v", err)
		}
		if text.Index != i || text.Text != want {
			t.Fatalf("unexpected text payload %d: %+v", i, text)
		}
	}

	if envelopes[2].Type != "done" {
		t.Fatalf("expected final event to be done, got %q", envelopes[2].Type)
	}
	var done donePayload
	if err := json.Unmarshal(envelopes[2].Payload, &done); err != nil {
		t.Fatalf("failed to decode done payload: %v", err)
	}
	if done.TurnID == "" {
		t.Fatalf("expected done event to carry the assistant turn id")
	}

	stored, err := store.Get(session.ID)
	if err != nil {
		t.Fatalf("failed to load session: %v", err)
	}
	if len(stored.Turns) != 2 {
		t.Fatalf("expected 2 turns, got %d: %+v", len(stored.Turns), stored.Turns)
	}
	if stored.Turns[0].Role != sessions.RoleUser || stored.Turns[0].Content != "What is the Pythagorean theorem?" {
		t.Fatalf("unexpected user turn: %+v", stored.Turns[0])
	}
	assistant := stored.Turns[1]
	if assistant.ID != done.TurnID {
		t.Fatalf("expected assistant turn id %q, got %q", done.TurnID, assistant.ID)
	}
	wantContent := "The square on the hypotenuse equals the sum of the other two squares. Try it with sides three and four."
	if assistant.Content != wantContent {
		t.Fatalf("unexpected assistant content: %q", assistant.Content)
	}
}

func TestStreamResponseRequiresQuestion(t *testing.T) {
	store := sessions.NewStore()
	session := store.Create("geometry", "")
	srv := newTestServer(store, fragmentGenerator("Unused."))

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/sessions/"+session.ID+"/stream", `{"question": "   "}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
}

func TestStreamResponseRejectsUnknownMode(t *testing.T) {
	store := sessions.NewStore()
	session := store.Create("geometry", "")
	srv := newTestServer(store, fragmentGenerator("Unused."))

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/sessions/"+session.ID+"/stream",
		`{"question": "What is a proof?", "mode": "socratic"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
}

func TestStreamResponseCreatesReplacementSession(t *testing.T) {
	store := sessions.NewStore()
	srv := newTestServer(store, fragmentGenerator("Let us start from scratch together."))

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/sessions/gone/stream", `{"question": "Where were we?"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body)
	}
	replacement := rec.Header().Get("X-Chalk-Session")
	if replacement == "" || replacement == "gone" {
		t.Fatalf("expected a replacement session id header, got %q", replacement)
	}

	envelopes := decodeEventStream(t, rec.Body.String())
	if len(envelopes) == 0 || envelopes[len(envelopes)-1].Type != "done" {
		t.Fatalf("expected the stream to end in done, got %+v", envelopes)
	}

	stored, err := store.Get(replacement)
	if err != nil {
		t.Fatalf("failed to load replacement session: %v", err)
	}
	if len(stored.Turns) != 2 {
		t.Fatalf("expected 2 turns on the replacement session, got %+v", stored.Turns)
	}
}

func TestStreamResponseEmitsCanvasObjects(t *testing.T) {
	store := sessions.NewStore()
	session := store.Create("geometry", "")
	srv := newTestServer(store, fragmentGenerator(
		"Here is the triangle we will use. ",
		`[[object]]{"type": "diagram", "payload": {"a": 3, "b": 4}, "tags": ["triangles"]}[[/object]]`,
		"Look at the right angle first.",
	))

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/sessions/"+session.ID+"/stream",
		`{"question": "Can you draw it?"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body)
	}

	envelopes := decodeEventStream(t, rec.Body.String())
	types := make([]string, 0, len(envelopes))
	for _, envelope := range envelopes {
		types = append(types, envelope.Type)
	}
	want := []string{"text_chunk", "canvas_object", "text_chunk", "done"}
	if len(types) != len(want) {
		t.Fatalf("expected events %v, got %v", want, types)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("expected events %v, got %v", want, types)
		}
	}

	var object sessions.CanvasObject
	if err := json.Unmarshal(envelopes[1].Payload, &object); err != nil {
		t.Fatalf("failed to decode canvas object payload: %v", err)
	}
	if object.ID == "" || object.Type != "diagram" {
		t.Fatalf("unexpected canvas object: %+v", object)
	}
	if object.Meta.Subject != "geometry" || len(object.Meta.Tags) != 1 || object.Meta.Tags[0] != "triangles" {
		t.Fatalf("unexpected canvas object meta: %+v", object.Meta)
	}

	stored, err := store.Get(session.ID)
	if err != nil {
		t.Fatalf("failed to load session: %v", err)
	}
	if len(stored.CanvasObjects) != 1 || stored.CanvasObjects[0].ID != object.ID {
		t.Fatalf("expected the canvas object on the session, got %+v", stored.CanvasObjects)
	}
	assistant := stored.Turns[len(stored.Turns)-1]
	if len(assistant.ObjectsCreated) != 1 || assistant.ObjectsCreated[0] != object.ID {
		t.Fatalf("expected the assistant turn to record the created object, got %+v", assistant.ObjectsCreated)
	}
	if object.Meta.TurnID != assistant.ID {
		t.Fatalf("expected object turn id %q, got %q", assistant.ID, object.Meta.TurnID)
	}
}

type classifierStub struct {
	mu        sync.Mutex
	category  classify.Category
	err       error
	questions []string
}

func (c *classifierStub) Classify(_ context.Context, question string, _ ...classify.ClassifyOption) (*classify.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.questions = append(c.questions, question)
	if c.err != nil {
		return nil, c.err
	}
	return &classify.Result{Category: c.category}, nil
}

func (c *classifierStub) recorded() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.questions...)
}

func TestStreamResponseDefaultsModeThroughClassifier(t *testing.T) {
	store := sessions.NewStore()
	session := store.Create("geometry", "Small talk")

	var instructionsMu sync.Mutex
	var instructions []string
	generator := generatorFunc(func(_ context.Context, _ string, opts ...llms.PromptOption) llms.Stream {
		var options llms.PromptOptions
		for _, opt := range opts {
			opt(&options)
		}
		instructionsMu.Lock()
		instructions = append(instructions, options.Instructions)
		instructionsMu.Unlock()
		return scriptedStream{fragments: []string{"Nice to see you again today."}}
	})

	classifier := &classifierStub{category: classify.CategorySmallTalk}
	srv := newTestServer(store, generator, WithClassifier(classifier))

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/sessions/"+session.ID+"/stream",
		`{"question": "Hey, how are you doing today?"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body)
	}
	if questions := classifier.recorded(); len(questions) != 1 || questions[0] != "Hey, how are you doing today?" {
		t.Fatalf("unexpected classified questions: %+v", questions)
	}

	rec = doJSON(t, srv, http.MethodPost, "/api/v1/sessions/"+session.ID+"/stream",
		`{"question": "Walk me through completing the square.", "mode": "guided"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body)
	}
	if questions := classifier.recorded(); len(questions) != 1 {
		t.Fatalf("expected the explicit mode to skip classification, got %+v", questions)
	}

	instructionsMu.Lock()
	defer instructionsMu.Unlock()
	if len(instructions) != 2 {
		t.Fatalf("expected 2 generator calls, got %d", len(instructions))
	}
	if !strings.Contains(instructions[0], "Answer the question directly") {
		t.Fatalf("expected small talk to select the direct mode, got instructions: %q", instructions[0])
	}
	if !strings.Contains(instructions[1], "Guide the student toward the answer") {
		t.Fatalf("expected the explicit guided mode, got instructions: %q", instructions[1])
	}
}

type titlerStub struct {
	mu      sync.Mutex
	title   string
	prompts []string
}

func (s *titlerStub) Prompt(_ context.Context, prompt string, _ ...llms.PromptOption) (*llms.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = append(s.prompts, prompt)
	return &llms.Response{Content: s.title}, nil
}

func (s *titlerStub) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.prompts)
}

func TestStreamResponseAutoTitlesFirstExchange(t *testing.T) {
	store := sessions.NewStore()
	session := store.Create("geometry", "")
	titler := &titlerStub{title: "Right Angle Basics"}
	srv := newTestServer(store, fragmentGenerator("A right angle measures ninety degrees."), WithTitler(titler))

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/sessions/"+session.ID+"/stream",
		`{"question": "How big is a right angle?"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body)
	}

	waitForCondition(t, 2*time.Second, "the session title", func() bool {
		stored, err := store.Get(session.ID)
		return err == nil && stored.Title == "Right Angle Basics"
	})

	titler.mu.Lock()
	prompt := titler.prompts[0]
	titler.mu.Unlock()
	if !strings.Contains(prompt, "How big is a right angle?") {
		t.Fatalf("expected the title prompt to quote the question, got %q", prompt)
	}

	rec = doJSON(t, srv, http.MethodPost, "/api/v1/sessions/"+session.ID+"/stream",
		`{"question": "And a straight angle?"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body)
	}
	if titler.calls() != 1 {
		t.Fatalf("expected titling only after the first exchange, got %d calls", titler.calls())
	}
}
