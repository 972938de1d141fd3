// Package server exposes the tutoring orchestrator over HTTP: session CRUD,
// a server-sent-events ask endpoint, audio transcription and knowledge-base
// notes. The server itself is a plain http.Handler; callers mount it on
// whatever listener they run.
package server

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"

	tutoring "github.com/chalklabs/chalk-core/core"
	"github.com/chalklabs/chalk-core/core/classify"
	"github.com/chalklabs/chalk-core/core/knowledge"
	"github.com/chalklabs/chalk-core/core/llms"
	"github.com/chalklabs/chalk-core/core/sessions"
	"github.com/chalklabs/chalk-core/core/speechtotext"
)

// Classifier categorizes a question so the server can pick a response mode
// when the client did not send one.
type Classifier interface {
	Classify(ctx context.Context, question string, opts ...classify.ClassifyOption) (*classify.Result, error)
}

// Titler makes the single-shot generator call that names an untitled
// session after its first exchange.
type Titler interface {
	Prompt(ctx context.Context, prompt string, opts ...llms.PromptOption) (*llms.Response, error)
}

// KnowledgeBase stores study notes and serves semantic search over them.
type KnowledgeBase interface {
	knowledge.Retriever
	Upsert(ctx context.Context, doc knowledge.Document) (string, error)
}

// Transcriber is one live transcription stream. A stream cannot be reused,
// so the server asks a TranscriberFactory for a fresh one per request.
type Transcriber interface {
	Transcribe(ctx context.Context, opts ...speechtotext.TranscriptionOption) error
	SendAudio(audio []byte) error
	StopStream() error
}

type TranscriberFactory func() (Transcriber, error)

// Server routes HTTP requests to the session store, the orchestrator and
// the optional collaborators. Endpoints whose collaborator is absent answer
// 503 rather than failing at startup.
type Server struct {
	echo *echo.Echo

	store        *sessions.Store
	orchestrator *tutoring.Orchestrator

	classifier    Classifier
	knowledgeBase KnowledgeBase
	titler        Titler
	transcribers  TranscriberFactory
}

type Option func(*Server)

func WithClassifier(classifier Classifier) Option {
	return func(s *Server) { s.classifier = classifier }
}

func WithKnowledgeBase(knowledgeBase KnowledgeBase) Option {
	return func(s *Server) { s.knowledgeBase = knowledgeBase }
}

func WithTitler(titler Titler) Option {
	return func(s *Server) { s.titler = titler }
}

func WithTranscriberFactory(factory TranscriberFactory) Option {
	return func(s *Server) { s.transcribers = factory }
}

func New(store *sessions.Store, orchestrator *tutoring.Orchestrator, opts ...Option) *Server {
	s := &Server{store: store, orchestrator: orchestrator}
	for _, opt := range opts {
		opt(s)
	}

	e := echo.New()
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	e.GET("/healthz", s.healthz)

	g := e.Group("/api/v1")
	g.POST("/sessions", s.createSession)
	g.GET("/sessions", s.listSessions)
	g.GET("/sessions/:id", s.getSession)
	g.DELETE("/sessions/:id", s.deleteSession)
	g.GET("/sessions/:id/turns", s.listTurns)
	g.POST("/sessions/:id/stream", s.streamResponse)
	g.POST("/transcribe", s.transcribe)
	g.POST("/notes", s.createNote)
	g.GET("/notes/search", s.searchNotes)

	s.echo = e
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

func (s *Server) healthz(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
