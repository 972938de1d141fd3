package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v5"

	tutoring "github.com/chalklabs/chalk-core/core"
	"github.com/chalklabs/chalk-core/core/classify"
	"github.com/chalklabs/chalk-core/core/llms"
	"github.com/chalklabs/chalk-core/core/sessions"
)

type askRequest struct {
	Question           string   `json:"question"`
	Mode               string   `json:"mode,omitempty"`
	Voice              string   `json:"voice,omitempty"`
	HighlightedObjects []string `json:"highlightedObjects,omitempty"`
}

// streamResponse answers one question over SSE. Validation failures answer
// as plain HTTP errors before any streaming starts; once the stream is open
// every failure arrives as an in-stream error event instead. Closing the
// connection cancels the response.
func (s *Server) streamResponse(c *echo.Context) error {
	ctx := c.Request().Context()

	var req askRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "question required")
	}

	mode := tutoring.ModeGuided
	if req.Mode != "" {
		var err error
		if mode, err = parseMode(req.Mode); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}

	session, err := s.store.Get(c.Param("id"))
	if errors.Is(err, sessions.ErrNotFound) {
		// An expired or mistyped session id should not strand the student:
		// answer on a fresh session and name it in a response header.
		session = s.store.Create("", "")
		c.Response().Header().Set("X-Chalk-Session", session.ID)
	} else if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	if req.Mode == "" {
		mode = s.classifyMode(ctx, question, session)
	}

	firstExchange := session.Title == "" && len(session.Turns) == 0

	if _, err := s.store.AppendTurn(session.ID, sessions.Turn{Role: sessions.RoleUser, Content: question}); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	stream, err := s.orchestrator.StreamResponse(ctx, session.ID, question,
		tutoring.WithMode(mode),
		tutoring.WithAssistantTurnID(uuid.NewString()),
		tutoring.WithResponseVoice(req.Voice),
		tutoring.WithHighlightedObjects(req.HighlightedObjects...),
	)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	rw := c.Response()
	rw.Header().Set("Content-Type", "text/event-stream")
	rw.Header().Set("Cache-Control", "no-cache")
	rw.Header().Set("Connection", "keep-alive")
	rw.Header().Set("X-Accel-Buffering", "no")
	rw.WriteHeader(http.StatusOK)

	for event := range stream.Events {
		data, err := marshalEvent(event)
		if err != nil {
			logger.WarnContext(ctx, "failed to marshal stream event", "kind", event.Kind(), "error", err)
			continue
		}
		writeServerSentEvent(rw, data)
	}

	if s.titler != nil && firstExchange {
		go s.autoTitle(context.Background(), session.ID, question)
	}
	return nil
}

func parseMode(mode string) (tutoring.Mode, error) {
	switch tutoring.Mode(mode) {
	case tutoring.ModeGuided, tutoring.ModeDirect:
		return tutoring.Mode(mode), nil
	default:
		return "", fmt.Errorf("unknown mode %q", mode)
	}
}

// classifyMode picks a response mode from the question's category: small
// talk and answer checks read better answered directly, everything else
// stays in guided tutoring. Classification failures fall back to guided.
func (s *Server) classifyMode(ctx context.Context, question string, session sessions.Session) tutoring.Mode {
	if s.classifier == nil {
		return tutoring.ModeGuided
	}

	result, err := s.classifier.Classify(ctx, question,
		classify.WithHistory(classificationHistory(session.Turns)))
	if err != nil {
		logger.WarnContext(ctx, "question classification failed, defaulting to guided", "error", err)
		return tutoring.ModeGuided
	}

	switch result.Category {
	case classify.CategoryAnswerCheck, classify.CategorySmallTalk:
		return tutoring.ModeDirect
	default:
		return tutoring.ModeGuided
	}
}

const classificationHistoryLimit = 6

func classificationHistory(turns []sessions.Turn) []llms.Message {
	if len(turns) > classificationHistoryLimit {
		turns = turns[len(turns)-classificationHistoryLimit:]
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

func (s *Server) autoTitle(ctx context.Context, sessionID, question string) {
	prompt := fmt.Sprintf(
		"Generate a short (5-7 word) title for a tutoring session that starts with:\n%q\nReturn only the title, no quotes.",
		question,
	)
	resp, err := s.titler.Prompt(ctx, prompt)
	if err != nil {
		logger.WarnContext(ctx, "failed to generate session title", "error", err)
		return
	}

	title := strings.TrimSpace(resp.Content)
	if title == "" {
		return
	}
	if err := s.store.SetTitle(sessionID, title); err != nil {
		logger.WarnContext(ctx, "failed to set session title", "error", err)
	}
}
