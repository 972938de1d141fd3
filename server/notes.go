package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v5"

	"github.com/chalklabs/chalk-core/core/knowledge"
)

const defaultSearchLimit = 5

type noteRequest struct {
	Subject string   `json:"subject"`
	Title   string   `json:"title"`
	Content string   `json:"content"`
	Tags    []string `json:"tags,omitempty"`
}

type noteResponse struct {
	ID string `json:"id"`
}

func (s *Server) createNote(c *echo.Context) error {
	if s.knowledgeBase == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "knowledge base is not configured")
	}

	var req noteRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Content) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "content required")
	}

	id, err := s.knowledgeBase.Upsert(c.Request().Context(), knowledge.Document{
		Subject: req.Subject,
		Title:   req.Title,
		Content: req.Content,
		Tags:    req.Tags,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, noteResponse{ID: id})
}

func (s *Server) searchNotes(c *echo.Context) error {
	if s.knowledgeBase == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "knowledge base is not configured")
	}

	query := strings.TrimSpace(c.QueryParam("q"))
	if query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "q required")
	}

	limit := defaultSearchLimit
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid limit")
		}
		limit = parsed
	}

	results, err := s.knowledgeBase.Search(c.Request().Context(), c.QueryParam("subject"), query, limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if results == nil {
		results = []knowledge.Result{}
	}
	return c.JSON(http.StatusOK, results)
}
