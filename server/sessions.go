package server

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v5"

	"github.com/chalklabs/chalk-core/core/sessions"
)

type createSessionRequest struct {
	Subject string `json:"subject"`
	Title   string `json:"title"`
}

func (s *Server) createSession(c *echo.Context) error {
	var req createSessionRequest
	if err := c.Bind(&req); err != nil {
		req = createSessionRequest{}
	}

	session := s.store.Create(req.Subject, req.Title)
	return c.JSON(http.StatusCreated, session)
}

func (s *Server) listSessions(c *echo.Context) error {
	return c.JSON(http.StatusOK, s.store.List())
}

func (s *Server) getSession(c *echo.Context) error {
	session, err := s.store.Get(c.Param("id"))
	if err != nil {
		if errors.Is(err, sessions.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "session not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, session)
}

func (s *Server) deleteSession(c *echo.Context) error {
	if err := s.store.Delete(c.Param("id")); err != nil {
		if errors.Is(err, sessions.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "session not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) listTurns(c *echo.Context) error {
	session, err := s.store.Get(c.Param("id"))
	if err != nil {
		if errors.Is(err, sessions.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "session not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, session.Turns)
}
