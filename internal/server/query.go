package server

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/workmate/internal/assistant"
	"github.com/mohammad-safakhou/workmate/internal/assistant/telemetry"
	"github.com/mohammad-safakhou/workmate/internal/convstore"
)

// QueryRunner processes one request end to end. Satisfied by the
// assistant orchestrator.
type QueryRunner interface {
	Run(ctx context.Context, req assistant.Request) assistant.Reply
}

// QueryHandler exposes the assistant over HTTP, persisting both sides of
// every exchange as conversation turns.
type QueryHandler struct {
	Store     *convstore.Store
	Runner    QueryRunner
	Telemetry *telemetry.Telemetry
}

func (h *QueryHandler) Register(g *echo.Group, authMW echo.MiddlewareFunc) {
	g.Use(authMW)
	g.POST("/query", h.query)
	g.GET("/conversations", h.listConversations)
	g.POST("/conversations", h.createConversation)
	g.GET("/conversations/:id", h.conversationHistory)
	g.GET("/telemetry", h.telemetrySnapshot)
}

func (h *QueryHandler) query(c echo.Context) error {
	userID, _ := c.Get("user_id").(string)

	var req QueryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query is required")
	}
	ctx := c.Request().Context()

	conversationID := req.ConversationID
	if conversationID == "" {
		id, err := h.Store.CreateConversation(ctx, userID, truncateTitle(req.Query))
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		conversationID = id
	} else {
		conv, err := h.Store.GetConversation(ctx, conversationID)
		if err != nil {
			return echo.NewHTTPError(http.StatusNotFound, "conversation not found")
		}
		if conv.UserID != userID {
			return echo.NewHTTPError(http.StatusForbidden, "not your conversation")
		}
	}

	if _, err := h.Store.AppendTurn(ctx, assistant.ConversationTurn{
		ConversationID: conversationID,
		Role:           assistant.RoleUser,
		Text:           req.Query,
	}); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	reply := h.Runner.Run(ctx, assistant.Request{
		Query:          req.Query,
		ConversationID: conversationID,
		Owner:          userID,
	})

	if _, err := h.Store.AppendTurn(ctx, assistant.ConversationTurn{
		ConversationID: conversationID,
		Role:           assistant.RoleAssistant,
		Text:           reply.Response,
		Intent:         reply.Intent,
	}); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, QueryResponse{
		ConversationID: conversationID,
		Response:       reply.Response,
		ActionsTaken:   reply.ActionsTaken,
		Intent:         reply.Intent,
	})
}

func (h *QueryHandler) listConversations(c echo.Context) error {
	userID, _ := c.Get("user_id").(string)
	conversations, err := h.Store.ListConversations(c.Request().Context(), userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	out := make([]ConversationResponse, 0, len(conversations))
	for _, conv := range conversations {
		out = append(out, ConversationResponse{
			ID:        conv.ID,
			Title:     conv.Title,
			CreatedAt: conv.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		})
	}
	return c.JSON(http.StatusOK, out)
}

func (h *QueryHandler) createConversation(c echo.Context) error {
	userID, _ := c.Get("user_id").(string)
	var req struct {
		Title string `json:"title"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Title == "" {
		req.Title = "New conversation"
	}
	id, err := h.Store.CreateConversation(c.Request().Context(), userID, req.Title)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, map[string]string{"id": id})
}

func (h *QueryHandler) conversationHistory(c echo.Context) error {
	userID, _ := c.Get("user_id").(string)
	ctx := c.Request().Context()

	conv, err := h.Store.GetConversation(ctx, c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "conversation not found")
	}
	if conv.UserID != userID {
		return echo.NewHTTPError(http.StatusForbidden, "not your conversation")
	}

	turns, err := h.Store.RecentTurns(ctx, conv.ID, 50)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	// RecentTurns is most-recent-first; clients want chronological order.
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return c.JSON(http.StatusOK, turns)
}

func (h *QueryHandler) telemetrySnapshot(c echo.Context) error {
	return c.JSON(http.StatusOK, h.Telemetry.Snapshot())
}

func truncateTitle(query string) string {
	const max = 60
	if len(query) <= max {
		return query
	}
	return query[:max]
}
