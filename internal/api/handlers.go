package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"chatrelay/internal/models"
	"chatrelay/internal/service/assembler"
	"chatrelay/internal/service/chat"
	"chatrelay/internal/service/history"
)

// Handler wires HTTP routes to the chat orchestrator and the session store.
type Handler struct {
	chat  *chat.Service
	store history.Store
}

// NewHandler constructs a Handler instance.
func NewHandler(chatSvc *chat.Service, store history.Store) *Handler {
	return &Handler{chat: chatSvc, store: store}
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.Use(corsMiddleware())
	router.GET("/", h.health)
	router.POST("/content", h.generateContent)
	router.GET("/sessions", h.listSessions)
	router.GET("/sessions/:session_id/turns", h.listTurns)
}

func (h *Handler) health(c *gin.Context) {
	c.String(http.StatusOK, "Hello World")
}

type contentRequest struct {
	Prompt    string `json:"prompt"`
	SessionID string `json:"sessionId"`
}

func (h *Handler) generateContent(c *gin.Context) {
	var req contentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "invalid request body"})
		return
	}

	res, err := h.chat.Generate(c.Request.Context(), req.Prompt, req.SessionID)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"success": false, "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"sessionId": res.SessionID,
		"response":  res.Reply,
	})
}

// statusFor maps the error taxonomy onto HTTP status classes: invalid
// input is the caller's to fix, storage trouble is ours, backend trouble
// is upstream.
func statusFor(err error) int {
	switch {
	case errors.Is(err, assembler.ErrInvalidPrompt):
		return http.StatusBadRequest
	case errors.Is(err, history.ErrStorageUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, assembler.ErrEmptyCompletion):
		return http.StatusBadGateway
	case errors.Is(err, chat.ErrCompletionBackend):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) listSessions(c *gin.Context) {
	sessions, err := h.store.ListSessions(c.Request.Context())
	if err != nil {
		c.JSON(statusFor(err), gin.H{"success": false, "message": err.Error()})
		return
	}
	if len(sessions) == 0 {
		sessions = make([]models.Session, 0)
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

func (h *Handler) listTurns(c *gin.Context) {
	sessionID := c.Param("session_id")
	turns, err := h.store.ListTurns(c.Request.Context(), sessionID)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"success": false, "message": err.Error()})
		return
	}
	if len(turns) == 0 {
		turns = make([]models.Turn, 0)
	}
	c.JSON(http.StatusOK, gin.H{"turns": turns})
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
