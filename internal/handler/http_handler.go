package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/weiawesome/wes-io-chat/internal/audit"
	"github.com/weiawesome/wes-io-chat/internal/history"
	"github.com/weiawesome/wes-io-chat/internal/idgen"
	"github.com/weiawesome/wes-io-chat/internal/persistence"
	"github.com/weiawesome/wes-io-chat/internal/service"
	"github.com/weiawesome/wes-io-chat/internal/store"
	"github.com/weiawesome/wes-io-chat/pkg/response"
)

const probeTimeout = 10 * time.Second

type PersistenceStatus interface {
	Stats() persistence.Stats
	Probe(ctx context.Context) (persistence.Mode, error)
}

type ConnectionCounter interface {
	ClientCount() int
}

type HTTPHandler struct {
	chatService service.ChatService
	history     history.Service
	persistence PersistenceStatus
	connections ConnectionCounter
	maxLimit    int
}

// NewHTTPHandler builds the REST surface. historySvc is nil when the
// storage driver cannot page messages.
func NewHTTPHandler(chatService service.ChatService, historySvc history.Service, status PersistenceStatus, connections ConnectionCounter, maxLimit int) *HTTPHandler {
	if maxLimit <= 0 {
		maxLimit = history.MaxLimit
	}
	return &HTTPHandler{
		chatService: chatService,
		history:     historySvc,
		persistence: status,
		connections: connections,
		maxLimit:    maxLimit,
	}
}

func (h *HTTPHandler) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api/v1")
	{
		api.GET("/rooms", h.ListRooms)
		api.GET("/rooms/:room", h.GetRoom)
		api.GET("/rooms/:room/messages", h.GetMessages)
		api.GET("/persistence", h.GetPersistence)
		api.POST("/persistence/recover", h.Recover)
		api.GET("/diagnostics/consistency", h.CheckConsistency)
	}

	r.GET("/health", h.HealthCheck)
}

func (h *HTTPHandler) ListRooms(c *gin.Context) {
	response.Success(c, gin.H{"rooms": h.chatService.ListRooms()})
}

func (h *HTTPHandler) GetRoom(c *gin.Context) {
	rm, ok := h.chatService.GetRoom(c.Param("room"))
	if !ok {
		response.NotFound(c, "room not found")
		return
	}
	response.Success(c, rm)
}

func (h *HTTPHandler) GetMessages(c *gin.Context) {
	if h.history == nil {
		response.NotImplemented(c, "message history is not supported by the storage driver")
		return
	}

	room := c.Param("room")
	before := c.Query("before")
	if before != "" {
		if _, err := idgen.Parse(before); err != nil {
			response.BadRequest(c, "before must be a message id")
			return
		}
	}

	limit := history.DefaultLimit
	if limitStr := c.Query("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			response.BadRequest(c, "limit must be a positive integer")
			return
		}
		limit = min(parsed, h.maxLimit)
	}

	page, err := h.history.GetMessages(c.Request.Context(), room, before, limit)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotSupported):
			response.NotImplemented(c, "message history is not supported by the storage driver")
		case errors.Is(err, store.ErrUnavailable):
			response.ServiceUnavailable(c, "storage unavailable")
		default:
			response.InternalError(c, "failed to get chat history")
		}
		return
	}

	response.Success(c, page)
}

func (h *HTTPHandler) GetPersistence(c *gin.Context) {
	response.Success(c, h.persistence.Stats())
}

// Recover runs one recovery probe immediately.
func (h *HTTPHandler) Recover(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), probeTimeout)
	defer cancel()

	mode, err := h.persistence.Probe(ctx)
	if err != nil {
		response.ServiceUnavailable(c, err.Error())
		return
	}

	audit.LogWithDetail(ctx, audit.ActionForceRecovery, "", mode.String(), "manual recovery probe")
	response.Success(c, h.persistence.Stats())
}

func (h *HTTPHandler) CheckConsistency(c *gin.Context) {
	issues := h.chatService.CheckConsistency()
	if issues == nil {
		issues = []service.Inconsistency{}
	}
	response.Success(c, gin.H{
		"consistent": len(issues) == 0,
		"issues":     issues,
	})
}

func (h *HTTPHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"persistence": h.persistence.Stats().ModeName,
		"connections": h.connections.ClientCount(),
	})
}
