package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/weiawesome/wes-io-chat/internal/config"
	"github.com/weiawesome/wes-io-chat/internal/domain"
	"github.com/weiawesome/wes-io-chat/internal/hub"
	"github.com/weiawesome/wes-io-chat/internal/service"
	"github.com/weiawesome/wes-io-chat/pkg/log"
)

type WSHandler struct {
	hub      *hub.Hub
	service  service.ChatService
	wsCfg    config.WebSocketConfig
	upgrader websocket.Upgrader
}

func NewWSHandler(h *hub.Hub, svc service.ChatService, wsCfg config.WebSocketConfig) *WSHandler {
	return &WSHandler{
		hub:     h,
		service: svc,
		wsCfg:   wsCfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(wsCfg.AllowedOrigins),
		},
	}
}

// checkOrigin accepts any origin when allowed is empty or contains "*".
func checkOrigin(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		if len(allowed) == 0 || slices.Contains(allowed, "*") {
			return true
		}
		return slices.Contains(allowed, r.Header.Get("Origin"))
	}
}

// HandleWebSocket upgrades the request and serves the socket until it
// closes.
func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		l := log.Ctx(c.Request.Context())
		l.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := hub.NewClient(uuid.New().String(), h.hub, conn, h.wsCfg)
	ctx := log.WithConnection(context.WithoutCancel(c.Request.Context()), client.ID)

	h.hub.Register(client)
	if err := h.service.HandleConnect(ctx, client.ID); err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Msg("failed to register session")
		h.hub.Unregister(client)
		conn.Close()
		return
	}

	go client.WritePump()
	client.ReadPump(
		func(cl *hub.Client, message []byte) { h.handleMessage(ctx, cl, message) },
		func(cl *hub.Client) {
			if err := h.service.HandleDisconnect(ctx, cl.ID); err != nil {
				l := log.Ctx(ctx)
				l.Warn().Err(err).Msg("disconnect cleanup failed")
			}
		},
	)
}

func (h *WSHandler) handleMessage(ctx context.Context, client *hub.Client, message []byte) {
	var base domain.BaseMessage
	if err := json.Unmarshal(message, &base); err != nil {
		h.sendError(client, "Invalid message format")
		return
	}

	var err error
	switch base.Type {
	case domain.MsgTypeCreateRoom:
		var msg domain.CreateRoomMessage
		if json.Unmarshal(message, &msg) != nil {
			h.sendError(client, "Invalid create_room message")
			return
		}
		err = h.service.HandleCreateRoom(ctx, client.ID, msg.RoomName, msg.DisplayName, msg.Topic)

	case domain.MsgTypeJoinRoom:
		var msg domain.JoinRoomMessage
		if json.Unmarshal(message, &msg) != nil {
			h.sendError(client, "Invalid join_room message")
			return
		}
		err = h.service.HandleJoinRoom(ctx, client.ID, msg.RoomName, msg.DisplayName)

	case domain.MsgTypeRoomMessage:
		var msg domain.RoomMessageIn
		if json.Unmarshal(message, &msg) != nil {
			h.sendError(client, "Invalid room_message")
			return
		}
		err = h.service.HandleRoomMessage(ctx, client.ID, msg.RoomName, msg.DisplayName, msg.Body)

	case domain.MsgTypeLeaveRoom:
		var msg domain.LeaveRoomMessage
		if json.Unmarshal(message, &msg) != nil {
			h.sendError(client, "Invalid leave_room message")
			return
		}
		err = h.service.HandleLeaveRoom(ctx, client.ID, msg.RoomName, msg.DisplayName)

	case domain.MsgTypeListRooms:
		err = h.service.HandleListRooms(ctx, client.ID)

	case domain.MsgTypePing:
		h.hub.SendTo(client.ID, &domain.PongMessage{Type: domain.MsgTypePong, Timestamp: time.Now().UnixMilli()})

	default:
		h.sendError(client, "Unknown message type")
	}

	// The service has already replied to the client.
	if err != nil {
		l := log.Ctx(ctx)
		l.Debug().Err(err).Str("type", base.Type).Msg("request rejected")
	}
}

func (h *WSHandler) sendError(client *hub.Client, message string) {
	h.hub.SendTo(client.ID, domain.NewErrorMessage(domain.ErrCodeBadRequest, message))
}

func (h *WSHandler) RegisterRoutes(r *gin.Engine) {
	r.GET("/chat/ws", h.HandleWebSocket)
}
