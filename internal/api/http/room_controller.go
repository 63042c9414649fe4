package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/tahababou12/CoCo-sub000/internal/api/http/converter"
	"github.com/tahababou12/CoCo-sub000/internal/domain"
	"github.com/tahababou12/CoCo-sub000/internal/repository"
	"github.com/tahababou12/CoCo-sub000/internal/service"
	"github.com/tahababou12/CoCo-sub000/lib/logger/sl"
)

type RoomController struct {
	rooms    service.RoomInteractor
	log      *slog.Logger
	upgrader websocket.Upgrader
}

func NewRoomController(rooms service.RoomInteractor, log *slog.Logger) *RoomController {
	if log == nil {
		log = slog.Default()
	}
	return &RoomController{
		rooms: rooms,
		log:   log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

func (c *RoomController) CreateRoom(ctx *gin.Context) {
	type CreateRoomRequest struct {
		Name     string `json:"name" binding:"required"`
		Capacity int    `json:"capacity"`
	}
	var req CreateRoomRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}
	room, err := c.rooms.CreateRoom(ctx.Request.Context(), req.Name, req.Capacity)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"room": converter.RoomToApi(room)})
}

func (c *RoomController) GetRoom(ctx *gin.Context) {
	roomID, err := uuid.Parse(ctx.Param("roomID"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid room id"})
		return
	}

	room, err := c.rooms.GetRoom(ctx.Request.Context(), roomID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repository.ErrRoomNotFound) {
			status = http.StatusNotFound
		}
		ctx.JSON(status, gin.H{"error": err.Error()})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"room": converter.RoomToApi(room)})
}

func (c *RoomController) GetRoomByCode(ctx *gin.Context) {
	room, err := c.rooms.GetRoomByCode(ctx.Request.Context(), ctx.Param("code"))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repository.ErrRoomNotFound) {
			status = http.StatusNotFound
		}
		ctx.JSON(status, gin.H{"error": err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"room": converter.RoomToApi(room)})
}

func (c *RoomController) ListParticipants(ctx *gin.Context) {
	roomID, err := uuid.Parse(ctx.Param("roomID"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid room id"})
		return
	}

	users, err := c.rooms.ListParticipants(ctx.Request.Context(), roomID)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"participants": users})
}

// JoinRoom upgrades to a websocket, registers the member and pumps
// frames both ways until the socket breaks. A broken socket in either
// direction unregisters the member, which the room sees as a leave.
func (c *RoomController) JoinRoom(ctx *gin.Context) {
	roomID, err := uuid.Parse(ctx.Param("roomID"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid room id"})
		return
	}

	displayName := ctx.Query("name")
	if displayName == "" {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}

	user := domain.NewGuestUser(displayName)
	if userID := ctx.Query("user_id"); userID != "" {
		user.ID = userID
	}

	conn, err := c.upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		ctx.String(http.StatusInternalServerError, "failed to upgrade connection")
		return
	}

	member, err := c.rooms.RegisterMember(context.Background(), roomID, user)
	if err != nil {
		msg := domain.MustMessage(domain.MsgRoomError, domain.RoomErrorPayload{Message: err.Error()})
		_ = conn.WriteJSON(msg)
		conn.Close()
		return
	}

	member.Mutex.Lock()
	member.Socket = conn
	member.Mutex.Unlock()
	member.SetStatus(domain.MemberStatusConnected)

	room, err := c.rooms.GetRoom(context.Background(), roomID)
	if err != nil {
		_ = c.rooms.UnregisterMember(context.Background(), roomID, member.ID)
		conn.Close()
		return
	}

	// Join envelope first, then the writer goroutine takes over the
	// socket. Queued events wait in the channel until then.
	_ = conn.WriteJSON(domain.MustMessage(domain.MsgRoomJoined, domain.RoomJoinedPayload{
		RoomID:   room.ID.String(),
		JoinCode: room.JoinCode,
		You:      *member.User.Clone(),
		Members:  room.MemberUsers(),
	}))

	go c.forwardMemberEvents(roomID, member)

	for {
		var msg domain.Message
		if err := conn.ReadJSON(&msg); err != nil {
			_ = c.rooms.UnregisterMember(context.Background(), roomID, member.ID)
			conn.Close()
			return
		}

		if err := c.rooms.HandleMessage(context.Background(), roomID, member.ID, &msg); err != nil {
			if errors.Is(err, service.ErrMemberNotFound) && msg.Type == domain.MsgLeave {
				conn.Close()
				return
			}
			c.log.Debug("message rejected",
				slog.String("member", member.ID),
				slog.String("type", string(msg.Type)),
				sl.Err(err),
			)
			_ = conn.WriteJSON(domain.MustMessage(domain.MsgError, domain.ErrorPayload{
				Message: err.Error(),
			}))
		}
	}
}

// forwardMemberEvents drains the member's event queue onto its socket.
// It is the socket's only writer after the join envelope is sent.
func (c *RoomController) forwardMemberEvents(roomID uuid.UUID, member *domain.Member) {
	for event := range member.Events {
		member.Mutex.RLock()
		conn := member.Socket
		member.Mutex.RUnlock()
		if conn == nil {
			return
		}
		if err := conn.WriteJSON(event); err != nil {
			_ = c.rooms.UnregisterMember(context.Background(), roomID, member.ID)
			return
		}
	}
}
