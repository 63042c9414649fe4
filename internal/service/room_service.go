package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/tahababou12/CoCo-sub000/internal/domain"
	"github.com/tahababou12/CoCo-sub000/internal/repository"
	"github.com/tahababou12/CoCo-sub000/lib/logger/sl"
)

var (
	ErrRoomFull       = errors.New("room is full")
	ErrMemberNotFound = errors.New("member not found")
)

// memberColors gives each quadrant a stable cursor color.
var memberColors = []string{"#e74c3c", "#3498db", "#2ecc71", "#f39c12"}

// RoomService is the per-room broadcast hub. It relays messages
// between room members and retains only the ephemeral presence set —
// shape history lives on the clients, never here, so the hub cannot
// corrupt it. Worst case is a missed message, recoverable through
// client-side reconciliation or a full-sync request.
type RoomService struct {
	rooms repository.RoomRepository
	log   *slog.Logger
}

func NewRoomService(rooms repository.RoomRepository, log *slog.Logger) *RoomService {
	if log == nil {
		log = slog.Default()
	}
	return &RoomService{
		rooms: rooms,
		log:   log,
	}
}

func (s *RoomService) CreateRoom(ctx context.Context, name string, capacity int) (*domain.Room, error) {
	if name == "" {
		return nil, errors.New("room name is required")
	}

	for {
		room := domain.NewRoom(name, capacity)
		if err := s.rooms.Create(ctx, room); err != nil {
			if errors.Is(err, repository.ErrRoomCodeExists) {
				continue
			}
			return nil, err
		}
		s.log.Info("room created",
			"room_id", room.ID.String(),
			"join_code", room.JoinCode,
			"capacity", room.Capacity,
		)
		return room, nil
	}
}

func (s *RoomService) GetRoom(ctx context.Context, id uuid.UUID) (*domain.Room, error) {
	return s.rooms.GetByID(ctx, id)
}

func (s *RoomService) GetRoomByCode(ctx context.Context, code string) (*domain.Room, error) {
	return s.rooms.GetByCode(ctx, strings.ToUpper(strings.TrimSpace(code)))
}

// RegisterMember adds a user to a room: assigns the lowest free screen
// quadrant, announces the join to existing members, and queues the
// roster plus the retained presence set for the newcomer. Shape
// history is not sent — the newcomer requests a full sync from a peer.
func (s *RoomService) RegisterMember(ctx context.Context, roomID uuid.UUID, user *domain.User) (*domain.Member, error) {
	const op = "service.room.register"
	log := s.log.With(
		slog.String("op", op),
		slog.String("room_id", roomID.String()),
	)

	if user == nil {
		return nil, errors.New("user is required")
	}
	if user.ID == "" {
		user.ID = uuid.New().String()
	}

	room, err := s.GetRoom(ctx, roomID)
	if err != nil {
		log.Info("room lookup failed", sl.Err(err))
		return nil, err
	}

	member := domain.NewMember(user)

	room.Mutex.Lock()
	quadrant := room.FreeQuadrant()
	if quadrant == -1 {
		room.Mutex.Unlock()
		return nil, ErrRoomFull
	}
	member.Quadrant = quadrant
	user.Quadrant = quadrant
	if user.Color == "" {
		user.Color = memberColors[quadrant%len(memberColors)]
	}
	room.Members[member.ID] = member
	room.Presence[user.ID] = user.Clone()
	room.Mutex.Unlock()

	s.broadcast(room, domain.MustMessage(domain.MsgJoin, domain.JoinPayload{
		User: *user.Clone(),
		Room: room.ID.String(),
	}), member.ID)
	s.broadcast(room, domain.MustMessage(domain.MsgRoomUpdated, domain.RoomUpdatedPayload{
		RoomID:  room.ID.String(),
		Members: room.MemberUsers(),
	}), member.ID)

	// Presence of everyone already in the room, so the newcomer can
	// render cursors before any of them moves again.
	room.Mutex.RLock()
	for id, u := range room.Presence {
		if id == user.ID {
			continue
		}
		member.EnqueueEvent(domain.MustMessage(domain.MsgPresence, domain.PresencePayload{
			User: *u.Clone(),
		}))
	}
	room.Mutex.RUnlock()

	log.Info("member registered",
		"member_id", member.ID,
		"display_name", user.Name,
		"quadrant", quadrant,
	)
	return member, nil
}

// UnregisterMember removes a member, frees its quadrant slot and
// broadcasts the leave. A broken socket lands here too: connection
// loss surfaces to the room as an ordinary leave.
func (s *RoomService) UnregisterMember(ctx context.Context, roomID uuid.UUID, memberID string) error {
	s.log.Info("unregistering member",
		"room_id", roomID.String(),
		"member_id", memberID,
	)
	room, err := s.GetRoom(ctx, roomID)
	if err != nil {
		return err
	}

	room.Mutex.Lock()
	member, ok := room.Members[memberID]
	if !ok {
		room.Mutex.Unlock()
		return ErrMemberNotFound
	}
	delete(room.Members, memberID)
	delete(room.Presence, memberID)
	roomEmpty := len(room.Members) == 0
	room.Mutex.Unlock()

	member.SetStatus(domain.MemberStatusDisconnected)
	member.CloseEvents()
	member.Mutex.Lock()
	if member.Socket != nil {
		member.Socket.Close()
		member.Socket = nil
	}
	member.Mutex.Unlock()

	s.broadcast(room, domain.MustMessage(domain.MsgLeave, domain.LeavePayload{
		UserID: memberID,
	}), memberID)
	if !roomEmpty {
		s.broadcast(room, domain.MustMessage(domain.MsgRoomUpdated, domain.RoomUpdatedPayload{
			RoomID:  room.ID.String(),
			Members: room.MemberUsers(),
		}), memberID)
	}

	if roomEmpty {
		if err := s.rooms.Delete(ctx, room.ID); err != nil {
			s.log.Error("failed to drop empty room", sl.Err(err))
		}
	}

	return nil
}

// HandleMessage relays one inbound message. Signal messages are routed
// only to their target member; everything else fans out verbatim to
// every other member of the room, never back to the sender. The hub
// never inspects or mutates shape payloads.
func (s *RoomService) HandleMessage(ctx context.Context, roomID uuid.UUID, memberID string, msg *domain.Message) error {
	const op = "service.room.message"
	if msg == nil {
		return errors.New("message is required")
	}

	room, err := s.GetRoom(ctx, roomID)
	if err != nil {
		return err
	}

	room.Mutex.RLock()
	member, ok := room.Members[memberID]
	room.Mutex.RUnlock()
	if !ok {
		return ErrMemberNotFound
	}
	member.Touch()

	switch msg.Type {
	case domain.MsgOffer, domain.MsgAnswer, domain.MsgIceCandidate:
		return s.routeSignal(room, member, msg)

	case domain.MsgLeave:
		return s.UnregisterMember(ctx, roomID, memberID)

	case domain.MsgCursor:
		var p domain.CursorPayload
		if err := msg.DecodePayload(&p); err == nil {
			s.retainCursor(room, memberID, p.Point)
		}
		s.broadcast(room, *msg, memberID)

	case domain.MsgPresence:
		var p domain.PresencePayload
		if err := msg.DecodePayload(&p); err == nil {
			s.retainPresence(room, p.User)
		}
		s.broadcast(room, *msg, memberID)

	case domain.MsgFullSyncRequest:
		// One donor answers; picking any member other than the
		// requester suffices since every client holds the full list.
		donor := s.pickDonor(room, memberID)
		if donor != nil {
			donor.EnqueueEvent(*msg)
		}

	case domain.MsgFullSync:
		// The donor's answer goes to the requester alone. Fanning it
		// out would reset members that never asked for a sync.
		var p domain.FullSyncPayload
		if err := msg.DecodePayload(&p); err != nil {
			return err
		}
		if p.For == "" {
			s.broadcast(room, *msg, memberID)
			return nil
		}
		room.Mutex.RLock()
		requester, ok := room.Members[p.For]
		room.Mutex.RUnlock()
		if ok {
			requester.EnqueueEvent(*msg)
		}

	default:
		// Shape traffic and forward-compatible extensions: verbatim
		// fan-out. The receiving clients own interpretation.
		s.broadcast(room, *msg, memberID)
	}
	return nil
}

func (s *RoomService) ListParticipants(ctx context.Context, roomID uuid.UUID) ([]*domain.User, error) {
	room, err := s.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}

	room.Mutex.RLock()
	defer room.Mutex.RUnlock()

	users := make([]*domain.User, 0, len(room.Members))
	for _, m := range room.Members {
		users = append(users, m.User.Clone())
	}
	return users, nil
}

func (s *RoomService) routeSignal(room *domain.Room, sender *domain.Member, msg *domain.Message) error {
	var p domain.SignalPayload
	if err := msg.DecodePayload(&p); err != nil {
		return err
	}
	p.From = sender.ID
	forward := domain.MustMessage(msg.Type, p)

	if p.To == "" {
		s.broadcast(room, forward, sender.ID)
		return nil
	}

	room.Mutex.RLock()
	target, ok := room.Members[p.To]
	room.Mutex.RUnlock()
	if !ok {
		return ErrMemberNotFound
	}
	target.EnqueueEvent(forward)
	return nil
}

func (s *RoomService) retainCursor(room *domain.Room, userID string, point domain.Point) {
	room.Mutex.Lock()
	defer room.Mutex.Unlock()
	if u, ok := room.Presence[userID]; ok {
		p := point
		u.Cursor = &p
	}
}

func (s *RoomService) retainPresence(room *domain.Room, user domain.User) {
	room.Mutex.Lock()
	defer room.Mutex.Unlock()
	room.Presence[user.ID] = user.Clone()
}

func (s *RoomService) pickDonor(room *domain.Room, exclude string) *domain.Member {
	room.Mutex.RLock()
	defer room.Mutex.RUnlock()
	for id, m := range room.Members {
		if id != exclude {
			return m
		}
	}
	return nil
}

func (s *RoomService) broadcast(room *domain.Room, msg domain.Message, exclude string) {
	room.Mutex.RLock()
	members := make([]*domain.Member, 0, len(room.Members))
	for id, m := range room.Members {
		if id == exclude {
			continue
		}
		members = append(members, m)
	}
	room.Mutex.RUnlock()

	for _, m := range members {
		if !m.EnqueueEvent(msg) {
			s.log.Debug("dropping broadcast event",
				slog.String("member", m.ID),
				slog.String("type", string(msg.Type)),
			)
		}
	}
}
