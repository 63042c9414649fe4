package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tahababou12/CoCo-sub000/internal/domain"
	"github.com/tahababou12/CoCo-sub000/internal/repository"
)

func newTestService() *RoomService {
	return NewRoomService(repository.NewInMemoryRoomRepository(), nil)
}

func join(t *testing.T, s *RoomService, room *domain.Room, name string) *domain.Member {
	t.Helper()
	member, err := s.RegisterMember(context.Background(), room.ID, domain.NewGuestUser(name))
	require.NoError(t, err)
	return member
}

// drainEvents empties a member's queued events.
func drainEvents(m *domain.Member) []domain.Message {
	out := make([]domain.Message, 0)
	for {
		select {
		case msg, ok := <-m.Events:
			if !ok {
				return out
			}
			out = append(out, msg)
		default:
			return out
		}
	}
}

func eventTypes(msgs []domain.Message) []domain.MessageType {
	types := make([]domain.MessageType, 0, len(msgs))
	for _, m := range msgs {
		types = append(types, m.Type)
	}
	return types
}

func TestCreateRoomGeneratesJoinCode(t *testing.T) {
	s := newTestService()

	room, err := s.CreateRoom(context.Background(), "sketch", 0)
	require.NoError(t, err)
	assert.Len(t, room.JoinCode, 6)
	assert.Equal(t, domain.DefaultRoomCapacity, room.Capacity)

	found, err := s.GetRoomByCode(context.Background(), room.JoinCode)
	require.NoError(t, err)
	assert.Equal(t, room.ID, found.ID)

	_, err = s.CreateRoom(context.Background(), "", 0)
	assert.Error(t, err)
}

func TestRegisterAssignsQuadrantsInOrder(t *testing.T) {
	s := newTestService()
	room, err := s.CreateRoom(context.Background(), "sketch", 4)
	require.NoError(t, err)

	m1 := join(t, s, room, "a")
	m2 := join(t, s, room, "b")
	m3 := join(t, s, room, "c")

	assert.Equal(t, 0, m1.Quadrant)
	assert.Equal(t, 1, m2.Quadrant)
	assert.Equal(t, 2, m3.Quadrant)

	// Freeing a middle slot hands it to the next joiner.
	require.NoError(t, s.UnregisterMember(context.Background(), room.ID, m2.ID))
	m4 := join(t, s, room, "d")
	assert.Equal(t, 1, m4.Quadrant)
}

func TestRegisterRejectsWhenFull(t *testing.T) {
	s := newTestService()
	room, err := s.CreateRoom(context.Background(), "tiny", 2)
	require.NoError(t, err)

	join(t, s, room, "a")
	join(t, s, room, "b")

	_, err = s.RegisterMember(context.Background(), room.ID, domain.NewGuestUser("c"))
	assert.ErrorIs(t, err, ErrRoomFull)
}

func TestJoinBroadcastAndPresenceCatchUp(t *testing.T) {
	s := newTestService()
	room, err := s.CreateRoom(context.Background(), "sketch", 4)
	require.NoError(t, err)

	m1 := join(t, s, room, "first")

	// Move first's cursor so the retained presence has something in it.
	cursor := domain.MustMessage(domain.MsgCursor, domain.CursorPayload{
		UserID: m1.ID, Point: domain.Point{X: 5, Y: 5},
	})
	require.NoError(t, s.HandleMessage(context.Background(), room.ID, m1.ID, &cursor))

	m2 := join(t, s, room, "second")

	// Existing member sees the join followed by the refreshed roster.
	m1Events := drainEvents(m1)
	require.Len(t, m1Events, 2)
	assert.Equal(t, domain.MsgJoin, m1Events[0].Type)
	require.Equal(t, domain.MsgRoomUpdated, m1Events[1].Type)
	var roster domain.RoomUpdatedPayload
	require.NoError(t, m1Events[1].DecodePayload(&roster))
	assert.Len(t, roster.Members, 2)

	// Newcomer gets the retained presence of the existing member, not
	// its own join echoed back.
	m2Events := drainEvents(m2)
	types := eventTypes(m2Events)
	assert.Contains(t, types, domain.MsgPresence)
	assert.NotContains(t, types, domain.MsgJoin)

	for _, msg := range m2Events {
		if msg.Type != domain.MsgPresence {
			continue
		}
		var p domain.PresencePayload
		require.NoError(t, msg.DecodePayload(&p))
		assert.Equal(t, m1.ID, p.User.ID)
		require.NotNil(t, p.User.Cursor)
		assert.Equal(t, 5.0, p.User.Cursor.X)
	}
}

func TestFanOutExcludesSender(t *testing.T) {
	s := newTestService()
	room, err := s.CreateRoom(context.Background(), "sketch", 4)
	require.NoError(t, err)

	m1 := join(t, s, room, "a")
	m2 := join(t, s, room, "b")
	m3 := join(t, s, room, "c")
	drainEvents(m1)
	drainEvents(m2)
	drainEvents(m3)

	upsert := domain.MustMessage(domain.MsgShapeUpsert, domain.ShapeUpsertPayload{
		UserID: m1.ID,
		Shape: domain.Shape{
			ID: "s1", Kind: domain.KindLine,
			Points: []domain.Point{{X: 0, Y: 0}, {X: 1, Y: 1}},
		},
	})
	require.NoError(t, s.HandleMessage(context.Background(), room.ID, m1.ID, &upsert))

	assert.Empty(t, drainEvents(m1), "sender must not get its own message back")
	assert.Equal(t, []domain.MessageType{domain.MsgShapeUpsert}, eventTypes(drainEvents(m2)))
	assert.Equal(t, []domain.MessageType{domain.MsgShapeUpsert}, eventTypes(drainEvents(m3)))
}

func TestSignalRoutedOnlyToTarget(t *testing.T) {
	s := newTestService()
	room, err := s.CreateRoom(context.Background(), "sketch", 4)
	require.NoError(t, err)

	m1 := join(t, s, room, "a")
	m2 := join(t, s, room, "b")
	m3 := join(t, s, room, "c")
	drainEvents(m1)
	drainEvents(m2)
	drainEvents(m3)

	offer := domain.MustMessage(domain.MsgOffer, domain.SignalPayload{
		From: m1.ID,
		To:   m2.ID,
	})
	require.NoError(t, s.HandleMessage(context.Background(), room.ID, m1.ID, &offer))

	assert.Empty(t, drainEvents(m3), "untargeted member must not see the signal")
	got := drainEvents(m2)
	require.Len(t, got, 1)
	assert.Equal(t, domain.MsgOffer, got[0].Type)

	var p domain.SignalPayload
	require.NoError(t, got[0].DecodePayload(&p))
	assert.Equal(t, m1.ID, p.From, "hub stamps the sender id")
}

func TestSignalToUnknownTarget(t *testing.T) {
	s := newTestService()
	room, err := s.CreateRoom(context.Background(), "sketch", 4)
	require.NoError(t, err)
	m1 := join(t, s, room, "a")

	offer := domain.MustMessage(domain.MsgOffer, domain.SignalPayload{
		From: m1.ID, To: "nobody",
	})
	err = s.HandleMessage(context.Background(), room.ID, m1.ID, &offer)
	assert.ErrorIs(t, err, ErrMemberNotFound)
}

func TestFullSyncRequestGoesToOneDonor(t *testing.T) {
	s := newTestService()
	room, err := s.CreateRoom(context.Background(), "sketch", 4)
	require.NoError(t, err)

	m1 := join(t, s, room, "a")
	m2 := join(t, s, room, "b")
	drainEvents(m1)
	drainEvents(m2)

	req := domain.MustMessage(domain.MsgFullSyncRequest, domain.FullSyncRequestPayload{
		UserID: m2.ID,
	})
	require.NoError(t, s.HandleMessage(context.Background(), room.ID, m2.ID, &req))

	got := drainEvents(m1)
	require.Len(t, got, 1)
	assert.Equal(t, domain.MsgFullSyncRequest, got[0].Type)
	assert.Empty(t, drainEvents(m2))
}

func TestFullSyncAnswerRoutedToRequesterOnly(t *testing.T) {
	s := newTestService()
	room, err := s.CreateRoom(context.Background(), "sketch", 4)
	require.NoError(t, err)

	donor := join(t, s, room, "donor")
	requester := join(t, s, room, "requester")
	bystander := join(t, s, room, "bystander")
	drainEvents(donor)
	drainEvents(requester)
	drainEvents(bystander)

	answer := domain.MustMessage(domain.MsgFullSync, domain.FullSyncPayload{
		UserID: donor.ID,
		For:    requester.ID,
		Shapes: []domain.Shape{{ID: "s1", Kind: domain.KindLine}},
	})
	require.NoError(t, s.HandleMessage(context.Background(), room.ID, donor.ID, &answer))

	got := drainEvents(requester)
	require.Len(t, got, 1)
	assert.Equal(t, domain.MsgFullSync, got[0].Type)
	assert.Empty(t, drainEvents(bystander), "sync answer must not reach members that never asked")
	assert.Empty(t, drainEvents(donor))
}

func TestFullSyncAnswerToDepartedRequesterIsDropped(t *testing.T) {
	s := newTestService()
	room, err := s.CreateRoom(context.Background(), "sketch", 4)
	require.NoError(t, err)

	donor := join(t, s, room, "donor")
	requester := join(t, s, room, "requester")
	require.NoError(t, s.UnregisterMember(context.Background(), room.ID, requester.ID))
	drainEvents(donor)

	answer := domain.MustMessage(domain.MsgFullSync, domain.FullSyncPayload{
		UserID: donor.ID,
		For:    requester.ID,
	})
	require.NoError(t, s.HandleMessage(context.Background(), room.ID, donor.ID, &answer))
	assert.Empty(t, drainEvents(donor))
}

func TestEnqueueAfterUnregisterIsSafe(t *testing.T) {
	s := newTestService()
	room, err := s.CreateRoom(context.Background(), "sketch", 4)
	require.NoError(t, err)

	m1 := join(t, s, room, "a")
	m2 := join(t, s, room, "b")
	drainEvents(m1)
	drainEvents(m2)

	require.NoError(t, s.UnregisterMember(context.Background(), room.ID, m2.ID))

	// A fan-out snapshot taken before the unregister may still hold
	// the departed member; the enqueue must refuse, not panic.
	msg := domain.MustMessage(domain.MsgCursor, domain.CursorPayload{UserID: m1.ID})
	assert.False(t, m2.EnqueueEvent(msg))
	assert.True(t, m1.EnqueueEvent(msg))
}

func TestUnregisterBroadcastsLeaveAndDropsEmptyRoom(t *testing.T) {
	s := newTestService()
	room, err := s.CreateRoom(context.Background(), "sketch", 4)
	require.NoError(t, err)

	m1 := join(t, s, room, "a")
	m2 := join(t, s, room, "b")
	drainEvents(m1)
	drainEvents(m2)

	require.NoError(t, s.UnregisterMember(context.Background(), room.ID, m2.ID))

	got := drainEvents(m1)
	require.Len(t, got, 2)
	require.Equal(t, domain.MsgLeave, got[0].Type)
	var p domain.LeavePayload
	require.NoError(t, got[0].DecodePayload(&p))
	assert.Equal(t, m2.ID, p.UserID)
	require.Equal(t, domain.MsgRoomUpdated, got[1].Type)
	var roster domain.RoomUpdatedPayload
	require.NoError(t, got[1].DecodePayload(&roster))
	assert.Len(t, roster.Members, 1)

	require.NoError(t, s.UnregisterMember(context.Background(), room.ID, m1.ID))
	_, err = s.GetRoom(context.Background(), room.ID)
	assert.ErrorIs(t, err, repository.ErrRoomNotFound)
}

func TestLeaveMessageUnregisters(t *testing.T) {
	s := newTestService()
	room, err := s.CreateRoom(context.Background(), "sketch", 4)
	require.NoError(t, err)

	m1 := join(t, s, room, "a")
	m2 := join(t, s, room, "b")
	drainEvents(m1)
	drainEvents(m2)

	leave := domain.MustMessage(domain.MsgLeave, domain.LeavePayload{UserID: m2.ID})
	require.NoError(t, s.HandleMessage(context.Background(), room.ID, m2.ID, &leave))

	users, err := s.ListParticipants(context.Background(), room.ID)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, m1.ID, users[0].ID)
}

func TestHandleMessageFromUnknownMember(t *testing.T) {
	s := newTestService()
	room, err := s.CreateRoom(context.Background(), "sketch", 4)
	require.NoError(t, err)

	msg := domain.MustMessage(domain.MsgCursor, domain.CursorPayload{UserID: "ghost"})
	err = s.HandleMessage(context.Background(), room.ID, "ghost", &msg)
	assert.ErrorIs(t, err, ErrMemberNotFound)
}
