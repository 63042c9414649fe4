package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/tahababou12/CoCo-sub000/internal/domain"
)

type RoomInteractor interface {
	CreateRoom(ctx context.Context, name string, capacity int) (*domain.Room, error)
	GetRoom(ctx context.Context, id uuid.UUID) (*domain.Room, error)
	GetRoomByCode(ctx context.Context, code string) (*domain.Room, error)
	RegisterMember(ctx context.Context, roomID uuid.UUID, user *domain.User) (*domain.Member, error)
	UnregisterMember(ctx context.Context, roomID uuid.UUID, memberID string) error
	HandleMessage(ctx context.Context, roomID uuid.UUID, memberID string, msg *domain.Message) error
	ListParticipants(ctx context.Context, roomID uuid.UUID) ([]*domain.User, error)
}
