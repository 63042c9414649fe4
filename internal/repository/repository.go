package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/tahababou12/CoCo-sub000/internal/domain"
)

type RoomRepository interface {
	Create(ctx context.Context, room *domain.Room) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Room, error)
	GetByCode(ctx context.Context, code string) (*domain.Room, error)
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context) ([]*domain.Room, error)
}
