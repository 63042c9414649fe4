package repository

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tahababou12/CoCo-sub000/internal/domain"
)

func TestCreateAndLookup(t *testing.T) {
	repo := NewInMemoryRoomRepository()
	ctx := context.Background()

	room := domain.NewRoom("sketch", 4)
	require.NoError(t, repo.Create(ctx, room))

	byID, err := repo.GetByID(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, room, byID)

	byCode, err := repo.GetByCode(ctx, room.JoinCode)
	require.NoError(t, err)
	assert.Equal(t, room, byCode)
}

func TestCreateRejectsDuplicateCode(t *testing.T) {
	repo := NewInMemoryRoomRepository()
	ctx := context.Background()

	room := domain.NewRoom("one", 4)
	require.NoError(t, repo.Create(ctx, room))

	dup := domain.NewRoom("two", 4)
	dup.JoinCode = room.JoinCode
	assert.ErrorIs(t, repo.Create(ctx, dup), ErrRoomCodeExists)
}

func TestDeleteFreesJoinCode(t *testing.T) {
	repo := NewInMemoryRoomRepository()
	ctx := context.Background()

	room := domain.NewRoom("sketch", 4)
	require.NoError(t, repo.Create(ctx, room))
	require.NoError(t, repo.Delete(ctx, room.ID))

	_, err := repo.GetByID(ctx, room.ID)
	assert.ErrorIs(t, err, ErrRoomNotFound)
	_, err = repo.GetByCode(ctx, room.JoinCode)
	assert.ErrorIs(t, err, ErrRoomNotFound)

	// The code is reusable once the room is gone.
	again := domain.NewRoom("again", 4)
	again.JoinCode = room.JoinCode
	assert.NoError(t, repo.Create(ctx, again))
}

func TestLookupMissingRoom(t *testing.T) {
	repo := NewInMemoryRoomRepository()
	ctx := context.Background()

	_, err := repo.GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrRoomNotFound)

	assert.ErrorIs(t, repo.Delete(ctx, uuid.New()), ErrRoomNotFound)
}

func TestCancelledContext(t *testing.T) {
	repo := NewInMemoryRoomRepository()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := repo.Create(ctx, domain.NewRoom("sketch", 4))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestList(t *testing.T) {
	repo := NewInMemoryRoomRepository()
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, domain.NewRoom("a", 4)))
	require.NoError(t, repo.Create(ctx, domain.NewRoom("b", 4)))

	rooms, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, rooms, 2)
}
