package converter

import (
	"time"

	"github.com/google/uuid"
	"github.com/tahababou12/CoCo-sub000/internal/domain"
)

type RoomResponse struct {
	ID        uuid.UUID        `json:"id"`
	Name      string           `json:"name"`
	JoinCode  string           `json:"join_code"`
	Capacity  int              `json:"capacity"`
	Members   []MemberResponse `json:"members"`
	CreatedAt time.Time        `json:"created_at"`
}

type MemberResponse struct {
	ID       string              `json:"id"`
	Name     string              `json:"name"`
	Color    string              `json:"color"`
	Quadrant int                 `json:"quadrant"`
	Status   domain.MemberStatus `json:"status"`
}

func RoomToApi(r *domain.Room) *RoomResponse {
	members := make([]MemberResponse, 0, len(r.Members))

	r.Mutex.RLock()
	for _, m := range r.Members {
		members = append(members, MemberResponse{
			ID:       m.ID,
			Name:     m.User.Name,
			Color:    m.User.Color,
			Quadrant: m.Quadrant,
			Status:   m.Status,
		})
	}
	r.Mutex.RUnlock()

	return &RoomResponse{
		ID:        r.ID,
		Name:      r.Name,
		JoinCode:  r.JoinCode,
		Capacity:  r.Capacity,
		Members:   members,
		CreatedAt: r.CreatedAt,
	}
}
