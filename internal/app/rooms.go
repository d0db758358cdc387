package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/dkeye/chat/internal/core"
	"github.com/dkeye/chat/internal/domain"
	"github.com/google/uuid"
)

// Rooms is the directory of persistent rooms: lookups, direct-message rooms
// between two users and per-course group rooms.
type Rooms struct {
	store core.RoomStore
}

func NewRooms(store core.RoomStore) *Rooms {
	return &Rooms{store: store}
}

func (r *Rooms) ByUUID(ctx context.Context, id uuid.UUID) (domain.Room, error) {
	room, err := r.store.RoomByUUID(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Room{}, fmt.Errorf("room %s: %w", id, domain.ErrRoomNotFound)
	}
	return room, err
}

func (r *Rooms) IsMember(ctx context.Context, room domain.RoomID, user domain.UserID) (bool, error) {
	return r.store.IsRoomMember(ctx, room, user)
}

// DirectRoom returns the one-to-one room between a and b, creating it with
// both members on first use. It is nil for the same user or users of
// different tenants.
func (r *Rooms) DirectRoom(ctx context.Context, a, b domain.User) (*domain.Room, error) {
	if a.ID == b.ID || a.Tenant.ID != b.Tenant.ID || a.IsAnonymous() || b.IsAnonymous() {
		return nil, nil
	}
	canonical, legacy := domain.DirectRoomNames(a.ExternalID, b.ExternalID)
	room, err := r.store.FindRoomByName(ctx, canonical, legacy)
	if errors.Is(err, domain.ErrNotFound) {
		room, err = r.store.CreateRoom(ctx, domain.RoomSpec{Name: canonical, Members: []domain.UserID{a.ID, b.ID}})
	}
	if err != nil {
		return nil, err
	}
	return &room, nil
}

// CourseRoom returns the group room of a course within tenant. Course rooms
// are provisioned by the course service that embeds this package; the chat
// endpoints only join them by uuid.
func (r *Rooms) CourseRoom(ctx context.Context, tenant domain.Tenant, course uuid.UUID) (domain.Room, error) {
	return r.store.CreateRoom(ctx, domain.RoomSpec{
		Name:          domain.CourseRoomName(tenant.ExternalID, course),
		IsCourseGroup: true,
	})
}

// Enroll adds users to room. Already enrolled users are left as they are.
func (r *Rooms) Enroll(ctx context.Context, room domain.RoomID, users ...domain.UserID) error {
	return r.store.AddRoomMembers(ctx, room, users...)
}
