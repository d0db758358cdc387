package core

import (
	"context"
	"io"

	"github.com/dkeye/chat/internal/domain"
	"github.com/google/uuid"
)

//go:generate mockgen -destination=mocks/mock_store.go -package=mocks github.com/dkeye/chat/internal/core MessageStore

type TenantStore interface {
	// GetOrCreateTenant returns the tenant with ref.ExternalID, creating it on first sight.
	GetOrCreateTenant(ctx context.Context, ref domain.TenantRef) (domain.Tenant, error)
}

type UserStore interface {
	// GetOrCreateUser returns the user keyed by (tenant, profile.ExternalID).
	// A profile whose email is taken by another user of the tenant yields domain.ErrConflict.
	GetOrCreateUser(ctx context.Context, tenant domain.Tenant, profile domain.UserProfile) (domain.User, error)
}

type RoomStore interface {
	RoomByUUID(ctx context.Context, id uuid.UUID) (domain.Room, error)
	// FindRoomByName returns the oldest room whose name is any of names.
	FindRoomByName(ctx context.Context, names ...domain.RoomName) (domain.Room, error)
	// CreateRoom is get-or-create by spec.Name; spec.Members are added either way.
	CreateRoom(ctx context.Context, spec domain.RoomSpec) (domain.Room, error)
	AddRoomMembers(ctx context.Context, room domain.RoomID, users ...domain.UserID) error
	IsRoomMember(ctx context.Context, room domain.RoomID, user domain.UserID) (bool, error)
}

type MessageStore interface {
	CreateMessage(ctx context.Context, room domain.Room, author domain.User, body string) (domain.Message, error)
	// RecentMessages returns up to limit newest messages of room, oldest first.
	RecentMessages(ctx context.Context, room domain.RoomID, limit int) ([]domain.Message, error)
}

// Store is the whole persistence boundary of the chat service.
type Store interface {
	TenantStore
	UserStore
	RoomStore
	MessageStore
	io.Closer
}
