package app

import (
	"time"

	"github.com/dkeye/chat/internal/domain"
	"github.com/google/uuid"
)

const (
	cmdFetched    = "fetched_messages"
	cmdNewMessage = "new_message"
	cmdError      = "error"
)

// Error codes sent in {"command":"error"} envelopes.
const (
	ErrCodeRateLimited        = "rate_limited"
	ErrCodeInvalidMessage     = "invalid_message"
	ErrCodeMessageNotSaved    = "message_not_saved"
	ErrCodeHistoryUnavailable = "history_unavailable"
)

type TenantPayload struct {
	ID       domain.TenantID `json:"id"`
	UUID     uuid.UUID       `json:"uuid"`
	TenantID string          `json:"tenant_id"`
	Name     string          `json:"name"`
}

type RoomRef struct {
	ID   domain.RoomID   `json:"id"`
	UUID uuid.UUID       `json:"uuid"`
	Name domain.RoomName `json:"name"`
}

type RoomPayload struct {
	RoomRef
	IsCourseGroup bool `json:"is_course_group"`
}

type UserPayload struct {
	ID        domain.UserID `json:"id"`
	UUID      uuid.UUID     `json:"uuid"`
	UserID    string        `json:"user_id"`
	FirstName string        `json:"first_name"`
	LastName  string        `json:"last_name"`
	Email     string        `json:"email"`
	IsExpert  bool          `json:"is_expert"`
	Tenant    TenantPayload `json:"tenant"`
	// ChatRoom is the direct room between this user and the viewer.
	ChatRoom *RoomRef `json:"chat_room"`
}

type MessagePayload struct {
	ID        domain.MessageID `json:"id"`
	UUID      uuid.UUID        `json:"uuid"`
	Content   string           `json:"content"`
	CreatedAt time.Time        `json:"created_at"`
	Room      RoomPayload      `json:"room"`
	User      UserPayload      `json:"user"`
}

type fetchedEnvelope struct {
	Command  string           `json:"command"`
	Messages []MessagePayload `json:"messages"`
	Username string           `json:"username"`
}

type newMessageEnvelope struct {
	Command string         `json:"command"`
	Message MessagePayload `json:"message"`
}

type errorEnvelope struct {
	Command string `json:"command"`
	Error   string `json:"error"`
}

func roomRef(r *domain.Room) *RoomRef {
	if r == nil {
		return nil
	}
	return &RoomRef{ID: r.ID, UUID: r.UUID, Name: r.Name}
}

func userPayload(u domain.User, chatRoom *domain.Room) UserPayload {
	return UserPayload{
		ID:        u.ID,
		UUID:      u.UUID,
		UserID:    u.ExternalID,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Email:     u.Email,
		IsExpert:  u.IsExpert,
		Tenant: TenantPayload{
			ID:       u.Tenant.ID,
			UUID:     u.Tenant.UUID,
			TenantID: u.Tenant.ExternalID,
			Name:     u.Tenant.Name,
		},
		ChatRoom: roomRef(chatRoom),
	}
}

func messagePayload(m domain.Message, room domain.Room, chatRoom *domain.Room) MessagePayload {
	return MessagePayload{
		ID:        m.ID,
		UUID:      m.UUID,
		Content:   m.Body,
		CreatedAt: m.CreatedAt,
		Room:      RoomPayload{RoomRef: *roomRef(&room), IsCourseGroup: room.IsCourseGroup},
		User:      userPayload(m.Author, chatRoom),
	}
}
