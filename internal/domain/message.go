package domain

import (
	"time"

	"github.com/google/uuid"
)

type MessageID int64

// Message is immutable once stored. History is ordered by CreatedAt, then ID.
type Message struct {
	ID        MessageID
	UUID      uuid.UUID
	RoomID    RoomID
	Author    User
	Body      string
	CreatedAt time.Time
}
