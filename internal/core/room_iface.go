package core

import (
	"errors"

	"github.com/dkeye/chat/internal/domain"
)

var ErrNotJoined = errors.New("session not joined to room")

// PublishResult reports delivery stats/backpressure to the caller.
// Every member that could not take the frame is pruned from the room.
// Closed connections are only counted in Gone; slow ones are reported in
// Dropped so the caller can apply its backpressure policy.
type PublishResult struct {
	SendTo  int
	Gone    int
	Dropped []MemberSession
}

// MemberDTO is a read-only view for APIs (no transport fields).
type MemberDTO struct {
	SID   SessionID     `json:"sid"`
	ID    domain.UserID `json:"id"`
	Email string        `json:"email"`
}

type RoomInfo struct {
	ID          domain.RoomID   `json:"id"`
	Name        domain.RoomName `json:"name"`
	MemberCount int             `json:"client_count"`
}

// Subscription is the handle returned by Join. Leaving with it is idempotent.
type Subscription struct {
	Room domain.RoomID
	SID  SessionID
}

// RoomRegistry tracks which live sessions are joined to which room.
// It owns the membership sets but never touches transport resources beyond
// SignalConnection.TrySend.
type RoomRegistry interface {
	Join(room domain.Room, ms MemberSession) Subscription
	Leave(sub Subscription) bool
	Broadcast(room domain.RoomID, data Frame) PublishResult
	// Serialize runs fn under the room's publish lock. Membership changes and
	// broadcasts from other rooms are not blocked while fn runs.
	Serialize(room domain.RoomID, fn func() error) error
	MemberCount(room domain.RoomID) int
	MembersSnapshot(room domain.RoomID) []MemberDTO
	List() []RoomInfo
}
