package domain

import "time"

// Member represents a connection's participation in a room.
// No transport or lifecycle logic here.
type Member struct {
	User     User
	Room     Room
	JoinedAt time.Time
}

// NewMember avoids raw literals in adapters and keeps construction obvious.
func NewMember(user User, room Room) *Member {
	return &Member{User: user, Room: room, JoinedAt: time.Now().UTC()}
}
