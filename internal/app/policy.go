package app

import (
	"github.com/dkeye/chat/internal/core"
	"github.com/dkeye/chat/internal/domain"
)

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	KickMember
)

// Policy decides what happens to a member whose outbound queue is full.
// The registry has already removed it from the room.
type Policy interface {
	OnBackPressure(room domain.Room, member core.MemberSession) BackpressureAction
}

type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(domain.Room, core.MemberSession) BackpressureAction {
	return KickMember
}
