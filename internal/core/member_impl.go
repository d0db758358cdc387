package core

import "github.com/dkeye/chat/internal/domain"

// memberSession implements MemberSession by pairing meta + transport.
type memberSession struct {
	sid  SessionID
	meta *domain.Member
	conn SignalConnection
}

func NewMemberSession(sid SessionID, meta *domain.Member, conn SignalConnection) MemberSession {
	return &memberSession{sid: sid, meta: meta, conn: conn}
}

func (m *memberSession) ID() SessionID            { return m.sid }
func (m *memberSession) Meta() *domain.Member     { return m.meta }
func (m *memberSession) Signal() SignalConnection { return m.conn }
