package core

import (
	"errors"
	"sort"
	"sync"

	"github.com/dkeye/chat/internal/domain"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// roomImpl is a threadsafe in-memory room.
// It never closes adapter-owned resources.
type roomImpl struct {
	room    domain.Room
	mu      sync.RWMutex
	bySID   map[SessionID]MemberSession
	publish sync.Mutex
}

func newRoomImpl(room domain.Room) *roomImpl {
	return &roomImpl{
		room:  room,
		bySID: make(map[SessionID]MemberSession),
	}
}

func (r *roomImpl) memberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bySID)
}

func (r *roomImpl) addMember(ms MemberSession) bool {
	sid := ms.ID()
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.bySID[sid]; ok {
		return false
	}
	r.bySID[sid] = ms
	log.Info().Str("module", "core.room").Str("sid", string(sid)).Int64("room", int64(r.room.ID)).Msg("member added")
	return true
}

// removeMember reports whether sid was a member and whether the room is now empty.
func (r *roomImpl) removeMember(sid SessionID) (removed, empty bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.bySID[sid]; ok {
		delete(r.bySID, sid)
		removed = true
		log.Info().Str("module", "core.room").Str("sid", string(sid)).Int64("room", int64(r.room.ID)).Msg("member removed")
	}
	return removed, len(r.bySID) == 0
}

func (r *roomImpl) snapshot() []MemberSession {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Values(r.bySID)
}

func (r *roomImpl) broadcast(data Frame) (PublishResult, []SessionID) {
	res := PublishResult{}
	var gone []SessionID
	for _, m := range r.snapshot() {
		err := m.Signal().TrySend(data)
		switch {
		case err == nil:
			res.SendTo++
		case errors.Is(err, ErrConnClosed):
			res.Gone++
			gone = append(gone, m.ID())
		default:
			res.Dropped = append(res.Dropped, m)
			gone = append(gone, m.ID())
		}
	}
	log.Debug().Str("module", "core.room").Int64("room", int64(r.room.ID)).Int("sent_to", res.SendTo).Int("gone", res.Gone).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res, gone
}

// membersSnapshot is ordered by session id.
func (r *roomImpl) membersSnapshot() []MemberDTO {
	out := lo.Map(r.snapshot(), func(ms MemberSession, _ int) MemberDTO {
		u := ms.Meta().User
		return MemberDTO{SID: ms.ID(), ID: u.ID, Email: u.Email}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].SID < out[j].SID })
	return out
}
