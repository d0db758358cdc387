package core

import (
	"sort"
	"sync"

	"github.com/dkeye/chat/internal/domain"
	"github.com/rs/zerolog/log"
)

type registryImpl struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID]*roomImpl
}

func NewRoomRegistry() RoomRegistry {
	return &registryImpl{rooms: make(map[domain.RoomID]*roomImpl)}
}

func (g *registryImpl) get(id domain.RoomID) (*roomImpl, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	r, ok := g.rooms[id]
	return r, ok
}

// Join holds the write lock while adding so that a concurrent Leave cannot
// drop the room entry between lookup and insert.
func (g *registryImpl) Join(room domain.Room, ms MemberSession) Subscription {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.rooms[room.ID]
	if !ok {
		r = newRoomImpl(room)
		g.rooms[room.ID] = r
		log.Debug().Str("module", "core.registry").Int64("room", int64(room.ID)).Msg("room opened")
	}
	r.addMember(ms)
	return Subscription{Room: room.ID, SID: ms.ID()}
}

func (g *registryImpl) Leave(sub Subscription) bool {
	r, ok := g.get(sub.Room)
	if !ok {
		return false
	}
	removed, empty := r.removeMember(sub.SID)
	if empty {
		g.dropIfEmpty(sub.Room, r)
	}
	return removed
}

func (g *registryImpl) dropIfEmpty(id domain.RoomID, r *roomImpl) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if cur, ok := g.rooms[id]; ok && cur == r && r.memberCount() == 0 {
		delete(g.rooms, id)
		log.Debug().Str("module", "core.registry").Int64("room", int64(id)).Msg("room closed")
	}
}

func (g *registryImpl) Broadcast(id domain.RoomID, data Frame) PublishResult {
	r, ok := g.get(id)
	if !ok {
		return PublishResult{}
	}
	res, gone := r.broadcast(data)
	for _, sid := range gone {
		g.Leave(Subscription{Room: id, SID: sid})
	}
	return res
}

func (g *registryImpl) Serialize(id domain.RoomID, fn func() error) error {
	r, ok := g.get(id)
	if !ok {
		return ErrNotJoined
	}
	r.publish.Lock()
	defer r.publish.Unlock()
	return fn()
}

func (g *registryImpl) MemberCount(id domain.RoomID) int {
	r, ok := g.get(id)
	if !ok {
		return 0
	}
	return r.memberCount()
}

func (g *registryImpl) MembersSnapshot(id domain.RoomID) []MemberDTO {
	r, ok := g.get(id)
	if !ok {
		return nil
	}
	return r.membersSnapshot()
}

func (g *registryImpl) List() []RoomInfo {
	g.mu.RLock()
	out := make([]RoomInfo, 0, len(g.rooms))
	for id, r := range g.rooms {
		out = append(out, RoomInfo{ID: id, Name: r.room.Name, MemberCount: r.memberCount()})
	}
	g.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
