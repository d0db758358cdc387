package app

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"

	"github.com/dkeye/chat/internal/config"
	"github.com/dkeye/chat/internal/core"
	"github.com/dkeye/chat/internal/domain"
	"github.com/dkeye/chat/internal/storage/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	mu     sync.Mutex
	frames []core.Frame
	closed bool
	full   bool
}

func (c *fakeConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return core.ErrConnClosed
	}
	if c.full {
		return core.ErrBackpressure
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) envelopes(t *testing.T) []map[string]any {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]map[string]any, 0, len(c.frames))
	for _, f := range c.frames {
		var m map[string]any
		require.NoError(t, json.Unmarshal(f, &m))
		out = append(out, m)
	}
	return out
}

type fixture struct {
	store *sqlite.Store
	orch  *Orchestrator
	room  domain.Room
	alice domain.User
	bob   domain.User
}

func newFixture(t *testing.T, mutate func(*config.Chat)) *fixture {
	t.Helper()
	r := require.New(t)
	ctx := context.Background()
	store, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "chat.db"))
	r.NoError(err)
	t.Cleanup(func() { _ = store.Close() })

	tenant, err := store.GetOrCreateTenant(ctx, domain.TenantRef{ExternalID: "10", Name: "acme"})
	r.NoError(err)
	alice, err := store.GetOrCreateUser(ctx, tenant, domain.UserProfile{ExternalID: "alice", FirstName: "Alice", Email: "alice@acme.io"})
	r.NoError(err)
	bob, err := store.GetOrCreateUser(ctx, tenant, domain.UserProfile{ExternalID: "bob", FirstName: "Bob", Email: "bob@acme.io"})
	r.NoError(err)
	room, err := store.CreateRoom(ctx, domain.RoomSpec{Name: "room-abc", Members: []domain.UserID{alice.ID}})
	r.NoError(err)

	chat := config.Default().Chat
	if mutate != nil {
		mutate(&chat)
	}
	orch := NewOrchestrator(core.NewRoomRegistry(), store, NewRooms(store), SimplePolicy{}, chat)
	return &fixture{store: store, orch: orch, room: room, alice: alice, bob: bob}
}

// serving returns a session of user already joined to f.room.
func (f *fixture) serving(t *testing.T, user domain.User) (*Session, *fakeConn) {
	t.Helper()
	r := require.New(t)
	s := f.orch.NewSession(core.SessionID(uuid.NewString()), user)
	r.NoError(s.Connect(context.Background(), f.room.UUID))
	conn := &fakeConn{}
	r.NoError(s.Join(conn))
	r.NoError(s.Serve())
	t.Cleanup(s.Close)
	return s, conn
}
