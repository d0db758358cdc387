// Package storetest holds the behaviour every core.Store implementation must share.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/chat/internal/core"
	"github.com/dkeye/chat/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// Opener returns a fresh empty store; the suite closes it.
type Opener func(t *testing.T) core.Store

func Run(t *testing.T, open Opener) {
	t.Run("tenant get or create is idempotent", func(t *testing.T) { tenantIdempotent(t, open(t)) })
	t.Run("racing user resolution yields one row", func(t *testing.T) { userRace(t, open(t)) })
	t.Run("email is unique per tenant", func(t *testing.T) { emailConflict(t, open(t)) })
	t.Run("same email in two tenants", func(t *testing.T) { emailAcrossTenants(t, open(t)) })
	t.Run("rooms by name and uuid", func(t *testing.T) { rooms(t, open(t)) })
	t.Run("recent messages window", func(t *testing.T) { recentWindow(t, open(t)) })
	t.Run("empty history", func(t *testing.T) { emptyHistory(t, open(t)) })
}

func closeLater(t *testing.T, s core.Store) {
	t.Cleanup(func() { _ = s.Close() })
}

func seedUser(t *testing.T, s core.Store, tenantExt, userExt string) domain.User {
	t.Helper()
	ctx := context.Background()
	ref, err := domain.NewTenantRef(tenantExt, "Tenant "+tenantExt)
	require.NoError(t, err)
	tenant, err := s.GetOrCreateTenant(ctx, ref)
	require.NoError(t, err)
	p, err := domain.NewUserProfile(userExt, "First", "Last "+userExt, userExt+"@example.com")
	require.NoError(t, err)
	u, err := s.GetOrCreateUser(ctx, tenant, p)
	require.NoError(t, err)
	return u
}

func tenantIdempotent(t *testing.T, s core.Store) {
	closeLater(t, s)
	r := require.New(t)
	ctx := context.Background()

	a, err := s.GetOrCreateTenant(ctx, domain.TenantRef{ExternalID: "42", Name: "acme"})
	r.NoError(err)
	b, err := s.GetOrCreateTenant(ctx, domain.TenantRef{ExternalID: "42", Name: "other"})
	r.NoError(err)
	r.Equal(a.ID, b.ID)
	r.Equal(a.UUID, b.UUID)
	r.Equal("acme", b.Name)
}

func userRace(t *testing.T, s core.Store) {
	closeLater(t, s)
	r := require.New(t)
	ctx := context.Background()
	tenant, err := s.GetOrCreateTenant(ctx, domain.TenantRef{ExternalID: "7", Name: "race"})
	r.NoError(err)
	p, err := domain.NewUserProfile("u-1", "Ada", "Lovelace", "Ada@Example.com")
	r.NoError(err)

	const n = 8
	var (
		wg   sync.WaitGroup
		ids  = make([]domain.UserID, n)
		errs = make([]error, n)
	)
	for i := range n {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			u, err := s.GetOrCreateUser(ctx, tenant, p)
			ids[i], errs[i] = u.ID, err
		}(i)
	}
	wg.Wait()
	for i := range n {
		r.NoError(errs[i])
		r.Equal(ids[0], ids[i])
	}

	u, err := s.GetOrCreateUser(ctx, tenant, p)
	r.NoError(err)
	r.Equal("ada@example.com", u.Email)
	r.Equal(tenant.ID, u.Tenant.ID)
	r.Equal("7", u.Tenant.ExternalID)
}

func emailConflict(t *testing.T, s core.Store) {
	closeLater(t, s)
	r := require.New(t)
	ctx := context.Background()
	tenant, err := s.GetOrCreateTenant(ctx, domain.TenantRef{ExternalID: "1", Name: "t"})
	r.NoError(err)
	_, err = s.GetOrCreateUser(ctx, tenant, domain.UserProfile{ExternalID: "a", Email: "same@example.com"})
	r.NoError(err)
	_, err = s.GetOrCreateUser(ctx, tenant, domain.UserProfile{ExternalID: "b", Email: "same@example.com"})
	r.ErrorIs(err, domain.ErrConflict)
}

func emailAcrossTenants(t *testing.T, s core.Store) {
	closeLater(t, s)
	r := require.New(t)
	a := seedUser(t, s, "1", "x")
	b := seedUser(t, s, "2", "x")
	r.NotEqual(a.ID, b.ID)
	r.Equal(a.Email, b.Email)
}

func rooms(t *testing.T, s core.Store) {
	closeLater(t, s)
	r := require.New(t)
	ctx := context.Background()
	a := seedUser(t, s, "1", "alice")
	b := seedUser(t, s, "1", "bob")

	_, err := s.FindRoomByName(ctx, "alice-bob", "bob-alice")
	r.ErrorIs(err, domain.ErrNotFound)

	room, err := s.CreateRoom(ctx, domain.RoomSpec{Name: "alice-bob", Members: []domain.UserID{a.ID, b.ID}})
	r.NoError(err)
	r.NotZero(room.ID)
	r.False(room.IsCourseGroup)

	again, err := s.CreateRoom(ctx, domain.RoomSpec{Name: "alice-bob"})
	r.NoError(err)
	r.Equal(room.ID, again.ID)

	found, err := s.FindRoomByName(ctx, "bob-alice", "alice-bob")
	r.NoError(err)
	r.Equal(room.ID, found.ID)

	byUUID, err := s.RoomByUUID(ctx, room.UUID)
	r.NoError(err)
	r.Equal(room.Name, byUUID.Name)

	_, err = s.RoomByUUID(ctx, uuid.New())
	r.ErrorIs(err, domain.ErrNotFound)

	ok, err := s.IsRoomMember(ctx, room.ID, b.ID)
	r.NoError(err)
	r.True(ok)

	c := seedUser(t, s, "1", "carol")
	ok, err = s.IsRoomMember(ctx, room.ID, c.ID)
	r.NoError(err)
	r.False(ok)

	r.NoError(s.AddRoomMembers(ctx, room.ID, c.ID, c.ID))
	ok, err = s.IsRoomMember(ctx, room.ID, c.ID)
	r.NoError(err)
	r.True(ok)

	course, err := s.CreateRoom(ctx, domain.RoomSpec{Name: domain.CourseRoomName("1", uuid.New()), IsCourseGroup: true})
	r.NoError(err)
	r.True(course.IsCourseGroup)
	r.NotEqual(room.ID, course.ID)
}

func recentWindow(t *testing.T, s core.Store) {
	closeLater(t, s)
	r := require.New(t)
	ctx := context.Background()
	author := seedUser(t, s, "1", "writer")
	room, err := s.CreateRoom(ctx, domain.RoomSpec{Name: "room-abc"})
	r.NoError(err)
	other, err := s.CreateRoom(ctx, domain.RoomSpec{Name: "room-other"})
	r.NoError(err)

	for i := range 15 {
		m, err := s.CreateMessage(ctx, room, author, fmt.Sprintf("m%02d", i))
		r.NoError(err)
		r.NotZero(m.ID)
		time.Sleep(time.Millisecond)
	}
	_, err = s.CreateMessage(ctx, other, author, "elsewhere")
	r.NoError(err)

	msgs, err := s.RecentMessages(ctx, room.ID, 10)
	r.NoError(err)
	r.Len(msgs, 10)
	for i, m := range msgs {
		r.Equal(fmt.Sprintf("m%02d", i+5), m.Body)
		r.Equal(author.ID, m.Author.ID)
		r.Equal(author.Email, m.Author.Email)
		r.Equal(room.ID, m.RoomID)
		if i > 0 {
			r.False(m.CreatedAt.Before(msgs[i-1].CreatedAt))
		}
	}
}

func emptyHistory(t *testing.T, s core.Store) {
	closeLater(t, s)
	r := require.New(t)
	ctx := context.Background()
	room, err := s.CreateRoom(ctx, domain.RoomSpec{Name: "quiet"})
	r.NoError(err)
	msgs, err := s.RecentMessages(ctx, room.ID, 10)
	r.NoError(err)
	r.Empty(msgs)
	r.False(errors.Is(err, domain.ErrPersistence))
}
