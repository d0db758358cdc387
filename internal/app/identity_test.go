package app

import (
	"context"
	"sync"
	"testing"

	"github.com/dkeye/chat/internal/auth"
	"github.com/dkeye/chat/internal/domain"
	"github.com/stretchr/testify/require"
)

type staticVerifier struct {
	claims auth.Claims
	err    error
}

func (v staticVerifier) Verify(context.Context, auth.Credential) (auth.Claims, error) {
	return v.claims, v.err
}

func TestIdentityResolver_RacingFirstSight(t *testing.T) {
	r := require.New(t)
	f := newFixture(t, nil)
	res := NewIdentityResolver(f.store, f.store)
	claims := auth.Claims{
		Tenant:  domain.TenantRef{ExternalID: "99", Name: "new"},
		Profile: domain.UserProfile{ExternalID: "kc-1", FirstName: "K", Email: "k@new.io"},
	}

	var wg sync.WaitGroup
	users := make([]domain.User, 6)
	errs := make([]error, 6)
	for i := range users {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, users[i], errs[i] = res.Resolve(context.Background(), claims)
		}(i)
	}
	wg.Wait()
	for i := range users {
		r.NoError(errs[i])
		r.Equal(users[0].ID, users[i].ID)
		r.Equal(users[0].Tenant.ID, users[i].Tenant.ID)
	}
}

func TestAuthenticator(t *testing.T) {
	r := require.New(t)
	f := newFixture(t, nil)
	res := NewIdentityResolver(f.store, f.store)

	ok := NewAuthenticator(staticVerifier{claims: auth.Claims{
		Tenant:  domain.TenantRef{ExternalID: "10", Name: "acme"},
		Profile: domain.UserProfile{ExternalID: "alice", Email: "alice@acme.io"},
	}}, res)
	u, err := ok.Authenticate(context.Background(), auth.Credential{Token: "t"})
	r.NoError(err)
	r.Equal(f.alice.ID, u.ID)

	bad := NewAuthenticator(staticVerifier{err: domain.ErrAuthRejected}, res)
	u, err = bad.Authenticate(context.Background(), auth.Credential{Token: "t"})
	r.ErrorIs(err, domain.ErrAuthRejected)
	r.True(u.IsAnonymous())
}
