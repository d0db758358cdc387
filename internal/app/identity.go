package app

import (
	"context"
	"fmt"

	"github.com/dkeye/chat/internal/auth"
	"github.com/dkeye/chat/internal/core"
	"github.com/dkeye/chat/internal/domain"
	"github.com/rs/zerolog/log"
)

// IdentityResolver maps verified claims onto stored tenant and user rows,
// creating them on first sight.
type IdentityResolver struct {
	tenants core.TenantStore
	users   core.UserStore
}

func NewIdentityResolver(tenants core.TenantStore, users core.UserStore) *IdentityResolver {
	return &IdentityResolver{tenants: tenants, users: users}
}

func (r *IdentityResolver) Resolve(ctx context.Context, c auth.Claims) (domain.Tenant, domain.User, error) {
	tenant, err := r.tenants.GetOrCreateTenant(ctx, c.Tenant)
	if err != nil {
		return domain.Tenant{}, domain.User{}, fmt.Errorf("resolve tenant %q: %w", c.Tenant.ExternalID, err)
	}
	user, err := r.users.GetOrCreateUser(ctx, tenant, c.Profile)
	if err != nil {
		return domain.Tenant{}, domain.User{}, fmt.Errorf("resolve user %q: %w", c.Profile.ExternalID, err)
	}
	return tenant, user, nil
}

// Authenticator turns a handshake credential into a stored identity.
type Authenticator struct {
	verifier auth.Verifier
	resolver *IdentityResolver
}

func NewAuthenticator(v auth.Verifier, r *IdentityResolver) *Authenticator {
	return &Authenticator{verifier: v, resolver: r}
}

func (a *Authenticator) Authenticate(ctx context.Context, cred auth.Credential) (domain.User, error) {
	claims, err := a.verifier.Verify(ctx, cred)
	if err != nil {
		return domain.Anonymous, err
	}
	_, user, err := a.resolver.Resolve(ctx, claims)
	if err != nil {
		return domain.Anonymous, err
	}
	log.Debug().Str("module", "app.identity").Int64("user", int64(user.ID)).Str("tenant", user.Tenant.ExternalID).Msg("identity resolved")
	return user, nil
}
