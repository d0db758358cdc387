package http

import (
	"context"
	"strings"

	"github.com/dkeye/chat/internal/auth"
	"github.com/dkeye/chat/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const identityKey = "identity"

type Authenticator interface {
	Authenticate(ctx context.Context, cred auth.Credential) (domain.User, error)
}

// credentialFrom reads token, issuer-url and issuer from the query string,
// falling back to the Token, Issuer-Url and Issuer headers.
func credentialFrom(c *gin.Context) auth.Credential {
	pick := func(query, header string) string {
		if v := strings.TrimSpace(c.Query(query)); v != "" {
			return v
		}
		return strings.TrimSpace(c.GetHeader(header))
	}
	return auth.Credential{
		Token:      pick("token", "Token"),
		IssuerHost: pick("issuer-url", "Issuer-Url"),
		IssuerKind: pick("issuer", "Issuer"),
	}
}

// AuthGateway attaches the caller's identity to the request. It never aborts:
// any failure leaves domain.Anonymous in place for the handler to reject.
func AuthGateway(a Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := domain.Anonymous
		cred := credentialFrom(c)
		if !cred.Empty() {
			u, err := a.Authenticate(c.Request.Context(), cred)
			if err != nil {
				log.Info().Err(err).Str("module", "adapters.http").Str("issuer", cred.IssuerKind).Msg("handshake not authenticated")
			} else {
				user = u
			}
		}
		c.Set(identityKey, user)
		c.Next()
	}
}

// IdentityFrom returns the identity set by AuthGateway, or domain.Anonymous.
func IdentityFrom(c *gin.Context) domain.User {
	if v, ok := c.Get(identityKey); ok {
		if u, ok := v.(domain.User); ok {
			return u
		}
	}
	return domain.Anonymous
}
