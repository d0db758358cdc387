// Package auth verifies the identity tokens presented on a websocket handshake.
//
// Two kinds of tokens are accepted: opaque platform tokens that are checked
// against the identity provider's current-login endpoint, and RS256 JWTs
// issued by a federated realm and checked against the realm's published keys.
package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/dkeye/chat/internal/config"
	"github.com/dkeye/chat/internal/domain"
	"github.com/rs/zerolog/log"
)

// Credential is what a client presents on the handshake.
type Credential struct {
	Token      string
	IssuerHost string
	IssuerKind string
}

func (c Credential) Empty() bool { return strings.TrimSpace(c.Token) == "" }

// Claims is a verified assertion about a caller. Nothing is stored yet.
type Claims struct {
	Tenant  domain.TenantRef
	Profile domain.UserProfile
}

type Verifier interface {
	Verify(ctx context.Context, cred Credential) (Claims, error)
}

// Dispatcher selects the federated verifier for the configured issuer kind
// and the IDP verifier for anything else.
type Dispatcher struct {
	federatedKind string
	idp           Verifier
	federated     Verifier
}

func NewDispatcher(federatedKind string, idp, federated Verifier) *Dispatcher {
	return &Dispatcher{federatedKind: federatedKind, idp: idp, federated: federated}
}

// NewVerifier wires both verifiers from configuration.
func NewVerifier(idp config.IDP, fed config.Federation) *Dispatcher {
	return NewDispatcher(
		fed.IssuerKind,
		NewIDPVerifier(idp, &http.Client{Timeout: idp.Timeout}),
		NewFederatedVerifier(fed, &http.Client{Timeout: fed.Timeout}),
	)
}

func (d *Dispatcher) Verify(ctx context.Context, cred Credential) (Claims, error) {
	if cred.Empty() {
		return Claims{}, reject("missing token", nil)
	}
	if cred.IssuerKind == d.federatedKind {
		return d.federated.Verify(ctx, cred)
	}
	return d.idp.Verify(ctx, cred)
}

// reject logs the cause at debug level and returns an error that carries no internals.
func reject(reason string, cause error) error {
	ev := log.Debug().Str("module", "auth").Str("reason", reason)
	if cause != nil {
		ev = ev.Err(cause)
	}
	ev.Msg("credential rejected")
	return fmt.Errorf("%w: %s", domain.ErrAuthRejected, reason)
}

func claimsFrom(tenantID, tenantName, userID, first, last, email string) (Claims, error) {
	ref, err := domain.NewTenantRef(tenantID, tenantName)
	if err != nil {
		return Claims{}, reject("invalid tenant", err)
	}
	p, err := domain.NewUserProfile(userID, first, last, email)
	if err != nil {
		return Claims{}, reject("invalid user", err)
	}
	return Claims{Tenant: ref, Profile: p}, nil
}
