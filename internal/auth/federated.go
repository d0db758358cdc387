package auth

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dkeye/chat/internal/config"
	"github.com/golang-jwt/jwt/v5"
)

// FederatedVerifier checks RS256 tokens against the first key published by
// the issuing realm.
type FederatedVerifier struct {
	cfg  config.Federation
	keys *keyCache
	now  func() time.Time
}

func NewFederatedVerifier(cfg config.Federation, client *http.Client) *FederatedVerifier {
	return &FederatedVerifier{
		cfg:  cfg,
		keys: newKeyCache(client, cfg.JWKSTTL, cfg.Timeout),
		now:  time.Now,
	}
}

func (v *FederatedVerifier) Verify(ctx context.Context, cred Credential) (Claims, error) {
	issuer := strings.TrimSpace(cred.IssuerHost)
	if issuer == "" || !strings.HasPrefix(issuer, v.cfg.RealmPrefix) || len(issuer) == len(v.cfg.RealmPrefix) {
		return Claims{}, reject("untrusted issuer", fmt.Errorf("issuer %q", issuer))
	}
	key, err := v.keys.get(ctx, issuer)
	if err != nil {
		return Claims{}, reject("signing key unavailable", err)
	}

	claims := jwt.MapClaims{}
	_, err = jwt.ParseWithClaims(cred.Token, claims, func(*jwt.Token) (any, error) { return key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return Claims{}, reject("invalid token", err)
	}

	sub, _ := claims.GetSubject()
	tenantID := claimString(claims, v.cfg.TenantClaim)
	email := claimString(claims, "email")
	given := claimString(claims, "given_name")
	name := claimString(claims, "name")
	required := map[string]string{"sub": sub, "email": email, "given_name": given, "name": name, v.cfg.TenantClaim: tenantID}
	for k, val := range required {
		if strings.TrimSpace(val) == "" {
			return Claims{}, reject("missing claim", fmt.Errorf("claim %q", k))
		}
	}

	var family string
	if parts := strings.Fields(name); len(parts) > 1 {
		family = parts[len(parts)-1]
	}
	iss, _ := claims.GetIssuer()
	return claimsFrom(tenantID, strings.TrimPrefix(iss, v.cfg.RealmPrefix), sub, given, family, email)
}

func claimString(c jwt.MapClaims, key string) string {
	switch v := c[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}
