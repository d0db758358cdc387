package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/dkeye/chat/internal/config"
	"github.com/samber/lo"
)

const maxBody = 1 << 20

// IDPVerifier resolves opaque tokens through the identity provider's
// current-login endpoint.
type IDPVerifier struct {
	cfg    config.IDP
	client *http.Client
}

func NewIDPVerifier(cfg config.IDP, client *http.Client) *IDPVerifier {
	return &IDPVerifier{cfg: cfg, client: client}
}

// flexID accepts both JSON numbers and strings.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*f = ""
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexID(s)
	default:
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return err
		}
		*f = flexID(n.String())
	}
	return nil
}

type idpUser struct {
	ID           flexID `json:"id"`
	Name         string `json:"name"`
	Surname      string `json:"surname"`
	EmailAddress string `json:"emailAddress"`
}

type idpTenant struct {
	ID   flexID `json:"id"`
	Name string `json:"name"`
}

type loginInfo struct {
	User   *idpUser   `json:"user"`
	Tenant *idpTenant `json:"tenant"`
}

// loginEnvelope matches both the wrapped {"result": {...}} and the bare shape.
type loginEnvelope struct {
	Result *loginInfo `json:"result"`
	loginInfo
}

func (v *IDPVerifier) host(requested string) string {
	requested = strings.TrimRight(strings.TrimSpace(requested), "/")
	if requested != "" && lo.ContainsBy(v.cfg.AllowedHosts, func(h string) bool {
		return strings.TrimRight(h, "/") == requested
	}) {
		return requested
	}
	return strings.TrimRight(v.cfg.Host, "/")
}

func (v *IDPVerifier) Verify(ctx context.Context, cred Credential) (Claims, error) {
	url := v.host(cred.IssuerHost) + v.cfg.CurrentLoginPath
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Claims{}, reject("idp request", err)
	}
	req.Header.Set("Authorization", "Bearer "+cred.Token)
	req.Header.Set("Accept", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return Claims{}, reject("idp unreachable", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return Claims{}, reject("idp read", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Claims{}, reject("idp status", fmt.Errorf("status %d: %s", resp.StatusCode, body))
	}

	var env loginEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Claims{}, reject("idp decode", err)
	}
	info := env.loginInfo
	if env.Result != nil {
		info = *env.Result
	}
	if info.User == nil {
		return Claims{}, reject("idp returned no user", nil)
	}
	tenant := idpTenant{ID: flexID(v.cfg.DefaultTenantID), Name: v.cfg.DefaultTenantName}
	if info.Tenant != nil {
		tenant = *info.Tenant
	}
	u := info.User
	return claimsFrom(string(tenant.ID), tenant.Name, string(u.ID), u.Name, u.Surname, u.EmailAddress)
}
