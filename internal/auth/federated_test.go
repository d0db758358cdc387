package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dkeye/chat/internal/config"
	"github.com/dkeye/chat/internal/domain"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

type realm struct {
	srv        *httptest.Server
	key        *rsa.PrivateKey
	discovered atomic.Int32
	delay      atomic.Int64
	issuer     string

	mu   sync.Mutex
	keys []map[string]string
}

func newRealm(t *testing.T) *realm {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	r := &realm{key: key}
	r.keys = []map[string]string{rsaJWK("k1", &key.PublicKey)}

	mux := http.NewServeMux()
	mux.HandleFunc("/realms/acme/.well-known/openid-configuration", func(w http.ResponseWriter, _ *http.Request) {
		r.discovered.Add(1)
		time.Sleep(time.Duration(r.delay.Load()))
		_ = json.NewEncoder(w).Encode(map[string]string{"jwks_uri": r.srv.URL + "/realms/acme/certs"})
	})
	mux.HandleFunc("/realms/acme/certs", func(w http.ResponseWriter, _ *http.Request) {
		r.mu.Lock()
		keys := r.keys
		r.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]any{"keys": keys})
	})
	r.srv = httptest.NewServer(mux)
	t.Cleanup(r.srv.Close)
	r.issuer = r.srv.URL + "/realms/acme"
	return r
}

func rsaJWK(kid string, pub *rsa.PublicKey) map[string]string {
	return map[string]string{
		"kty": "RSA",
		"kid": kid,
		"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
		"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
	}
}

func (r *realm) setKeys(keys ...map[string]string) {
	r.mu.Lock()
	r.keys = keys
	r.mu.Unlock()
}

func (r *realm) config() config.Federation {
	return config.Federation{
		IssuerKind:  "KC",
		RealmPrefix: r.srv.URL + "/realms/",
		TenantClaim: "B2B",
		JWKSTTL:     20 * time.Minute,
		Timeout:     5 * time.Second,
	}
}

func (r *realm) claims() jwt.MapClaims {
	return jwt.MapClaims{
		"iss":        r.issuer,
		"sub":        "kc-user-1",
		"exp":        time.Now().Add(time.Hour).Unix(),
		"email":      "Ada@Example.com",
		"given_name": "Ada",
		"name":       "Ada King Lovelace",
		"B2B":        77,
	}
}

func sign(t *testing.T, key *rsa.PrivateKey, c jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodRS256, c).SignedString(key)
	require.NoError(t, err)
	return tok
}

func TestFederated_Valid(t *testing.T) {
	r := require.New(t)
	realm := newRealm(t)
	v := NewFederatedVerifier(realm.config(), realm.srv.Client())

	claims, err := v.Verify(context.Background(), Credential{Token: sign(t, realm.key, realm.claims()), IssuerHost: realm.issuer, IssuerKind: "KC"})
	r.NoError(err)
	r.Equal("77", claims.Tenant.ExternalID)
	r.Equal("acme", claims.Tenant.Name)
	r.Equal("kc-user-1", claims.Profile.ExternalID)
	r.Equal("Ada", claims.Profile.FirstName)
	r.Equal("Lovelace", claims.Profile.LastName)
	r.Equal("ada@example.com", claims.Profile.Email)
}

func TestFederated_SingleWordNameHasNoFamilyName(t *testing.T) {
	r := require.New(t)
	realm := newRealm(t)
	v := NewFederatedVerifier(realm.config(), realm.srv.Client())
	c := realm.claims()
	c["name"] = "Ada"

	claims, err := v.Verify(context.Background(), Credential{Token: sign(t, realm.key, c), IssuerHost: realm.issuer})
	r.NoError(err)
	r.Empty(claims.Profile.LastName)
}

func TestFederated_Rejections(t *testing.T) {
	realm := newRealm(t)
	other, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	cases := map[string]func() Credential{
		"expired": func() Credential {
			c := realm.claims()
			c["exp"] = time.Now().Add(-time.Minute).Unix()
			return Credential{Token: sign(t, realm.key, c), IssuerHost: realm.issuer}
		},
		"no exp": func() Credential {
			c := realm.claims()
			delete(c, "exp")
			return Credential{Token: sign(t, realm.key, c), IssuerHost: realm.issuer}
		},
		"issuer mismatch": func() Credential {
			c := realm.claims()
			c["iss"] = realm.srv.URL + "/realms/other"
			return Credential{Token: sign(t, realm.key, c), IssuerHost: realm.issuer}
		},
		"foreign signature": func() Credential {
			return Credential{Token: sign(t, other, realm.claims()), IssuerHost: realm.issuer}
		},
		"hmac algorithm": func() Credential {
			tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, realm.claims()).SignedString([]byte("secret"))
			require.NoError(t, err)
			return Credential{Token: tok, IssuerHost: realm.issuer}
		},
		"missing tenant claim": func() Credential {
			c := realm.claims()
			delete(c, "B2B")
			return Credential{Token: sign(t, realm.key, c), IssuerHost: realm.issuer}
		},
		"missing email": func() Credential {
			c := realm.claims()
			delete(c, "email")
			return Credential{Token: sign(t, realm.key, c), IssuerHost: realm.issuer}
		},
		"garbage": func() Credential {
			return Credential{Token: "not.a.jwt", IssuerHost: realm.issuer}
		},
		"untrusted issuer": func() Credential {
			return Credential{Token: sign(t, realm.key, realm.claims()), IssuerHost: "https://evil.example/realms/acme"}
		},
	}
	for name, build := range cases {
		t.Run(name, func(t *testing.T) {
			v := NewFederatedVerifier(realm.config(), realm.srv.Client())
			_, err := v.Verify(context.Background(), build())
			require.ErrorIs(t, err, domain.ErrAuthRejected)
		})
	}
}

func TestFederated_UntrustedIssuerMakesNoRequest(t *testing.T) {
	realm := newRealm(t)
	cfg := realm.config()
	cfg.RealmPrefix = "https://auth.example.com/realms/"
	v := NewFederatedVerifier(cfg, realm.srv.Client())

	_, err := v.Verify(context.Background(), Credential{Token: sign(t, realm.key, realm.claims()), IssuerHost: realm.issuer})
	require.ErrorIs(t, err, domain.ErrAuthRejected)
	require.Zero(t, realm.discovered.Load())
}

func TestFederated_KeySetCachedAndShared(t *testing.T) {
	r := require.New(t)
	realm := newRealm(t)
	v := NewFederatedVerifier(realm.config(), realm.srv.Client())
	cred := Credential{Token: sign(t, realm.key, realm.claims()), IssuerHost: realm.issuer}

	var wg sync.WaitGroup
	errs := make([]error, 10)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = v.Verify(context.Background(), cred)
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		r.NoError(err)
	}
	_, err := v.Verify(context.Background(), cred)
	r.NoError(err)
	r.Equal(int32(1), realm.discovered.Load())

	// expire the cached key
	v.keys.now = func() time.Time { return time.Now().Add(time.Hour) }
	before := realm.discovered.Load()
	_, err = v.Verify(context.Background(), cred)
	r.NoError(err)
	r.Equal(before+1, realm.discovered.Load())
}

func TestFederated_UsesFirstKeyOnly(t *testing.T) {
	realm := newRealm(t)
	cred := Credential{Token: sign(t, realm.key, realm.claims()), IssuerHost: realm.issuer}

	// a symmetric key first: the RSA key behind it is never used
	realm.setKeys(map[string]string{"kty": "oct", "kid": "s1", "k": "c2VjcmV0"}, rsaJWK("k1", &realm.key.PublicKey))
	_, err := NewFederatedVerifier(realm.config(), realm.srv.Client()).Verify(context.Background(), cred)
	require.ErrorIs(t, err, domain.ErrAuthRejected)

	other, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	realm.setKeys(rsaJWK("k1", &realm.key.PublicKey), rsaJWK("k2", &other.PublicKey))
	_, err = NewFederatedVerifier(realm.config(), realm.srv.Client()).Verify(context.Background(), cred)
	require.NoError(t, err)

	realm.setKeys()
	_, err = NewFederatedVerifier(realm.config(), realm.srv.Client()).Verify(context.Background(), cred)
	require.ErrorIs(t, err, domain.ErrAuthRejected)
}

func TestFederated_CancelledCallerDoesNotFailOthers(t *testing.T) {
	r := require.New(t)
	realm := newRealm(t)
	realm.delay.Store(int64(300 * time.Millisecond))
	v := NewFederatedVerifier(realm.config(), realm.srv.Client())
	cred := Credential{Token: sign(t, realm.key, realm.claims()), IssuerHost: realm.issuer}

	short, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	var (
		wg         sync.WaitGroup
		errA, errB error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, errA = v.Verify(short, cred)
	}()
	go func() {
		defer wg.Done()
		time.Sleep(10 * time.Millisecond)
		_, errB = v.Verify(context.Background(), cred)
	}()
	wg.Wait()

	r.ErrorIs(errA, domain.ErrAuthRejected)
	r.NoError(errB)
	r.Equal(int32(1), realm.discovered.Load())

	// the key fetched after A gave up is cached for later handshakes
	_, err := v.Verify(context.Background(), cred)
	r.NoError(err)
	r.Equal(int32(1), realm.discovered.Load())
}
