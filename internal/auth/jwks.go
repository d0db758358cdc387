package auth

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

type cachedKey struct {
	key     *rsa.PublicKey
	expires time.Time
}

// keyCache keeps the first RSA key of each issuer's key set for ttl.
// Concurrent misses for one issuer share a single fetch.
type keyCache struct {
	client  *http.Client
	ttl     time.Duration
	timeout time.Duration
	now     func() time.Time

	mu    sync.Mutex
	byIss map[string]cachedKey
	group singleflight.Group
}

func newKeyCache(client *http.Client, ttl, timeout time.Duration) *keyCache {
	return &keyCache{client: client, ttl: ttl, timeout: timeout, now: time.Now, byIss: make(map[string]cachedKey)}
}

// get returns the issuer's signing key. A caller whose ctx ends stops
// waiting, but the shared fetch keeps running for the others.
func (c *keyCache) get(ctx context.Context, issuer string) (*rsa.PublicKey, error) {
	if key, ok := c.cached(issuer); ok {
		return key, nil
	}

	ch := c.group.DoChan(issuer, func() (any, error) {
		if key, ok := c.cached(issuer); ok {
			return key, nil
		}
		fetchCtx, cancel := c.fetchContext(ctx)
		defer cancel()
		key, err := c.fetch(fetchCtx, issuer)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.byIss[issuer] = cachedKey{key: key, expires: c.now().Add(c.ttl)}
		c.mu.Unlock()
		return key, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		log.Debug().Str("module", "auth.jwks").Str("issuer", issuer).Bool("shared", res.Shared).Msg("signing key fetched")
		return res.Val.(*rsa.PublicKey), nil
	}
}

func (c *keyCache) fetchContext(ctx context.Context) (context.Context, context.CancelFunc) {
	detached := context.WithoutCancel(ctx)
	if c.timeout > 0 {
		return context.WithTimeout(detached, c.timeout)
	}
	return context.WithCancel(detached)
}

func (c *keyCache) cached(issuer string) (*rsa.PublicKey, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	hit, ok := c.byIss[issuer]
	if !ok || !c.now().Before(hit.expires) {
		return nil, false
	}
	return hit.key, true
}

func (c *keyCache) fetch(ctx context.Context, issuer string) (*rsa.PublicKey, error) {
	var discovery struct {
		JWKSURI string `json:"jwks_uri"`
	}
	if err := c.getJSON(ctx, strings.TrimRight(issuer, "/")+"/.well-known/openid-configuration", &discovery); err != nil {
		return nil, fmt.Errorf("openid configuration: %w", err)
	}
	if discovery.JWKSURI == "" {
		return nil, errors.New("openid configuration has no jwks_uri")
	}

	set, err := jwk.Fetch(ctx, discovery.JWKSURI, jwk.WithHTTPClient(c.client))
	if err != nil {
		return nil, fmt.Errorf("jwks: %w", err)
	}
	return firstRSAKey(set)
}

// firstRSAKey uses the first key of the set regardless of kid.
func firstRSAKey(set jwk.Set) (*rsa.PublicKey, error) {
	key, ok := set.Key(0)
	if !ok {
		return nil, errors.New("empty key set")
	}
	var pub rsa.PublicKey
	if err := key.Raw(&pub); err != nil {
		return nil, fmt.Errorf("first key (%s): %w", key.KeyType(), err)
	}
	return &pub, nil
}

func (c *keyCache) getJSON(ctx context.Context, url string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return json.NewDecoder(io.LimitReader(resp.Body, maxBody)).Decode(dst)
}
