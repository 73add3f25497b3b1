// Package credential caches solved challenge credentials per host so the
// browser runs once per host per TTL window, no matter how many workers ask.
package credential

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"prop-crawler/internal/challenge"
	"prop-crawler/internal/fault"
	"prop-crawler/pkg/models"
)

const DefaultTTL = 30 * time.Minute

// Store is the durable layer behind the in-process cache. Saves are
// last-writer-wins. ExpireCredential must compare the cookie and write the
// expiry atomically, and report whether it changed anything.
type Store interface {
	LoadCredential(ctx context.Context, host string) (models.Credential, bool, error)
	SaveCredential(ctx context.Context, cred models.Credential) error
	ExpireCredential(ctx context.Context, host, cookie string, at time.Time) (bool, error)
}

type Config struct {
	TTL time.Duration
	// Now is the clock used for issue and expiry times. Defaults to time.Now.
	Now func() time.Time
	// Hosts caps the in-process layer.
	Hosts int
}

type Cache struct {
	store  Store
	solver challenge.Solver
	ttl    time.Duration
	now    func() time.Time

	local *expirable.LRU[string, models.Credential]
	group singleflight.Group
}

func NewCache(store Store, solver challenge.Solver, cfg Config) *Cache {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Hosts <= 0 {
		cfg.Hosts = 64
	}
	return &Cache{
		store:  store,
		solver: solver,
		ttl:    cfg.TTL,
		now:    cfg.Now,
		local:  expirable.NewLRU[string, models.Credential](cfg.Hosts, nil, cfg.TTL),
	}
}

// Get returns a valid credential for the host of rawURL, solving the
// challenge when none is cached. Concurrent callers for one host share a
// single solve.
func (c *Cache) Get(ctx context.Context, rawURL string) (models.Credential, error) {
	host, err := hostOf(rawURL)
	if err != nil {
		return models.Credential{}, fault.Terminal("get credential", err)
	}

	if cred, ok, err := c.lookup(ctx, host); err != nil || ok {
		return cred, err
	}

	v, err, shared := c.group.Do(host, func() (interface{}, error) {
		// A solve for this host may have landed between our miss and
		// entering the group.
		if cred, ok, err := c.lookup(ctx, host); err != nil || ok {
			return cred, err
		}
		return c.refresh(context.WithoutCancel(ctx), rawURL, host)
	})
	if err != nil {
		return models.Credential{}, err
	}
	if shared {
		slog.DebugContext(ctx, "joined in-flight solve", "host", host)
	}
	return v.(models.Credential), nil
}

func (c *Cache) lookup(ctx context.Context, host string) (models.Credential, bool, error) {
	now := c.now()
	if cred, ok := c.local.Get(host); ok && cred.Valid(now) {
		return cred, true, nil
	}

	cred, ok, err := c.store.LoadCredential(ctx, host)
	if err != nil {
		return models.Credential{}, false, fault.Fatal("load credential", err)
	}
	if !ok || !cred.Valid(now) {
		return models.Credential{}, false, nil
	}
	c.local.Add(host, cred)
	return cred, true, nil
}

func (c *Cache) refresh(ctx context.Context, rawURL, host string) (models.Credential, error) {
	slog.InfoContext(ctx, "credential missing or expired, solving", "host", host)

	cred, err := c.solver.Solve(ctx, rawURL)
	if err != nil {
		return models.Credential{}, err
	}
	now := c.now()
	cred.Host = host
	cred.IssuedAt = now
	cred.ExpiresAt = now.Add(c.ttl)

	if err := c.store.SaveCredential(ctx, cred); err != nil {
		return models.Credential{}, fault.Fatal("save credential", err)
	}
	c.local.Add(host, cred)

	slog.InfoContext(ctx, "credential stored", "host", host, "expires", cred.ExpiresAt.Format(time.RFC3339))
	return cred, nil
}

// Invalidate makes the next Get for the host of rawURL solve again. The
// stored entry is kept but marked expired.
func (c *Cache) Invalidate(ctx context.Context, rawURL string) error {
	host, err := hostOf(rawURL)
	if err != nil {
		return fault.Terminal("invalidate credential", err)
	}
	return c.expire(ctx, host, "")
}

// Reject invalidates cred only while it is still the current credential for
// its host, so a late refusal of an old cookie does not evict a newer one.
func (c *Cache) Reject(ctx context.Context, cred models.Credential) error {
	if cred.Host == "" {
		return nil
	}
	return c.expire(ctx, cred.Host, cred.Cookie)
}

// expire marks the host's credential stale. A non-empty cookie restricts
// it to entries holding that cookie.
func (c *Cache) expire(ctx context.Context, host, cookie string) error {
	if local, ok := c.local.Peek(host); ok && (cookie == "" || local.Cookie == cookie) {
		c.local.Remove(host)
	}

	expired, err := c.store.ExpireCredential(ctx, host, cookie, c.now())
	if err != nil {
		return fault.Fatal("expire credential", err)
	}
	if !expired {
		return nil
	}
	slog.InfoContext(ctx, "credential invalidated", "host", host)
	return nil
}

func hostOf(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("no host in %q", rawURL)
	}
	return u.Hostname(), nil
}
