package crawler

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"golang.org/x/time/rate"
)

// DomainManager hands out one rate limiter and one robots.txt group per host.
type DomainManager struct {
	mu          sync.Mutex
	limiters    map[string]*rate.Limiter
	robotsCache map[string]*robotstxt.Group

	interval  time.Duration
	burst     int
	userAgent string
	client    *http.Client
}

func NewDomainManager(interval time.Duration, burst int, userAgent string) *DomainManager {
	if burst < 1 {
		burst = 1
	}
	return &DomainManager{
		limiters:    make(map[string]*rate.Limiter),
		robotsCache: make(map[string]*robotstxt.Group),
		interval:    interval,
		burst:       burst,
		userAgent:   userAgent,
		client:      &http.Client{Timeout: 10 * time.Second},
	}
}

func (d *DomainManager) limiter(host string) *rate.Limiter {
	d.mu.Lock()
	defer d.mu.Unlock()

	limiter, exists := d.limiters[host]
	if !exists {
		limit := rate.Inf
		if d.interval > 0 {
			limit = rate.Every(d.interval)
		}
		limiter = rate.NewLimiter(limit, d.burst)
		d.limiters[host] = limiter
	}
	return limiter
}

// Wait blocks until the host of targetURL may be requested again.
func (d *DomainManager) Wait(ctx context.Context, targetURL string) error {
	u, err := url.Parse(targetURL)
	if err != nil {
		return err
	}
	return d.limiter(u.Host).Wait(ctx)
}

// IsAllowed reports whether robots.txt lets our user agent fetch link.
// Hosts without a readable robots.txt allow everything.
func (d *DomainManager) IsAllowed(ctx context.Context, link string) bool {
	u, err := url.Parse(link)
	if err != nil {
		return false
	}

	d.mu.Lock()
	group, exists := d.robotsCache[u.Host]
	d.mu.Unlock()

	if !exists {
		// Fetched outside the lock; two workers racing on a new host both
		// fetch and the later write wins.
		group = d.fetchRobots(ctx, u)
		d.mu.Lock()
		d.robotsCache[u.Host] = group
		d.mu.Unlock()
	}

	if group == nil {
		return true
	}
	return group.Test(u.Path)
}

func (d *DomainManager) fetchRobots(ctx context.Context, u *url.URL) *robotstxt.Group {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.Scheme+"://"+u.Host+"/robots.txt", nil)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", d.userAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil
	}

	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		return nil
	}
	return data.FindGroup(d.userAgent)
}
