// Package challenge clears a site's bot challenge in a real browser and
// hands back the resulting session cookies.
package challenge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"prop-crawler/internal/fault"
	"prop-crawler/pkg/models"
)

var (
	ErrChallengeTimeout  = errors.New("challenge: did not clear in time")
	ErrCredentialMissing = errors.New("challenge: clearance cookie missing")
)

// Solver produces a credential for the origin of originURL. Implementations
// do not retry; callers own the retry budget.
type Solver interface {
	Solve(ctx context.Context, originURL string) (models.Credential, error)
}

type SolverFunc func(ctx context.Context, originURL string) (models.Credential, error)

func (f SolverFunc) Solve(ctx context.Context, originURL string) (models.Credential, error) {
	return f(ctx, originURL)
}

// BrowserUserAgent is set on the headless browser.
const BrowserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

type Config struct {
	// EntryURL overrides the page the browser opens. When empty the root
	// of the requested origin is used.
	EntryURL        string
	ClearanceCookie string
	NavTimeout      time.Duration
	IdleTimeout     time.Duration
	SettleDelay     time.Duration
	MouseMoves      int
	UserAgent       string
}

// BrowserSolver launches a fresh headless Chrome per Solve call.
type BrowserSolver struct {
	cfg Config
}

func NewBrowserSolver(cfg Config) *BrowserSolver {
	if cfg.ClearanceCookie == "" {
		cfg.ClearanceCookie = "cf_clearance"
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = BrowserUserAgent
	}
	if cfg.NavTimeout <= 0 {
		cfg.NavTimeout = 60 * time.Second
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 30 * time.Second
	}
	return &BrowserSolver{cfg: cfg}
}

func (s *BrowserSolver) Solve(ctx context.Context, originURL string) (models.Credential, error) {
	host, entry, err := s.target(originURL)
	if err != nil {
		return models.Credential{}, fault.Terminal("solve challenge", err)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Headless,
		chromedp.NoSandbox,
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.WindowSize(1280, 800),
		chromedp.UserAgent(s.cfg.UserAgent),
	)

	// Cancelling the allocator kills the browser process, on every path.
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...interface{}) {}))
	defer cancelBrowser()

	tracker := newIdleTracker()
	chromedp.ListenTarget(browserCtx, tracker.observe)

	slog.InfoContext(ctx, "solving challenge", "host", host, "entry", entry)
	start := time.Now()

	// The first Run starts Chrome under the context it is given, so it gets
	// the long-lived browser context. Timeouts apply only to later runs.
	if err := chromedp.Run(browserCtx); err != nil {
		return models.Credential{}, fault.Transient("start browser", err)
	}

	if err := s.navigate(browserCtx, entry, tracker); err != nil {
		return models.Credential{}, err
	}
	if err := s.bounded(browserCtx, s.mouseMoves()); err != nil {
		return models.Credential{}, timeoutOr("simulate pointer", err)
	}
	if err := sleep(browserCtx, s.cfg.SettleDelay); err != nil {
		return models.Credential{}, timeoutOr("settle", err)
	}
	if err := tracker.wait(browserCtx, s.cfg.IdleTimeout); err != nil {
		return models.Credential{}, timeoutOr("wait network idle", err)
	}

	var cookies []*network.Cookie
	err = s.bounded(browserCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = network.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return models.Credential{}, timeoutOr("read cookies", err)
	}

	cookie, err := SerializeCookies(cookies, s.cfg.ClearanceCookie)
	if err != nil {
		return models.Credential{}, fault.Transient("read cookies", err)
	}

	slog.InfoContext(ctx, "challenge cleared", "host", host, "cookies", len(cookies), "took", time.Since(start).Round(time.Millisecond))
	return models.Credential{Cookie: cookie, Host: host}, nil
}

func (s *BrowserSolver) target(originURL string) (host, entry string, err error) {
	u, err := url.Parse(originURL)
	if err != nil {
		return "", "", err
	}
	if u.Hostname() == "" {
		return "", "", fmt.Errorf("no host in %q", originURL)
	}
	entry = s.cfg.EntryURL
	if entry == "" {
		entry = u.Scheme + "://" + u.Host + "/"
	}
	return u.Hostname(), entry, nil
}

func (s *BrowserSolver) navigate(ctx context.Context, entry string, tracker *idleTracker) error {
	navCtx, cancel := context.WithTimeout(ctx, s.cfg.NavTimeout)
	defer cancel()

	err := chromedp.Run(navCtx,
		network.Enable(),
		chromedp.Navigate(entry),
	)
	if err != nil {
		return timeoutOr("navigate", err)
	}
	if err := tracker.wait(navCtx, s.cfg.NavTimeout); err != nil {
		return timeoutOr("wait network idle", err)
	}
	return nil
}

// bounded runs action on the already started browser under NavTimeout.
func (s *BrowserSolver) bounded(ctx context.Context, action chromedp.Action) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.NavTimeout)
	defer cancel()
	return chromedp.Run(ctx, action)
}

// mouseMoves wiggles the pointer across the viewport; movement-based bot
// heuristics look for a pointer that never moves.
func (s *BrowserSolver) mouseMoves() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		for i := 0; i < s.cfg.MouseMoves; i++ {
			x := float64(rand.Intn(800) + 100)
			y := float64(rand.Intn(600) + 100)
			if err := chromedp.MouseEvent(input.MouseMoved, x, y).Do(ctx); err != nil {
				return err
			}
			if err := sleep(ctx, 100*time.Millisecond); err != nil {
				return err
			}
		}
		return nil
	})
}

// SerializeCookies joins every cookie into one Cookie header value. The
// clearance cookie must be present; the others carry session state the
// origin also checks, so they are forwarded too.
func SerializeCookies(cookies []*network.Cookie, clearance string) (string, error) {
	found := false
	parts := make([]string, 0, len(cookies))
	for _, c := range cookies {
		if c == nil {
			continue
		}
		if c.Name == clearance {
			found = true
		}
		parts = append(parts, c.Name+"="+c.Value)
	}
	if !found {
		return "", fmt.Errorf("%w: %s", ErrCredentialMissing, clearance)
	}
	return strings.Join(parts, "; "), nil
}

func timeoutOr(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fault.Transient(op, fmt.Errorf("%w: %v", ErrChallengeTimeout, err))
	}
	return fault.Transient(op, err)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// idleTracker counts in-flight requests from network events so we can wait
// for the page to go quiet.
type idleTracker struct {
	mu       sync.Mutex
	inflight map[network.RequestID]struct{}
	lastSeen time.Time
}

const idleQuiet = 500 * time.Millisecond

func newIdleTracker() *idleTracker {
	return &idleTracker{
		inflight: make(map[network.RequestID]struct{}),
		lastSeen: time.Now(),
	}
}

func (t *idleTracker) observe(ev interface{}) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		t.inflight[e.RequestID] = struct{}{}
	case *network.EventLoadingFinished:
		delete(t.inflight, e.RequestID)
	case *network.EventLoadingFailed:
		delete(t.inflight, e.RequestID)
	default:
		return
	}
	t.lastSeen = time.Now()
}

func (t *idleTracker) idle(now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.inflight) == 0 && now.Sub(t.lastSeen) >= idleQuiet
}

// wait returns once nothing has been in flight for idleQuiet, or fails with
// context.DeadlineExceeded after timeout.
func (t *idleTracker) wait(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		if t.idle(time.Now()) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
