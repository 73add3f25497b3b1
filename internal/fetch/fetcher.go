// Package fetch issues plain HTTP requests that present a solved challenge
// credential along with a fixed browser header profile.
package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math/rand"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"golang.org/x/net/html/charset"

	"prop-crawler/internal/fault"
	"prop-crawler/pkg/models"
)

// Limiter paces requests per host.
type Limiter interface {
	Wait(ctx context.Context, targetURL string) error
}

type Options struct {
	// Binary keeps the body as raw bytes (images). Otherwise the body is
	// decoded to UTF-8 text according to its declared charset.
	Binary bool
	// Jitter sleeps a random delay before the request.
	Jitter bool
}

type Response struct {
	Status      int
	ContentType string
	Body        []byte
	text        string
}

func (r *Response) Text() string {
	if r.text == "" && len(r.Body) > 0 {
		return string(r.Body)
	}
	return r.text
}

type Config struct {
	Limiter  Limiter
	DelayMin time.Duration
	DelayMax time.Duration
	Timeout  time.Duration
}

type Fetcher struct {
	http     *resty.Client
	limiter  Limiter
	delayMin time.Duration
	delayMax time.Duration
}

func New(cfg Config) *Fetcher {
	client := resty.New()
	// The credential is the only cookie source; a jar would append whatever
	// the origin sets and change the header we send.
	client.SetCookieJar(nil)
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client.SetTimeout(timeout)

	return &Fetcher{
		http:     client,
		limiter:  cfg.Limiter,
		delayMin: cfg.DelayMin,
		delayMax: cfg.DelayMax,
	}
}

// Fetch GETs targetURL with cred as the cookie header.
func (f *Fetcher) Fetch(ctx context.Context, targetURL string, cred models.Credential, opts Options) (*Response, error) {
	return f.do(ctx, resty.MethodGet, targetURL, nil, cred, opts)
}

// Post sends body to targetURL with cred as the cookie header.
func (f *Fetcher) Post(ctx context.Context, targetURL string, body any, cred models.Credential, opts Options) (*Response, error) {
	return f.do(ctx, resty.MethodPost, targetURL, body, cred, opts)
}

func (f *Fetcher) do(ctx context.Context, method, targetURL string, body any, cred models.Credential, opts Options) (*Response, error) {
	op := method + " " + targetURL

	if opts.Jitter {
		if err := sleep(ctx, f.jitter()); err != nil {
			return nil, fault.Terminal(op, err)
		}
	}
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx, targetURL); err != nil {
			return nil, fault.Terminal(op, err)
		}
	}

	req := f.http.R().
		SetContext(ctx).
		SetHeaders(BrowserHeaders(cred.Cookie))
	if body != nil {
		req.SetBody(body)
	}

	res, err := req.Execute(method, targetURL)
	if err != nil {
		return nil, fault.Terminal(op, err)
	}
	if res.StatusCode() < 200 || res.StatusCode() > 299 {
		return nil, fault.HTTP(op, res.StatusCode())
	}

	out := &Response{
		Status:      res.StatusCode(),
		ContentType: res.Header().Get("Content-Type"),
		Body:        res.Body(),
	}
	if !opts.Binary {
		text, err := decodeText(out.Body, out.ContentType)
		if err != nil {
			return nil, fault.Terminal(op, fmt.Errorf("decode body: %w", err))
		}
		out.text = text
	}
	return out, nil
}

func (f *Fetcher) jitter() time.Duration {
	if f.delayMax <= f.delayMin {
		return f.delayMin
	}
	return f.delayMin + time.Duration(rand.Int63n(int64(f.delayMax-f.delayMin)+1))
}

func decodeText(body []byte, contentType string) (string, error) {
	r, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		return "", err
	}
	decoded, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return string(decoded), nil
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
