package fetch

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"prop-crawler/internal/fault"
	"prop-crawler/pkg/models"
)

var cred = models.Credential{Cookie: "cf_clearance=abc; __cf_bm=def", Host: "example"}

func TestFetch_SendsBrowserHeaders(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte("<html>ok</html>"))
	}))
	defer srv.Close()

	f := New(Config{})
	res, err := f.Fetch(context.Background(), srv.URL+"/page", cred, Options{})
	require.NoError(t, err)
	require.Equal(t, "<html>ok</html>", res.Text())

	for name, value := range BrowserHeaders(cred.Cookie) {
		require.Equal(t, value, got.Get(name), "header %s", name)
	}
	require.Equal(t, "cf_clearance=abc; __cf_bm=def", got.Get("cookie"))
}

func TestFetch_BinaryBody(t *testing.T) {
	payload := []byte{0xff, 0xd8, 0xff, 0xe0, 0x00, 0x10, 'J', 'F', 'I', 'F'}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write(payload)
	}))
	defer srv.Close()

	f := New(Config{})
	res, err := f.Fetch(context.Background(), srv.URL+"/img.jpg", cred, Options{Binary: true})
	require.NoError(t, err)
	require.Equal(t, payload, res.Body)
	require.Equal(t, "image/jpeg", res.ContentType)
	require.Equal(t, http.StatusOK, res.Status)
}

func TestFetch_ClassifiesStatus(t *testing.T) {
	cases := []struct {
		status int
		kind   fault.Kind
	}{
		{http.StatusForbidden, fault.KindAuthExpired},
		{http.StatusUnauthorized, fault.KindAuthExpired},
		{http.StatusNotFound, fault.KindTerminal},
		{http.StatusInternalServerError, fault.KindTerminal},
	}
	for _, c := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(c.status)
		}))

		f := New(Config{})
		_, err := f.Fetch(context.Background(), srv.URL, cred, Options{})
		require.Error(t, err)
		require.Equal(t, c.kind, fault.KindOf(err), "status %d", c.status)
		require.Equal(t, c.status, fault.StatusOf(err))

		srv.Close()
	}
}

func TestFetch_NetworkErrorIsTerminal(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	f := New(Config{Timeout: time.Second})
	_, err := f.Fetch(context.Background(), addr, cred, Options{})
	require.Error(t, err)
	require.Equal(t, fault.KindTerminal, fault.KindOf(err))
	require.Zero(t, fault.StatusOf(err))
}

func TestPost_SendsBody(t *testing.T) {
	var body string
	var method string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		b, _ := io.ReadAll(r.Body)
		body = string(b)
		w.Write([]byte("{}"))
	}))
	defer srv.Close()

	f := New(Config{})
	_, err := f.Post(context.Background(), srv.URL, "q=cottage", cred, Options{})
	require.NoError(t, err)
	require.Equal(t, http.MethodPost, method)
	require.Equal(t, "q=cottage", body)
}

type countingLimiter struct{ n atomic.Int32 }

func (l *countingLimiter) Wait(ctx context.Context, targetURL string) error {
	l.n.Add(1)
	return nil
}

func TestFetch_JitterAndLimiter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("x"))
	}))
	defer srv.Close()

	limiter := &countingLimiter{}
	f := New(Config{Limiter: limiter, DelayMin: 20 * time.Millisecond, DelayMax: 40 * time.Millisecond})

	start := time.Now()
	_, err := f.Fetch(context.Background(), srv.URL, cred, Options{Binary: true, Jitter: true})
	require.NoError(t, err)
	require.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	require.Equal(t, int32(1), limiter.n.Load())

	for i := 0; i < 50; i++ {
		d := f.jitter()
		require.GreaterOrEqual(t, d, 20*time.Millisecond)
		require.LessOrEqual(t, d, 40*time.Millisecond)
	}
}

func TestFetch_JitterRespectsCancellation(t *testing.T) {
	f := New(Config{DelayMin: time.Hour, DelayMax: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.Fetch(ctx, "http://127.0.0.1:1/", cred, Options{Jitter: true})
	require.ErrorIs(t, err, context.Canceled)
}
