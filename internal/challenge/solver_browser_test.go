package challenge

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// chromeOnPath reports whether one of the binaries chromedp looks for is
// installed.
func chromeOnPath() bool {
	for _, name := range []string{
		"headless_shell", "headless-shell", "chromium", "chromium-browser",
		"google-chrome", "google-chrome-stable", "google-chrome-beta", "google-chrome-unstable",
	} {
		if _, err := exec.LookPath(name); err == nil {
			return true
		}
	}
	return false
}

func TestBrowserSolver_SolvesAgainstLocalPage(t *testing.T) {
	if testing.Short() || !chromeOnPath() {
		t.Skip("needs a Chrome binary on PATH")
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "cf_clearance", Value: "cleared", Path: "/"})
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html><body>ok</body></html>"))
	}))
	defer srv.Close()

	s := NewBrowserSolver(Config{
		NavTimeout:  20 * time.Second,
		IdleTimeout: 10 * time.Second,
		SettleDelay: 50 * time.Millisecond,
		MouseMoves:  2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	cred, err := s.Solve(ctx, srv.URL+"/listing/1")
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1", cred.Host)
	require.Contains(t, cred.Cookie, "cf_clearance=cleared")
}
