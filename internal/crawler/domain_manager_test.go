package crawler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestDomainManager_IsAllowed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			w.Write([]byte("User-agent: *\nDisallow: /private/\n"))
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := NewDomainManager(0, 1, "TestAgent")
	ctx := context.Background()

	if !d.IsAllowed(ctx, srv.URL+"/public/page") {
		t.Error("Expected /public/page to be allowed")
	}
	if d.IsAllowed(ctx, srv.URL+"/private/page") {
		t.Error("Expected /private/page to be disallowed")
	}
}

func TestDomainManager_MissingRobotsAllowsAll(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	d := NewDomainManager(0, 1, "TestAgent")
	if !d.IsAllowed(context.Background(), srv.URL+"/anything") {
		t.Error("Expected host without robots.txt to allow everything")
	}
}

func TestDomainManager_WaitSpacesRequests(t *testing.T) {
	d := NewDomainManager(50*time.Millisecond, 1, "TestAgent")
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := d.Wait(ctx, "https://example.com/a"); err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
	}
	// First call passes on the burst, the next two wait one interval each.
	if elapsed := time.Since(start); elapsed < 90*time.Millisecond {
		t.Errorf("Expected limiter to space requests, took %v", elapsed)
	}

	// Other hosts have their own limiter.
	start = time.Now()
	if err := d.Wait(ctx, "https://other.example/a"); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 40*time.Millisecond {
		t.Errorf("Expected fresh host to pass immediately, took %v", elapsed)
	}
}
