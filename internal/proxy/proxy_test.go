package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"prop-crawler/internal/fault"
	"prop-crawler/internal/fetch"
	"prop-crawler/internal/prices"
	"prop-crawler/pkg/models"
)

type fakeFetcher struct {
	calls atomic.Int32
	fn    func(n int32, cred models.Credential) (*fetch.Response, error)
}

func (f *fakeFetcher) Fetch(ctx context.Context, targetURL string, cred models.Credential, opts fetch.Options) (*fetch.Response, error) {
	return f.fn(f.calls.Add(1), cred)
}

type fakeCreds struct {
	gets, rejects atomic.Int32
}

func (c *fakeCreds) Get(ctx context.Context, rawURL string) (models.Credential, error) {
	c.gets.Add(1)
	return models.Credential{Cookie: "cf_clearance=x", Host: "media.daft.ie"}, nil
}

func (c *fakeCreds) Reject(ctx context.Context, cred models.Credential) error {
	c.rejects.Add(1)
	return nil
}

type staticTowns []models.CountyPrices

func (s staticTowns) Counties(ctx context.Context) ([]models.CountyPrices, error) { return s, nil }

func serve(h *Handler, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestGetImage_MissingURL(t *testing.T) {
	h := New(Config{}, &fakeFetcher{}, &fakeCreds{}, nil)
	rec := serve(h, "/getImage")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.JSONEq(t, `{"error":"Missing url parameter"}`, rec.Body.String())
}

func TestGetImage_PassesContentType(t *testing.T) {
	f := &fakeFetcher{fn: func(n int32, cred models.Credential) (*fetch.Response, error) {
		require.Equal(t, "cf_clearance=x", cred.Cookie)
		return &fetch.Response{Status: 200, ContentType: "image/webp", Body: []byte("RIFF")}, nil
	}}
	h := New(Config{}, f, &fakeCreds{}, nil)

	rec := serve(h, "/getImage?url=https%3A%2F%2Fmedia.daft.ie%2Fa.webp")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "image/webp", rec.Header().Get("Content-Type"))
	require.Equal(t, "RIFF", rec.Body.String())
}

func TestGetImage_DefaultsToJPEG(t *testing.T) {
	f := &fakeFetcher{fn: func(n int32, cred models.Credential) (*fetch.Response, error) {
		return &fetch.Response{Status: 200, Body: []byte{0xff, 0xd8}}, nil
	}}
	rec := serve(New(Config{}, f, &fakeCreds{}, nil), "/getImage?url=https://media.daft.ie/a.jpg")
	require.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))
}

func TestGetImage_RetriesOnceAfterRefusal(t *testing.T) {
	creds := &fakeCreds{}
	f := &fakeFetcher{fn: func(n int32, cred models.Credential) (*fetch.Response, error) {
		if n == 1 {
			return nil, fault.HTTP("GET", http.StatusForbidden)
		}
		return &fetch.Response{Status: 200, ContentType: "image/jpeg", Body: []byte("ok")}, nil
	}}
	rec := serve(New(Config{}, f, creds, nil), "/getImage?url=https://media.daft.ie/a.jpg")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, int32(1), creds.rejects.Load())
	require.Equal(t, int32(2), creds.gets.Load())
}

func TestGetImage_FailureIs500JSON(t *testing.T) {
	f := &fakeFetcher{fn: func(n int32, cred models.Credential) (*fetch.Response, error) {
		return nil, fault.HTTP("GET https://media.daft.ie/a.jpg", http.StatusForbidden)
	}}
	rec := serve(New(Config{}, f, &fakeCreds{}, nil), "/getImage?url=https://media.daft.ie/a.jpg")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, int32(2), f.calls.Load())

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "GET https://media.daft.ie/a.jpg: status 403", body["error"])
}

func TestGetImage_NonAuthErrorNotRetried(t *testing.T) {
	f := &fakeFetcher{fn: func(n int32, cred models.Credential) (*fetch.Response, error) {
		return nil, errors.New("connection reset")
	}}
	rec := serve(New(Config{}, f, &fakeCreds{}, nil), "/getImage?url=https://media.daft.ie/a.jpg")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, int32(1), f.calls.Load())
}

func TestGetHousePrice(t *testing.T) {
	towns := staticTowns{{County: "cork", Towns: []models.TownPrice{{
		Town:  "Mallow",
		Price: "€265,000",
		Bounds: &models.Bounds{
			Southwest: models.LatLng{Lat: 52.12, Lng: -8.68},
			Northeast: models.LatLng{Lat: 52.15, Lng: -8.62},
		},
	}}}}
	h := New(Config{}, nil, nil, towns)

	rec := serve(h, "/getHousePrice?lat=52.13&lon=-8.65")
	require.Equal(t, http.StatusOK, rec.Code)
	var m prices.Match
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	require.Equal(t, prices.Match{Town: "Mallow", Price: "€265,000", MatchType: prices.Exact, County: "cork"}, m)

	rec = serve(h, "/getHousePrice?lat=abc&lon=1")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthzAndMedia(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "properties", "1"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "properties", "1", "image-0.jpg"), []byte("img"), 0o644))

	h := New(Config{MediaDir: dir}, nil, nil, nil)
	rec := serve(h, "/healthz")
	require.Equal(t, "ok", rec.Body.String())

	rec = serve(h, "/media/properties/1/image-0.jpg")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "img", rec.Body.String())
}
