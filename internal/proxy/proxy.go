// Package proxy serves listing images through our credential so browsers
// never hit the challenge themselves.
package proxy

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"prop-crawler/internal/fetch"
	"prop-crawler/internal/pipeline"
	"prop-crawler/internal/prices"
	"prop-crawler/pkg/models"
)

type Fetcher interface {
	Fetch(ctx context.Context, targetURL string, cred models.Credential, opts fetch.Options) (*fetch.Response, error)
}

type Towns interface {
	Counties(ctx context.Context) ([]models.CountyPrices, error)
}

type Config struct {
	// MediaDir is served under /media/ when set.
	MediaDir string
	// Attempts bounds fetches per image request, counting the retry after
	// a refused credential.
	Attempts int
}

type Handler struct {
	cfg     Config
	fetcher Fetcher
	creds   pipeline.Credentials
	towns   Towns
}

func New(cfg Config, fetcher Fetcher, creds pipeline.Credentials, towns Towns) *Handler {
	if cfg.Attempts < 1 {
		cfg.Attempts = 2
	}
	return &Handler{cfg: cfg, fetcher: fetcher, creds: creds, towns: towns}
}

func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/getImage", h.getImage).Methods(http.MethodGet)
	r.HandleFunc("/getHousePrice", h.getHousePrice).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	if h.cfg.MediaDir != "" {
		r.PathPrefix("/media/").Handler(http.StripPrefix("/media/", http.FileServer(http.Dir(h.cfg.MediaDir))))
	}
	return r
}

// NewServer wraps handler with timeouts long enough for a challenge solve
// but short enough that a stuck upstream does not pin the connection.
func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      120 * time.Second,
	}
}

func (h *Handler) getImage(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Query().Get("url")
	if target == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Missing url parameter"})
		return
	}

	ctx := r.Context()
	item := models.WorkItem{Kind: models.ImageFetch, URL: target, ID: "proxy"}

	var res *fetch.Response
	err := pipeline.Attempt(ctx, h.creds, h.cfg.Attempts, item, func(ctx context.Context, item models.WorkItem, cred models.Credential) error {
		var err error
		res, err = h.fetcher.Fetch(ctx, item.URL, cred, fetch.Options{Binary: true})
		return err
	})
	if err != nil {
		slog.ErrorContext(ctx, "image proxy failed", "url", target, "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	contentType := res.ContentType
	if contentType == "" {
		contentType = "image/jpeg"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(res.Body)))
	w.Write(res.Body)
}

func (h *Handler) getHousePrice(w http.ResponseWriter, r *http.Request) {
	lat, latErr := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
	lon, lonErr := strconv.ParseFloat(r.URL.Query().Get("lon"), 64)
	if latErr != nil || lonErr != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid lat or lon parameters"})
		return
	}

	counties, err := h.towns.Counties(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "load town prices", "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	match := prices.Lookup(counties, lat, lon)
	slog.InfoContext(r.Context(), "house price lookup", "lat", lat, "lon", lon, "town", match.Town, "match", match.MatchType)
	writeJSON(w, http.StatusOK, match)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
