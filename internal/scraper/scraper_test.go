package scraper

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"prop-crawler/internal/fetch"
	"prop-crawler/internal/pipeline"
	"prop-crawler/internal/storage"
	"prop-crawler/pkg/models"
)

func nextData(blob string) string {
	return `<html><head><script id="__NEXT_DATA__" type="application/json">` + blob + `</script></head><body></body></html>`
}

func searchBlob(totalPages int, ids ...int) string {
	var listings []string
	for _, id := range ids {
		path := fmt.Sprintf("/for-sale/house-%d/%d", id, id)
		if id == 4 {
			path = "/holiday-homes/cabin-4/4"
		}
		listings = append(listings, fmt.Sprintf(`{"listing":{"id":%d,"seoFriendlyPath":%q}}`, id, path))
	}
	return fmt.Sprintf(`{"props":{"pageProps":{"paging":{"totalPages":%d},"listings":[%s]}}}`, totalPages, strings.Join(listings, ","))
}

func detailBlob(id int) string {
	return fmt.Sprintf(`{"props":{"pageProps":{"listing":{"id":%d,"title":"House %d","price":"€%d0,000","description":"Septic tank.","media":{"images":[],"totalImages":0}}}}}`, id, id, id)
}

type memSaver struct {
	mu   sync.Mutex
	recs map[int64]models.PropertyRecord
}

func (m *memSaver) Save(ctx context.Context, batch []models.PropertyRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range batch {
		m.recs[r.ID] = r
	}
	return nil
}

func newSite(t *testing.T) (*httptest.Server, *sync.Map) {
	t.Helper()
	var hits sync.Map
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Store(r.URL.Path+"?"+r.URL.Query().Get("from"), true)
		switch {
		case r.URL.Path == "/property-for-sale/ireland":
			switch r.URL.Query().Get("from") {
			case "":
				fmt.Fprint(w, nextData(searchBlob(5, 1, 2)))
			case "20":
				fmt.Fprint(w, nextData(searchBlob(5, 2, 3, 4)))
			default:
				http.NotFound(w, r)
			}
		case r.URL.Path == "/for-sale/house-3/3":
			w.WriteHeader(http.StatusGone)
		case strings.HasPrefix(r.URL.Path, "/for-sale/"):
			var id int
			fmt.Sscanf(r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:], "%d", &id)
			fmt.Fprint(w, nextData(detailBlob(id)))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestRun_ListingsThenDetails(t *testing.T) {
	srv, hits := newSite(t)
	saver := &memSaver{recs: map[int64]models.PropertyRecord{}}

	s, err := New(Config{
		SearchURL:   srv.URL + "/property-for-sale/ireland?terms=derelict",
		MaxPages:    2,
		Workers:     3,
		MaxAttempts: 3,
		WriteBatch:  2,
	}, fetch.New(fetch.Config{}), nil, nil, saver)
	require.NoError(t, err)

	res, err := s.Run(context.Background())
	require.NoError(t, err)

	// MaxPages caps the five advertised pages at two.
	_, third := hits.Load("/property-for-sale/ireland?40")
	require.False(t, third)
	require.Equal(t, int64(2), res.Listings.Processed.Load())

	require.Equal(t, 4, res.Found)
	require.Equal(t, 1, res.Skipped)
	require.Equal(t, int64(2), res.Details.Processed.Load())
	require.Equal(t, int64(1), res.Details.Failed.Load())
	require.Equal(t, int64(2), res.Saved)

	require.Len(t, saver.recs, 2)
	require.Equal(t, "House 1", saver.recs[1].Title)
	require.Equal(t, float64(20000), saver.recs[2].Price.Amount)
	require.Equal(t, []string{"septic tank"}, saver.recs[2].Extracted.Utilities)
}

func TestRun_SavesToPropertyStore(t *testing.T) {
	srv, _ := newSite(t)
	db, err := storage.Open(context.Background(), "sqlite", ":memory:")
	require.NoError(t, err)
	defer db.Close()
	props := storage.PropertyStore{Store: db}

	s, err := New(Config{
		SearchURL: srv.URL + "/property-for-sale/ireland",
		MaxPages:  1,
		Workers:   2,
		Strategy:  pipeline.Batched,
	}, fetch.New(fetch.Config{}), nil, nil, props)
	require.NoError(t, err)

	_, err = s.Run(context.Background())
	require.NoError(t, err)

	all, err := props.All(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestRun_FirstPageFailureIsReturned(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>no data</html>"))
	}))
	defer srv.Close()

	s, err := New(Config{SearchURL: srv.URL + "/property-for-sale/ireland"}, fetch.New(fetch.Config{}), nil, nil, &memSaver{})
	require.NoError(t, err)
	_, err = s.Run(context.Background())
	require.ErrorContains(t, err, "first search page")
}

type denyAll struct{}

func (denyAll) IsAllowed(ctx context.Context, link string) bool { return false }

func TestRun_RespectsRobots(t *testing.T) {
	srv, _ := newSite(t)
	s, err := New(Config{
		SearchURL:     srv.URL + "/property-for-sale/ireland",
		RespectRobots: true,
	}, fetch.New(fetch.Config{}), nil, denyAll{}, &memSaver{})
	require.NoError(t, err)
	_, err = s.Run(context.Background())
	require.ErrorContains(t, err, "robots.txt")
}

func TestPageURL(t *testing.T) {
	s, err := New(Config{SearchURL: DefaultSearchURL}, nil, nil, nil, nil)
	require.NoError(t, err)
	require.Equal(t, "https://www.daft.ie/property-for-sale/ireland?adState=published&pageSize=20&terms=derelict", s.pageURL(0))
	require.Equal(t, "https://www.daft.ie/property-for-sale/ireland?adState=published&from=40&pageSize=20&terms=derelict", s.pageURL(2))
}
