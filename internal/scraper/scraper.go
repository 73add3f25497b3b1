// Package scraper walks the search results of the listing site, then every
// listing's detail page, and stores the cleaned records.
package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"sync"
	"time"

	"prop-crawler/internal/crawler"
	"prop-crawler/internal/fault"
	"prop-crawler/internal/fetch"
	"prop-crawler/internal/hydration"
	"prop-crawler/internal/pipeline"
	"prop-crawler/internal/storage"
	"prop-crawler/pkg/models"
)

// PageSize is the number of listings per search page.
const PageSize = 20

const DefaultSearchURL = "https://www.daft.ie/property-for-sale/ireland?adState=published&terms=derelict"

type Fetcher interface {
	Fetch(ctx context.Context, targetURL string, cred models.Credential, opts fetch.Options) (*fetch.Response, error)
}

type Robots interface {
	IsAllowed(ctx context.Context, link string) bool
}

type Saver interface {
	Save(ctx context.Context, batch []models.PropertyRecord) error
}

type Config struct {
	SearchURL     string
	MaxPages      int
	Workers       int
	MaxAttempts   int
	Strategy      pipeline.Strategy
	WriteBatch    int
	ProgressEvery int
	RespectRobots bool
	// DetailSections are the path prefixes detail pages live under.
	DetailSections []string
}

type Scraper struct {
	cfg     Config
	fetcher Fetcher
	creds   pipeline.Credentials
	robots  Robots
	saver   Saver
	filter  crawler.URLFilter
}

type Result struct {
	Listings *pipeline.Ledger
	Details  *pipeline.Ledger
	Found    int
	Skipped  int
	Saved    int64
}

func New(cfg Config, fetcher Fetcher, creds pipeline.Credentials, robots Robots, saver Saver) (*Scraper, error) {
	if cfg.SearchURL == "" {
		cfg.SearchURL = DefaultSearchURL
	}
	if cfg.MaxPages < 1 {
		cfg.MaxPages = 1
	}
	if len(cfg.DetailSections) == 0 {
		cfg.DetailSections = []string{"/for-sale/", "/new-homes-for-sale/", "/for-rent/"}
	}
	domain, err := crawler.NewInDomainFilter(cfg.SearchURL)
	if err != nil {
		return nil, err
	}
	return &Scraper{
		cfg:     cfg,
		fetcher: fetcher,
		creds:   creds,
		robots:  robots,
		saver:   saver,
		filter:  crawler.All{domain, crawler.DetailFilter{Sections: cfg.DetailSections}},
	}, nil
}

type searchPage struct {
	Props struct {
		PageProps struct {
			Listings []struct {
				Listing listingRef `json:"listing"`
			} `json:"listings"`
			Paging struct {
				TotalPages int `json:"totalPages"`
			} `json:"paging"`
		} `json:"pageProps"`
	} `json:"props"`
}

type listingRef struct {
	ID              int64  `json:"id"`
	SeoFriendlyPath string `json:"seoFriendlyPath"`
}

// found collects listings across concurrent page handlers, first seen wins.
type found struct {
	mu    sync.Mutex
	seen  map[int64]bool
	order []listingRef
}

func (f *found) add(refs ...listingRef) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ref := range refs {
		if ref.ID == 0 || ref.SeoFriendlyPath == "" || f.seen[ref.ID] {
			continue
		}
		f.seen[ref.ID] = true
		f.order = append(f.order, ref)
	}
}

// Run scrapes search pages, then detail pages. Only a fatal error, a
// failure of the first search page, or a failed save is returned.
func (s *Scraper) Run(ctx context.Context) (*Result, error) {
	listings := &found{seen: make(map[int64]bool)}

	first := models.WorkItem{Kind: models.ListingPage, URL: s.pageURL(0), ID: "0"}
	var totalPages int
	err := pipeline.Attempt(ctx, s.creds, s.cfg.MaxAttempts, first, func(ctx context.Context, item models.WorkItem, cred models.Credential) error {
		page, err := s.searchPage(ctx, item, cred)
		if err != nil {
			return err
		}
		totalPages = page.Props.PageProps.Paging.TotalPages
		listings.add(refs(page)...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("first search page: %w", err)
	}

	pages := min(max(totalPages, 1), s.cfg.MaxPages)
	slog.InfoContext(ctx, "search results", "pages", totalPages, "scraping", pages)

	var pageItems []models.WorkItem
	for n := 1; n < pages; n++ {
		pageItems = append(pageItems, models.WorkItem{Kind: models.ListingPage, URL: s.pageURL(n), ID: strconv.Itoa(n), Index: n})
	}
	listingLedger, err := s.pipeline("listing pages").Run(ctx, pageItems, func(ctx context.Context, item models.WorkItem, cred models.Credential) error {
		page, err := s.searchPage(ctx, item, cred)
		if err != nil {
			return err
		}
		listings.add(refs(page)...)
		return nil
	})
	// The first page was fetched outside the pipeline.
	listingLedger.Total.Add(1)
	listingLedger.Processed.Add(1)
	if err != nil {
		return &Result{Listings: listingLedger}, err
	}

	result := &Result{Listings: listingLedger, Found: len(listings.order)}
	var detailItems []models.WorkItem
	for _, ref := range listings.order {
		link := crawler.ResolveURL(s.cfg.SearchURL, ref.SeoFriendlyPath)
		if !s.filter.Filter(models.DetailPage, link) || !s.allowed(ctx, link) {
			slog.DebugContext(ctx, "skipping detail page", "url", link)
			result.Skipped++
			continue
		}
		detailItems = append(detailItems, models.WorkItem{Kind: models.DetailPage, URL: link, ID: strconv.FormatInt(ref.ID, 10)})
	}
	slog.InfoContext(ctx, "listings collected", "found", result.Found, "queued", len(detailItems))

	writer := storage.NewBatchWriter(s.cfg.WriteBatch, 2*time.Second, s.saver.Save)
	writer.Start(ctx)

	result.Details, err = s.pipeline("detail pages").Run(ctx, detailItems, func(ctx context.Context, item models.WorkItem, cred models.Credential) error {
		res, err := s.fetcher.Fetch(ctx, item.URL, cred, fetch.Options{})
		if err != nil {
			return err
		}
		var page DetailPage
		if err := hydration.ExtractInto(res.Text(), &page); err != nil {
			return err
		}
		rec, ok := Clean(page)
		if !ok {
			return fault.Terminal("clean "+item.URL, fmt.Errorf("page has no listing"))
		}
		writer.Send(rec)
		return nil
	})

	saveErr := writer.Close()
	result.Saved = writer.Saved()
	if err != nil {
		return result, err
	}
	if saveErr != nil {
		return result, fault.Fatal("save properties", saveErr)
	}
	return result, nil
}

func (s *Scraper) pipeline(name string) *pipeline.Pipeline[models.WorkItem] {
	return pipeline.New[models.WorkItem](pipeline.Config{
		Name:          name,
		Workers:       s.cfg.Workers,
		MaxAttempts:   s.cfg.MaxAttempts,
		Strategy:      s.cfg.Strategy,
		ProgressEvery: s.cfg.ProgressEvery,
	}, s.creds)
}

func (s *Scraper) searchPage(ctx context.Context, item models.WorkItem, cred models.Credential) (searchPage, error) {
	var page searchPage
	if !s.allowed(ctx, item.URL) {
		return page, fault.Terminal("fetch "+item.URL, fmt.Errorf("disallowed by robots.txt"))
	}
	res, err := s.fetcher.Fetch(ctx, item.URL, cred, fetch.Options{})
	if err != nil {
		return page, err
	}
	err = hydration.ExtractInto(res.Text(), &page)
	return page, err
}

func (s *Scraper) allowed(ctx context.Context, link string) bool {
	if !s.cfg.RespectRobots || s.robots == nil {
		return true
	}
	return s.robots.IsAllowed(ctx, link)
}

// pageURL is the search URL for zero-based page n.
func (s *Scraper) pageURL(n int) string {
	u, err := url.Parse(s.cfg.SearchURL)
	if err != nil {
		return s.cfg.SearchURL
	}
	q := u.Query()
	q.Set("pageSize", strconv.Itoa(PageSize))
	if n > 0 {
		q.Set("from", strconv.Itoa(n*PageSize))
	} else {
		q.Del("from")
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func refs(page searchPage) []listingRef {
	out := make([]listingRef, 0, len(page.Props.PageProps.Listings))
	for _, l := range page.Props.PageProps.Listings {
		out = append(out, l.Listing)
	}
	return out
}
