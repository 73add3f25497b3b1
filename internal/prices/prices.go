// Package prices scrapes median town prices per county and answers
// "what does a house cost here" for a coordinate.
package prices

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"

	"prop-crawler/internal/fault"
	"prop-crawler/pkg/models"
)

const DefaultBaseURL = "https://houseprice.ie"

// Counties are the path segments scraped by default, one per county.
var Counties = []string{
	"dublin", "cork", "galway", "limerick", "waterford", "tipperary", "clare", "offaly",
	"laois", "carlow", "kilkenny", "wexford", "wicklow", "kildare", "meath", "louth",
	"monaghan", "cavan", "longford", "westmeath", "roscommon", "sligo", "leitrim", "mayo",
	"donegal", "derry", "tyrone", "fermanagh", "armagh", "down", "antrim",
}

type Limiter interface {
	Wait(ctx context.Context, targetURL string) error
}

type Robots interface {
	IsAllowed(ctx context.Context, link string) bool
}

type Scraper struct {
	base    string
	http    *resty.Client
	limiter Limiter
	robots  Robots
}

// NewScraper builds a scraper for base. limiter and robots may be nil.
func NewScraper(base string, limiter Limiter, robots Robots) *Scraper {
	if base == "" {
		base = DefaultBaseURL
	}
	return &Scraper{
		base:    strings.TrimRight(base, "/"),
		http:    resty.New().SetTimeout(30 * time.Second),
		limiter: limiter,
		robots:  robots,
	}
}

// County returns the town table for one county.
func (s *Scraper) County(ctx context.Context, county string) ([]models.TownPrice, error) {
	link := s.base + "/" + county
	op := "GET " + link

	if s.robots != nil && !s.robots.IsAllowed(ctx, link) {
		return nil, fault.Terminal(op, fmt.Errorf("disallowed by robots.txt"))
	}
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx, link); err != nil {
			return nil, fault.Terminal(op, err)
		}
	}

	res, err := s.http.R().SetContext(ctx).Get(link)
	if err != nil {
		return nil, fault.Terminal(op, err)
	}
	if res.IsError() {
		return nil, fault.HTTP(op, res.StatusCode())
	}
	return ParseTowns(res.Body())
}

// ParseTowns reads town names and median prices from a county page.
func ParseTowns(page []byte) ([]models.TownPrice, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return nil, fault.Terminal("parse towns", err)
	}

	towns := []models.TownPrice{}
	doc.Find("#town-table-body tr").Each(func(_ int, row *goquery.Selection) {
		town := row.Find("td:first-child a")
		price := row.Find("td:nth-child(2) span:first-child")
		if town.Length() == 0 || price.Length() == 0 {
			return
		}
		towns = append(towns, models.TownPrice{
			Town:  strings.TrimSpace(town.First().Text()),
			Price: strings.TrimSpace(price.First().Text()),
		})
	})
	return towns, nil
}

// All scrapes every county in order. A county that fails is logged and
// gets an empty town list.
func (s *Scraper) All(ctx context.Context, counties []string) []models.CountyPrices {
	out := make([]models.CountyPrices, 0, len(counties))
	for _, county := range counties {
		if ctx.Err() != nil {
			break
		}
		towns, err := s.County(ctx, county)
		if err != nil {
			slog.ErrorContext(ctx, "county scrape failed", "county", county, "err", err)
			towns = []models.TownPrice{}
		} else {
			slog.InfoContext(ctx, "scraped county", "county", county, "towns", len(towns))
		}
		out = append(out, models.CountyPrices{County: county, Towns: towns})
	}
	return out
}
