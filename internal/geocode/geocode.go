// Package geocode looks up town bounding boxes with the Google Geocoding
// API.
package geocode

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"prop-crawler/internal/fault"
	"prop-crawler/pkg/models"
)

const DefaultBaseURL = "https://maps.googleapis.com"

var ErrNoBounds = errors.New("geocode: no bounds")

type Client struct {
	http  *resty.Client
	key   string
	pacer *rate.Limiter
}

type response struct {
	Status  string `json:"status"`
	Results []struct {
		Geometry struct {
			Bounds *models.Bounds `json:"bounds"`
		} `json:"geometry"`
	} `json:"results"`
}

// New returns a client that spaces requests interval apart.
func New(base, key string, interval time.Duration) *Client {
	if base == "" {
		base = DefaultBaseURL
	}
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &Client{
		http:  resty.New().SetBaseURL(base).SetTimeout(15 * time.Second),
		key:   key,
		pacer: rate.NewLimiter(limit, 1),
	}
}

// TownBounds geocodes "<town>, Ireland" and returns its bounding box.
func (c *Client) TownBounds(ctx context.Context, town string) (models.Bounds, error) {
	op := "geocode " + town
	if err := c.pacer.Wait(ctx); err != nil {
		return models.Bounds{}, fault.Terminal(op, err)
	}

	var body response
	res, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{"address": town + ", Ireland", "key": c.key}).
		SetResult(&body).
		Get("/maps/api/geocode/json")
	if err != nil {
		return models.Bounds{}, fault.Terminal(op, err)
	}
	if res.IsError() {
		return models.Bounds{}, fault.HTTP(op, res.StatusCode())
	}
	if body.Status != "OK" {
		return models.Bounds{}, fault.Terminal(op, fmt.Errorf("status %s", body.Status))
	}
	if len(body.Results) == 0 {
		return models.Bounds{}, fault.Terminal(op, fmt.Errorf("%w: no results", ErrNoBounds))
	}
	b := body.Results[0].Geometry.Bounds
	if b == nil {
		return models.Bounds{}, fault.Terminal(op, ErrNoBounds)
	}
	return *b, nil
}

// AddBounds fills in bounds for each town of county. Towns that fail keep
// whatever they had. It returns the updated county and how many towns were
// updated.
func (c *Client) AddBounds(ctx context.Context, county models.CountyPrices) (models.CountyPrices, int) {
	towns := make([]models.TownPrice, len(county.Towns))
	copy(towns, county.Towns)

	updated := 0
	for i, town := range towns {
		if ctx.Err() != nil {
			break
		}
		b, err := c.TownBounds(ctx, town.Town)
		if err != nil {
			slog.WarnContext(ctx, "no bounds for town", "county", county.County, "town", town.Town, "err", err)
			continue
		}
		towns[i].Bounds = &b
		updated++
	}
	county.Towns = towns
	return county, updated
}
