// Package migrator copies every property's listing images into our own
// object storage and records the new URLs on the property.
package migrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"prop-crawler/internal/blob"
	"prop-crawler/internal/fault"
	"prop-crawler/internal/fetch"
	"prop-crawler/internal/pipeline"
	"prop-crawler/internal/storage"
	"prop-crawler/pkg/models"
)

type Fetcher interface {
	Fetch(ctx context.Context, targetURL string, cred models.Credential, opts fetch.Options) (*fetch.Response, error)
}

type Properties interface {
	All(ctx context.Context) ([]models.PropertyRecord, error)
	SetStorageImages(ctx context.Context, id string, urls []string) error
}

type Config struct {
	PropertyWorkers int
	ImageWorkers    int
	MaxAttempts     int
	Strategy        pipeline.Strategy
	ProgressEvery   int
}

type Migrator struct {
	cfg     Config
	fetcher Fetcher
	creds   pipeline.Credentials
	sink    blob.Sink
	props   Properties
}

type Result struct {
	Properties     *pipeline.Ledger
	ImagesUploaded atomic.Int64
	ImagesFailed   atomic.Int64
}

func New(cfg Config, fetcher Fetcher, creds pipeline.Credentials, sink blob.Sink, props Properties) *Migrator {
	return &Migrator{cfg: cfg, fetcher: fetcher, creds: creds, sink: sink, props: props}
}

// Run migrates all properties. Re-running overwrites the same objects and
// writes the same storageImages arrays.
func (m *Migrator) Run(ctx context.Context) (*Result, error) {
	records, err := m.props.All(ctx)
	if err != nil {
		return nil, fault.Fatal("load properties", err)
	}
	slog.InfoContext(ctx, "migrating images", "properties", len(records))

	byID := make(map[string]models.PropertyRecord, len(records))
	items := make([]models.WorkItem, 0, len(records))
	for _, rec := range records {
		id := rec.DocID()
		byID[id] = rec
		items = append(items, models.WorkItem{Kind: models.Property, ID: id})
	}

	result := &Result{}
	// Property items carry no URL; credentials are fetched per image.
	properties := pipeline.New[models.WorkItem](pipeline.Config{
		Name:          "properties",
		Workers:       m.cfg.PropertyWorkers,
		MaxAttempts:   1,
		Strategy:      m.cfg.Strategy,
		ProgressEvery: m.cfg.ProgressEvery,
	}, nil)

	result.Properties, err = properties.Run(ctx, items, func(ctx context.Context, item models.WorkItem, _ models.Credential) error {
		return m.migrate(ctx, byID[item.ID], result)
	})
	return result, err
}

func (m *Migrator) migrate(ctx context.Context, rec models.PropertyRecord, result *Result) error {
	id := rec.DocID()
	images := rec.Media.Images
	if len(images) == 0 {
		slog.InfoContext(ctx, "no images", "property", id)
		return nil
	}

	var items []models.WorkItem
	for i, img := range images {
		if img.Size1440x960 == "" {
			slog.DebugContext(ctx, "skipping image without full-size url", "property", id, "index", i)
			continue
		}
		items = append(items, models.WorkItem{
			Kind:        models.ImageFetch,
			URL:         img.Size1440x960,
			ID:          id,
			Index:       i,
			Destination: blob.ImagePath(id, i),
		})
	}

	uploaded := make([]string, len(images))
	ledger, err := pipeline.New[models.WorkItem](pipeline.Config{
		Name:        "images " + id,
		Workers:     m.cfg.ImageWorkers,
		MaxAttempts: m.cfg.MaxAttempts,
		Strategy:    m.cfg.Strategy,
	}, m.creds).Run(ctx, items, func(ctx context.Context, item models.WorkItem, cred models.Credential) error {
		res, err := m.fetcher.Fetch(ctx, item.URL, cred, fetch.Options{Binary: true, Jitter: true})
		if err != nil {
			return err
		}
		contentType := res.ContentType
		if contentType == "" {
			contentType = "image/jpeg"
		}
		publicURL, err := m.sink.Upload(ctx, res.Body, item.Destination, contentType)
		if err != nil {
			return err
		}
		// Each index is written by exactly one handler.
		uploaded[item.Index] = publicURL
		return nil
	})
	result.ImagesUploaded.Add(ledger.Processed.Load())
	result.ImagesFailed.Add(ledger.Failed.Load())
	if err != nil {
		return err
	}

	urls := make([]string, 0, len(uploaded))
	for _, u := range uploaded {
		if u != "" {
			urls = append(urls, u)
		}
	}
	if err := m.props.SetStorageImages(ctx, id, urls); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fault.Terminal("update property "+id, err)
		}
		return fault.Fatal("update property "+id, err)
	}
	slog.InfoContext(ctx, "property migrated", "property", id, "images", len(urls), "failed", ledger.Failed.Load())

	if failed := ledger.Failed.Load(); failed > 0 {
		return fault.Terminal("migrate property "+id, fmt.Errorf("%d of %d images failed", failed, len(items)))
	}
	return nil
}
