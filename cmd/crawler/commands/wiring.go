package commands

import (
	"context"
	"fmt"
	"time"

	"prop-crawler/internal/blob"
	"prop-crawler/internal/challenge"
	"prop-crawler/internal/config"
	"prop-crawler/internal/credential"
	"prop-crawler/internal/crawler"
	"prop-crawler/internal/fetch"
	"prop-crawler/internal/pipeline"
	"prop-crawler/internal/storage"
)

// app holds the collaborators shared by every command.
type app struct {
	store    *storage.Store
	domains  *crawler.DomainManager
	fetcher  *fetch.Fetcher
	creds    *credential.Cache
	strategy pipeline.Strategy
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	strategy, err := pipeline.ParseStrategy(cfg.PipelineStrategy)
	if err != nil {
		return nil, err
	}

	store, err := storage.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open document store: %w", err)
	}

	domains := crawler.NewDomainManager(cfg.RateLimit, cfg.RateBurst, fetch.UserAgent)
	fetcher := fetch.New(fetch.Config{
		Limiter:  domains,
		DelayMin: cfg.ImageDelayMin,
		DelayMax: cfg.ImageDelayMax,
		Timeout:  30 * time.Second,
	})

	solver := challenge.NewBrowserSolver(challenge.Config{
		EntryURL:        cfg.EntryURL,
		ClearanceCookie: cfg.ClearanceCookie,
		NavTimeout:      cfg.NavTimeout,
		IdleTimeout:     cfg.IdleTimeout,
		SettleDelay:     cfg.SettleDelay,
		MouseMoves:      cfg.MouseMoves,
	})
	creds := credential.NewCache(storage.CredentialStore{Store: store}, solver, credential.Config{TTL: cfg.CredentialTTL})

	return &app{
		store:    store,
		domains:  domains,
		fetcher:  fetcher,
		creds:    creds,
		strategy: strategy,
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

func (a *app) properties() storage.PropertyStore {
	return storage.PropertyStore{Store: a.store}
}

func (a *app) towns() storage.TownStore {
	return storage.TownStore{Store: a.store}
}

func newSink(cfg config.StorageConfig) (blob.Sink, error) {
	switch cfg.Backend {
	case "", "fs":
		return blob.FilesystemSink{Dir: cfg.Dir, PublicURL: cfg.PublicURL}, nil
	case "gcs":
		if cfg.Bucket == "" {
			return nil, fmt.Errorf("GCS_BUCKET is required for the gcs backend")
		}
		return blob.NewGCSSink(cfg.Bucket, cfg.Token), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
