package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"prop-crawler/pkg/models"
)

const (
	CredentialsCollection = "cloudflare_cookies"
	PropertiesCollection  = "properties"
	TownsCollection       = "town_prices"
)

// CredentialStore keeps one solved credential per host.
type CredentialStore struct {
	*Store
}

func (s CredentialStore) LoadCredential(ctx context.Context, host string) (models.Credential, bool, error) {
	var doc models.CookieDocument
	ok, err := s.Get(ctx, CredentialsCollection, host, &doc)
	if err != nil || !ok {
		return models.Credential{}, false, err
	}
	return doc.Credential(host), true, nil
}

func (s CredentialStore) SaveCredential(ctx context.Context, cred models.Credential) error {
	return s.Put(ctx, CredentialsCollection, cred.Host, cred.Document())
}

// ExpireCredential sets the host's expiry to at. A non-empty cookie limits
// this to an entry still holding that cookie. It reports whether an entry
// was expired.
func (s CredentialStore) ExpireCredential(ctx context.Context, host, cookie string, at time.Time) (bool, error) {
	fields := map[string]any{"expiresAt": at.UnixMilli()}
	var (
		ok  bool
		err error
	)
	if cookie == "" {
		ok, err = s.merge(ctx, CredentialsCollection, host, nil, fields)
	} else {
		ok, err = s.MergeIf(ctx, CredentialsCollection, host, "cookie", cookie, fields)
	}
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return ok, err
}

type PropertyStore struct {
	*Store
}

// Save upserts a batch of records keyed by listing id.
func (s PropertyStore) Save(ctx context.Context, batch []models.PropertyRecord) error {
	ids := make([]string, len(batch))
	docs := make([]any, len(batch))
	for i, rec := range batch {
		ids[i] = rec.DocID()
		docs[i] = rec
	}
	return s.PutMany(ctx, PropertiesCollection, ids, docs)
}

// SaveDocuments upserts records exactly as given, keyed by Document.ID.
func (s PropertyStore) SaveDocuments(ctx context.Context, batch []Document) error {
	ids := make([]string, len(batch))
	docs := make([]any, len(batch))
	for i, doc := range batch {
		ids[i] = doc.ID
		docs[i] = doc.Body
	}
	return s.PutMany(ctx, PropertiesCollection, ids, docs)
}

func (s PropertyStore) Property(ctx context.Context, id string) (models.PropertyRecord, bool, error) {
	var rec models.PropertyRecord
	ok, err := s.Get(ctx, PropertiesCollection, id, &rec)
	rec.Key = id
	return rec, ok, err
}

func (s PropertyStore) All(ctx context.Context) ([]models.PropertyRecord, error) {
	docs, err := s.List(ctx, PropertiesCollection)
	if err != nil {
		return nil, err
	}
	out := make([]models.PropertyRecord, 0, len(docs))
	for _, doc := range docs {
		var rec models.PropertyRecord
		if err := json.Unmarshal(doc.Body, &rec); err != nil {
			return nil, fmt.Errorf("decode property %s: %w", doc.ID, err)
		}
		rec.Key = doc.ID
		out = append(out, rec)
	}
	return out, nil
}

// SetStorageImages replaces the property's storageImages array and leaves
// every other field as stored.
func (s PropertyStore) SetStorageImages(ctx context.Context, id string, urls []string) error {
	if urls == nil {
		urls = []string{}
	}
	return s.Merge(ctx, PropertiesCollection, id, map[string]any{"storageImages": urls})
}

type TownStore struct {
	*Store
}

func (s TownStore) SaveCounty(ctx context.Context, county models.CountyPrices) error {
	return s.Put(ctx, TownsCollection, county.County, county)
}

func (s TownStore) County(ctx context.Context, county string) (models.CountyPrices, bool, error) {
	var out models.CountyPrices
	ok, err := s.Get(ctx, TownsCollection, county, &out)
	return out, ok, err
}

func (s TownStore) Counties(ctx context.Context) ([]models.CountyPrices, error) {
	docs, err := s.List(ctx, TownsCollection)
	if err != nil {
		return nil, err
	}
	out := make([]models.CountyPrices, 0, len(docs))
	for _, doc := range docs {
		var c models.CountyPrices
		if err := json.Unmarshal(doc.Body, &c); err != nil {
			return nil, fmt.Errorf("decode county %s: %w", doc.ID, err)
		}
		out = append(out, c)
	}
	return out, nil
}
