package migrator

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"prop-crawler/internal/blob"
	"prop-crawler/internal/fault"
	"prop-crawler/internal/fetch"
	"prop-crawler/internal/storage"
	"prop-crawler/pkg/models"
)

type fakeFetcher struct {
	mu     sync.Mutex
	status map[string][]int // queued statuses per url, consumed in order
	calls  atomic.Int32
}

func (f *fakeFetcher) Fetch(ctx context.Context, targetURL string, cred models.Credential, opts fetch.Options) (*fetch.Response, error) {
	f.calls.Add(1)
	f.mu.Lock()
	var status int
	if q := f.status[targetURL]; len(q) > 0 {
		status, f.status[targetURL] = q[0], q[1:]
	}
	f.mu.Unlock()
	if status != 0 {
		return nil, fault.HTTP("GET "+targetURL, status)
	}
	return &fetch.Response{Status: 200, ContentType: "image/jpeg", Body: []byte("jpeg:" + targetURL)}, nil
}

type fakeCreds struct {
	rejects atomic.Int32
}

func (c *fakeCreds) Get(ctx context.Context, rawURL string) (models.Credential, error) {
	return models.Credential{Cookie: "cf_clearance=x", Host: "media.daft.ie"}, nil
}

func (c *fakeCreds) Reject(ctx context.Context, cred models.Credential) error {
	c.rejects.Add(1)
	return nil
}

func seed(t *testing.T) storage.PropertyStore {
	t.Helper()
	db, err := storage.Open(context.Background(), "sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	props := storage.PropertyStore{Store: db}

	err = props.Save(context.Background(), []models.PropertyRecord{
		{ID: 1, Title: "Cottage", Media: models.Media{Images: []models.Image{
			{Size1440x960: "https://media.daft.ie/1/a.jpg"},
			{Size720x480: "https://media.daft.ie/1/small-only.jpg"},
			{Size1440x960: "https://media.daft.ie/1/c.jpg"},
		}}},
		{ID: 2, Title: "Site", Media: models.Media{Images: []models.Image{}}},
	})
	require.NoError(t, err)
	return props
}

func newMigrator(fetcher Fetcher, creds *fakeCreds, dir string, props Properties) *Migrator {
	return New(Config{PropertyWorkers: 3, ImageWorkers: 5, MaxAttempts: 3}, fetcher, creds,
		blob.FilesystemSink{Dir: dir, PublicURL: "http://localhost:8080/media"}, props)
}

func TestRun_IsIdempotent(t *testing.T) {
	props := seed(t)
	dir := t.TempDir()
	ctx := context.Background()

	want := []string{
		"http://localhost:8080/media/properties/1/image-0.jpg",
		"http://localhost:8080/media/properties/1/image-2.jpg",
	}

	for run := 0; run < 2; run++ {
		m := newMigrator(&fakeFetcher{}, &fakeCreds{}, dir, props)
		res, err := m.Run(ctx)
		require.NoError(t, err)
		require.Equal(t, int64(2), res.Properties.Processed.Load())
		require.Zero(t, res.Properties.Failed.Load())
		require.Equal(t, int64(2), res.ImagesUploaded.Load())

		rec, ok, err := props.Property(ctx, "1")
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, want, rec.StorageImages, "run %d", run)
		require.Equal(t, "Cottage", rec.Title)

		empty, _, err := props.Property(ctx, "2")
		require.NoError(t, err)
		require.Nil(t, empty.StorageImages, "property without images is left alone")
	}

	data, err := os.ReadFile(filepath.Join(dir, "properties", "1", "image-2.jpg"))
	require.NoError(t, err)
	require.Equal(t, "jpeg:https://media.daft.ie/1/c.jpg", string(data))
	entries, err := os.ReadDir(filepath.Join(dir, "properties", "1"))
	require.NoError(t, err)
	require.Len(t, entries, 2)
}

func TestRun_RefusedCredentialIsRefreshed(t *testing.T) {
	props := seed(t)
	creds := &fakeCreds{}
	fetcher := &fakeFetcher{status: map[string][]int{
		"https://media.daft.ie/1/a.jpg": {403},
	}}

	res, err := newMigrator(fetcher, creds, t.TempDir(), props).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, int32(1), creds.rejects.Load())
	require.Equal(t, int32(3), fetcher.calls.Load())
	require.Equal(t, int64(2), res.Properties.Processed.Load())
}

func TestRun_FailedImageFailsPropertyButKeepsOthers(t *testing.T) {
	props := seed(t)
	fetcher := &fakeFetcher{status: map[string][]int{
		"https://media.daft.ie/1/a.jpg": {404},
	}}

	res, err := newMigrator(fetcher, &fakeCreds{}, t.TempDir(), props).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(1), res.Properties.Processed.Load())
	require.Equal(t, int64(1), res.Properties.Failed.Load())
	require.Equal(t, int64(1), res.ImagesFailed.Load())
	require.Equal(t, "1", res.Properties.Failures()[0].Key)

	rec, _, err := props.Property(context.Background(), "1")
	require.NoError(t, err)
	require.Equal(t, []string{"http://localhost:8080/media/properties/1/image-2.jpg"}, rec.StorageImages)
}

func TestRun_UsesStoreKeyNotBodyID(t *testing.T) {
	props := seed(t)
	ctx := context.Background()

	require.NoError(t, props.Put(ctx, storage.PropertiesCollection, "abc", map[string]any{
		"title": "Imported without id",
		"media": map[string]any{"images": []any{map[string]any{"size1440x960": "https://media.daft.ie/abc/a.jpg"}}},
	}))

	dir := t.TempDir()
	res, err := newMigrator(&fakeFetcher{}, &fakeCreds{}, dir, props).Run(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(3), res.Properties.Processed.Load())

	rec, ok, err := props.Property(ctx, "abc")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []string{"http://localhost:8080/media/properties/abc/image-0.jpg"}, rec.StorageImages)
	require.Equal(t, "Imported without id", rec.Title)

	_, ok, err = props.Property(ctx, "0")
	require.NoError(t, err)
	require.False(t, ok)
	_, err = os.Stat(filepath.Join(dir, "properties", "abc", "image-0.jpg"))
	require.NoError(t, err)
}
