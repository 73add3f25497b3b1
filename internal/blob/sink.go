// Package blob uploads image bytes to public object storage.
package blob

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"prop-crawler/internal/fault"
)

var ErrStorageUpload = errors.New("storage upload failed")

// Sink stores data at path and returns a public URL for it. Uploading to
// the same path again overwrites.
type Sink interface {
	Upload(ctx context.Context, data []byte, path, contentType string) (string, error)
}

// ImagePath is the deterministic object path for one property image.
func ImagePath(propertyID string, index int) string {
	return fmt.Sprintf("properties/%s/image-%d.jpg", propertyID, index)
}

func uploadErr(path string, err error) error {
	return fault.Terminal("upload "+path, fmt.Errorf("%w: %v", ErrStorageUpload, err))
}

// FilesystemSink writes under Dir and builds URLs from PublicURL.
type FilesystemSink struct {
	Dir       string
	PublicURL string
}

func (s FilesystemSink) Upload(ctx context.Context, data []byte, path, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", uploadErr(path, err)
	}
	clean := filepath.Clean(filepath.FromSlash(path))
	if filepath.IsAbs(clean) || strings.HasPrefix(clean, "..") {
		return "", uploadErr(path, fmt.Errorf("path escapes storage dir"))
	}
	dest := filepath.Join(s.Dir, clean)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", uploadErr(path, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".upload-*")
	if err != nil {
		return "", uploadErr(path, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", uploadErr(path, err)
	}
	if err := tmp.Close(); err != nil {
		return "", uploadErr(path, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return "", uploadErr(path, err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return "", uploadErr(path, err)
	}
	return strings.TrimRight(s.PublicURL, "/") + "/" + filepath.ToSlash(clean), nil
}

const (
	gcsAPI    = "https://storage.googleapis.com"
	gcsPublic = "https://storage.googleapis.com"
)

// GCSSink uploads through the Cloud Storage JSON API with a bearer token
// and a public-read ACL.
type GCSSink struct {
	bucket string
	token  string
	http   *resty.Client
}

func NewGCSSink(bucket, token string) *GCSSink {
	return NewGCSSinkWithBase(gcsAPI, bucket, token)
}

// NewGCSSinkWithBase points the sink at another API root, such as an
// emulator.
func NewGCSSinkWithBase(base, bucket, token string) *GCSSink {
	client := resty.New().
		SetBaseURL(base).
		SetTimeout(60 * time.Second)
	return &GCSSink{bucket: bucket, token: token, http: client}
}

func (s *GCSSink) Upload(ctx context.Context, data []byte, path, contentType string) (string, error) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	res, err := s.http.R().
		SetContext(ctx).
		SetAuthToken(s.token).
		SetHeader("Content-Type", contentType).
		SetHeader("Cache-Control", "public, max-age=31536000").
		SetQueryParams(map[string]string{
			"uploadType":    "media",
			"name":          path,
			"predefinedAcl": "publicRead",
		}).
		SetBody(data).
		Post("/upload/storage/v1/b/" + url.PathEscape(s.bucket) + "/o")
	if err != nil {
		return "", uploadErr(path, err)
	}
	if res.IsError() {
		return "", uploadErr(path, fmt.Errorf("status %d: %s", res.StatusCode(), strings.TrimSpace(res.String())))
	}
	return gcsPublic + "/" + s.bucket + "/" + path, nil
}
