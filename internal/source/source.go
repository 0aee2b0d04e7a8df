// Package source locates and reads the legacy image bytes for a profile.
package source

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"avatarmig/internal/objectstore"
	"avatarmig/internal/services"
)

// Request identifies the legacy avatar of one profile.
type Request struct {
	UserID     string
	UUID       string
	PictureURL string
}

// Source fetches legacy avatar bytes.
type Source interface {
	// Fetch returns the raw image. A missing image is an ErrIO failure.
	Fetch(ctx context.Context, req Request) ([]byte, error)
	// Locate describes where Fetch would read from, without reading.
	Locate(req Request) string
}

// DefaultExtension is appended to the user id by DirSource.
const DefaultExtension = ".jpg"

// DirSource reads pre-downloaded images named {dir}/{user_id}{ext}.
type DirSource struct {
	dir string
	ext string
}

// NewDirSource builds a DirSource. An empty ext uses DefaultExtension.
func NewDirSource(dir, ext string) *DirSource {
	ext = strings.TrimSpace(ext)
	if ext == "" {
		ext = DefaultExtension
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return &DirSource{dir: dir, ext: ext}
}

// FileName is the expected file name for userID.
func (s *DirSource) FileName(userID string) string {
	return userID + s.ext
}

// Locate implements Source.
func (s *DirSource) Locate(req Request) string {
	return filepath.Join(s.dir, s.FileName(req.UserID))
}

// Fetch implements Source.
func (s *DirSource) Fetch(ctx context.Context, req Request) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req.UserID == "" || strings.ContainsAny(req.UserID, `/\`) || req.UserID == "." || req.UserID == ".." {
		return nil, services.Wrap(services.ErrIO, "source", "fetch", "user id is not a valid file name", nil)
	}
	path := s.Locate(req)
	data, err := os.ReadFile(path)
	if err != nil {
		msg := "read " + path
		if errors.Is(err, fs.ErrNotExist) {
			msg = "source image missing: " + path
		}
		return nil, services.Wrap(services.ErrIO, "source", "fetch", msg, err)
	}
	return data, nil
}

// S3Source reads the object the legacy picture URL points at.
type S3Source struct {
	client   objectstore.GetObjectAPI
	timeout  time.Duration
	maxBytes int64
}

// S3Option customises S3Source construction.
type S3Option func(*S3Source)

// WithTimeout bounds each object read.
func WithTimeout(d time.Duration) S3Option {
	return func(s *S3Source) {
		s.timeout = d
	}
}

// WithMaxBytes caps the accepted object size.
func WithMaxBytes(n int64) S3Option {
	return func(s *S3Source) {
		s.maxBytes = n
	}
}

// NewS3Source builds an S3Source around client.
func NewS3Source(client objectstore.GetObjectAPI, opts ...S3Option) *S3Source {
	s := &S3Source{client: client, timeout: 30 * time.Second, maxBytes: objectstore.DefaultMaxObjectBytes}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Locate implements Source.
func (s *S3Source) Locate(req Request) string {
	bucket, key, ok := objectstore.ParseHTTPURL(req.PictureURL)
	if !ok {
		return req.PictureURL
	}
	return "s3://" + bucket + "/" + key
}

// Fetch implements Source.
func (s *S3Source) Fetch(ctx context.Context, req Request) ([]byte, error) {
	bucket, key, ok := objectstore.ParseHTTPURL(req.PictureURL)
	if !ok {
		return nil, services.Wrap(services.ErrIO, "source", "fetch", "picture url is not an s3 location", nil)
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	data, err := objectstore.Get(ctx, s.client, bucket, key, s.maxBytes)
	if err != nil {
		msg := "read s3://" + bucket + "/" + key
		if errors.Is(err, objectstore.ErrObjectNotFound) {
			msg = "source image missing: s3://" + bucket + "/" + key
		}
		return nil, services.Wrap(services.ErrIO, "source", "fetch", msg, err)
	}
	return data, nil
}
