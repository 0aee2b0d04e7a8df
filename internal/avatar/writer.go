package avatar

import (
	"os"
	"path/filepath"
	"strings"

	"avatarmig/internal/fileutil"
	"avatarmig/internal/services"
)

// Writer persists rendition sets under a root directory.
type Writer struct {
	root   string
	mode   os.FileMode
	dryRun bool
}

// WriterOption customises Writer construction.
type WriterOption func(*Writer)

// WithFileMode overrides the permission bits of written files.
func WithFileMode(mode os.FileMode) WriterOption {
	return func(w *Writer) {
		w.mode = mode
	}
}

// WithDryRun makes Write validate its inputs without touching the disk.
func WithDryRun(enabled bool) WriterOption {
	return func(w *Writer) {
		w.dryRun = enabled
	}
}

// NewWriter builds a Writer rooted at root.
func NewWriter(root string, opts ...WriterOption) *Writer {
	w := &Writer{root: root, mode: 0o644}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Root returns the output root directory.
func (w *Writer) Root() string {
	return w.root
}

// Path returns the location of name within bucket.
func (w *Writer) Path(bucket, name string) string {
	return filepath.Join(w.root, bucket, name)
}

// Write stores every member of set as {root}/{bucket}/{name}, replacing any
// existing files. A failure part way through may leave earlier buckets
// written; the caller must treat the profile as not migrated.
func (w *Writer) Write(set RenditionSet, name string) error {
	if strings.TrimSpace(name) == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return services.Wrap(services.ErrIO, "writer", "write", "invalid rendition name "+name, nil)
	}
	if !set.Complete() {
		return services.Wrap(services.ErrIO, "writer", "write", "incomplete rendition set", nil)
	}
	if w.dryRun {
		return nil
	}
	for _, r := range set.Renditions() {
		path := w.Path(r.Bucket, name)
		if err := fileutil.WriteFileAtomic(path, r.Data, w.mode); err != nil {
			return services.Wrap(services.ErrIO, "writer", "write", r.Bucket+"/"+name, err)
		}
		if err := fileutil.VerifyFile(path, r.Data); err != nil {
			return services.Wrap(services.ErrIO, "writer", "verify", r.Bucket+"/"+name, err)
		}
	}
	return nil
}
