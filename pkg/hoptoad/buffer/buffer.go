// Package buffer implements the durability buffer: a directory of immutable
// notice files that are waiting for delivery.
//
// Files live directly under the storage root and are named
// {prefix}-{uuid}.xml. Writes go through a temporary file in the .partial
// subdirectory and are renamed into place after fsync, so a file that shows
// up in ListPending was completely written. Files are removed only by the
// delivery engine.
package buffer

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/peterbourgon/diskv/v3"
)

const (
	// Extension is the file extension of buffered notices.
	Extension = ".xml"

	// PartialDir is the subdirectory holding in-progress writes.
	PartialDir = ".partial"

	// DefaultPartialMaxAge is how old a temporary file must be before Open
	// treats it as abandoned. Younger files may belong to a live writer in
	// another process sharing the root.
	DefaultPartialMaxAge = time.Hour

	dirPerm  os.FileMode = 0o700
	filePerm os.FileMode = 0o600
)

// ErrNotDirectory is returned by Open when the storage root exists but is
// not a directory.
var ErrNotDirectory = errors.New("buffer: storage root is not a directory")

// Handle identifies one buffered file. It is the file name relative to the
// storage root.
type Handle string

// Option configures a Buffer.
type Option func(*Buffer)

// WithLogger sets a logger for buffer maintenance messages.
// If not set, messages are silently dropped.
func WithLogger(logger *log.Logger) Option {
	return func(b *Buffer) {
		b.logger = logger
	}
}

// WithPartialMaxAge sets the age after which Open removes a temporary file
// as abandoned. Values <= 0 keep DefaultPartialMaxAge.
func WithPartialMaxAge(d time.Duration) Option {
	return func(b *Buffer) {
		if d > 0 {
			b.partialMaxAge = d
		}
	}
}

// Buffer is a directory-backed set of report files.
// Buffer is safe for concurrent use, also across processes sharing a root.
type Buffer struct {
	root          string
	store         *diskv.Diskv
	logger        *log.Logger
	partialMaxAge time.Duration
}

// Open prepares root for use, creating it and its parents if needed, and
// clears writes left behind by a crashed process. Temporary files younger
// than the partial max age are left alone.
func Open(root string, opts ...Option) (*Buffer, error) {
	if root == "" {
		return nil, errors.New("buffer: storage root is empty")
	}
	root = filepath.Clean(root)

	if err := os.MkdirAll(root, dirPerm); err != nil {
		return nil, fmt.Errorf("buffer: create storage root: %w", err)
	}
	fi, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("buffer: stat storage root: %w", err)
	}
	if !fi.IsDir() {
		return nil, ErrNotDirectory
	}

	b := &Buffer{root: root, partialMaxAge: DefaultPartialMaxAge}
	for _, opt := range opts {
		opt(b)
	}

	partial := filepath.Join(root, PartialDir)
	if err := os.MkdirAll(partial, dirPerm); err != nil {
		return nil, fmt.Errorf("buffer: create partial dir: %w", err)
	}
	b.clearPartial(partial, time.Now())

	b.store = diskv.New(diskv.Options{
		BasePath:          root,
		AdvancedTransform: flatTransform,
		InverseTransform:  flatInverseTransform,
		TempDir:           partial,
		PathPerm:          dirPerm,
		FilePerm:          filePerm,
	})
	return b, nil
}

// flatTransform stores every key directly under the root.
func flatTransform(key string) *diskv.PathKey {
	return &diskv.PathKey{Path: []string{}, FileName: key}
}

// flatInverseTransform maps a path back to a key. Files in subdirectories
// yield keys containing a separator, which ListPending ignores.
func flatInverseTransform(pathKey *diskv.PathKey) string {
	parts := append(append([]string{}, pathKey.Path...), pathKey.FileName)
	return strings.Join(parts, "/")
}

// clearPartial removes temporary files of writes that never completed.
func (b *Buffer) clearPartial(dir string, now time.Time) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		b.logf("buffer: failed to read partial dir: %v", err)
		return
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// Renamed into place or removed since ReadDir.
			continue
		}
		if now.Sub(info.ModTime()) < b.partialMaxAge {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
			b.logf("buffer: failed to remove stale partial file %s: %v", e.Name(), err)
		}
	}
}

// Root returns the storage root directory.
func (b *Buffer) Root() string {
	return b.root
}

// Path returns the absolute path of h.
func (b *Buffer) Path(h Handle) string {
	return filepath.Join(b.root, string(h))
}

// Persist writes data to a new uniquely named file and returns its handle
// once the file is synced and renamed into place.
func (b *Buffer) Persist(prefix string, data []byte) (Handle, error) {
	suffix, err := uuid.NewV7()
	if err != nil {
		suffix = uuid.New()
	}
	h := Handle(sanitizePrefix(prefix) + "-" + suffix.String() + Extension)

	if err := b.store.WriteStream(string(h), bytes.NewReader(data), true); err != nil {
		return "", fmt.Errorf("buffer: persist %s: %w", h, err)
	}
	return h, nil
}

// sanitizePrefix makes an application version safe for use in a file name.
func sanitizePrefix(prefix string) string {
	prefix = strings.TrimLeft(prefix, ".")
	if prefix == "" {
		return "unknown"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '_', r == '+':
			return r
		default:
			return '_'
		}
	}, prefix)
}

// ListPending returns the handles of all buffered files, sorted by name.
// The result is a snapshot; files added or removed concurrently may or may
// not be included. Entries that are not report files are ignored.
func (b *Buffer) ListPending() ([]Handle, error) {
	if _, err := os.Stat(b.root); err != nil {
		return nil, fmt.Errorf("buffer: list pending: %w", err)
	}

	var handles []Handle
	for key := range b.store.Keys(nil) {
		if !isReportKey(key) {
			continue
		}
		handles = append(handles, Handle(key))
	}
	sort.Slice(handles, func(i, j int) bool { return handles[i] < handles[j] })
	return handles, nil
}

func isReportKey(key string) bool {
	return strings.HasSuffix(key, Extension) &&
		!strings.ContainsAny(key, `/\`) &&
		!strings.HasPrefix(key, ".")
}

// Open returns a reader over the content of h. The reader reports the file
// size through a Size method. Close must be called.
func (b *Buffer) Open(h Handle) (io.ReadCloser, error) {
	if !isReportKey(string(h)) {
		return nil, fmt.Errorf("buffer: open %q: invalid handle", h)
	}
	// Read the file directly rather than through the store: its uncached
	// reader only releases the descriptor at EOF.
	f, err := os.Open(b.Path(h))
	if err != nil {
		return nil, fmt.Errorf("buffer: open %s: %w", h, err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("buffer: open %s: %w", h, err)
	}
	if !fi.Mode().IsRegular() {
		f.Close()
		return nil, fmt.Errorf("buffer: open %s: not a regular file", h)
	}
	return &Reader{File: f, size: fi.Size()}, nil
}

// Remove deletes h. Removing a file that no longer exists succeeds.
func (b *Buffer) Remove(h Handle) error {
	if !isReportKey(string(h)) {
		return fmt.Errorf("buffer: remove %q: invalid handle", h)
	}
	if err := b.store.Erase(string(h)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("buffer: remove %s: %w", h, err)
	}
	return nil
}

func (b *Buffer) logf(format string, args ...any) {
	if b.logger != nil {
		b.logger.Printf(format, args...)
	}
}

// Reader streams one buffered file.
type Reader struct {
	*os.File
	size int64
}

// Size returns the file size at open time.
func (r *Reader) Size() int64 {
	return r.size
}
