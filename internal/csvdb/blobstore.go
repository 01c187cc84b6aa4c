package csvdb

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/gabriel-vasile/mimetype"
	"github.com/maruel/ksid"
)

const (
	tmpDirName = "tmp"

	// sniffLen is how many leading bytes are kept for content type detection.
	sniffLen = 3072
)

var errEmptyBlob = errors.New("blob is empty")

// BlobStore keeps opaque binary files (images) in one directory.
//
// Files are named <prefix>_<ksid><ext>, the extension being detected from
// the content. Paths handed out are relative to the store's root directory
// and use forward slashes, so they can be stored in tables as is.
type BlobStore struct {
	root string // directory paths are relative to
	rel  string // store directory relative to root
}

// NewBlobStore returns a store for root/rel. Nothing is created on disk until
// [BlobStore.EnsureDir] or the first write.
func NewBlobStore(root, rel string) *BlobStore {
	return &BlobStore{root: root, rel: filepath.ToSlash(rel)}
}

// Dir returns the directory holding the blobs.
func (bs *BlobStore) Dir() string {
	return filepath.Join(bs.root, filepath.FromSlash(bs.rel))
}

// EnsureDir creates the blob directory.
func (bs *BlobStore) EnsureDir() error {
	if err := os.MkdirAll(bs.Dir(), 0o755); err != nil {
		return fmt.Errorf("failed to create blob directory %s: %w", bs.Dir(), err)
	}
	return nil
}

// Save stores data and returns its path.
func (bs *BlobStore) Save(prefix string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", errEmptyBlob
	}
	w, err := bs.NewWriter(prefix)
	if err != nil {
		return "", err
	}
	if _, err := w.Write(data); err != nil {
		return "", errors.Join(err, w.Abort())
	}
	return w.Close()
}

// Exists reports whether p references an existing regular file. p is
// resolved against the store root unless it is absolute.
func (bs *BlobStore) Exists(p string) bool {
	if p == "" {
		return false
	}
	full := filepath.FromSlash(p)
	if !filepath.IsAbs(full) {
		full = filepath.Join(bs.root, full)
	}
	fi, err := os.Stat(full)
	return err == nil && fi.Mode().IsRegular()
}

// NewWriter creates a BlobWriter for streaming blob creation.
//
// Data is written to a temp file; Close() picks the final name and renames
// it into place.
func (bs *BlobStore) NewWriter(prefix string) (*BlobWriter, error) {
	tmpDir := filepath.Join(bs.Dir(), tmpDirName)
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create tmp directory: %w", err)
	}
	f, err := os.CreateTemp(tmpDir, "*.tmp")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	return &BlobWriter{
		store:   bs,
		prefix:  SafeName(prefix),
		file:    f,
		tmpPath: f.Name(),
	}, nil
}

// GC removes blobs whose path is not in used, and leftover temp files.
// It returns the paths of the blobs removed.
//
// This is a stop-the-world GC: caller should ensure no writes are in progress.
func (bs *BlobStore) GC(used map[string]bool) ([]string, error) {
	entries, err := os.ReadDir(bs.Dir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read blob directory: %w", err)
	}
	var removed []string
	var errs []error
	for _, entry := range entries {
		name := entry.Name()
		if name == tmpDirName && entry.IsDir() {
			if err := cleanupTmpDir(filepath.Join(bs.Dir(), name)); err != nil {
				errs = append(errs, err)
			}
			continue
		}
		if entry.IsDir() {
			continue
		}
		p := path.Join(bs.rel, name)
		if used[p] {
			continue
		}
		if err := os.Remove(filepath.Join(bs.Dir(), name)); err != nil {
			errs = append(errs, fmt.Errorf("failed to remove orphan blob %s: %w", name, err))
			continue
		}
		removed = append(removed, p)
	}
	return removed, errors.Join(errs...)
}

// SafeName maps s to a file name fragment: spaces become underscores and
// anything but letters, digits, '-', '_' and '.' is dropped.
func SafeName(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r == ' ':
			b.WriteByte('_')
		case r == '-' || r == '_' || r == '.' || unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		}
	}
	name := strings.Trim(b.String(), ".")
	if name == "" {
		return "blob"
	}
	return name
}

// BlobWriter streams data to a blob.
//
// Write data using [BlobWriter.Write], then call [BlobWriter.Close] to
// finalize and get the path. If an error occurs during writing, call
// [BlobWriter.Abort] to clean up the temporary file.
type BlobWriter struct {
	store   *BlobStore
	prefix  string
	tmpPath string
	file    *os.File // nil after Close or Abort
	head    []byte
	size    int64
}

// Write implements io.Writer.
func (w *BlobWriter) Write(p []byte) (int, error) {
	if w.file == nil {
		return 0, fs.ErrClosed
	}
	n, err := w.file.Write(p)
	if n > 0 {
		if room := sniffLen - len(w.head); room > 0 {
			w.head = append(w.head, p[:min(n, room)]...)
		}
		w.size += int64(n)
	}
	return n, err
}

// Close finalizes the blob and returns its path.
func (w *BlobWriter) Close() (string, error) {
	if w.file == nil {
		return "", fs.ErrClosed
	}
	err := w.file.Close()
	w.file = nil
	if err != nil {
		return "", errors.Join(fmt.Errorf("failed to close temp file: %w", err), os.Remove(w.tmpPath))
	}
	if w.size == 0 {
		return "", errors.Join(errEmptyBlob, os.Remove(w.tmpPath))
	}

	ext := mimetype.Detect(w.head).Extension()
	if ext == "" {
		ext = ".bin"
	}
	name := w.prefix + "_" + ksid.NewID().String() + ext
	if err := os.Rename(w.tmpPath, filepath.Join(w.store.Dir(), name)); err != nil {
		return "", errors.Join(fmt.Errorf("failed to rename blob to final location: %w", err), os.Remove(w.tmpPath))
	}
	return path.Join(w.store.rel, name), nil
}

// Abort cancels the write and cleans up the temp file.
func (w *BlobWriter) Abort() error {
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return errors.Join(err, os.Remove(w.tmpPath))
}

// cleanupTmpDir removes all .tmp files from the given directory.
func cleanupTmpDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read tmp directory: %w", err)
	}
	var errs []error
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".tmp") {
			if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil {
				errs = append(errs, fmt.Errorf("failed to remove temp file %s: %w", entry.Name(), err))
			}
		}
	}
	return errors.Join(errs...)
}
