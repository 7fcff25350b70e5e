package mirror

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"strings"
	"sync"

	"github.com/nao1215/sitemirror/internal/model"
)

// File and directory permissions for mirrored content.
const (
	dirPerm  os.FileMode = 0o750
	filePerm os.FileMode = 0o644
)

// DefaultIndexFile is the file name used for the site root and for
// directory URLs.
const DefaultIndexFile = "index.html"

// Writer maps URLs to files under an output directory and writes them.
// It is safe for concurrent use.
type Writer struct {
	dir       string
	prefix    string
	indexFile string

	mu     sync.RWMutex
	root   *os.Root
	closed bool
}

// Option configures a Writer.
type Option func(*Writer)

// WithIndexFile sets the file name used for the root and directory URLs.
func WithIndexFile(name string) Option {
	return func(w *Writer) {
		if name != "" {
			w.indexFile = name
		}
	}
}

// NewWriter creates the output directory if needed and opens it as the
// root every write is confined to.
// prefix is stripped from URLs to build relative paths.
func NewWriter(dir, prefix string, opts ...Option) (*Writer, error) {
	if dir == "" {
		return nil, fmt.Errorf("%w: output directory", ErrEmptyPath)
	}
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open output directory: %w", err)
	}

	w := &Writer{
		dir:       dir,
		prefix:    prefix,
		indexFile: DefaultIndexFile,
		root:      root,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Dir returns the output directory.
func (w *Writer) Dir() string {
	return w.dir
}

// Close releases the output directory handle.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	return w.root.Close()
}

// PathFor returns the slash separated path, relative to the output
// directory, that rawURL is stored under.
func (w *Writer) PathFor(rawURL string) (string, error) {
	return MapPath(rawURL, w.prefix, w.indexFile)
}

// WriteText stores text verbatim.
func (w *Writer) WriteText(rawURL, text string) (model.StoredFile, error) {
	return w.WriteBinary(rawURL, strings.NewReader(text))
}

// WriteBinary streams r to the file for rawURL. The content is hashed while
// it is copied, so it is never buffered whole. A failed write leaves no
// file behind.
func (w *Writer) WriteBinary(rawURL string, r io.Reader) (model.StoredFile, error) {
	rel, err := w.PathFor(rawURL)
	if err != nil {
		return model.StoredFile{}, err
	}

	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return model.StoredFile{}, ErrClosed
	}

	if dir := path.Dir(rel); dir != "." {
		if err := w.root.MkdirAll(dir, dirPerm); err != nil {
			return model.StoredFile{}, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	f, err := w.root.OpenFile(rel, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, filePerm)
	if err != nil {
		return model.StoredFile{}, fmt.Errorf("failed to open %s: %w", rel, err)
	}

	hasher := model.NewContentHasher()
	n, copyErr := io.Copy(io.MultiWriter(f, hasher), r)
	closeErr := f.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		_ = w.root.Remove(rel)
		return model.StoredFile{}, fmt.Errorf("failed to write %s: %w", rel, err)
	}

	return model.StoredFile{
		Path: rel,
		Size: n,
		Hash: model.HashString(hasher, n),
	}, nil
}

// MapPath maps rawURL to a storage path relative to the output directory.
//
// Every occurrence of the prefix is removed from the URL. When the URL does
// not contain the prefix at all, the URL path is used. An empty result
// becomes indexFile, and so does the final segment of a path ending in "/".
func MapPath(rawURL, prefix, indexFile string) (string, error) {
	if indexFile == "" {
		indexFile = DefaultIndexFile
	}

	var rel string
	switch {
	case prefix != "" && strings.Contains(rawURL, prefix):
		rel = strings.ReplaceAll(rawURL, prefix, "")
	default:
		u, err := url.Parse(rawURL)
		if err != nil {
			return "", fmt.Errorf("%w: %s", ErrEmptyPath, rawURL)
		}
		rel = u.Path
		if u.RawQuery != "" {
			rel += "?" + u.RawQuery
		}
	}

	if rel == "" || strings.HasSuffix(rel, "/") {
		rel += indexFile
	}

	segments := make([]string, 0, strings.Count(rel, "/")+1)
	for _, seg := range strings.Split(rel, "/") {
		switch seg {
		case "", ".":
			continue
		case "..":
			return "", fmt.Errorf("%w: %s", ErrPathTraversal, rawURL)
		}
		segments = append(segments, seg)
	}
	if len(segments) == 0 {
		return "", fmt.Errorf("%w: %s", ErrEmptyPath, rawURL)
	}

	return path.Join(segments...), nil
}
