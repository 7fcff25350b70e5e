package model

import (
	"io"
	"mime"
	"net/http"
	"strings"
)

// ContentKind tells how a resource body was handled.
type ContentKind string

const (
	// KindBinary is a body that was copied to storage byte for byte.
	KindBinary ContentKind = "binary"

	// KindText is a body that was decoded to text, stored and scanned for links.
	KindText ContentKind = "text"
)

// Resource is a fetched HTTP response.
// It is transient: the body is consumed exactly once by the page processor
// and is never retained after the resource has been persisted.
type Resource struct {
	// URL is the URL that was requested. It is the dedup key, not the
	// final URL after redirects.
	URL string

	// StatusCode is the HTTP response status code.
	StatusCode int

	// ContentType is the raw Content-Type header value.
	ContentType string

	// Header holds all response headers.
	Header http.Header

	// Body is the response body stream. The caller must call Close.
	Body io.ReadCloser
}

// MediaType returns the lower-cased media type of the resource without
// parameters, e.g. "text/html" for "text/html; charset=utf-8".
// An empty or unparsable Content-Type yields the trimmed raw value.
func (r *Resource) MediaType() string {
	return MediaType(r.ContentType)
}

// Close releases the body stream. It is safe to call on a nil body.
func (r *Resource) Close() error {
	if r.Body == nil {
		return nil
	}
	return r.Body.Close()
}

// MediaType normalizes a Content-Type header value to its media type.
func MediaType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		// Fall back to everything before the first parameter separator.
		mediaType, _, _ = strings.Cut(contentType, ";")
	}
	return strings.ToLower(strings.TrimSpace(mediaType))
}

// StoredFile describes a resource after it was written to storage.
type StoredFile struct {
	// Path is relative to the output directory, slash separated.
	Path string

	// Size is the number of bytes written.
	Size int64

	// Hash is the hex SHA3-256 digest of the bytes written.
	Hash string
}
