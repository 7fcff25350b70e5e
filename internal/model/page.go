package model

import (
	"encoding/hex"
	"hash"
	"time"

	"golang.org/x/crypto/sha3"
)

// PageRecord is what the crawler remembers about one admitted URL.
// It never holds the body itself; Hash and Size describe what was written.
type PageRecord struct {
	// URL is the admitted URL exactly as it was dequeued.
	URL string `json:"url"`

	// Path is the storage path relative to the output directory.
	// Empty when the page failed before it was persisted.
	Path string `json:"path,omitempty"`

	// StatusCode is the HTTP status code, 0 when the request never completed.
	StatusCode int `json:"status_code,omitempty"`

	// ContentType is the media type reported by the server.
	ContentType string `json:"content_type,omitempty"`

	// Kind tells whether the body was stored as binary or text.
	Kind ContentKind `json:"kind,omitempty"`

	// Size is the number of bytes written to storage.
	Size int64 `json:"size"`

	// Hash is the hex SHA3-256 digest of the bytes written to storage.
	Hash string `json:"hash,omitempty"`

	// Title is the document title of text pages that have one.
	Title string `json:"title,omitempty"`

	// LinksFound is the number of candidate URLs extracted from the page.
	LinksFound int `json:"links_found,omitempty"`

	// LinksEnqueued is the number of same-site URLs pushed onto the frontier.
	LinksEnqueued int `json:"links_enqueued,omitempty"`

	// Failure classifies the error, empty on success.
	Failure FailureKind `json:"failure,omitempty"`

	// Error is the error message, empty on success.
	Error string `json:"error,omitempty"`

	// FetchedAt is when processing of the URL started.
	FetchedAt time.Time `json:"fetched_at"`

	// Duration is how long the whole page task took.
	Duration time.Duration `json:"duration"`
}

// Failed reports whether processing of the page failed.
func (p *PageRecord) Failed() bool {
	return p.Failure != ""
}

// NewContentHasher returns the hash used for PageRecord.Hash.
// Writers stream bodies through it so binary content never has to be
// buffered in memory just to be fingerprinted.
func NewContentHasher() hash.Hash {
	return sha3.New256()
}

// ComputeHash returns the hex SHA3-256 digest of data.
// Empty content produces an empty string.
func ComputeHash(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	sum := sha3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HashString renders the current digest of h as hex.
// A hasher that saw no bytes yields an empty string, matching ComputeHash.
func HashString(h hash.Hash, written int64) string {
	if written == 0 {
		return ""
	}
	return hex.EncodeToString(h.Sum(nil))
}
