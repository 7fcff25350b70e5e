package crawler

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/nao1215/sitemirror/internal/config"
	"github.com/nao1215/sitemirror/internal/model"
)

// Fetcher retrieves one resource.
type Fetcher interface {
	// Fetch issues a GET for pageURL. A non-nil error means no response was
	// received; error status codes are returned as a Resource. The caller
	// must Close the returned resource.
	Fetch(ctx context.Context, pageURL string) (*model.Resource, error)
}

// HTTPFetcher is a Fetcher backed by an *http.Client.
// The client carries timeout, proxy, redirect and header settings; the
// fetcher adds the User-Agent and caps how much of a body is read.
type HTTPFetcher struct {
	client      *http.Client
	userAgent   string
	maxBodySize int64
}

// FetcherOption configures an HTTPFetcher.
type FetcherOption func(*HTTPFetcher)

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) FetcherOption {
	return func(f *HTTPFetcher) {
		if ua != "" {
			f.userAgent = ua
		}
	}
}

// WithMaxBodySize limits how many bytes of a body are read.
// Reading past the limit fails with ErrTooLarge. Zero or negative means
// no limit.
func WithMaxBodySize(size int64) FetcherOption {
	return func(f *HTTPFetcher) {
		f.maxBodySize = size
	}
}

// NewHTTPFetcher creates a fetcher using client.
func NewHTTPFetcher(client *http.Client, opts ...FetcherOption) *HTTPFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	f := &HTTPFetcher{
		client:      client,
		userAgent:   config.DefaultUserAgent,
		maxBodySize: config.DefaultMaxBodySize,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch implements Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, pageURL string) (*model.Resource, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}

	body := resp.Body
	if f.maxBodySize > 0 {
		body = &limitedBody{
			r:     io.LimitReader(resp.Body, f.maxBodySize+1),
			c:     resp.Body,
			limit: f.maxBodySize,
		}
	}

	return &model.Resource{
		URL:         pageURL,
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Header:      resp.Header,
		Body:        body,
	}, nil
}

// limitedBody returns ErrTooLarge once more than limit bytes were read.
// It reads one byte past the limit so that a body of exactly limit bytes
// still ends with io.EOF.
type limitedBody struct {
	r     io.Reader
	c     io.Closer
	limit int64
	read  int64
}

func (b *limitedBody) Read(p []byte) (int, error) {
	n, err := b.r.Read(p)
	b.read += int64(n)
	if b.read > b.limit {
		over := int(b.read - b.limit)
		return n - over, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, b.limit)
	}
	return n, err
}

func (b *limitedBody) Close() error {
	return b.c.Close()
}
