package crawler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nao1215/sitemirror/internal/config"
	"github.com/nao1215/sitemirror/internal/model"
)

// Writer persists resources. Implementations must be safe for concurrent use.
type Writer interface {
	WriteText(pageURL, text string) (model.StoredFile, error)
	WriteBinary(pageURL string, body io.Reader) (model.StoredFile, error)
}

// Processor is the per-URL page task. It implements PageHandler.
//
// For every URL it admits it fetches the resource, stores it, and for
// text resources extracts links and enqueues the ones the LinkFilter
// keeps. Failures are logged and counted; they never stop the crawl.
type Processor struct {
	fetcher   Fetcher
	extractor LinkExtractor
	writer    Writer
	decode    TextDecoder
	filter    LinkFilter
	binary    map[string]struct{}
	logger    *slog.Logger

	admitted       atomic.Int64
	duplicates     atomic.Int64
	written        atomic.Int64
	binaryCount    atomic.Int64
	textCount      atomic.Int64
	errorResponses atomic.Int64
	bytesWritten   atomic.Int64
	linksEnqueued  atomic.Int64
	linksRejected  atomic.Int64
	failures       map[model.FailureKind]*atomic.Int64

	mu      sync.Mutex
	records []model.PageRecord
}

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

// WithPrefix sets the site root that links must contain to be followed.
func WithPrefix(prefix string) ProcessorOption {
	return func(p *Processor) {
		p.filter.Prefix = prefix
	}
}

// WithStrictPrefix requires links to start with the prefix instead of
// merely containing it.
func WithStrictPrefix(strict bool) ProcessorOption {
	return func(p *Processor) {
		p.filter.Strict = strict
	}
}

// WithIgnorePatterns sets URL path globs that are never enqueued.
func WithIgnorePatterns(patterns []string) ProcessorOption {
	return func(p *Processor) {
		p.filter.IgnorePatterns = patterns
	}
}

// WithFollowPatterns restricts enqueued links to URL paths matching one
// of patterns. Empty means no restriction.
func WithFollowPatterns(patterns []string) ProcessorOption {
	return func(p *Processor) {
		p.filter.FollowPatterns = patterns
	}
}

// WithBinaryContentTypes replaces the media types stored verbatim.
func WithBinaryContentTypes(types []string) ProcessorOption {
	return func(p *Processor) {
		p.binary = make(map[string]struct{}, len(types))
		for _, t := range types {
			p.binary[model.MediaType(t)] = struct{}{}
		}
	}
}

// WithTextDecoder replaces DecodeText.
func WithTextDecoder(decode TextDecoder) ProcessorOption {
	return func(p *Processor) {
		if decode != nil {
			p.decode = decode
		}
	}
}

// WithProcessorLogger sets the logger.
func WithProcessorLogger(logger *slog.Logger) ProcessorOption {
	return func(p *Processor) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewProcessor creates a page processor.
func NewProcessor(fetcher Fetcher, extractor LinkExtractor, writer Writer, opts ...ProcessorOption) *Processor {
	p := &Processor{
		fetcher:   fetcher,
		extractor: extractor,
		writer:    writer,
		decode:    DecodeText,
		logger:    slog.Default(),
		failures:  make(map[model.FailureKind]*atomic.Int64, len(model.FailureKinds)),
		records:   make([]model.PageRecord, 0),
	}
	for _, kind := range model.FailureKinds {
		p.failures[kind] = new(atomic.Int64)
	}
	WithBinaryContentTypes(config.DefaultBinaryContentTypes)(p)
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process implements PageHandler.
func (p *Processor) Process(ctx context.Context, pageURL string, frontier *Frontier, visited *VisitedSet) {
	if !visited.TryAdmit(pageURL) {
		p.duplicates.Add(1)
		return
	}
	p.admitted.Add(1)

	rec := model.PageRecord{URL: pageURL, FetchedAt: time.Now()}
	err := p.process(ctx, &rec, frontier)
	rec.Duration = time.Since(rec.FetchedAt)

	if err != nil {
		rec.Failure = failureKind(err)
		rec.Error = err.Error()
		p.failures[rec.Failure].Add(1)
		p.logger.Warn("page failed", "url", pageURL, "kind", rec.Failure, "error", err)
	} else {
		p.logger.Debug("page stored",
			"url", pageURL,
			"path", rec.Path,
			"kind", rec.Kind,
			"size", rec.Size,
			"links", rec.LinksEnqueued,
		)
	}
	p.record(rec)
}

// process does the fetch, store and extract steps for an admitted URL.
func (p *Processor) process(ctx context.Context, rec *model.PageRecord, frontier *Frontier) error {
	res, err := p.fetcher.Fetch(ctx, rec.URL)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrFetch, err)
	}
	defer res.Close()

	rec.StatusCode = res.StatusCode
	rec.ContentType = res.MediaType()
	if res.StatusCode >= 400 {
		// Error pages are mirrored and scanned like any other response.
		p.logger.Debug("error status", "url", rec.URL, "status", res.StatusCode)
	}

	if p.IsBinary(rec.ContentType) {
		rec.Kind = model.KindBinary
		stored, err := p.writer.WriteBinary(rec.URL, res.Body)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrPersist, err)
		}
		p.stored(rec, stored)
		p.binaryCount.Add(1)
		return nil
	}

	rec.Kind = model.KindText
	text, err := p.decode(res.Body, res.ContentType)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDecode, err)
	}

	stored, err := p.writer.WriteText(rec.URL, text)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	p.stored(rec, stored)
	p.textCount.Add(1)

	p.extractLinks(rec, text, frontier)
	return nil
}

// extractLinks parses text, enqueues kept links and records the counts.
// Extraction errors are not failures: whatever links were found are used.
func (p *Processor) extractLinks(rec *model.PageRecord, text string, frontier *Frontier) {
	base, err := DirectoryBase(rec.URL)
	if err != nil {
		p.logger.Warn("cannot resolve links", "url", rec.URL, "error", err)
		return
	}

	result, err := p.extractor.Extract(base, strings.NewReader(text))
	if err != nil {
		p.logger.Warn("link extraction incomplete", "url", rec.URL, "error", err)
	}
	if result == nil {
		return
	}

	rec.Title = result.Title
	rec.LinksFound = len(result.Links)
	for _, link := range result.Links {
		if !p.filter.Allow(link) {
			p.linksRejected.Add(1)
			continue
		}
		frontier.Enqueue(link)
		rec.LinksEnqueued++
	}
	p.linksEnqueued.Add(int64(rec.LinksEnqueued))
}

func (p *Processor) stored(rec *model.PageRecord, stored model.StoredFile) {
	rec.Path = stored.Path
	rec.Size = stored.Size
	rec.Hash = stored.Hash
	p.written.Add(1)
	if rec.StatusCode >= 400 {
		p.errorResponses.Add(1)
	}
	p.bytesWritten.Add(stored.Size)
}

func (p *Processor) record(rec model.PageRecord) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.records = append(p.records, rec)
}

// IsBinary reports whether mediaType is stored verbatim.
func (p *Processor) IsBinary(mediaType string) bool {
	_, ok := p.binary[model.MediaType(mediaType)]
	return ok
}

// RecordPanic accounts for a panic the coordinator recovered while this
// processor was handling pageURL.
func (p *Processor) RecordPanic(pageURL string, recovered any) {
	p.failures[model.FailurePanic].Add(1)
	p.record(model.PageRecord{
		URL:       pageURL,
		Failure:   model.FailurePanic,
		Error:     fmt.Errorf("%w: %v", ErrPanic, recovered).Error(),
		FetchedAt: time.Now(),
	})
}

// Stats returns a snapshot of the counters.
func (p *Processor) Stats() model.CrawlStats {
	stats := model.CrawlStats{
		Admitted:       p.admitted.Load(),
		Duplicates:     p.duplicates.Load(),
		Written:        p.written.Load(),
		Binary:         p.binaryCount.Load(),
		Text:           p.textCount.Load(),
		ErrorResponses: p.errorResponses.Load(),
		BytesWritten:   p.bytesWritten.Load(),
		LinksEnqueued:  p.linksEnqueued.Load(),
		LinksRejected:  p.linksRejected.Load(),
		Failures:       make(map[model.FailureKind]int64),
	}
	for kind, n := range p.failures {
		if v := n.Load(); v > 0 {
			stats.Failures[kind] = v
		}
	}
	return stats
}

// Records returns a copy of the page records collected so far.
func (p *Processor) Records() []model.PageRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.PageRecord, len(p.records))
	copy(out, p.records)
	return out
}

// Summary combines the coordinator result with the processor's counters
// and records.
func (p *Processor) Summary(run RunResult) *model.CrawlSummary {
	summary := &model.CrawlSummary{
		Prefix:     p.filter.Prefix,
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
		Cancelled:  run.Cancelled,
		Stats:      p.Stats(),
		Pages:      p.Records(),
	}
	summary.SortPages()
	return summary
}
