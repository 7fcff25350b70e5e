package crawler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"testing/iotest"

	"github.com/nao1215/sitemirror/internal/config"
	"github.com/nao1215/sitemirror/internal/mirror"
	"github.com/nao1215/sitemirror/internal/model"
)

// hitCounter counts requests per path.
type hitCounter struct {
	mu   sync.Mutex
	hits map[string]int
}

func (h *hitCounter) add(path string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.hits == nil {
		h.hits = make(map[string]int)
	}
	h.hits[path]++
}

func (h *hitCounter) get(path string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.hits[path]
}

// newSiteServer serves pages from a path to (content type, body) map.
func newSiteServer(t *testing.T, pages map[string][2]string, hits *hitCounter) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.add(r.URL.Path)
		page, ok := pages[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", page[0])
		_, _ = io.WriteString(w, page[1])
	}))
	t.Cleanup(server.Close)
	return server
}

// crawlSite runs a full crawl of server into dir.
func crawlSite(t *testing.T, server *httptest.Server, dir string, opts ...ProcessorOption) (*Processor, *Coordinator, RunResult) {
	t.Helper()

	prefix := server.URL + "/"
	writer, err := mirror.NewWriter(dir, prefix)
	if err != nil {
		t.Fatalf("failed to create writer: %v", err)
	}
	t.Cleanup(func() { _ = writer.Close() })

	opts = append([]ProcessorOption{WithPrefix(prefix)}, opts...)
	proc := NewProcessor(NewHTTPFetcher(server.Client()), NewParser(), writer, opts...)
	coord := NewCoordinator(proc, WithWorkers(4))

	run, err := coord.Run(context.Background(), prefix)
	if err != nil {
		t.Fatalf("crawl failed: %v", err)
	}
	return proc, coord, run
}

func listFiles(t *testing.T, dir string) []string {
	t.Helper()
	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			rel, _ := filepath.Rel(dir, path)
			files = append(files, filepath.ToSlash(rel))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("failed to walk %s: %v", dir, err)
	}
	sort.Strings(files)
	return files
}

// TestProcessorThreePageSite tests the seed with two children and a back link.
func TestProcessorThreePageSite(t *testing.T) {
	t.Parallel()

	hits := &hitCounter{}
	server := newSiteServer(t, map[string][2]string{
		"/":       {"text/html", `<html><head><title>Home</title></head><body><a href="a.html">A</a><a href="b.html">B</a></body></html>`},
		"/a.html": {"text/html; charset=utf-8", `<html><body><a href="/">home</a><a href="b.html">B</a></body></html>`},
		"/b.html": {"text/html", `<html><body>leaf</body></html>`},
	}, hits)

	dir := t.TempDir()
	proc, coord, run := crawlSite(t, server, dir)

	got := listFiles(t, dir)
	want := []string{"a.html", "b.html", "index.html"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("expected files %v, got %v", want, got)
	}
	if coord.Visited().Len() != 3 || run.Visited != 3 {
		t.Errorf("expected visited set of 3, got %d", coord.Visited().Len())
	}
	if hits.get("/") != 1 {
		t.Errorf("expected one fetch of /, got %d", hits.get("/"))
	}

	summary := proc.Summary(run)
	if summary.Stats.Written != 3 || summary.Stats.Text != 3 {
		t.Errorf("unexpected stats %+v", summary.Stats)
	}
	if summary.Stats.FailureCount() != 0 {
		t.Errorf("expected no failures, got %v", summary.Stats.Failures)
	}
	if summary.Stats.Duplicates == 0 {
		t.Error("expected duplicate dequeues to be counted")
	}
	if len(summary.Pages) != 3 || summary.Pages[0].URL != server.URL+"/" {
		t.Fatalf("unexpected pages %+v", summary.Pages)
	}
	if summary.Pages[0].Title != "Home" || summary.Pages[0].Path != "index.html" {
		t.Errorf("unexpected root record %+v", summary.Pages[0])
	}

	body, err := os.ReadFile(filepath.Join(dir, "b.html"))
	if err != nil {
		t.Fatalf("failed to read b.html: %v", err)
	}
	if string(body) != `<html><body>leaf</body></html>` {
		t.Errorf("text not persisted verbatim: %q", body)
	}
}

// TestProcessorIdempotentRerun tests byte-identical output across runs.
func TestProcessorIdempotentRerun(t *testing.T) {
	t.Parallel()

	hits := &hitCounter{}
	server := newSiteServer(t, map[string][2]string{
		"/":             {"text/html", `<a href="css/site.css">css</a><img src="img/logo.png">`},
		"/css/site.css": {"text/css", `body { color: red; }`},
		"/img/logo.png": {"image/png", "\x89PNG\r\n\x1a\n\x00\x00"},
	}, hits)

	dir := t.TempDir()
	first, _, run1 := crawlSite(t, server, dir)
	second, _, run2 := crawlSite(t, server, dir)

	a, b := first.Summary(run1).Pages, second.Summary(run2).Pages
	if len(a) != 3 || len(a) != len(b) {
		t.Fatalf("expected 3 pages in both runs, got %d and %d", len(a), len(b))
	}
	for i := range a {
		if a[i].Path != b[i].Path || a[i].Hash != b[i].Hash || a[i].Hash == "" {
			t.Errorf("page %s differs between runs: %+v vs %+v", a[i].URL, a[i], b[i])
		}
	}
	if got := listFiles(t, dir); len(got) != 3 {
		t.Errorf("expected 3 files, got %v", got)
	}
}

// countingExtractor records how often it is called.
type countingExtractor struct {
	mu    sync.Mutex
	calls int
	links []string
	err   error
}

func (e *countingExtractor) Extract(_ *url.URL, _ io.Reader) (*ParseResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	return &ParseResult{Links: e.links}, e.err
}

// TestProcessorBinary tests that binary resources bypass text handling.
func TestProcessorBinary(t *testing.T) {
	t.Parallel()

	jpeg := []byte{0xff, 0xd8, 0xff, 0xe0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00, 0x80, 0x81, 0xfe}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write(jpeg)
	}))
	defer server.Close()

	dir := t.TempDir()
	writer, err := mirror.NewWriter(dir, server.URL+"/")
	if err != nil {
		t.Fatalf("failed to create writer: %v", err)
	}
	defer writer.Close()

	extractor := &countingExtractor{}
	decoded := false
	proc := NewProcessor(NewHTTPFetcher(server.Client()), extractor, writer,
		WithPrefix(server.URL+"/"),
		WithTextDecoder(func(io.Reader, string) (string, error) {
			decoded = true
			return "", nil
		}),
	)

	frontier, visited := NewFrontier(), NewVisitedSet()
	proc.Process(context.Background(), server.URL+"/cover.jpg", frontier, visited)

	got, err := os.ReadFile(filepath.Join(dir, "cover.jpg"))
	if err != nil {
		t.Fatalf("failed to read file: %v", err)
	}
	if !bytes.Equal(got, jpeg) {
		t.Errorf("binary content modified: %v", got)
	}
	if extractor.calls != 0 {
		t.Errorf("expected no extraction attempts, got %d", extractor.calls)
	}
	if decoded {
		t.Error("binary body must not be decoded")
	}
	if frontier.Len() != 0 {
		t.Errorf("expected nothing enqueued, got %d", frontier.Len())
	}

	rec := proc.Records()[0]
	if rec.Kind != model.KindBinary || rec.ContentType != "image/jpeg" || rec.Hash != model.ComputeHash(jpeg) {
		t.Errorf("unexpected record %+v", rec)
	}
	if proc.Stats().Binary != 1 {
		t.Errorf("expected one binary resource, got %d", proc.Stats().Binary)
	}
}

// TestProcessorOversizedBinary tests that a body over the size limit is a
// failure and leaves nothing on disk.
func TestProcessorOversizedBinary(t *testing.T) {
	t.Parallel()

	jpeg := append([]byte{0xff, 0xd8, 0xff, 0xe0}, bytes.Repeat([]byte{0x80}, 96)...)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write(jpeg)
	}))
	defer server.Close()

	dir := t.TempDir()
	writer, err := mirror.NewWriter(dir, server.URL+"/")
	if err != nil {
		t.Fatalf("failed to create writer: %v", err)
	}
	defer writer.Close()

	proc := NewProcessor(NewHTTPFetcher(server.Client(), WithMaxBodySize(40)), &countingExtractor{}, writer,
		WithPrefix(server.URL+"/"),
	)
	proc.Process(context.Background(), server.URL+"/photo.jpg", NewFrontier(), NewVisitedSet())

	rec := proc.Records()[0]
	if rec.Failure != model.FailureTooLarge {
		t.Errorf("expected failure %q, got %q (%s)", model.FailureTooLarge, rec.Failure, rec.Error)
	}
	if _, err := os.Stat(filepath.Join(dir, "photo.jpg")); !os.IsNotExist(err) {
		t.Errorf("oversized body must not be stored: %v", err)
	}
	stats := proc.Stats()
	if stats.Written != 0 || stats.Binary != 0 {
		t.Errorf("expected nothing written, got %+v", stats)
	}
	if stats.Failures[model.FailureTooLarge] != 1 {
		t.Errorf("expected one too_large failure, got %v", stats.Failures)
	}
}

// TestProcessorErrorStatusMirrored tests that 4xx pages are stored and
// their links followed.
func TestProcessorErrorStatusMirrored(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		switch r.URL.Path {
		case "/":
			_, _ = io.WriteString(w, `<a href="missing.html">missing</a>`)
		case "/missing.html":
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `<html><body>gone, try <a href="b.html">b</a></body></html>`)
		case "/b.html":
			_, _ = io.WriteString(w, `leaf`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	dir := t.TempDir()
	proc, _, run := crawlSite(t, server, dir)

	got := listFiles(t, dir)
	want := []string{"b.html", "index.html", "missing.html"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("expected files %v, got %v", want, got)
	}

	summary := proc.Summary(run)
	if summary.Stats.FailureCount() != 0 {
		t.Errorf("expected no failures, got %v", summary.Stats.Failures)
	}
	if summary.Stats.ErrorResponses != 1 || summary.Stats.Written != 3 {
		t.Errorf("unexpected stats %+v", summary.Stats)
	}
	for _, page := range summary.Pages {
		if page.URL == server.URL+"/missing.html" && page.StatusCode != http.StatusNotFound {
			t.Errorf("expected status 404 on %s, got %d", page.URL, page.StatusCode)
		}
	}
}

// TestProcessorDefaultBinaryTypes tests that the configured defaults apply.
func TestProcessorDefaultBinaryTypes(t *testing.T) {
	t.Parallel()

	proc := NewProcessor(nil, nil, nil)
	for _, ct := range config.DefaultBinaryContentTypes {
		if !proc.IsBinary(ct) {
			t.Errorf("default type %q not treated as binary", ct)
		}
	}
}

// TestProcessorIsBinary tests media type matching.
func TestProcessorIsBinary(t *testing.T) {
	t.Parallel()

	proc := NewProcessor(nil, nil, nil)
	tests := []struct {
		contentType string
		want        bool
	}{
		{"image/jpeg", true},
		{"IMAGE/JPEG", true},
		{"image/x-icon", true},
		{"image/png", true},
		{"image/svg+xml", false},
		{"text/html; charset=utf-8", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := proc.IsBinary(tt.contentType); got != tt.want {
			t.Errorf("IsBinary(%q) = %v, want %v", tt.contentType, got, tt.want)
		}
	}

	custom := NewProcessor(nil, nil, nil, WithBinaryContentTypes([]string{"application/pdf"}))
	if !custom.IsBinary("application/pdf") || custom.IsBinary("image/jpeg") {
		t.Error("custom binary types should replace the defaults")
	}
}

// TestProcessorSameSiteFilter tests that off-site links are never enqueued.
func TestProcessorSameSiteFilter(t *testing.T) {
	t.Parallel()

	hits := &hitCounter{}
	server := newSiteServer(t, map[string][2]string{
		"/": {"text/html", `
			<a href="https://external.example/page">ext</a>
			<a href="local.html">local</a>
			<a href="mailto:someone@example.com">mail</a>
			<a href="javascript:void(0)">js</a>`},
		"/local.html": {"text/html", `ok`},
	}, hits)

	dir := t.TempDir()
	proc, coord, _ := crawlSite(t, server, dir)

	if coord.Visited().Contains("https://external.example/page") {
		t.Error("off-site link was admitted")
	}
	if coord.Visited().Len() != 2 {
		t.Errorf("expected 2 visited, got %d", coord.Visited().Len())
	}
	stats := proc.Stats()
	if stats.LinksRejected != 1 {
		t.Errorf("expected 1 rejected link, got %d", stats.LinksRejected)
	}
	if stats.LinksEnqueued != 1 {
		t.Errorf("expected 1 enqueued link, got %d", stats.LinksEnqueued)
	}
}

// TestProcessorIgnorePatterns tests glob patterns from site config.
func TestProcessorIgnorePatterns(t *testing.T) {
	t.Parallel()

	hits := &hitCounter{}
	server := newSiteServer(t, map[string][2]string{
		"/":            {"text/html", `<a href="admin/panel">x</a><a href="docs/a.html">a</a>`},
		"/docs/a.html": {"text/html", `a`},
		"/admin/panel": {"text/html", `secret`},
	}, hits)

	dir := t.TempDir()
	_, coord, _ := crawlSite(t, server, dir, WithIgnorePatterns([]string{"/admin/*"}))

	if hits.get("/admin/panel") != 0 {
		t.Error("ignored path was fetched")
	}
	if coord.Visited().Len() != 2 {
		t.Errorf("expected 2 visited, got %d", coord.Visited().Len())
	}
}

// fakeFetcher returns canned resources or errors.
type fakeFetcher struct {
	status      int
	contentType string
	body        string
	bodyErr     error
	err         error
}

func (f *fakeFetcher) Fetch(_ context.Context, pageURL string) (*model.Resource, error) {
	if f.err != nil {
		return nil, f.err
	}
	var body io.Reader = bytes.NewBufferString(f.body)
	if f.bodyErr != nil {
		body = io.MultiReader(body, iotest.ErrReader(f.bodyErr))
	}
	return &model.Resource{
		URL:         pageURL,
		StatusCode:  f.status,
		ContentType: f.contentType,
		Body:        io.NopCloser(body),
	}, nil
}

// fakeWriter stores into memory or fails.
type fakeWriter struct {
	mu    sync.Mutex
	files map[string]string
	err   error
}

func (w *fakeWriter) WriteText(pageURL, text string) (model.StoredFile, error) {
	return w.WriteBinary(pageURL, bytes.NewBufferString(text))
}

func (w *fakeWriter) WriteBinary(pageURL string, body io.Reader) (model.StoredFile, error) {
	if w.err != nil {
		return model.StoredFile{}, w.err
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return model.StoredFile{}, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.files == nil {
		w.files = make(map[string]string)
	}
	w.files[pageURL] = string(data)
	return model.StoredFile{Path: pageURL, Size: int64(len(data)), Hash: model.ComputeHash(data)}, nil
}

// TestProcessorFailures tests that every failure kind is contained and counted.
func TestProcessorFailures(t *testing.T) {
	t.Parallel()

	const pageURL = "https://example.com/page.html"

	tests := []struct {
		name     string
		fetcher  *fakeFetcher
		writer   *fakeWriter
		decode   TextDecoder
		wantKind model.FailureKind
		wantErr  error
	}{
		{
			name:     "transport error",
			fetcher:  &fakeFetcher{err: errors.New("connection refused")},
			writer:   &fakeWriter{},
			wantKind: model.FailureFetch,
			wantErr:  ErrFetch,
		},
		{
			name:     "text body too large",
			fetcher:  &fakeFetcher{status: http.StatusOK, contentType: "text/html", body: "<html>", bodyErr: ErrTooLarge},
			writer:   &fakeWriter{},
			wantKind: model.FailureTooLarge,
			wantErr:  ErrTooLarge,
		},
		{
			name:     "binary body too large",
			fetcher:  &fakeFetcher{status: http.StatusOK, contentType: "image/png", body: "\x89PNG", bodyErr: ErrTooLarge},
			writer:   &fakeWriter{},
			wantKind: model.FailureTooLarge,
			wantErr:  ErrTooLarge,
		},
		{
			name:    "decode error",
			fetcher: &fakeFetcher{status: http.StatusOK, contentType: "text/html", body: "x"},
			writer:  &fakeWriter{},
			decode: func(io.Reader, string) (string, error) {
				return "", errors.New("bad bytes")
			},
			wantKind: model.FailureDecode,
			wantErr:  ErrDecode,
		},
		{
			name:     "persist error",
			fetcher:  &fakeFetcher{status: http.StatusOK, contentType: "text/html", body: "x"},
			writer:   &fakeWriter{err: mirror.ErrPathTraversal},
			wantKind: model.FailurePersist,
			wantErr:  ErrPersist,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			proc := NewProcessor(tt.fetcher, &countingExtractor{}, tt.writer,
				WithPrefix("https://example.com/"),
				WithTextDecoder(tt.decode),
			)
			proc.Process(context.Background(), pageURL, NewFrontier(), NewVisitedSet())

			records := proc.Records()
			if len(records) != 1 {
				t.Fatalf("expected 1 record, got %d", len(records))
			}
			rec := records[0]
			if rec.Failure != tt.wantKind {
				t.Errorf("expected failure %q, got %q", tt.wantKind, rec.Failure)
			}
			if rec.Error == "" {
				t.Error("expected error message")
			}
			if got := proc.Stats().Failures[tt.wantKind]; got != 1 {
				t.Errorf("expected one %s failure, got %d", tt.wantKind, got)
			}
			if len(tt.writer.files) != 0 {
				t.Error("failed page must not be persisted")
			}
			if failureKind(fmt.Errorf("%w: x", tt.wantErr)) != tt.wantKind {
				t.Errorf("failureKind does not map %v to %s", tt.wantErr, tt.wantKind)
			}
		})
	}
}

// TestProcessorPartialExtraction tests that links found before a parse
// error are still enqueued.
func TestProcessorPartialExtraction(t *testing.T) {
	t.Parallel()

	extractor := &countingExtractor{
		links: []string{"https://example.com/a.html", "https://example.com/b.html"},
		err:   errors.New("unexpected end of input"),
	}
	proc := NewProcessor(
		&fakeFetcher{status: http.StatusOK, contentType: "text/html", body: "<a href"},
		extractor,
		&fakeWriter{},
		WithPrefix("https://example.com/"),
	)

	frontier := NewFrontier()
	proc.Process(context.Background(), "https://example.com/", frontier, NewVisitedSet())

	if frontier.Len() != 2 {
		t.Errorf("expected 2 enqueued links, got %d", frontier.Len())
	}
	if rec := proc.Records()[0]; rec.Failed() {
		t.Errorf("partial extraction must not fail the page: %+v", rec)
	}
}

// TestProcessorDuplicateAdmission tests that an admitted URL is skipped
// before any network I/O.
func TestProcessorDuplicateAdmission(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{err: errors.New("must not be called")}
	proc := NewProcessor(fetcher, &countingExtractor{}, &fakeWriter{})

	visited := NewVisitedSet()
	visited.TryAdmit("https://example.com/")
	proc.Process(context.Background(), "https://example.com/", NewFrontier(), visited)

	if len(proc.Records()) != 0 {
		t.Error("duplicate URL must not produce a record")
	}
	stats := proc.Stats()
	if stats.Duplicates != 1 || stats.Admitted != 0 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

// TestProcessorRecordPanic tests panic accounting.
func TestProcessorRecordPanic(t *testing.T) {
	t.Parallel()

	proc := NewProcessor(nil, nil, nil)
	proc.RecordPanic("https://example.com/x", "boom")

	stats := proc.Stats()
	if stats.Failures[model.FailurePanic] != 1 {
		t.Errorf("expected one panic failure, got %v", stats.Failures)
	}
	rec := proc.Records()[0]
	if rec.Failure != model.FailurePanic || rec.Error != "page task panicked: boom" {
		t.Errorf("unexpected record %+v", rec)
	}
}
