package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/nao1215/sitemirror/internal/model"
)

const timeLayout = "2006-01-02 15:04:05 MST"

// SimpleWriter outputs human-readable text reports for terminal display.
type SimpleWriter struct {
	baseWriter

	// showEmpty controls whether sections with no entries are shown.
	showEmpty bool

	// verbose lists every page, not only failures.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithShowEmpty configures the writer to show empty sections.
func WithShowEmpty(show bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.showEmpty = show
	}
}

// WithVerbose enables the per-page listing.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write outputs the crawl summary in human-readable format.
func (w *SimpleWriter) Write(summary *model.CrawlSummary) (int, error) {
	var sb strings.Builder

	w.writeHeader(&sb, summary)
	w.writeStats(&sb, summary)
	w.writeFailures(&sb, summary)
	if w.verbose {
		w.writePages(&sb, summary)
	}
	w.writeFooter(&sb)

	return w.output.Write([]byte(sb.String()))
}

func writeRule(sb *strings.Builder, ch, title string) {
	sb.WriteString(strings.Repeat(ch, 70))
	sb.WriteString("\n")
	sb.WriteString(title)
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat(ch, 70))
	sb.WriteString("\n\n")
}

// writeHeader writes the run information.
func (w *SimpleWriter) writeHeader(sb *strings.Builder, summary *model.CrawlSummary) {
	sb.WriteString("\n")
	writeRule(sb, "=", "                         SITEMIRROR REPORT")

	fmt.Fprintf(sb, "Root URL:   %s\n", summary.RootURL)
	fmt.Fprintf(sb, "Prefix:     %s\n", summary.Prefix)
	fmt.Fprintf(sb, "Output:     %s\n", summary.OutputDir)
	if !summary.StartedAt.IsZero() {
		fmt.Fprintf(sb, "Started:    %s\n", summary.StartedAt.Format(timeLayout))
	}
	fmt.Fprintf(sb, "Duration:   %s\n", formatDuration(summary.Duration()))
	fmt.Fprintf(sb, "Status:     %s\n", statusText(summary))
	sb.WriteString("\n")
}

// writeStats writes the run counters.
func (w *SimpleWriter) writeStats(sb *strings.Builder, summary *model.CrawlSummary) {
	writeRule(sb, "-", "SUMMARY")

	s := summary.Stats
	fmt.Fprintf(sb, "  Visited:         %d\n", s.Admitted)
	fmt.Fprintf(sb, "  Written:         %d (text %d, binary %d)\n", s.Written, s.Text, s.Binary)
	fmt.Fprintf(sb, "  Bytes written:   %s\n", formatBytes(s.BytesWritten))
	fmt.Fprintf(sb, "  Links enqueued:  %d\n", s.LinksEnqueued)
	fmt.Fprintf(sb, "  Links rejected:  %d\n", s.LinksRejected)
	fmt.Fprintf(sb, "  Duplicates:      %d\n", s.Duplicates)
	fmt.Fprintf(sb, "  Error responses: %d\n", s.ErrorResponses)
	fmt.Fprintf(sb, "  Failures:        %d\n", s.FailureCount())
	for _, kind := range model.FailureKinds {
		if n := s.Failures[kind]; n > 0 {
			fmt.Fprintf(sb, "    %-11s    %d\n", kind+":", n)
		}
	}
	sb.WriteString("\n")
}

// writeFailures lists the failed pages.
func (w *SimpleWriter) writeFailures(sb *strings.Builder, summary *model.CrawlSummary) {
	failed := summary.FailedPages()
	if len(failed) == 0 && !w.showEmpty {
		return
	}

	writeRule(sb, "-", "FAILURES")
	if len(failed) == 0 {
		sb.WriteString("  No failures\n\n")
		return
	}
	for _, p := range failed {
		fmt.Fprintf(sb, "  [%s] %s\n", p.Failure, p.URL)
		if p.Error != "" {
			fmt.Fprintf(sb, "    Error: %s\n", p.Error)
		}
	}
	sb.WriteString("\n")
}

// writePages lists every stored page.
func (w *SimpleWriter) writePages(sb *strings.Builder, summary *model.CrawlSummary) {
	writeRule(sb, "-", "PAGES")
	if len(summary.Pages) == 0 {
		sb.WriteString("  No pages\n\n")
		return
	}
	for _, p := range summary.Pages {
		if p.Failed() {
			continue
		}
		fmt.Fprintf(sb, "  %-6s %10s  %s\n", p.Kind, formatBytes(p.Size), p.Path)
		if p.Title != "" {
			fmt.Fprintf(sb, "         %10s  title: %s\n", "", p.Title)
		}
	}
	sb.WriteString("\n")
}

// writeFooter writes the report footer.
func (w *SimpleWriter) writeFooter(sb *strings.Builder) {
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("Report generated by sitemirror\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
}

// WriteDiff outputs a run comparison in human-readable format.
func (w *SimpleWriter) WriteDiff(diff *model.RunDiff) (int, error) {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Run Comparison: #%d -> #%d\n", diff.OldRunID, diff.NewRunID)
	sb.WriteString(strings.Repeat("=", 60))
	sb.WriteString("\n\n")

	if !diff.HasChanges() {
		fmt.Fprintf(&sb, "No changes: %d file(s) identical\n", diff.Unchanged)
		return w.output.Write([]byte(sb.String()))
	}

	sections := []struct {
		title  string
		marker string
		pages  []model.PageRecord
	}{
		{"Added", "+", diff.Added},
		{"Removed", "-", diff.Removed},
		{"Changed", "~", diff.Changed},
	}
	for _, sec := range sections {
		if len(sec.pages) == 0 && !w.showEmpty {
			continue
		}
		fmt.Fprintf(&sb, "%s (%d):\n", sec.title, len(sec.pages))
		for _, p := range sec.pages {
			fmt.Fprintf(&sb, "  [%s] %s\n", sec.marker, p.Path)
		}
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "Unchanged: %d file(s)\n", diff.Unchanged)

	return w.output.Write([]byte(sb.String()))
}
