package report

import (
	"fmt"
	"io"
	"time"

	"github.com/nao1215/sitemirror/internal/model"
)

// Writer defines the interface for report output.
type Writer interface {
	// Write outputs the summary of a crawl run.
	// Returns the number of bytes written and any error encountered.
	Write(summary *model.CrawlSummary) (int, error)

	// WriteDiff outputs a comparison of two runs.
	WriteDiff(diff *model.RunDiff) (int, error)
}

// MultiWriter writes to multiple Writers in order.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write outputs the summary to all configured Writers.
// Stops on first error encountered.
func (m *MultiWriter) Write(summary *model.CrawlSummary) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.Write(summary)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// WriteDiff outputs the diff to all configured Writers.
func (m *MultiWriter) WriteDiff(diff *model.RunDiff) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.WriteDiff(diff)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// baseWriter provides common functionality for report writers.
type baseWriter struct {
	output io.Writer
}

// newBaseWriter creates a baseWriter with the given output destination.
func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

// formatBytes renders n with a binary unit.
func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// formatDuration rounds d for display.
func formatDuration(d time.Duration) string {
	switch {
	case d <= 0:
		return "0s"
	case d < time.Second:
		return d.Round(time.Millisecond).String()
	default:
		return d.Round(100 * time.Millisecond).String()
	}
}

// statusText describes how the run ended.
func statusText(summary *model.CrawlSummary) string {
	switch {
	case summary.Cancelled:
		return "Cancelled (partial mirror)"
	case summary.Stats.FailureCount() > 0:
		return fmt.Sprintf("Complete with %d failure(s)", summary.Stats.FailureCount())
	default:
		return "Complete"
	}
}

// truncateString truncates a string to maxLen characters with ellipsis.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
