package report

import (
	"encoding/json"
	"io"

	"github.com/nao1215/sitemirror/internal/model"
)

// JSONWriter outputs reports in JSON format.
// This format is designed for tool integration and programmatic processing.
type JSONWriter struct {
	baseWriter

	// indent enables pretty-printed JSON output.
	// When false, output is compact (no extra whitespace).
	indent bool

	// indentPrefix is the prefix for each line in indented output.
	indentPrefix string

	// indentString is the indentation string (typically "  " or "\t").
	indentString string
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithIndent enables pretty-printed JSON output.
// The prefix is prepended to each line, and indent is used for each level.
func WithIndent(prefix, indent string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.indent = true
		w.indentPrefix = prefix
		w.indentString = indent
	}
}

// WithPrettyPrint enables pretty-printed JSON with default indentation.
// This is a convenience wrapper for WithIndent("", "  ").
func WithPrettyPrint() JSONWriterOption {
	return WithIndent("", "  ")
}

// NewJSONWriter creates a JSONWriter that outputs to the given writer.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{
		baseWriter: newBaseWriter(output),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Write outputs the crawl summary in JSON format.
func (w *JSONWriter) Write(summary *model.CrawlSummary) (int, error) {
	return w.writeJSON(summary)
}

// WriteDiff outputs the run comparison in JSON format.
func (w *JSONWriter) WriteDiff(diff *model.RunDiff) (int, error) {
	return w.writeJSON(diff)
}

// writeJSON marshals the given value to JSON and writes it to the output.
func (w *JSONWriter) writeJSON(v any) (int, error) {
	var data []byte
	var err error

	if w.indent {
		data, err = json.MarshalIndent(v, w.indentPrefix, w.indentString)
	} else {
		data, err = json.Marshal(v)
	}

	if err != nil {
		return 0, err
	}

	// Add trailing newline for better terminal output
	data = append(data, '\n')

	return w.output.Write(data)
}

// JSONReport wraps a crawl summary with the tool version.
type JSONReport struct {
	// Version is the sitemirror version that generated this report.
	Version string `json:"version"`

	// Summary is the crawl result.
	Summary *model.CrawlSummary `json:"summary"`
}

// NewJSONReport creates a JSONReport wrapper with version information.
func NewJSONReport(summary *model.CrawlSummary, version string) *JSONReport {
	return &JSONReport{
		Version: version,
		Summary: summary,
	}
}

// FullJSONWriter outputs summaries with a metadata wrapper.
type FullJSONWriter struct {
	*JSONWriter

	version string
}

// NewFullJSONWriter creates a writer for summaries with metadata.
func NewFullJSONWriter(output io.Writer, version string, opts ...JSONWriterOption) *FullJSONWriter {
	return &FullJSONWriter{
		JSONWriter: NewJSONWriter(output, opts...),
		version:    version,
	}
}

// Write outputs the summary wrapped with metadata.
func (w *FullJSONWriter) Write(summary *model.CrawlSummary) (int, error) {
	return w.writeJSON(NewJSONReport(summary, w.version))
}
