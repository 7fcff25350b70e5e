package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"
	"github.com/nao1215/sitemirror/internal/model"
)

// MarkdownWriter outputs reports in Markdown format.
// This format is designed for documentation and sharing.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs the crawl summary in Markdown format.
func (w *MarkdownWriter) Write(summary *model.CrawlSummary) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, summary)
	w.writeStats(md, summary)
	w.writeFailures(md, summary)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// writeHeader writes the report header with run information.
func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, summary *model.CrawlSummary) {
	md.H1("Sitemirror Report")
	md.PlainText("")

	started := "-"
	if !summary.StartedAt.IsZero() {
		started = summary.StartedAt.Format(timeLayout)
	}
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Root URL", "`" + summary.RootURL + "`"},
			{"Prefix", "`" + summary.Prefix + "`"},
			{"Output", "`" + summary.OutputDir + "`"},
			{"Started", started},
			{"Duration", formatDuration(summary.Duration())},
			{"Status", statusText(summary)},
		},
	})
	md.PlainText("")
}

// writeStats writes the counters table, the chart and an alert.
func (w *MarkdownWriter) writeStats(md *markdown.Markdown, summary *model.CrawlSummary) {
	s := summary.Stats

	md.H2("Summary")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Metric", "Count"},
		Rows: [][]string{
			{"Visited", strconv.FormatInt(s.Admitted, 10)},
			{"Text files", strconv.FormatInt(s.Text, 10)},
			{"Binary files", strconv.FormatInt(s.Binary, 10)},
			{"Bytes written", formatBytes(s.BytesWritten)},
			{"Links enqueued", strconv.FormatInt(s.LinksEnqueued, 10)},
			{"Links rejected", strconv.FormatInt(s.LinksRejected, 10)},
			{"Duplicates", strconv.FormatInt(s.Duplicates, 10)},
			{"Error responses", strconv.FormatInt(s.ErrorResponses, 10)},
			{"**Failures**", "**" + strconv.FormatInt(s.FailureCount(), 10) + "**"},
		},
	})
	md.PlainText("")

	if s.Admitted > 0 {
		w.writePieChart(md, s)
	}
	w.writeAlert(md, summary)
}

// writePieChart writes a mermaid pie chart of how visited URLs ended up.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, s model.CrawlStats) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Visited URLs"),
		piechart.WithShowData(true),
	)

	if s.Text > 0 {
		chart.LabelAndIntValue("Text", uint64(s.Text))
	}
	if s.Binary > 0 {
		chart.LabelAndIntValue("Binary", uint64(s.Binary))
	}
	if n := s.FailureCount(); n > 0 {
		chart.LabelAndIntValue("Failed", uint64(n))
	}

	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

// writeAlert writes an alert describing how the run ended.
func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, summary *model.CrawlSummary) {
	failures := summary.Stats.FailureCount()
	switch {
	case summary.Cancelled:
		md.Warningf("The crawl was cancelled. The mirror is partial (%d URL(s) visited).",
			summary.Stats.Admitted)
	case failures > 0:
		md.Cautionf("%d URL(s) could not be mirrored.", failures)
	case summary.Stats.Admitted == 0:
		md.Note("Nothing was mirrored.")
	default:
		md.Tip("Every visited URL was mirrored.")
	}
	md.PlainText("")
}

// writeFailures writes the failed pages table.
func (w *MarkdownWriter) writeFailures(md *markdown.Markdown, summary *model.CrawlSummary) {
	md.H2("Failures")
	md.PlainText("")

	failed := summary.FailedPages()
	if len(failed) == 0 {
		md.PlainText("No failures.")
		md.PlainText("")
		return
	}

	rows := make([][]string, len(failed))
	for i, p := range failed {
		status := "-"
		if p.StatusCode != 0 {
			status = strconv.Itoa(p.StatusCode)
		}
		rows[i] = []string{
			string(p.Failure),
			status,
			truncateString(p.URL, 60),
			truncateString(p.Error, 60),
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Kind", "Status", "URL", "Error"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writeFooter writes the report footer.
func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [sitemirror](https://github.com/nao1215/sitemirror)*")
}

// WriteDiff outputs a run comparison in Markdown format.
func (w *MarkdownWriter) WriteDiff(diff *model.RunDiff) (int, error) {
	md := markdown.NewMarkdown(w.output)

	md.H1(fmt.Sprintf("Run Comparison: #%d -> #%d", diff.OldRunID, diff.NewRunID))
	md.PlainText("")

	if !diff.HasChanges() {
		md.Tip("No changes between runs.")
		md.PlainText("")
	}

	md.Table(markdown.TableSet{
		Header: []string{"Change", "Files"},
		Rows: [][]string{
			{"Added", strconv.Itoa(len(diff.Added))},
			{"Removed", strconv.Itoa(len(diff.Removed))},
			{"Changed", strconv.Itoa(len(diff.Changed))},
			{"Unchanged", strconv.Itoa(diff.Unchanged)},
		},
	})
	md.PlainText("")

	sections := []struct {
		title string
		pages []model.PageRecord
	}{
		{"Added", diff.Added},
		{"Removed", diff.Removed},
		{"Changed", diff.Changed},
	}
	for _, sec := range sections {
		if len(sec.pages) == 0 {
			continue
		}
		md.H2(sec.title)
		md.PlainText("")
		items := make([]string, len(sec.pages))
		for i, p := range sec.pages {
			items[i] = "`" + p.Path + "` (" + p.URL + ")"
		}
		md.BulletList(items...)
		md.PlainText("")
	}

	return len(md.String()), md.Build()
}
