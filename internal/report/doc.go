// Package report renders crawl summaries and run comparisons.
//
// This package contains writers for different output formats:
//   - SimpleWriter: Human-readable text output for terminal display
//   - MarkdownWriter: Markdown for sharing, with tables and a chart
//   - JSONWriter: Structured JSON output for tool integration
//
// Writers implement the Writer interface, allowing them to be used
// interchangeably and composed with MultiWriter.
package report
