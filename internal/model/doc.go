// Package model defines the data structures shared by the crawler, the
// mirror writer, the report writers and the run database.
//
// This package contains the following main types:
//   - Resource: A fetched HTTP response that has not been persisted yet
//   - PageRecord: What is remembered about one URL after processing
//   - CrawlStats: Counters accumulated while a crawl is running
//   - CrawlSummary: The result of a whole crawl run
//   - StoredFile: Where the mirror writer put a resource
//   - RunDiff: How the files of two runs of the same site differ
//
// The models live in their own package so that crawler, report and database
// can all depend on them without import cycles. PageRecord and CrawlSummary
// are serializable to JSON for report output and database storage.
package model
