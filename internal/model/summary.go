package model

import (
	"sort"
	"time"
)

// FailureKind classifies why a page task did not complete.
type FailureKind string

const (
	// FailureFetch is a transport error: connection, timeout, DNS.
	FailureFetch FailureKind = "fetch"

	// FailureTooLarge is a body longer than the configured size limit.
	// Nothing is stored for it.
	FailureTooLarge FailureKind = "too_large"

	// FailureDecode is a body that could not be decoded to text.
	FailureDecode FailureKind = "decode"

	// FailurePersist is a storage error such as a full disk or a rejected path.
	FailurePersist FailureKind = "persist"

	// FailurePanic is a panic recovered at the task boundary.
	FailurePanic FailureKind = "panic"
)

// FailureKinds lists every failure kind in reporting order.
var FailureKinds = []FailureKind{
	FailureFetch,
	FailureTooLarge,
	FailureDecode,
	FailurePersist,
	FailurePanic,
}

// CrawlStats holds the counters of a crawl run.
type CrawlStats struct {
	// Admitted is the size of the visited set: every URL that won admission.
	Admitted int64 `json:"admitted"`

	// Duplicates is the number of dequeued URLs rejected by admission.
	Duplicates int64 `json:"duplicates"`

	// Written is the number of resources persisted to storage.
	Written int64 `json:"written"`

	// Binary is the number of resources stored verbatim without link extraction.
	Binary int64 `json:"binary"`

	// ErrorResponses is the number of stored resources whose response had
	// a 4xx or 5xx status. They are mirrored like any other response.
	ErrorResponses int64 `json:"error_responses"`

	// Text is the number of resources decoded and scanned for links.
	Text int64 `json:"text"`

	// BytesWritten is the total size of all persisted resources.
	BytesWritten int64 `json:"bytes_written"`

	// LinksEnqueued is the number of same-site links pushed onto the frontier.
	LinksEnqueued int64 `json:"links_enqueued"`

	// LinksRejected is the number of extracted links dropped by the
	// same-site filter or the ignore/follow patterns.
	LinksRejected int64 `json:"links_rejected"`

	// Failures counts failed pages by kind.
	Failures map[FailureKind]int64 `json:"failures,omitempty"`
}

// FailureCount returns the total number of failed pages.
func (s CrawlStats) FailureCount() int64 {
	var total int64
	for _, n := range s.Failures {
		total += n
	}
	return total
}

// CrawlSummary is the result of one crawl run.
type CrawlSummary struct {
	// RootURL is the seed URL.
	RootURL string `json:"root_url"`

	// Prefix is the same-site filter string links were matched against.
	Prefix string `json:"prefix"`

	// OutputDir is where the mirror was written.
	OutputDir string `json:"output_dir"`

	// StartedAt is when the coordinator started seeding.
	StartedAt time.Time `json:"started_at"`

	// FinishedAt is when the coordinator reached the terminated state.
	FinishedAt time.Time `json:"finished_at"`

	// Cancelled is true when the run was interrupted before the frontier was exhausted.
	Cancelled bool `json:"cancelled"`

	// Stats holds the run counters.
	Stats CrawlStats `json:"stats"`

	// Pages holds one record per admitted URL, sorted by URL.
	Pages []PageRecord `json:"pages,omitempty"`
}

// Duration returns the wall-clock time of the run.
func (s *CrawlSummary) Duration() time.Duration {
	if s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

// FailedPages returns the records of pages that failed.
func (s *CrawlSummary) FailedPages() []PageRecord {
	failed := make([]PageRecord, 0)
	for _, p := range s.Pages {
		if p.Failed() {
			failed = append(failed, p)
		}
	}
	return failed
}

// SortPages orders Pages by URL so output is stable across runs.
func (s *CrawlSummary) SortPages() {
	sort.Slice(s.Pages, func(i, j int) bool {
		return s.Pages[i].URL < s.Pages[j].URL
	})
}
