package crawler

import "sync"

// Frontier is a FIFO of discovered URLs that have not been processed yet.
// It does not deduplicate: the same URL may be queued many times and is
// filtered by VisitedSet.TryAdmit when it is dequeued.
// Frontier is safe for concurrent use.
type Frontier struct {
	mu    sync.Mutex
	items []string
	head  int
}

// NewFrontier creates an empty frontier.
func NewFrontier() *Frontier {
	return &Frontier{}
}

// Enqueue appends pageURL to the back of the queue.
func (f *Frontier) Enqueue(pageURL string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = append(f.items, pageURL)
}

// Dequeue removes and returns the URL at the front of the queue.
// It never blocks; ok is false when the queue is empty.
func (f *Frontier) Dequeue() (pageURL string, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.head == len(f.items) {
		return "", false
	}
	pageURL = f.items[f.head]
	f.items[f.head] = ""
	f.head++

	// Reclaim the consumed part once it dominates the backing array.
	if f.head == len(f.items) {
		f.items = f.items[:0]
		f.head = 0
	} else if f.head > 1024 && f.head*2 > len(f.items) {
		f.items = append(f.items[:0:0], f.items[f.head:]...)
		f.head = 0
	}
	return pageURL, true
}

// Len returns the number of queued URLs.
func (f *Frontier) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.items) - f.head
}

// VisitedSet records every URL admitted to processing. Entries are never
// removed. It is safe for concurrent use.
type VisitedSet struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewVisitedSet creates an empty visited set.
func NewVisitedSet() *VisitedSet {
	return &VisitedSet{seen: make(map[string]struct{})}
}

// TryAdmit inserts pageURL and reports whether it was absent.
// When several goroutines admit the same URL concurrently exactly one of
// them gets true.
func (v *VisitedSet) TryAdmit(pageURL string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.seen[pageURL]; ok {
		return false
	}
	v.seen[pageURL] = struct{}{}
	return true
}

// Contains reports whether pageURL has been admitted.
func (v *VisitedSet) Contains(pageURL string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	_, ok := v.seen[pageURL]
	return ok
}

// Len returns the number of admitted URLs.
func (v *VisitedSet) Len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.seen)
}
