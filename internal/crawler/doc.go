// Package crawler mirrors a web site with a bounded pool of concurrent
// page tasks.
//
// # Components
//
//   - Frontier: FIFO of discovered URLs, duplicates allowed
//   - VisitedSet: every URL ever admitted; admission is first-insert-wins
//   - Barrier: generation-counted rendezvous the coordinator drains on
//   - Coordinator: seeds, dispatches one task per dequeued URL and detects
//     when the crawl is finished
//   - Processor: the per-URL task; admit, fetch, persist, extract, enqueue
//   - HTTPFetcher and Parser: the network and HTML collaborators
//
// # Termination
//
// The frontier being empty does not mean the crawl is done: a task still in
// flight may be about to enqueue new links. Whenever the coordinator sees an
// empty frontier it waits on the barrier until every dispatched task has
// arrived and only then looks at the frontier again. The crawl ends when the
// frontier is still empty after such a drain.
//
// # Usage
//
//	proc := crawler.NewProcessor(fetcher, crawler.NewParser(), writer,
//		crawler.WithPrefix("https://books.toscrape.com/"))
//	coord := crawler.NewCoordinator(proc, crawler.WithWorkers(16))
//	run, err := coord.Run(ctx, "https://books.toscrape.com/")
//	summary := proc.Summary(run)
package crawler
