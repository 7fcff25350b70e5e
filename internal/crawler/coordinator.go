package crawler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// State is the lifecycle state of a Coordinator.
type State int32

const (
	// StateIdle is a coordinator that has not started.
	StateIdle State = iota
	// StateSeeding is processing the seed URL on the caller's goroutine.
	StateSeeding
	// StateDispatching is dequeuing URLs and submitting page tasks.
	StateDispatching
	// StateDraining is waiting on the barrier after the frontier ran empty.
	StateDraining
	// StateTerminated is a finished crawl.
	StateTerminated
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSeeding:
		return "seeding"
	case StateDispatching:
		return "dispatching"
	case StateDraining:
		return "draining"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// PageHandler processes one dequeued URL. It receives the crawl's shared
// frontier and visited set and must do its own admission check.
type PageHandler interface {
	Process(ctx context.Context, pageURL string, frontier *Frontier, visited *VisitedSet)
}

// panicRecorder is implemented by handlers that want to account for
// panics recovered by the coordinator.
type panicRecorder interface {
	RecordPanic(pageURL string, recovered any)
}

// RunResult describes how a Run ended.
type RunResult struct {
	// StartedAt is when seeding began.
	StartedAt time.Time

	// FinishedAt is when the coordinator terminated.
	FinishedAt time.Time

	// Visited is the final size of the visited set.
	Visited int

	// Dispatched is the number of tasks submitted to the pool, seed excluded.
	Dispatched int64

	// Drains is the number of completed barrier waits.
	Drains int

	// Cancelled is true when the context ended the crawl before the
	// frontier was exhausted.
	Cancelled bool
}

// Coordinator drives a crawl: it seeds the frontier, dispatches one task
// per dequeued URL to a bounded worker pool and detects quiescence.
type Coordinator struct {
	handler  PageHandler
	frontier *Frontier
	visited  *VisitedSet
	barrier  *Barrier

	workers          int
	logger           *slog.Logger
	progressOut      io.Writer
	progressInterval time.Duration

	state  atomic.Int32
	active atomic.Int64
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithWorkers caps the number of concurrent page tasks.
// Zero means unbounded.
func WithWorkers(n int) CoordinatorOption {
	return func(c *Coordinator) {
		if n >= 0 {
			c.workers = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) CoordinatorOption {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithProgress prints a progress line to w every interval.
// A zero interval or nil writer disables progress output.
func WithProgress(w io.Writer, interval time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		c.progressOut = w
		c.progressInterval = interval
	}
}

// NewCoordinator creates a coordinator for one crawl.
func NewCoordinator(handler PageHandler, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		handler:  handler,
		frontier: NewFrontier(),
		visited:  NewVisitedSet(),
		barrier:  NewBarrier(),
		workers:  16,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current lifecycle state.
func (c *Coordinator) State() State {
	return State(c.state.Load())
}

// Frontier returns the crawl's frontier.
func (c *Coordinator) Frontier() *Frontier {
	return c.frontier
}

// Visited returns the crawl's visited set.
func (c *Coordinator) Visited() *VisitedSet {
	return c.visited
}

// Active returns the number of page tasks currently running.
func (c *Coordinator) Active() int64 {
	return c.active.Load()
}

func (c *Coordinator) setState(s State) {
	prev := State(c.state.Swap(int32(s)))
	if prev != s {
		c.logger.Debug("coordinator state changed", "from", prev, "to", s)
	}
}

// Run crawls from seed until the frontier is exhausted or ctx is done.
// A Coordinator can run once.
//
// The seed is processed on the caller's goroutine. After that every
// dequeued URL becomes one pool task. When the frontier is empty the
// coordinator waits for all outstanding tasks and checks again; the crawl
// ends only if it is still empty. Cancellation stops dispatching, but
// outstanding tasks are always waited for before Run returns.
func (c *Coordinator) Run(ctx context.Context, seed string) (RunResult, error) {
	if seed == "" {
		return RunResult{}, ErrEmptySeed
	}
	if !c.state.CompareAndSwap(int32(StateIdle), int32(StateSeeding)) {
		return RunResult{}, ErrAlreadyRun
	}

	result := RunResult{StartedAt: time.Now()}
	c.logger.Debug("coordinator state changed", "from", StateIdle, "to", StateSeeding)

	stopProgress := c.startProgress()
	defer stopProgress()

	c.runTask(ctx, seed)

	var g errgroup.Group
	if c.workers > 0 {
		g.SetLimit(c.workers)
	}

	c.setState(StateDispatching)
	for {
		if ctx.Err() != nil {
			result.Cancelled = true
			c.logger.Warn("crawl cancelled", "pending", c.frontier.Len(), "active", c.active.Load())
			break
		}

		if pageURL, ok := c.frontier.Dequeue(); ok {
			c.barrier.Register()
			c.active.Add(1)
			result.Dispatched++
			g.Go(func() error {
				defer c.barrier.Arrive()
				defer c.active.Add(-1)
				c.runTask(ctx, pageURL)
				return nil
			})
			continue
		}

		c.setState(StateDraining)
		c.barrier.Await()
		result.Drains++
		if c.frontier.Len() == 0 {
			break
		}
		c.setState(StateDispatching)
	}

	c.barrier.Await()
	_ = g.Wait() // tasks never return errors

	result.FinishedAt = time.Now()
	result.Visited = c.visited.Len()
	c.setState(StateTerminated)

	c.logger.Debug("crawl finished",
		"visited", result.Visited,
		"dispatched", result.Dispatched,
		"drains", result.Drains,
		"cancelled", result.Cancelled,
	)
	return result, nil
}

// runTask runs the handler for one URL and contains any panic.
func (c *Coordinator) runTask(ctx context.Context, pageURL string) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("page task panicked", "url", pageURL, "panic", r)
			if pr, ok := c.handler.(panicRecorder); ok {
				pr.RecordPanic(pageURL, r)
			}
		}
	}()
	c.handler.Process(ctx, pageURL, c.frontier, c.visited)
}
