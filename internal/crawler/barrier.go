package crawler

import "sync"

// Barrier is a reusable rendezvous for a dynamically sized group of tasks.
//
// The coordinator calls Register before dispatching a task and the task
// calls Arrive exactly once when it finishes. Await blocks until every
// registered task has arrived. Each time the outstanding count drops to
// zero the generation advances, so the same Barrier serves every drain
// cycle of a crawl.
type Barrier struct {
	mu         sync.Mutex
	cond       *sync.Cond
	pending    int
	generation uint64
}

// NewBarrier creates a barrier with no outstanding tasks.
func NewBarrier() *Barrier {
	b := &Barrier{}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Register adds one outstanding task.
func (b *Barrier) Register() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending++
}

// Arrive marks one outstanding task as finished.
// It panics when called more often than Register.
func (b *Barrier) Arrive() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.pending == 0 {
		panic("crawler: barrier arrival without registration")
	}
	b.pending--
	if b.pending == 0 {
		b.generation++
		b.cond.Broadcast()
	}
}

// Await blocks until no task is outstanding and returns the current
// generation. It returns immediately when nothing is registered.
func (b *Barrier) Await() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	for b.pending > 0 {
		b.cond.Wait()
	}
	return b.generation
}

// Pending returns the number of outstanding tasks.
func (b *Barrier) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pending
}

// Generation returns how many times the outstanding count has dropped to zero.
func (b *Barrier) Generation() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.generation
}
