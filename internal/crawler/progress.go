package crawler

import (
	"fmt"
	"sync"
	"time"
)

// startProgress starts the periodic progress line and returns a function
// that stops it and waits for the reporter goroutine to exit.
func (c *Coordinator) startProgress() func() {
	if c.progressOut == nil || c.progressInterval <= 0 {
		return func() {}
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(c.progressInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				c.reportProgress()
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			wg.Wait()
		})
	}
}

// reportProgress writes one progress line.
func (c *Coordinator) reportProgress() {
	visited, pending, active := c.visited.Len(), c.frontier.Len(), c.active.Load()
	fmt.Fprintf(c.progressOut, "[%s] visited: %d, pending: %d, active: %d\n",
		c.State(), visited, pending, active)
	c.logger.Debug("crawl progress", "visited", visited, "pending", pending, "active", active)
}
