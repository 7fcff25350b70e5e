package crawler

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
)

// TestFrontier tests FIFO behavior.
func TestFrontier(t *testing.T) {
	t.Parallel()

	t.Run("empty dequeue does not block", func(t *testing.T) {
		t.Parallel()

		f := NewFrontier()
		if got, ok := f.Dequeue(); ok || got != "" {
			t.Errorf("expected empty dequeue, got %q, %v", got, ok)
		}
		if f.Len() != 0 {
			t.Errorf("expected length 0, got %d", f.Len())
		}
	})

	t.Run("preserves order and duplicates", func(t *testing.T) {
		t.Parallel()

		f := NewFrontier()
		in := []string{"a", "b", "a", "c"}
		for _, u := range in {
			f.Enqueue(u)
		}
		if f.Len() != len(in) {
			t.Fatalf("expected length %d, got %d", len(in), f.Len())
		}
		for i, want := range in {
			got, ok := f.Dequeue()
			if !ok || got != want {
				t.Errorf("dequeue %d: got %q, %v; want %q", i, got, ok, want)
			}
		}
		if _, ok := f.Dequeue(); ok {
			t.Error("expected frontier to be empty")
		}
	})

	t.Run("interleaved use across compaction", func(t *testing.T) {
		t.Parallel()

		f := NewFrontier()
		next := 0
		for i := range 5000 {
			f.Enqueue(fmt.Sprint(i))
			f.Enqueue(fmt.Sprint(i) + "b")
			got, ok := f.Dequeue()
			if !ok {
				t.Fatalf("unexpected empty frontier at %d", i)
			}
			want := fmt.Sprint(next / 2)
			if next%2 == 1 {
				want += "b"
			}
			if got != want {
				t.Fatalf("step %d: got %q, want %q", i, got, want)
			}
			next++
		}
		if f.Len() != 5000 {
			t.Errorf("expected 5000 pending, got %d", f.Len())
		}
	})

	t.Run("concurrent producers and consumers lose nothing", func(t *testing.T) {
		t.Parallel()

		f := NewFrontier()
		const producers, perProducer = 8, 500
		var produced sync.WaitGroup
		for p := range producers {
			produced.Add(1)
			go func() {
				defer produced.Done()
				for i := range perProducer {
					f.Enqueue(fmt.Sprintf("%d-%d", p, i))
				}
			}()
		}

		var consumed atomic.Int64
		done := make(chan struct{})
		var consumers sync.WaitGroup
		for range 4 {
			consumers.Add(1)
			go func() {
				defer consumers.Done()
				for {
					if _, ok := f.Dequeue(); ok {
						consumed.Add(1)
						continue
					}
					select {
					case <-done:
						return
					default:
					}
				}
			}()
		}

		produced.Wait()
		close(done)
		consumers.Wait()
		for {
			if _, ok := f.Dequeue(); !ok {
				break
			}
			consumed.Add(1)
		}

		if consumed.Load() != producers*perProducer {
			t.Errorf("expected %d items, got %d", producers*perProducer, consumed.Load())
		}
	})
}

// TestVisitedSet tests admission.
func TestVisitedSet(t *testing.T) {
	t.Parallel()

	t.Run("first admission wins", func(t *testing.T) {
		t.Parallel()

		v := NewVisitedSet()
		if !v.TryAdmit("https://example.com/") {
			t.Error("expected first admission to succeed")
		}
		if v.TryAdmit("https://example.com/") {
			t.Error("expected second admission to fail")
		}
		if !v.Contains("https://example.com/") {
			t.Error("expected URL to be contained")
		}
		if v.Len() != 1 {
			t.Errorf("expected length 1, got %d", v.Len())
		}
	})

	t.Run("no canonicalization", func(t *testing.T) {
		t.Parallel()

		v := NewVisitedSet()
		for _, u := range []string{
			"https://example.com",
			"https://example.com/",
			"https://example.com/?a=1&b=2",
			"https://example.com/?b=2&a=1",
			"https://example.com/#top",
		} {
			if !v.TryAdmit(u) {
				t.Errorf("expected %q to be a distinct URL", u)
			}
		}
	})

	t.Run("concurrent admission has exactly one winner", func(t *testing.T) {
		t.Parallel()

		v := NewVisitedSet()
		const goroutines = 64
		var winners atomic.Int64
		var wg sync.WaitGroup
		start := make(chan struct{})
		for range goroutines {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				for i := range 100 {
					if v.TryAdmit(fmt.Sprintf("https://example.com/%d", i)) {
						winners.Add(1)
					}
				}
			}()
		}
		close(start)
		wg.Wait()

		if winners.Load() != 100 {
			t.Errorf("expected 100 winners, got %d", winners.Load())
		}
		if v.Len() != 100 {
			t.Errorf("expected 100 entries, got %d", v.Len())
		}
	})
}
