package bindiff

import (
	"sync"
	"sync/atomic"

	"github.com/binarydiff/matcher/config"
	"github.com/binarydiff/matcher/model"
	"github.com/binarydiff/matcher/step"
)

// Pair is one (primary, secondary) call-graph pair submitted to BatchRun.
// Both graphs must already have CalculateTopology run on them and on every
// attached FlowGraph, exactly as Diff requires. Label is an opaque
// caller-supplied identifier (e.g. a filename pair) echoed back on the
// matching BatchResult so results can be correlated with their input.
type Pair struct {
	Label     string
	Primary   *model.CallGraph
	Secondary *model.CallGraph
	Manual    []step.ManualAssignment
}

// BatchResult pairs a Pair's Label with the Diff outcome it produced.
type BatchResult struct {
	Label string
	*Result
}

// indexedPair threads a Pair's position in the caller's original slice
// through the queue so results can be written back in input order despite
// concurrent, out-of-order completion among workers.
type indexedPair struct {
	Pair
	index int
}

// queue is the workers' shared FIFO work list, protected by one mutex.
// Each worker owns its own call graphs, flow graphs, and fixed-point store
// (by construction: Diff allocates a fresh Store and MatchingContext per
// call), so apart from the mutex-guarded step-name interner the queue is the
// only shared mutable state.
type queue struct {
	mu    sync.Mutex
	items []indexedPair
	next  int
}

func (q *queue) pop() (indexedPair, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.next >= len(q.items) {
		return indexedPair{}, false
	}
	p := q.items[q.next]
	q.next++
	return p, true
}

// BatchRun runs every pair in pairs through Diff concurrently over a bounded
// worker pool, returning one BatchResult per pair in the same order pairs
// was given. quit, if non-nil, is checked by each worker between pairs —
// set it to true (e.g. from a SIGINT handler) to stop dispatching new pairs
// without aborting a diff already running; in-flight diffs run to
// completion.
// workers <= 0 is treated as 1.
func BatchRun(pairs []Pair, cfg config.Config, workers int, quit *atomic.Bool) []BatchResult {
	if workers <= 0 {
		workers = 1
	}
	if workers > len(pairs) {
		workers = len(pairs)
	}
	if workers == 0 {
		return nil
	}

	items := make([]indexedPair, len(pairs))
	for i, p := range pairs {
		items[i] = indexedPair{Pair: p, index: i}
	}
	q := &queue{items: items}

	results := make([]BatchResult, len(pairs))
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for {
				if quit != nil && quit.Load() {
					return
				}
				ip, ok := q.pop()
				if !ok {
					return
				}
				res := Diff(ip.Primary, ip.Secondary, cfg, ip.Manual)
				results[ip.index] = BatchResult{Label: ip.Label, Result: res}
			}
		}()
	}
	wg.Wait()

	return results
}
