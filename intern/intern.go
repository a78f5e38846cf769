// Package intern provides a process-wide string interner for matching-step
// names. Step names are compared by identity throughout the matcher (the
// fixed-point store, the histogram, and the report writers all key off the
// same *string handle rather than re-comparing byte strings), so every step
// name must flow through String once.
//
// The interner is one process-wide map guarded by a mutex. The core is
// single-threaded per diff, but the batch driver runs several diffs on
// separate goroutines, and each of them interns step names as it commits
// fixed points, so every lookup and insertion takes the lock.
package intern

import "sync"

var (
	mu    sync.Mutex
	table = map[string]*string{}
)

// String returns a stable handle for s: repeated calls with an equal s
// return the identical *string pointer.
func String(s string) *string {
	mu.Lock()
	defer mu.Unlock()
	if p, ok := table[s]; ok {
		return p
	}
	p := new(string)
	*p = s
	table[s] = p
	return p
}

// WarmUp interns every name in names, ahead of any concurrent use.
func WarmUp(names ...string) {
	for _, n := range names {
		String(n)
	}
}
