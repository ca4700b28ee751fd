package pipeline

import "sync"

// reportLocks serializes pipeline runs per report id. Concurrent regenerate
// requests for one report queue behind each other instead of racing on the
// stored artifacts; different reports proceed independently.
type reportLocks struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newReportLocks() *reportLocks {
	return &reportLocks{locks: map[string]*lockEntry{}}
}

// Acquire blocks until the report's lock is held and returns the release
// function. Entries are dropped once the last holder releases.
func (r *reportLocks) Acquire(id string) func() {
	r.mu.Lock()
	entry, ok := r.locks[id]
	if !ok {
		entry = &lockEntry{}
		r.locks[id] = entry
	}
	entry.refs++
	r.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		r.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(r.locks, id)
		}
		r.mu.Unlock()
	}
}
