package task

import "sync"

// inflight gates one completion toggle per task at a time.
type inflight struct {
	mu sync.Mutex
	m  map[uint64]struct{}
}

func (f *inflight) acquire(id uint64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.m == nil {
		f.m = map[uint64]struct{}{}
	}
	if _, busy := f.m[id]; busy {
		return false
	}
	f.m[id] = struct{}{}
	return true
}

func (f *inflight) release(id uint64) {
	f.mu.Lock()
	delete(f.m, id)
	f.mu.Unlock()
}
