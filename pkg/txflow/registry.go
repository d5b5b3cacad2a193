package txflow

import "sync"

const defaultRegistrySize = 256

// Registry keeps recent lifecycles addressable by id. When full, the oldest
// finished lifecycle is evicted; running ones are never dropped.
type Registry struct {
	mu    sync.RWMutex
	max   int
	byID  map[string]*Lifecycle
	order []string
}

func NewRegistry(max int) *Registry {
	if max <= 0 {
		max = defaultRegistrySize
	}
	return &Registry{max: max, byID: make(map[string]*Lifecycle)}
}

func (r *Registry) add(lc *Lifecycle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[lc.ID()] = lc
	r.order = append(r.order, lc.ID())
	for len(r.order) > r.max {
		if !r.evictOne() {
			break
		}
	}
}

func (r *Registry) evictOne() bool {
	for i, id := range r.order {
		if r.byID[id].State().Terminal() {
			delete(r.byID, id)
			r.order = append(r.order[:i], r.order[i+1:]...)
			return true
		}
	}
	return false
}

func (r *Registry) Get(id string) (*Lifecycle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	lc, ok := r.byID[id]
	return lc, ok
}

// Recent returns up to n snapshots, newest first.
func (r *Registry) Recent(n int) []Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Snapshot
	for i := len(r.order) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, r.byID[r.order[i]].Snapshot())
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
