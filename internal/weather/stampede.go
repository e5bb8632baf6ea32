package weather

import (
	"sync"
)

// stampedeTracker counts in-flight cache misses per ZIP. More than one concurrent miss for
// the same ZIP is a stampede; singleflight collapses the upstream call, this only measures it.
type stampedeTracker struct {
	mu     sync.Mutex
	active map[string]int
}

func newStampedeTracker() *stampedeTracker {
	return &stampedeTracker{
		active: make(map[string]int),
	}
}

// Miss records a miss for key and returns the concurrent miss count including this one.
// Callers must call Done(key) once the miss is resolved.
func (st *stampedeTracker) Miss(key string) int {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.active[key]++
	return st.active[key]
}

// Done marks one miss for key as resolved.
func (st *stampedeTracker) Done(key string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if count, ok := st.active[key]; ok && count > 0 {
		st.active[key]--
		if st.active[key] == 0 {
			delete(st.active, key)
		}
	}
}

// Active returns the number of unresolved misses for key.
func (st *stampedeTracker) Active(key string) int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.active[key]
}
