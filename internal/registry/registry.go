// Package registry implements the Process Registry (REG) of spec.md §4.4:
// the shared name -> Child Handle map and its concurrency discipline.
package registry

import (
	"errors"
	"sync"

	"github.com/averyln/procsuper/internal/childproc"
	"github.com/averyln/procsuper/internal/model"
)

// ErrAlreadyExists is returned by Insert when name is currently live.
var ErrAlreadyExists = errors.New("process already exists")

// Registry is the single coarse-locked map from process name to its live
// Handle. No child-owned I/O happens while mu is held (spec.md §4.4, §5).
type Registry struct {
	mu      sync.Mutex
	cond    *sync.Cond
	entries map[model.ProcessName]*childproc.Handle
}

// New creates an empty Registry.
func New() *Registry {
	r := &Registry{entries: make(map[model.ProcessName]*childproc.Handle)}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// Insert adds h under name. If a live handle (ExitObserved()==false) already
// occupies name, it fails ErrAlreadyExists. If the occupying handle has
// already had its exit observed but not yet been swept, Insert blocks until
// the sweep completes (spec.md §4.4's "insert waits for sweep"), then
// proceeds — this is what lets spec.md I4 hold without a retry loop at the
// call site.
func (r *Registry) Insert(name model.ProcessName, h *childproc.Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for {
		existing, ok := r.entries[name]
		if !ok {
			r.entries[name] = h
			return nil
		}
		if !existing.ExitObserved() {
			return ErrAlreadyExists
		}
		r.cond.Wait()
	}
}

// Get returns the handle stored under name, if any, whether or not its exit
// has already been observed.
func (r *Registry) Get(name model.ProcessName) (*childproc.Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.entries[name]
	return h, ok
}

// Remove drops name from the map, but only if the currently stored handle
// is still h — guarding against removing a newer process that reused the
// name after this h was already swept. Called by the reaper's onSwept hook
// (spec.md I4).
func (r *Registry) Remove(name model.ProcessName, h *childproc.Handle) {
	r.mu.Lock()
	if cur, ok := r.entries[name]; ok && cur == h {
		delete(r.entries, name)
	}
	r.cond.Broadcast()
	r.mu.Unlock()
}

// Snapshot returns a ProcessInfo for every current entry (spec.md P6).
func (r *Registry) Snapshot() []model.ProcessInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.ProcessInfo, 0, len(r.entries))
	for name, h := range r.entries {
		out = append(out, model.ProcessInfo{
			Name:    name,
			PID:     h.PID(),
			Running: !h.ExitObserved(),
		})
	}
	return out
}

// Drain returns a consistent snapshot of every stored handle (including any
// whose exit is observed but not yet swept), for kill_all to
// iterate and signal without holding the registry mutex during I/O. It does
// not remove anything — removal still flows through the normal sweep path
// so I2/I4 continue to hold during a kill_all.
func (r *Registry) Drain() []*childproc.Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*childproc.Handle, 0, len(r.entries))
	for _, h := range r.entries {
		out = append(out, h)
	}
	return out
}
