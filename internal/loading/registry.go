package loading

import (
	"sort"
	"sync"
)

// Registry tracks which keyed operations are in flight.
// A key that was never set reads as not loading.
//
// Keys are independent: two operations sharing a key race, and whichever
// finishes first clears the flag for both.
type Registry struct {
	mu    sync.RWMutex
	flags map[string]bool
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{flags: make(map[string]bool)}
}

// IsLoading reports the flag for key
func (r *Registry) IsLoading(key string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.flags[key]
}

// Any reports whether at least one key is loading
func (r *Registry) Any() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, v := range r.flags {
		if v {
			return true
		}
	}
	return false
}

// Active returns the keys currently loading, sorted
func (r *Registry) Active() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.flags))
	for k, v := range r.flags {
		if v {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// SetLoading sets the flag for key
func (r *Registry) SetLoading(key string, value bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.flags == nil {
		r.flags = make(map[string]bool)
	}
	r.flags[key] = value
}

// Start marks key as loading
func (r *Registry) Start(key string) { r.SetLoading(key, true) }

// Stop marks key as not loading
func (r *Registry) Stop(key string) { r.SetLoading(key, false) }

// Reset clears all entries
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flags = make(map[string]bool)
}

// Run marks key as loading for the duration of op.
// The flag is cleared on every exit path, including a panic, and op's error
// is returned as is.
func (r *Registry) Run(key string, op func() error) error {
	r.Start(key)
	defer r.Stop(key)
	return op()
}

// WithLoading is Run for operations that produce a value
func WithLoading[T any](r *Registry, key string, op func() (T, error)) (T, error) {
	r.Start(key)
	defer r.Stop(key)
	return op()
}
