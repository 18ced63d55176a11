package policy

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
)

// Registry holds the current Table. Readers never block; Reload swaps in a
// freshly built table so in-flight requests keep the one they started with.
type Registry struct {
	current atomic.Pointer[Table]
	mu      sync.Mutex
}

// NewRegistry creates a registry serving t.
func NewRegistry(t *Table) *Registry {
	r := &Registry{}
	r.current.Store(t)
	return r
}

// Current returns the active table.
func (r *Registry) Current() *Table {
	return r.current.Load()
}

// Resolve is shorthand for Current().Resolve(code).
func (r *Registry) Resolve(code string) *Policy {
	return r.Current().Resolve(code)
}

// ErrNoTable is returned by Reload when the loader yields a nil table.
var ErrNoTable = errors.New("policy loader returned no table")

// Reload builds a new table with load and makes it current. On error the
// previous table stays active.
func (r *Registry) Reload(load func() (*Table, error)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, err := load()
	if err != nil {
		return err
	}
	if t == nil {
		return ErrNoTable
	}
	r.current.Store(t)
	return nil
}

// ReloadOn calls Reload each time trigger fires until ctx is done or
// trigger is closed. done, if non-nil, receives the outcome of every
// reload.
func (r *Registry) ReloadOn(ctx context.Context, trigger <-chan os.Signal, load func() (*Table, error), done func(error)) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-trigger:
			if !ok {
				return
			}
			err := r.Reload(load)
			if done != nil {
				done(err)
			}
		}
	}
}
