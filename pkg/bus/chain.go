package bus

import (
	"sync"
	"sync/atomic"

	"github.com/fluxorio/actionbus/pkg/action"
)

// Next continues propagation to the rest of the interceptor chain. The
// terminal Next is the root link, which performs the fan-out.
type Next func(a *action.Action) (*action.Action, error)

// Interceptor inspects, replaces, or vetoes an action before delivery. It
// must call next to continue propagation: zero calls veto the action, one
// call is the common transform case, and calling it more than once fans the
// same publish into multiple deliveries (ordering across those deliveries is
// the interceptor's business).
type Interceptor func(a *action.Action, next Next) (*action.Action, error)

type chainEntry struct {
	id uint64
	fn Interceptor
}

// chain holds the interceptor sequence and its composed form. The composed
// function is rebuilt in full on every change and published atomically, so a
// dispatch that already captured a reference keeps executing the old
// composition to completion.
type chain struct {
	mu      sync.Mutex
	entries []chainEntry
	nextID  uint64
	active  atomic.Value // Next
	root    Next
}

func newChain(root Next) *chain {
	c := &chain{root: root}
	c.active.Store(root)
	return c
}

// add appends fn and rebuilds. Returns a handle for removal.
func (c *chain) add(fn Interceptor) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	c.entries = append(c.entries, chainEntry{id: c.nextID, fn: fn})
	c.rebuild()
	return c.nextID
}

// remove deletes the interceptor registered under id and rebuilds.
// Returns false when the handle is unknown.
func (c *chain) remove(id uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, e := range c.entries {
		if e.id == id {
			c.entries = append(c.entries[:i], c.entries[i+1:]...)
			c.rebuild()
			return true
		}
	}
	return false
}

// rebuild folds the sequence around the root link, innermost last, so the
// first-registered interceptor sees the action first and controls whether
// anything after it runs. Caller holds c.mu.
func (c *chain) rebuild() {
	next := c.root
	for i := len(c.entries) - 1; i >= 0; i-- {
		fn := c.entries[i].fn
		inner := next
		next = func(a *action.Action) (*action.Action, error) {
			return fn(a, inner)
		}
	}
	c.active.Store(next)
}

// head returns the currently published composition.
func (c *chain) head() Next {
	return c.active.Load().(Next)
}

// size returns the number of registered interceptors.
func (c *chain) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
