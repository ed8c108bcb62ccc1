package catalog

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
)

// ErrOutOfRange is returned for positional reads outside the current bounds,
// or while the cache holds no valid snapshot.
var ErrOutOfRange = errors.New("catalog position out of range")

// State is the cache's lifecycle state
type State int

const (
	StateEmpty State = iota
	StateValid
	StateInvalidated
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateValid:
		return "valid"
	case StateInvalidated:
		return "invalidated"
	default:
		return "unknown"
	}
}

// view pairs a state with the snapshot it serves. Views are immutable; every
// transition stores a new one.
type view struct {
	state    State
	snapshot *Snapshot
}

var emptyView = &view{state: StateEmpty}

type observer struct {
	id int
	fn func()
}

// Cache serves positional reads over the most recently installed snapshot.
//
// Reads never take a lock. Install and Invalidate may be called from any
// goroutine; readers observe either the old or the new snapshot in full.
type Cache struct {
	current atomic.Pointer[view]

	mu        sync.Mutex // guards observers and nextObs
	observers []observer
	nextObs   int
}

// New returns a cache in the Empty state
func New() *Cache {
	c := &Cache{}
	c.current.Store(emptyView)
	return c
}

// Install makes snapshot the current catalog and notifies every observer.
// A nil snapshot is installed as an empty one.
func (c *Cache) Install(snapshot *Snapshot) {
	if snapshot == nil {
		snapshot = &Snapshot{}
	}
	c.current.Store(&view{state: StateValid, snapshot: snapshot})
	c.notify()
}

// Invalidate marks the current snapshot untrustworthy. Reads report no
// entries until the next Install. Observers are only notified on the
// transition into the Invalidated state.
func (c *Cache) Invalidate() {
	for {
		old := c.current.Load()
		if old.state == StateInvalidated {
			return
		}
		if c.current.CompareAndSwap(old, &view{state: StateInvalidated}) {
			c.notify()
			return
		}
	}
}

// State returns the current lifecycle state
func (c *Cache) State() State {
	return c.current.Load().state
}

// Current returns the snapshot serving reads, or nil when not Valid
func (c *Cache) Current() *Snapshot {
	v := c.current.Load()
	if v.state != StateValid {
		return nil
	}
	return v.snapshot
}

// Count returns the number of readable entries
func (c *Cache) Count() int {
	return c.Current().Len()
}

// EntryAt returns the entry at position. The error wraps ErrOutOfRange when
// position is outside [0, Count()) or the cache is not Valid.
func (c *Cache) EntryAt(position int) (Entry, error) {
	v := c.current.Load()
	if v.state != StateValid {
		log.Printf("[catalog] can't read position %d; dataset is %s", position, v.state)
		return Entry{}, fmt.Errorf("%w: position %d while %s", ErrOutOfRange, position, v.state)
	}
	e, ok := v.snapshot.At(position)
	if !ok {
		log.Printf("[catalog] can't read position %d; count is %d", position, v.snapshot.Len())
		return Entry{}, fmt.Errorf("%w: position %d of %d", ErrOutOfRange, position, v.snapshot.Len())
	}
	return e, nil
}

// StableID returns the durable ID of the entry at position, or NoID
func (c *Cache) StableID(position int) int64 {
	v := c.current.Load()
	if v.state != StateValid || position < 0 || position >= v.snapshot.Len() {
		return NoID
	}
	return v.snapshot.entries[position].ID
}

// Subscribe registers fn to be called after every full invalidation. fn runs
// synchronously on the goroutine that changed the cache. The returned
// function removes the registration.
func (c *Cache) Subscribe(fn func()) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextObs++
	id := c.nextObs
	c.observers = append(c.observers, observer{id: id, fn: fn})

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, o := range c.observers {
			if o.id == id {
				c.observers = append(c.observers[:i:i], c.observers[i+1:]...)
				return
			}
		}
	}
}

// Close drops the held snapshot and all observers. The cache returns to the
// Empty state and may be reused.
func (c *Cache) Close() {
	c.current.Store(emptyView)

	c.mu.Lock()
	c.observers = nil
	c.mu.Unlock()
}

// notify calls every observer outside the lock so callbacks may read the
// cache or unsubscribe.
func (c *Cache) notify() {
	c.mu.Lock()
	fns := make([]func(), len(c.observers))
	for i, o := range c.observers {
		fns[i] = o.fn
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}
