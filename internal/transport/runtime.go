package transport

import (
	"sync"

	"golang.org/x/sync/errgroup"
)

// Runtime runs delivery workers for one or more transports. It is reference
// counted: each Transport acquires it in New and releases it once closed.
// After the last release the runtime cannot be acquired again.
type Runtime struct {
	mu     sync.Mutex
	refs   int
	closed bool
	g      errgroup.Group
}

func NewRuntime() *Runtime {
	return &Runtime{}
}

func (r *Runtime) Acquire() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRuntimeClosed
	}
	r.refs++
	return nil
}

// Go starts fn on the runtime.
func (r *Runtime) Go(fn func() error) {
	r.g.Go(fn)
}

// Release drops one reference. The last release closes the runtime and
// waits for every goroutine started with Go, returning the first error.
func (r *Runtime) Release() error {
	r.mu.Lock()
	if r.closed || r.refs == 0 {
		r.mu.Unlock()
		return nil
	}
	r.refs--
	if r.refs > 0 {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	return r.g.Wait()
}

func (r *Runtime) Refs() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.refs
}
