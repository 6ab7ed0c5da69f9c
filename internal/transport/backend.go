package transport

import (
	"sync"
)

// Backend is the dispatch queue between Send and the delivery worker.
type Backend interface {
	// Enqueue never blocks for deliver messages. Deliver after shutdown
	// fails with ErrClosed; a second shutdown fails with ErrAlreadyShutdown.
	Enqueue(Message) error
	// RunWorker hands messages to handle one at a time, in enqueue order,
	// and returns once the shutdown sentinel is reached.
	RunWorker(handle func(Message)) error
}

// memoryBackend is a bounded in-process channel. One slot beyond capacity
// is kept free for the shutdown sentinel.
type memoryBackend struct {
	queue    chan Message
	capacity int

	mu     sync.Mutex
	closed bool
}

func newMemoryBackend(capacity int) *memoryBackend {
	return &memoryBackend{
		queue:    make(chan Message, capacity+1),
		capacity: capacity,
	}
}

func (b *memoryBackend) Enqueue(m Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		if m.IsShutdown() {
			return ErrAlreadyShutdown
		}
		return ErrClosed
	}

	if m.IsShutdown() {
		b.closed = true
		b.queue <- m // the reserved slot is always free here
		return nil
	}

	if len(b.queue) >= b.capacity {
		return ErrQueueFull
	}
	select {
	case b.queue <- m:
		return nil
	default:
		return ErrQueueFull
	}
}

func (b *memoryBackend) RunWorker(handle func(Message)) error {
	for m := range b.queue {
		if m.IsShutdown() {
			return nil
		}
		handle(m)
	}
	return nil
}

func (b *memoryBackend) depth() int {
	return len(b.queue)
}

var _ Backend = (*memoryBackend)(nil)
