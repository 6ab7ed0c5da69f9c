package transport

import (
	"math"
	"sync"
)

// Tracker counts accepted-but-unsettled deliveries and collects the
// failures among them. The zero value is not usable; use NewTracker.
type Tracker struct {
	mu       sync.Mutex
	inFlight uint64
	errs     []error
	idle     chan struct{} // closed while inFlight == 0
}

func NewTracker() *Tracker {
	idle := make(chan struct{})
	close(idle)
	return &Tracker{idle: idle}
}

// RecordEnqueued counts one more unsettled delivery. A limit of zero
// disables the capacity check.
func (t *Tracker) RecordEnqueued(limit uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.inFlight == math.MaxUint64 {
		return ErrMaxQueueDepthExceeded
	}
	if limit > 0 && t.inFlight >= limit {
		return ErrQueueFull
	}
	if t.inFlight == 0 {
		t.idle = make(chan struct{})
	}
	t.inFlight++
	return nil
}

// Cancel undoes a RecordEnqueued whose enqueue did not happen.
func (t *Tracker) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	_ = t.decrement()
}

// RecordSettled marks one delivery finished. A non-nil err is kept for
// DrainErrors. Settling with nothing in flight returns
// ErrQueueDepthOutOfSync and leaves the count at zero.
func (t *Tracker) RecordSettled(err error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err != nil {
		t.errs = append(t.errs, err)
	}
	return t.decrement()
}

func (t *Tracker) decrement() error {
	if t.inFlight == 0 {
		return ErrQueueDepthOutOfSync
	}
	t.inFlight--
	if t.inFlight == 0 {
		close(t.idle)
	}
	return nil
}

// Abandon settles everything still in flight as a network failure caused
// by cause and returns how many deliveries were abandoned. It is used once
// the worker has exited and nothing else will settle them.
func (t *Tracker) Abandon(cause error) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := t.inFlight
	for i := uint64(0); i < n; i++ {
		t.errs = append(t.errs, &DeliveryError{Kind: ErrNetwork, Cause: cause})
	}
	if n > 0 {
		t.inFlight = 0
		close(t.idle)
	}
	return n
}

// Idle returns a channel that is closed once nothing is in flight. The
// channel is replaced when the count next leaves zero, so callers should
// fetch it right before waiting.
func (t *Tracker) Idle() <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.idle
}

// DrainErrors returns the recorded failures and clears the list.
func (t *Tracker) DrainErrors() []error {
	t.mu.Lock()
	defer t.mu.Unlock()
	errs := t.errs
	t.errs = nil
	return errs
}

func (t *Tracker) InFlight() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inFlight
}
