// Package transport delivers items to the collector asynchronously. Send
// enqueues without blocking; a single worker POSTs items in order; Shutdown
// waits for everything accepted so far to settle and reports the failures.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/austindbirch/rollbar_relay/internal/item"
	"github.com/austindbirch/rollbar_relay/internal/logging"
	"github.com/austindbirch/rollbar_relay/internal/metrics"
)

type State int32

const (
	StateActive State = iota
	StateShuttingDown
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateShuttingDown:
		return "shutting_down"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

type options struct {
	runtime *Runtime
	client  *http.Client
	backend Backend
	logger  *logging.Logger
}

type Option func(*options)

// WithRuntime runs the worker on a shared runtime instead of a private one.
func WithRuntime(r *Runtime) Option {
	return func(o *options) { o.runtime = r }
}

func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.client = c }
}

// WithBackend replaces the backend selected by Config.Backend.
func WithBackend(b Backend) Option {
	return func(o *options) { o.backend = b }
}

func WithLogger(l *logging.Logger) Option {
	return func(o *options) { o.logger = l }
}

type Transport struct {
	cfg     Config
	backend Backend
	tracker *Tracker
	runtime *Runtime
	logger  *logging.Logger

	mu        sync.Mutex
	state     State
	workerErr error

	// closed once the worker's RunWorker has returned
	workerDone chan struct{}
}

// backendCloser is implemented by backends holding connections that must be
// released when the worker never starts or cannot finish on its own.
type backendCloser interface {
	close()
}

// backendConnector is implemented by backends that can fail to reach their
// broker; New connects them before returning.
type backendConnector interface {
	connect(handle func(Message)) error
}

func closeBackend(b Backend) {
	if c, ok := b.(backendCloser); ok {
		c.close()
	}
}

// New validates cfg, starts the delivery worker and returns a Transport in
// the active state.
func New(cfg Config, opts ...Option) (*Transport, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logging.New("rollbar-transport").SetLevel(logging.LevelInfo)
	}
	if o.client == nil {
		o.client = &http.Client{Timeout: cfg.HTTPTimeout}
	}
	if o.backend == nil {
		b, err := newBackend(cfg, o.logger)
		if err != nil {
			return nil, err
		}
		o.backend = b
	}
	if o.runtime == nil {
		o.runtime = NewRuntime()
	}
	if err := o.runtime.Acquire(); err != nil {
		closeBackend(o.backend)
		return nil, fmt.Errorf("%w: %w", ErrRuntimeCreation, err)
	}

	t := &Transport{
		cfg:        cfg,
		backend:    o.backend,
		tracker:    NewTracker(),
		runtime:    o.runtime,
		logger:     o.logger,
		workerDone: make(chan struct{}),
	}

	w := &worker{
		endpoint:    cfg.Endpoint,
		accessToken: cfg.AccessToken,
		client:      o.client,
		tracker:     t.tracker,
		logger:      o.logger,
	}
	if c, ok := o.backend.(backendConnector); ok {
		if err := c.connect(w.handle); err != nil {
			closeBackend(o.backend)
			_ = o.runtime.Release()
			return nil, err
		}
	}

	o.runtime.Go(func() error {
		err := t.backend.RunWorker(w.handle)
		t.mu.Lock()
		t.workerErr = err
		t.mu.Unlock()
		close(t.workerDone)
		if err != nil {
			t.logger.Plain().WithError(err).Error("delivery worker stopped")
			return err
		}
		return nil
	})

	t.logger.Plain().WithEndpoint(cfg.Endpoint).WithFields(map[string]any{
		"backend":  cfg.Backend,
		"capacity": cfg.QueueCapacity,
	}).Info("transport started")
	return t, nil
}

func newBackend(cfg Config, logger *logging.Logger) (Backend, error) {
	switch cfg.Backend {
	case BackendNSQ:
		return newNSQBackend(cfg.NSQ, logger)
	default:
		return newMemoryBackend(cfg.QueueCapacity), nil
	}
}

// Send enqueues it for delivery. It never blocks on the network and fails
// with ErrQueueFull when QueueCapacity items are already unsettled, or with
// ErrClosed once Shutdown has been called.
func (t *Transport) Send(it item.Item) error {
	return t.SendContext(context.Background(), it)
}

// SendContext is Send with the trace context of ctx carried to the delivery.
func (t *Transport) SendContext(ctx context.Context, it item.Item) error {
	if t.State() != StateActive {
		metrics.RecordRejected("closed")
		return ErrClosed
	}
	if err := t.workerStopped(); err != nil {
		metrics.RecordRejected(rejectReason(err))
		return err
	}

	if err := it.Validate(); err != nil {
		metrics.RecordRejected("encode")
		return fmt.Errorf("%w: %w", ErrEncode, err)
	}
	payload, err := json.Marshal(it)
	if err != nil {
		metrics.RecordRejected("encode")
		return fmt.Errorf("%w: %w", ErrEncode, err)
	}

	if err := t.tracker.RecordEnqueued(uint64(t.cfg.QueueCapacity)); err != nil {
		metrics.RecordRejected(rejectReason(err))
		return err
	}
	if err := t.backend.Enqueue(newDeliver(ctx, payload)); err != nil {
		t.tracker.Cancel()
		metrics.RecordRejected(rejectReason(err))
		if errors.Is(err, ErrAlreadyShutdown) {
			return ErrClosed
		}
		return err
	}
	metrics.RecordEnqueued()
	return nil
}

// Shutdown stops accepting items and waits until every accepted item has
// settled. Only ctx bounds the wait; on expiry it returns ErrShutdownTimeout
// and a later call may wait again. Config.ShutdownTimeout bounds the runtime
// release that follows the drain. Delivery failures are returned as a
// *ShutdownError. Calling Shutdown on a closed transport returns nil.
func (t *Transport) Shutdown(ctx context.Context) error {
	t.mu.Lock()
	switch t.state {
	case StateClosed:
		t.mu.Unlock()
		return nil
	case StateActive:
		t.state = StateShuttingDown
		if err := t.backend.Enqueue(shutdownMessage()); err != nil && !errors.Is(err, ErrAlreadyShutdown) {
			t.logger.Plain().WithError(err).Error("failed to enqueue shutdown sentinel")
		}
	}
	t.mu.Unlock()

	select {
	case <-t.tracker.Idle():
	case <-t.workerDone:
		// items the worker will never see again
		if n := t.tracker.Abandon(t.workerStopped()); n > 0 {
			t.logger.Plain().WithField("abandoned", n).Warn("delivery worker exited with items in flight")
		}
	case <-ctx.Done():
		inFlight := t.tracker.InFlight()
		t.logger.Plain().WithField("in_flight", inFlight).Warn("shutdown timed out")
		return fmt.Errorf("%w: %d items in flight", ErrShutdownTimeout, inFlight)
	}

	t.mu.Lock()
	if t.state == StateClosed {
		t.mu.Unlock()
		return nil
	}
	t.state = StateClosed
	t.mu.Unlock()

	errs := t.tracker.DrainErrors()
	t.releaseRuntime(ctx)

	if len(errs) > 0 {
		se := newShutdownError(errs)
		t.logger.Plain().WithError(se.combined).WithField("errors", len(errs)).Warn("transport closed with delivery errors")
		return se
	}
	t.logger.Plain().Info("transport closed")
	return nil
}

// workerStopped returns a non-nil error once the delivery worker has exited.
func (t *Transport) workerStopped() error {
	select {
	case <-t.workerDone:
	default:
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.workerErr != nil {
		return fmt.Errorf("%w: %w", ErrWorkerStopped, t.workerErr)
	}
	return ErrWorkerStopped
}

// releaseRuntime drops this transport's runtime reference. The last
// release waits for the workers, bounded by ctx and Config.ShutdownTimeout.
func (t *Transport) releaseRuntime(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, t.cfg.ShutdownTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- t.runtime.Release() }()

	select {
	case err := <-done:
		if err != nil {
			t.logger.Plain().WithError(err).Warn("runtime released with worker error")
		}
	case <-ctx.Done():
		t.logger.Plain().Warn("delivery worker still running after shutdown")
	}
}

func (t *Transport) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// InFlight reports items accepted but not yet settled.
func (t *Transport) InFlight() uint64 {
	return t.tracker.InFlight()
}

// Ping reports whether the transport accepts items. A queue backed by nsqd
// is also checked for reachability.
func (t *Transport) Ping(ctx context.Context) error {
	if t.State() != StateActive {
		return ErrClosed
	}
	if err := t.workerStopped(); err != nil {
		return err
	}
	p, ok := t.backend.(interface{ ping() error })
	if !ok {
		return nil
	}
	done := make(chan error, 1)
	go func() { done <- p.ping() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
