package transport

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/multierr"
)

// Capacity and lifecycle errors, returned synchronously by New, Send and Shutdown.
var (
	ErrQueueFull             = errors.New("queue full")
	ErrClosed                = errors.New("transport closed")
	ErrAlreadyShutdown       = errors.New("transport already shut down")
	ErrRuntimeCreation       = errors.New("failed to start delivery runtime")
	ErrRuntimeClosed         = errors.New("runtime closed")
	ErrQueueDepthOutOfSync   = errors.New("queue depth out of sync")
	ErrMaxQueueDepthExceeded = errors.New("max queue depth exceeded")
	ErrShutdownTimeout       = errors.New("shutdown timed out")
	ErrInvalidConfig         = errors.New("invalid config")
	ErrEncode                = errors.New("encode item")
	ErrWorkerStopped         = errors.New("delivery worker stopped")
)

// Delivery errors. These are only observed through the *ShutdownError
// returned by Shutdown.
var (
	ErrPayloadTooLarge = errors.New("payload too large: the item exceeded the api size limit")
	ErrRateLimited     = errors.New("rate limited: the access token has exceeded its rate limit")
	ErrAccessDenied    = errors.New("access denied: the access token was rejected")
	ErrMissingInfo     = errors.New("missing info: the api did not receive enough information for this item")
	ErrNetwork         = errors.New("network: the item could not be sent")
)

// DeliveryError describes one failed POST.
type DeliveryError struct {
	ID         string // delivery id
	Kind       error  // one of the delivery sentinels
	StatusCode int    // 0 when no response was received
	Cause      error  // underlying I/O error, if any
}

func (e *DeliveryError) Error() string {
	switch {
	case e.Cause != nil:
		return fmt.Sprintf("delivery %s: %v: %v", e.ID, e.Kind, e.Cause)
	case e.StatusCode != 0:
		return fmt.Sprintf("delivery %s: %v (status %d)", e.ID, e.Kind, e.StatusCode)
	default:
		return fmt.Sprintf("delivery %s: %v", e.ID, e.Kind)
	}
}

func (e *DeliveryError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

// ShutdownError aggregates every delivery failure recorded since the
// transport was created.
type ShutdownError struct {
	errs []error
	// single-line form for log fields
	combined error
}

func newShutdownError(errs []error) *ShutdownError {
	own := append([]error(nil), errs...)
	return &ShutdownError{errs: own, combined: multierr.Combine(own...)}
}

// Errors returns the individual delivery failures in the order they occurred.
func (e *ShutdownError) Errors() []error {
	return append([]error(nil), e.errs...)
}

func (e *ShutdownError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "shutdown with %d delivery errors:", len(e.errs))
	for _, err := range e.errs {
		b.WriteString("\n  ")
		b.WriteString(err.Error())
	}
	return b.String()
}

func (e *ShutdownError) Unwrap() []error {
	return e.Errors()
}

// outcomeOf maps a settled delivery to its metrics label.
func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "delivered"
	case errors.Is(err, ErrPayloadTooLarge):
		return "payload_too_large"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrAccessDenied):
		return "access_denied"
	case errors.Is(err, ErrMissingInfo):
		return "missing_info"
	default:
		return "network"
	}
}

// rejectReason maps a Send failure to its metrics label.
func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrQueueFull):
		return "queue_full"
	case errors.Is(err, ErrClosed), errors.Is(err, ErrAlreadyShutdown):
		return "closed"
	case errors.Is(err, ErrMaxQueueDepthExceeded):
		return "max_depth"
	case errors.Is(err, ErrEncode):
		return "encode"
	case errors.Is(err, ErrWorkerStopped):
		return "worker_stopped"
	default:
		return "backend"
	}
}
