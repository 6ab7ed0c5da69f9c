package transport

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func TestDeliveryError(t *testing.T) {
	cause := fmt.Errorf("dial tcp: connection refused")

	tests := []struct {
		name     string
		err      *DeliveryError
		contains []string
		is       []error
	}{
		{
			name:     "status failure",
			err:      &DeliveryError{ID: "d-1", Kind: ErrRateLimited, StatusCode: 429},
			contains: []string{"d-1", "rate limited", "status 429"},
			is:       []error{ErrRateLimited},
		},
		{
			name:     "network failure",
			err:      &DeliveryError{ID: "d-2", Kind: ErrNetwork, Cause: cause},
			contains: []string{"d-2", "network", "connection refused"},
			is:       []error{ErrNetwork, cause},
		},
		{
			name:     "bare kind",
			err:      &DeliveryError{ID: "d-3", Kind: ErrMissingInfo},
			contains: []string{"d-3", "missing info"},
			is:       []error{ErrMissingInfo},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("Error() = %q, want it to contain %q", msg, s)
				}
			}
			for _, target := range tt.is {
				if !errors.Is(tt.err, target) {
					t.Errorf("errors.Is(%v, %v) = false", tt.err, target)
				}
			}
		})
	}
}

func TestShutdownError(t *testing.T) {
	errs := []error{
		&DeliveryError{ID: "a", Kind: ErrAccessDenied, StatusCode: 403},
		&DeliveryError{ID: "b", Kind: ErrPayloadTooLarge, StatusCode: 413},
		&DeliveryError{ID: "c", Kind: ErrAccessDenied, StatusCode: 403},
	}
	se := newShutdownError(errs)

	if got := len(se.Errors()); got != 3 {
		t.Fatalf("Errors() length = %d, want 3", got)
	}
	for i, e := range se.Errors() {
		if e != errs[i] {
			t.Errorf("Errors()[%d] = %v, want %v", i, e, errs[i])
		}
	}

	lines := strings.Split(se.Error(), "\n")
	if len(lines) != 4 {
		t.Errorf("Error() has %d lines, want header plus 3:\n%s", len(lines), se.Error())
	}
	if !errors.Is(se, ErrAccessDenied) || !errors.Is(se, ErrPayloadTooLarge) {
		t.Error("ShutdownError does not unwrap to its delivery kinds")
	}
	if errors.Is(se, ErrRateLimited) {
		t.Error("ShutdownError matched a kind it does not contain")
	}
}

func TestShutdownError_SingleFailure(t *testing.T) {
	tests := []struct {
		name   string
		err    *DeliveryError
		kind   error
		status int
	}{
		{
			name:   "access denied",
			err:    &DeliveryError{ID: "only", Kind: ErrAccessDenied, StatusCode: 403},
			kind:   ErrAccessDenied,
			status: 403,
		},
		{
			name: "network failure with cause",
			err:  &DeliveryError{ID: "only", Kind: ErrNetwork, Cause: errors.New("connection refused")},
			kind: ErrNetwork,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			se := newShutdownError([]error{tt.err})

			errs := se.Errors()
			if len(errs) != 1 {
				t.Fatalf("Errors() length = %d, want 1: %v", len(errs), errs)
			}
			if errs[0] != tt.err {
				t.Errorf("Errors()[0] = %v, want the delivery error itself", errs[0])
			}

			var de *DeliveryError
			if !errors.As(se, &de) {
				t.Fatal("errors.As(*DeliveryError) = false")
			}
			if de.ID != "only" || de.StatusCode != tt.status {
				t.Errorf("DeliveryError = %+v, want id only and status %d", de, tt.status)
			}
			if !errors.Is(se, tt.kind) {
				t.Errorf("errors.Is(%v) = false", tt.kind)
			}
			if lines := strings.Split(se.Error(), "\n"); len(lines) != 2 {
				t.Errorf("Error() has %d lines, want header plus 1:\n%s", len(lines), se.Error())
			}
		})
	}
}

func TestShutdownError_ErrorsIsACopy(t *testing.T) {
	first := &DeliveryError{ID: "a", Kind: ErrRateLimited}
	se := newShutdownError([]error{first})

	errs := se.Errors()
	errs[0] = nil
	if got := se.Errors()[0]; got != first {
		t.Errorf("Errors()[0] after caller mutation = %v, want %v", got, first)
	}
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusOK, nil},
		{http.StatusCreated, nil},
		{http.StatusBadRequest, nil},
		{http.StatusBadGateway, nil},
		{http.StatusRequestEntityTooLarge, ErrPayloadTooLarge},
		{http.StatusTooManyRequests, ErrRateLimited},
		{http.StatusForbidden, ErrAccessDenied},
		{http.StatusUnprocessableEntity, ErrMissingInfo},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			if got := classifyStatus(tt.status); got != tt.want {
				t.Errorf("classifyStatus(%d) = %v, want %v", tt.status, got, tt.want)
			}
		})
	}
}

func TestOutcomeAndRejectLabels(t *testing.T) {
	outcomes := []struct {
		err  error
		want string
	}{
		{nil, "delivered"},
		{&DeliveryError{Kind: ErrPayloadTooLarge}, "payload_too_large"},
		{&DeliveryError{Kind: ErrRateLimited}, "rate_limited"},
		{&DeliveryError{Kind: ErrAccessDenied}, "access_denied"},
		{&DeliveryError{Kind: ErrMissingInfo}, "missing_info"},
		{&DeliveryError{Kind: ErrNetwork}, "network"},
	}
	for _, tt := range outcomes {
		if got := outcomeOf(tt.err); got != tt.want {
			t.Errorf("outcomeOf(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}

	rejects := []struct {
		err  error
		want string
	}{
		{ErrQueueFull, "queue_full"},
		{ErrClosed, "closed"},
		{ErrAlreadyShutdown, "closed"},
		{ErrMaxQueueDepthExceeded, "max_depth"},
		{fmt.Errorf("%w: bad", ErrEncode), "encode"},
		{ErrWorkerStopped, "worker_stopped"},
		{errors.New("nsq publish: refused"), "backend"},
	}
	for _, tt := range rejects {
		if got := rejectReason(tt.err); got != tt.want {
			t.Errorf("rejectReason(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
