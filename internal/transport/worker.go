package transport

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/austindbirch/rollbar_relay/internal/logging"
	"github.com/austindbirch/rollbar_relay/internal/metrics"
	"github.com/austindbirch/rollbar_relay/internal/tracing"
)

const accessTokenHeader = "X-Rollbar-Access-Token"

// worker POSTs each deliver message once and settles it on the tracker.
type worker struct {
	endpoint    string
	accessToken string
	client      *http.Client
	tracker     *Tracker
	logger      *logging.Logger
}

func (w *worker) handle(m Message) {
	err := w.deliver(m)
	if serr := w.tracker.RecordSettled(err); serr != nil {
		metrics.RecordInternalError("queue_depth_out_of_sync")
		w.logger.Plain().WithDelivery(m.ID).WithError(serr).Error("settled a delivery that was never counted")
	}
}

// deliver runs one traced POST and records its outcome.
func (w *worker) deliver(m Message) error {
	ctx := tracing.ContextFromCarrier(context.Background(), m.TraceHeaders)
	ctx, span := tracing.StartSpan(ctx, "transport.deliver",
		attribute.String("delivery_id", m.ID),
		attribute.String("endpoint", w.endpoint),
		attribute.Int("payload_bytes", len(m.Payload)),
	)
	defer span.End()

	if !m.EnqueuedAt.IsZero() {
		span.SetAttributes(attribute.Int64("queue_wait_ms", time.Since(m.EnqueuedAt).Milliseconds()))
	}

	start := time.Now()
	status, err := w.post(ctx, m)
	latency := time.Since(start)

	span.SetAttributes(
		attribute.Int("http.status_code", status),
		attribute.Int64("http.latency_ms", latency.Milliseconds()),
	)

	outcome := outcomeOf(err)
	log := w.logger.WithContext(ctx).WithDelivery(m.ID).WithEndpoint(w.endpoint).WithFields(map[string]any{
		"status":     status,
		"latency_ms": latency.Milliseconds(),
		"outcome":    outcome,
	})
	if err != nil {
		span.SetAttributes(attribute.String("failure_reason", outcome))
		tracing.SetSpanError(ctx, err)
		log.WithError(err).Warn("delivery failed")
	} else {
		tracing.AddSpanEvent(ctx, "delivery.success")
		log.Debug("item delivered")
	}

	metrics.RecordDelivery(outcome, latency)
	return err
}

// post sends one item and classifies the result. It returns the response
// status (0 when none was received) and a *DeliveryError on failure.
func (w *worker) post(ctx context.Context, m Message) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.endpoint, bytes.NewReader(m.Payload))
	if err != nil {
		return 0, &DeliveryError{ID: m.ID, Kind: ErrNetwork, Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(accessTokenHeader, w.accessToken)
	tracing.InjectHeaders(ctx, req.Header)

	tracing.AddSpanEvent(ctx, "http.send_item")
	resp, err := w.client.Do(req)
	if err != nil {
		return 0, &DeliveryError{ID: m.ID, Kind: ErrNetwork, Cause: err}
	}
	// drain so the connection can be reused
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()

	if kind := classifyStatus(resp.StatusCode); kind != nil {
		return resp.StatusCode, &DeliveryError{ID: m.ID, Kind: kind, StatusCode: resp.StatusCode}
	}
	return resp.StatusCode, nil
}

// classifyStatus returns the delivery error for status, or nil when the
// collector accepted the item. Statuses not listed count as accepted.
func classifyStatus(status int) error {
	switch status {
	case http.StatusRequestEntityTooLarge:
		return ErrPayloadTooLarge
	case http.StatusTooManyRequests:
		return ErrRateLimited
	case http.StatusForbidden:
		return ErrAccessDenied
	case http.StatusUnprocessableEntity:
		return ErrMissingInfo
	default:
		return nil
	}
}
