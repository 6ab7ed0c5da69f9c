package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/austindbirch/rollbar_relay/internal/tracing"
)

type Kind string

const (
	KindDeliver  Kind = "deliver"
	KindShutdown Kind = "shutdown"
)

// Message is the unit carried through a Backend: either an encoded item to
// deliver or the shutdown sentinel.
type Message struct {
	Kind         Kind              `json:"kind"`
	ID           string            `json:"id,omitempty"`
	Payload      json.RawMessage   `json:"payload,omitempty"`
	TraceHeaders map[string]string `json:"trace_headers,omitempty"`
	EnqueuedAt   time.Time         `json:"enqueued_at"`
}

func newDeliver(ctx context.Context, payload []byte) Message {
	return Message{
		Kind:         KindDeliver,
		ID:           uuid.NewString(),
		Payload:      payload,
		TraceHeaders: tracing.CarrierFromContext(ctx),
		EnqueuedAt:   time.Now().UTC(),
	}
}

func shutdownMessage() Message {
	return Message{Kind: KindShutdown, EnqueuedAt: time.Now().UTC()}
}

func (m Message) IsShutdown() bool {
	return m.Kind == KindShutdown
}

func decodeMessage(b []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(b, &m); err != nil {
		return Message{}, fmt.Errorf("decode message: %w", err)
	}
	switch m.Kind {
	case KindDeliver:
		if m.ID == "" || len(m.Payload) == 0 {
			return Message{}, fmt.Errorf("decode message: deliver without id or payload")
		}
	case KindShutdown:
	default:
		return Message{}, fmt.Errorf("decode message: unknown kind %q", m.Kind)
	}
	return m, nil
}
