// Package notifier is the caller-facing side of the client: level helpers,
// a panic hook and a slog bridge, all feeding a transport.
package notifier

import (
	"context"
	"errors"

	"github.com/austindbirch/rollbar_relay/internal/item"
	"github.com/austindbirch/rollbar_relay/internal/logging"
	"github.com/austindbirch/rollbar_relay/internal/transport"
)

// Sender accepts items for delivery. *transport.Transport implements it.
type Sender interface {
	SendContext(ctx context.Context, it item.Item) error
}

type Notifier struct {
	sender   Sender
	language string
	context  string
	logger   *logging.Logger
}

type Option func(*Notifier)

// WithLanguage sets the language tag on every item. Defaults to "go".
func WithLanguage(language string) Option {
	return func(n *Notifier) { n.language = language }
}

// WithCodeContext sets the context tag (e.g. "checkout#submit") on every item.
func WithCodeContext(code string) Option {
	return func(n *Notifier) { n.context = code }
}

func WithLogger(l *logging.Logger) Option {
	return func(n *Notifier) { n.logger = l }
}

func New(s Sender, opts ...Option) *Notifier {
	n := &Notifier{
		sender:   s,
		language: "go",
		logger:   logging.Default(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Log reports a message item. Delivery problems are logged, never returned,
// so a logging call cannot fail the caller.
func (n *Notifier) Log(level item.Level, msg string, extra map[string]any) {
	n.LogContext(context.Background(), level, msg, extra)
}

func (n *Notifier) LogContext(ctx context.Context, level item.Level, msg string, extra map[string]any) {
	n.send(ctx, item.NewMessage(level, msg, extra))
}

func (n *Notifier) Debug(msg string, extra map[string]any) {
	n.Log(item.LevelDebug, msg, extra)
}

func (n *Notifier) Info(msg string, extra map[string]any) {
	n.Log(item.LevelInfo, msg, extra)
}

func (n *Notifier) Warning(msg string, extra map[string]any) {
	n.Log(item.LevelWarning, msg, extra)
}

func (n *Notifier) Error(msg string, extra map[string]any) {
	n.Log(item.LevelError, msg, extra)
}

func (n *Notifier) Critical(msg string, extra map[string]any) {
	n.Log(item.LevelCritical, msg, extra)
}

// ReportError sends err as a trace item captured at the caller.
func (n *Notifier) ReportError(ctx context.Context, level item.Level, err error) {
	n.send(ctx, item.FromError(level, err, 1))
}

// Recover reports a panic as a critical trace item and panics again.
// Use it directly with defer:
//
//	defer n.Recover()
func (n *Notifier) Recover() {
	r := recover()
	if r == nil {
		return
	}
	n.send(context.Background(), item.FromPanic(r, 0))
	panic(r)
}

func (n *Notifier) send(ctx context.Context, it item.Item) {
	if n.language != "" && it.Language == "" {
		it = it.WithLanguage(n.language)
	}
	if n.context != "" && it.Context == "" {
		it = it.WithContext(n.context)
	}

	err := n.sender.SendContext(ctx, it)
	if err == nil {
		return
	}

	entry := n.logger.WithContext(ctx).WithField("level", it.Level.String()).WithError(err)
	switch {
	case errors.Is(err, transport.ErrQueueFull):
		entry.Warn("item dropped, queue full")
	case errors.Is(err, transport.ErrClosed):
		entry.Warn("item dropped, transport closed")
	default:
		entry.Error("item rejected")
	}
}
