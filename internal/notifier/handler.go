package notifier

import (
	"context"
	"log/slog"
	"time"

	"github.com/austindbirch/rollbar_relay/internal/item"
)

// Handler is a slog.Handler that reports records at or above a minimum
// level as message items. Attributes become extras; group names are joined
// to keys with dots.
type Handler struct {
	n      *Notifier
	min    slog.Leveler
	prefix string
	attrs  map[string]any
}

// Handler returns a slog.Handler feeding n.
func (n *Notifier) Handler(min slog.Leveler) *Handler {
	if min == nil {
		min = slog.LevelInfo
	}
	return &Handler{n: n, min: min}
}

func (h *Handler) Enabled(_ context.Context, l slog.Level) bool {
	return l >= h.min.Level()
}

func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	extra := make(map[string]any, len(h.attrs)+r.NumAttrs())
	for k, v := range h.attrs {
		extra[k] = v
	}
	r.Attrs(func(a slog.Attr) bool {
		addAttr(extra, h.prefix, a)
		return true
	})
	if len(extra) == 0 {
		extra = nil
	}

	h.n.send(ctx, item.NewMessage(levelFromSlog(r.Level), r.Message, extra))
	return nil
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	c := h.clone()
	for _, a := range attrs {
		addAttr(c.attrs, c.prefix, a)
	}
	return c
}

func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	c := h.clone()
	c.prefix = h.prefix + name + "."
	return c
}

func (h *Handler) clone() *Handler {
	attrs := make(map[string]any, len(h.attrs))
	for k, v := range h.attrs {
		attrs[k] = v
	}
	return &Handler{n: h.n, min: h.min, prefix: h.prefix, attrs: attrs}
}

func addAttr(dst map[string]any, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}

	if a.Value.Kind() == slog.KindGroup {
		p := prefix
		if a.Key != "" {
			p = prefix + a.Key + "."
		}
		for _, ga := range a.Value.Group() {
			addAttr(dst, p, ga)
		}
		return
	}

	switch a.Value.Kind() {
	case slog.KindTime:
		dst[prefix+a.Key] = a.Value.Time().Format(time.RFC3339Nano)
	case slog.KindDuration:
		dst[prefix+a.Key] = a.Value.Duration().String()
	default:
		v := a.Value.Any()
		if err, ok := v.(error); ok {
			v = err.Error()
		}
		dst[prefix+a.Key] = v
	}
}

// levelFromSlog maps slog levels onto item levels. Anything at or above
// LevelError+4 is critical.
func levelFromSlog(l slog.Level) item.Level {
	switch {
	case l >= slog.LevelError+4:
		return item.LevelCritical
	case l >= slog.LevelError:
		return item.LevelError
	case l >= slog.LevelWarn:
		return item.LevelWarning
	case l >= slog.LevelInfo:
		return item.LevelInfo
	default:
		return item.LevelDebug
	}
}

var _ slog.Handler = (*Handler)(nil)
