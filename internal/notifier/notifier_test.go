package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/austindbirch/rollbar_relay/internal/item"
	"github.com/austindbirch/rollbar_relay/internal/logging"
	"github.com/austindbirch/rollbar_relay/internal/transport"
)

type fakeSender struct {
	mu    sync.Mutex
	sent  []item.Item
	err   error
	calls int
}

func (f *fakeSender) SendContext(_ context.Context, it item.Item) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, it)
	return nil
}

func (f *fakeSender) items() []item.Item {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]item.Item(nil), f.sent...)
}

func newTestNotifier(s Sender, opts ...Option) *Notifier {
	return New(s, append([]Option{WithLogger(logging.Discard())}, opts...)...)
}

func TestNotifier_LevelHelpers(t *testing.T) {
	tests := []struct {
		name string
		log  func(n *Notifier)
		want item.Level
	}{
		{name: "debug", log: func(n *Notifier) { n.Debug("m", nil) }, want: item.LevelDebug},
		{name: "info", log: func(n *Notifier) { n.Info("m", nil) }, want: item.LevelInfo},
		{name: "warning", log: func(n *Notifier) { n.Warning("m", nil) }, want: item.LevelWarning},
		{name: "error", log: func(n *Notifier) { n.Error("m", nil) }, want: item.LevelError},
		{name: "critical", log: func(n *Notifier) { n.Critical("m", nil) }, want: item.LevelCritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &fakeSender{}
			tt.log(newTestNotifier(s))

			got := s.items()
			if len(got) != 1 {
				t.Fatalf("sent %d items, want 1", len(got))
			}
			if got[0].Level != tt.want {
				t.Errorf("Level = %v, want %v", got[0].Level, tt.want)
			}
			if got[0].Message == nil || got[0].Message.Body != "m" {
				t.Errorf("Message = %+v, want body m", got[0].Message)
			}
		})
	}
}

func TestNotifier_Tags(t *testing.T) {
	s := &fakeSender{}
	n := newTestNotifier(s, WithCodeContext("checkout#submit"))

	n.Info("placed", map[string]any{"order": 42})
	n.Log(item.LevelError, "custom", nil)

	for _, it := range s.items() {
		if it.Language != "go" {
			t.Errorf("Language = %q, want go", it.Language)
		}
		if it.Context != "checkout#submit" {
			t.Errorf("Context = %q, want checkout#submit", it.Context)
		}
	}

	s2 := &fakeSender{}
	newTestNotifier(s2, WithLanguage("")).Info("untagged", nil)
	if got := s2.items()[0].Language; got != "" {
		t.Errorf("Language with WithLanguage(\"\") = %q, want empty", got)
	}
}

func TestNotifier_SendFailuresAreSwallowed(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{name: "queue full", err: transport.ErrQueueFull},
		{name: "closed", err: transport.ErrClosed},
		{name: "other", err: errors.New("encode failed")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &fakeSender{err: tt.err}
			n := newTestNotifier(s)

			n.Error("dropped", nil)

			if s.calls != 1 {
				t.Errorf("SendContext calls = %d, want 1", s.calls)
			}
		})
	}
}

func TestNotifier_ReportError(t *testing.T) {
	s := &fakeSender{}
	n := newTestNotifier(s)

	n.ReportError(context.Background(), item.LevelWarning, errors.New("disk full"))

	got := s.items()
	if len(got) != 1 || got[0].Trace == nil {
		t.Fatalf("sent %+v, want one trace item", got)
	}
	if got[0].Level != item.LevelWarning {
		t.Errorf("Level = %v, want warning", got[0].Level)
	}
	if got[0].Trace.Exception.Message != "disk full" {
		t.Errorf("Exception.Message = %q, want disk full", got[0].Trace.Exception.Message)
	}
}

func TestNotifier_Recover(t *testing.T) {
	s := &fakeSender{}
	n := newTestNotifier(s)

	defer func() {
		r := recover()
		if r != "boom" {
			t.Fatalf("recovered %v, want re-panic with boom", r)
		}

		got := s.items()
		if len(got) != 1 {
			t.Fatalf("sent %d items, want 1", len(got))
		}
		it := got[0]
		if it.Level != item.LevelCritical {
			t.Errorf("Level = %v, want critical", it.Level)
		}
		if it.Trace == nil || it.Trace.Exception.Class != "boom" {
			t.Errorf("Trace = %+v, want class boom", it.Trace)
		}
		if len(it.Trace.Frames) == 0 {
			t.Error("panic item has no frames")
		}
	}()

	func() {
		defer n.Recover()
		panic("boom")
	}()
}

func TestNotifier_RecoverWithoutPanic(t *testing.T) {
	s := &fakeSender{}
	n := newTestNotifier(s)

	func() {
		defer n.Recover()
	}()

	if s.calls != 0 {
		t.Errorf("SendContext calls = %d, want 0", s.calls)
	}
}

func TestHandler_Levels(t *testing.T) {
	tests := []struct {
		level slog.Level
		want  item.Level
		sent  bool
	}{
		{level: slog.LevelDebug, sent: false},
		{level: slog.LevelInfo, sent: false},
		{level: slog.LevelWarn, want: item.LevelWarning, sent: true},
		{level: slog.LevelError, want: item.LevelError, sent: true},
		{level: slog.LevelError + 2, want: item.LevelError, sent: true},
		{level: slog.LevelError + 4, want: item.LevelCritical, sent: true},
	}

	for _, tt := range tests {
		t.Run(tt.level.String(), func(t *testing.T) {
			s := &fakeSender{}
			logger := slog.New(newTestNotifier(s).Handler(slog.LevelWarn))

			logger.Log(context.Background(), tt.level, "event")

			got := s.items()
			if !tt.sent {
				if len(got) != 0 {
					t.Errorf("sent %d items below the minimum level", len(got))
				}
				return
			}
			if len(got) != 1 {
				t.Fatalf("sent %d items, want 1", len(got))
			}
			if got[0].Level != tt.want {
				t.Errorf("Level = %v, want %v", got[0].Level, tt.want)
			}
		})
	}
}

func TestHandler_AttrsAndGroups(t *testing.T) {
	s := &fakeSender{}
	logger := slog.New(newTestNotifier(s).Handler(nil)).
		With("service", "api").
		WithGroup("req")

	logger.Info("slow request",
		"ms", 120,
		slog.Group("user", "id", 7),
		"err", errors.New("timeout"),
		"took", 1500*time.Millisecond,
	)

	got := s.items()
	if len(got) != 1 || got[0].Message == nil {
		t.Fatalf("sent %+v, want one message item", got)
	}
	extra := got[0].Message.Extra
	want := map[string]any{
		"service":     "api",
		"req.ms":      int64(120),
		"req.user.id": int64(7),
		"req.err":     "timeout",
		"req.took":    "1.5s",
	}
	if len(extra) != len(want) {
		t.Errorf("extras = %v, want %v", extra, want)
	}
	for k, v := range want {
		if extra[k] != v {
			t.Errorf("extra[%q] = %#v, want %#v", k, extra[k], v)
		}
	}
	if got[0].Message.Body != "slow request" {
		t.Errorf("Body = %q, want slow request", got[0].Message.Body)
	}
}

func TestHandler_NoAttrs(t *testing.T) {
	s := &fakeSender{}
	slog.New(newTestNotifier(s).Handler(slog.LevelInfo)).Info("plain")

	got := s.items()
	if len(got) != 1 {
		t.Fatalf("sent %d items, want 1", len(got))
	}
	if got[0].Message.Extra != nil {
		t.Errorf("Extra = %v, want nil", got[0].Message.Extra)
	}
}

func TestNotifier_ThroughTransport(t *testing.T) {
	var mu sync.Mutex
	var received []map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		_ = json.Unmarshal(raw, &body)
		mu.Lock()
		received = append(received, body)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tr, err := transport.New(transport.Config{
		AccessToken:     "tok",
		Endpoint:        srv.URL,
		QueueCapacity:   10,
		ShutdownTimeout: 10 * time.Second,
	}, transport.WithLogger(logging.Discard()))
	if err != nil {
		t.Fatalf("transport.New() error = %v", err)
	}

	n := newTestNotifier(tr)
	slog.New(n.Handler(slog.LevelInfo)).Warn("disk almost full", "pct", 91)

	if err := tr.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 {
		t.Fatalf("collector received %d items, want 1", len(received))
	}
	data, _ := received[0]["data"].(map[string]any)
	if data["level"] != "warning" || data["language"] != "go" {
		t.Errorf("data = %v, want level warning and language go", data)
	}
}
