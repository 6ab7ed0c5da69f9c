package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// Pinger is anything that can report its own readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Status struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
	Ready   bool   `json:"ready,omitempty"`
}

// Check pings p with a one second bound. A nil pinger is always ready.
func Check(ctx context.Context, p Pinger) Status {
	st := Status{OK: true, Message: "ok", Ready: true}
	if p == nil {
		return st
	}

	ctx, cancel := context.WithTimeout(ctx, 1*time.Second)
	defer cancel()
	if err := p.Ping(ctx); err != nil {
		st.OK = false
		st.Message = "not ready: " + err.Error()
		st.Ready = false
	}
	return st
}

// HTTPHandler returns an HTTP handler that reports the health status of the service
func HTTPHandler(p Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st := Check(r.Context(), p)

		w.Header().Set("Content-Type", "application/json")
		if !st.OK {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(st)
	}
}
