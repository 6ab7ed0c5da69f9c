package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/austindbirch/rollbar_relay/internal/config"
	"github.com/austindbirch/rollbar_relay/internal/health"
	"github.com/austindbirch/rollbar_relay/internal/logging"
)

const (
	accessTokenHeader = "X-Rollbar-Access-Token"
	maxItemBytes      = 512 * 1024
)

// receiver is a stand-in for the collector's item endpoint. It answers the
// statuses the transport classifies so failure paths can be exercised locally.
type receiver struct {
	cfg      config.FakeReceiver
	logger   *logging.Logger
	reqCount atomic.Int64
	requests *prometheus.CounterVec
}

func newReceiver(cfg config.FakeReceiver, logger *logging.Logger, reg prometheus.Registerer) *receiver {
	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fake_receiver_requests_total",
			Help: "Item requests received by status code.",
		},
		[]string{"status"},
	)
	reg.MustRegister(requests)
	return &receiver{cfg: cfg, logger: logger, requests: requests}
}

func main() {
	cfg := config.FromEnv()
	logger := logging.New("fake-receiver")

	reg := prometheus.NewRegistry()
	rcv := newReceiver(cfg.FakeReceiver, logger, reg)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", health.HTTPHandler(nil))
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/api/1/item/", rcv.handleItem)
	mux.HandleFunc("/api/1/item", rcv.handleItem)

	srv := &http.Server{
		Addr:         cfg.FakeReceiver.Port,
		Handler:      mux,
		ReadTimeout:  cfg.FakeReceiver.ReadTimeout,
		WriteTimeout: cfg.FakeReceiver.WriteTimeout,
		IdleTimeout:  cfg.FakeReceiver.IdleTimeout,
	}
	go func() {
		logger.Plain().WithFields(map[string]any{
			"addr":         srv.Addr,
			"fail_first_n": cfg.FakeReceiver.FailFirstN,
			"fail_status":  cfg.FakeReceiver.FailStatus,
		}).Info("fake-receiver listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Plain().WithError(err).Fatal("fake-receiver failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
	logger.Plain().WithField("requests", rcv.reqCount.Load()).Info("fake-receiver stopped")
}

func (rc *receiver) handleItem(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		rc.respond(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	n := rc.reqCount.Add(1)
	defer r.Body.Close()

	b, err := io.ReadAll(io.LimitReader(r.Body, maxItemBytes+1))
	if err != nil {
		rc.respond(w, http.StatusBadRequest, "unreadable body")
		return
	}
	log := rc.logger.Plain().WithFields(map[string]any{
		"request": n,
		"bytes":   len(b),
		"body":    truncate(string(b), 160),
	})

	if rc.cfg.ExpectedToken != "" && r.Header.Get(accessTokenHeader) != rc.cfg.ExpectedToken {
		log.Warn("rejecting item: bad access token")
		rc.respond(w, http.StatusForbidden, "invalid access token")
		return
	}
	if len(b) > maxItemBytes {
		log.Warn("rejecting item: too large")
		rc.respond(w, http.StatusRequestEntityTooLarge, "payload too large")
		return
	}
	if msg := validateItem(b); msg != "" {
		log.WithField("reason", msg).Warn("rejecting item: missing info")
		rc.respond(w, http.StatusUnprocessableEntity, msg)
		return
	}

	if rc.cfg.ResponseDelayMS > 0 {
		time.Sleep(time.Duration(rc.cfg.ResponseDelayMS) * time.Millisecond)
	}

	// Simulate flakiness: first N requests -> FailStatus
	if n <= int64(rc.cfg.FailFirstN) {
		log.Infof("FAILING (%d/%d) with %d", n, rc.cfg.FailFirstN, rc.cfg.FailStatus)
		rc.respond(w, rc.cfg.FailStatus, "simulated failure")
		return
	}

	log.Info("item accepted")
	rc.requests.WithLabelValues(strconv.Itoa(http.StatusOK)).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"err":    0,
		"result": map[string]any{"id": nil, "uuid": uuid.NewString()},
	})
}

func (rc *receiver) respond(w http.ResponseWriter, status int, msg string) {
	rc.requests.WithLabelValues(strconv.Itoa(status)).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"err": 1, "message": msg})
}

// validateItem returns a reason when the body is not an item envelope
func validateItem(b []byte) string {
	var env struct {
		Data *struct {
			Level string          `json:"level"`
			Body  json.RawMessage `json:"body"`
		} `json:"data"`
	}
	if err := json.Unmarshal(b, &env); err != nil {
		return "body is not valid JSON"
	}
	if env.Data == nil {
		return "missing data"
	}
	if len(env.Data.Body) == 0 || string(env.Data.Body) == "null" {
		return "missing data.body"
	}
	return ""
}

// truncate truncates a string to the specified length and adds an ellipsis if truncated
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return fmt.Sprintf("%s...", s[:n])
}
