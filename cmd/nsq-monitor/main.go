package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/austindbirch/rollbar_relay/internal/config"
	"github.com/austindbirch/rollbar_relay/internal/health"
	"github.com/austindbirch/rollbar_relay/internal/logging"
)

// nsqStats is the part of nsqd's /stats response the monitor reads.
type nsqStats struct {
	Topics []struct {
		TopicName string `json:"topic_name"`
		Channels  []struct {
			ChannelName   string `json:"channel_name"`
			Depth         int64  `json:"depth"`
			InFlightCount int64  `json:"in_flight_count"`
		} `json:"channels"`
		Depth int64 `json:"depth"`
	} `json:"topics"`
}

// monitor exports the item topic's backlog when the transport queues through nsqd.
type monitor struct {
	nsqdHTTPAddr string
	topic        string
	channel      string
	client       *http.Client
	logger       *logging.Logger

	// items published but not yet picked up by the delivery worker
	itemBacklog     prometheus.Gauge
	channelDepth    *prometheus.GaugeVec
	channelInflight *prometheus.GaugeVec
}

func newMonitor(cfg config.NSQ, logger *logging.Logger, reg prometheus.Registerer) *monitor {
	m := &monitor{
		nsqdHTTPAddr: cfg.NsqdHTTPAddr,
		topic:        cfg.ItemsTopic,
		channel:      cfg.WorkerChannel,
		client:       &http.Client{Timeout: 5 * time.Second},
		logger:       logger,
		itemBacklog: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rollbar_queue_backlog",
			Help: "Items waiting in the delivery channel of the items topic",
		}),
		channelDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rollbar_nsq_channel_depth",
			Help: "Depth of NSQ channels on the items topic",
		}, []string{"topic", "channel"}),
		channelInflight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rollbar_nsq_channel_inflight",
			Help: "In-flight messages for NSQ channels on the items topic",
		}, []string{"topic", "channel"}),
	}
	reg.MustRegister(m.itemBacklog, m.channelDepth, m.channelInflight)
	return m
}

func main() {
	cfg := config.FromEnv()
	logger := logging.New("nsq-monitor")

	reg := prometheus.NewRegistry()
	m := newMonitor(cfg.NSQ, logger, reg)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", health.HTTPHandler(m))
	srv := &http.Server{Addr: cfg.Monitor.Port, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Plain().WithFields(map[string]any{
		"addr":     srv.Addr,
		"nsqd":     cfg.NSQ.NsqdHTTPAddr,
		"topic":    cfg.NSQ.ItemsTopic,
		"interval": cfg.Monitor.PollInterval.String(),
	}).Info("nsq-monitor starting")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		m.run(ctx, cfg.Monitor.PollInterval)
		return nil
	})
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Plain().WithError(err).Fatal("nsq-monitor failed")
	}
}

func (m *monitor) run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := m.update(ctx); err != nil {
			m.logger.Plain().WithError(err).Warn("error updating metrics")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (m *monitor) fetch(ctx context.Context) (nsqStats, error) {
	var stats nsqStats
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("http://%s/stats?format=json&topic=%s", m.nsqdHTTPAddr, m.topic), nil)
	if err != nil {
		return stats, err
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return stats, fmt.Errorf("failed to get NSQ stats: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return stats, fmt.Errorf("nsqd stats returned %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return stats, fmt.Errorf("failed to decode NSQ stats: %w", err)
	}
	return stats, nil
}

func (m *monitor) update(ctx context.Context) error {
	stats, err := m.fetch(ctx)
	if err != nil {
		return err
	}

	for _, topic := range stats.Topics {
		if topic.TopicName != m.topic {
			continue
		}
		for _, channel := range topic.Channels {
			if channel.ChannelName == m.channel {
				m.itemBacklog.Set(float64(channel.Depth))
			}
			m.channelDepth.WithLabelValues(topic.TopicName, channel.ChannelName).Set(float64(channel.Depth))
			m.channelInflight.WithLabelValues(topic.TopicName, channel.ChannelName).Set(float64(channel.InFlightCount))
		}
	}
	return nil
}

// Ping reports whether nsqd answers its stats endpoint.
func (m *monitor) Ping(ctx context.Context) error {
	_, err := m.fetch(ctx)
	return err
}
