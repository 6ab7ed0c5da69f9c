package config

import (
	"os"
	"strconv"
	"time"

	"github.com/austindbirch/rollbar_relay/internal/transport"
)

type Client struct {
	AccessToken     string        // project access token sent on every POST
	Endpoint        string        // collector item endpoint
	QueueCapacity   int           // max accepted-but-unsettled items
	ShutdownTimeout time.Duration // bound on worker teardown after the drain
	HTTPTimeout     time.Duration // per-POST timeout
	Backend         string        // memory or nsq
	LogLevel        string        // debug, info, warn, error
}

type NSQ struct {
	NsqdTCPAddr   string // e.g. nsqd:4150
	ItemsTopic    string // topic carrying queued items
	WorkerChannel string // channel the delivery worker consumes from
	NsqdHTTPAddr  string // e.g. nsqd:4151, polled for queue stats
}

type Monitor struct {
	Port         string        // metrics listen port
	PollInterval time.Duration // how often nsqd stats are fetched
}

type FakeReceiver struct {
	Port            string        // Server listen port
	FailFirstN      int           // Number of requests answered with FailStatus
	FailStatus      int           // Status code used for failing requests
	ExpectedToken   string        // Access token to require, empty accepts any
	ResponseDelayMS int           // Simulated response delay in milliseconds
	ReadTimeout     time.Duration // HTTP read timeout
	WriteTimeout    time.Duration // HTTP write timeout
	IdleTimeout     time.Duration // HTTP idle timeout
}

type Config struct {
	AppName      string
	Client       Client
	NSQ          NSQ
	FakeReceiver FakeReceiver
	Monitor      Monitor
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getenvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func FromEnv() Config {
	return Config{
		AppName: getenv("APP_NAME", "rollbar-relay"),
		Client: Client{
			AccessToken:     getenv("ROLLBAR_ACCESS_TOKEN", ""),
			Endpoint:        getenv("ROLLBAR_ENDPOINT", transport.DefaultEndpoint),
			QueueCapacity:   getenvInt("ROLLBAR_QUEUE_CAPACITY", transport.DefaultQueueCapacity),
			ShutdownTimeout: getenvDuration("ROLLBAR_SHUTDOWN_TIMEOUT", transport.DefaultShutdownTimeout),
			HTTPTimeout:     getenvDuration("ROLLBAR_HTTP_TIMEOUT", transport.DefaultHTTPTimeout),
			Backend:         getenv("ROLLBAR_BACKEND", transport.BackendMemory),
			LogLevel:        getenv("LOG_LEVEL", "info"),
		},
		NSQ: NSQ{
			NsqdTCPAddr:   getenv("NSQD_TCP_ADDR", "nsqd:4150"),
			ItemsTopic:    getenv("NSQ_ITEMS_TOPIC", "rollbar_items"),
			WorkerChannel: getenv("NSQ_WORKER_CHANNEL", "delivery"),
			NsqdHTTPAddr:  getenv("NSQD_HTTP_ADDR", "nsqd:4151"),
		},
		Monitor: Monitor{
			Port:         getenv("MONITOR_PORT", ":8084"),
			PollInterval: getenvDuration("MONITOR_POLL_INTERVAL", 15*time.Second),
		},
		FakeReceiver: FakeReceiver{
			Port:            getenv("FAKE_RECEIVER_PORT", ":8081"),
			FailFirstN:      getenvInt("FAIL_FIRST_N", 0),
			FailStatus:      getenvInt("FAIL_STATUS", 500),
			ExpectedToken:   getenv("EXPECTED_ACCESS_TOKEN", ""),
			ResponseDelayMS: getenvInt("RESPONSE_DELAY_MS", 0),
			ReadTimeout:     getenvDuration("FAKE_RECEIVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    getenvDuration("FAKE_RECEIVER_WRITE_TIMEOUT", 10*time.Second),
			IdleTimeout:     getenvDuration("FAKE_RECEIVER_IDLE_TIMEOUT", 60*time.Second),
		},
	}
}

// Transport converts the client settings into a transport configuration
func (c Config) Transport() transport.Config {
	return transport.Config{
		AccessToken:     c.Client.AccessToken,
		Endpoint:        c.Client.Endpoint,
		QueueCapacity:   c.Client.QueueCapacity,
		ShutdownTimeout: c.Client.ShutdownTimeout,
		HTTPTimeout:     c.Client.HTTPTimeout,
		Backend:         c.Client.Backend,
		NSQ: transport.NSQConfig{
			NsqdTCPAddr: c.NSQ.NsqdTCPAddr,
			Topic:       c.NSQ.ItemsTopic,
			Channel:     c.NSQ.WorkerChannel,
		},
	}
}
