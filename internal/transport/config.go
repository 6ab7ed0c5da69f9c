package transport

import (
	"fmt"
	"net/url"
	"time"

	"github.com/nsqio/go-nsq"
)

const (
	DefaultEndpoint        = "https://api.rollbar.com/api/1/item"
	DefaultQueueCapacity   = 50
	DefaultShutdownTimeout = 100 * time.Millisecond
	DefaultHTTPTimeout     = 10 * time.Second

	BackendMemory = "memory"
	BackendNSQ    = "nsq"
)

// NSQConfig addresses the topic used by the nsq backend.
type NSQConfig struct {
	NsqdTCPAddr string
	Topic       string
	Channel     string
}

// Config is read-only for the life of a Transport.
type Config struct {
	AccessToken     string
	Endpoint        string
	QueueCapacity   int
	ShutdownTimeout time.Duration // bounds the runtime release after the drain
	HTTPTimeout     time.Duration
	Backend         string
	NSQ             NSQConfig
}

func (c Config) withDefaults() Config {
	if c.Endpoint == "" {
		c.Endpoint = DefaultEndpoint
	}
	if c.QueueCapacity == 0 {
		c.QueueCapacity = DefaultQueueCapacity
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
	if c.HTTPTimeout == 0 {
		c.HTTPTimeout = DefaultHTTPTimeout
	}
	if c.Backend == "" {
		c.Backend = BackendMemory
	}
	return c
}

// Validate reports the first problem with c, wrapped in ErrInvalidConfig.
func (c Config) Validate() error {
	if c.AccessToken == "" {
		return fmt.Errorf("%w: access token is required", ErrInvalidConfig)
	}
	u, err := url.Parse(c.Endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: endpoint %q is not an http(s) url", ErrInvalidConfig, c.Endpoint)
	}
	if c.QueueCapacity <= 0 {
		return fmt.Errorf("%w: queue capacity must be positive, got %d", ErrInvalidConfig, c.QueueCapacity)
	}
	if c.ShutdownTimeout < 0 || c.HTTPTimeout < 0 {
		return fmt.Errorf("%w: timeouts must not be negative", ErrInvalidConfig)
	}

	switch c.Backend {
	case BackendMemory:
	case BackendNSQ:
		if c.NSQ.NsqdTCPAddr == "" {
			return fmt.Errorf("%w: nsqd address is required for the nsq backend", ErrInvalidConfig)
		}
		if !nsq.IsValidTopicName(c.NSQ.Topic) {
			return fmt.Errorf("%w: invalid nsq topic %q", ErrInvalidConfig, c.NSQ.Topic)
		}
		if !nsq.IsValidChannelName(c.NSQ.Channel) {
			return fmt.Errorf("%w: invalid nsq channel %q", ErrInvalidConfig, c.NSQ.Channel)
		}
	default:
		return fmt.Errorf("%w: unknown backend %q", ErrInvalidConfig, c.Backend)
	}
	return nil
}
