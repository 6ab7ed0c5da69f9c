package transport

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/nsqio/go-nsq"

	"github.com/austindbirch/rollbar_relay/internal/logging"
)

// nsqBackend routes messages through an nsqd topic. A single consumer with
// MaxInFlight=1 plays the delivery worker. The shutdown sentinel travels
// through the topic like any other message, so it is only seen after the
// items published before it.
//
// One transport per topic: a second transport would consume the other's
// items and sentinel.
type nsqBackend struct {
	cfg      NSQConfig
	producer *nsq.Producer
	consumer *nsq.Consumer
	logger   *logging.Logger

	mu        sync.Mutex
	closed    bool
	connected bool
	stopOnce  sync.Once
	stop      func()
}

func newNSQBackend(cfg NSQConfig, logger *logging.Logger) (*nsqBackend, error) {
	producer, err := nsq.NewProducer(cfg.NsqdTCPAddr, nsq.NewConfig())
	if err != nil {
		return nil, fmt.Errorf("nsq producer: %w", err)
	}

	conf := nsq.NewConfig()
	conf.MaxInFlight = 1
	consumer, err := nsq.NewConsumer(cfg.Topic, cfg.Channel, conf)
	if err != nil {
		producer.Stop()
		return nil, fmt.Errorf("nsq consumer: %w", err)
	}

	nl := nsqLogger{logger: logger}
	producer.SetLogger(nl, nsq.LogLevelWarning)
	consumer.SetLogger(nl, nsq.LogLevelWarning)

	b := &nsqBackend{
		cfg:      cfg,
		producer: producer,
		consumer: consumer,
		logger:   logger,
	}
	b.stop = consumer.Stop
	return b, nil
}

func (b *nsqBackend) Enqueue(m Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		if m.IsShutdown() {
			return ErrAlreadyShutdown
		}
		return ErrClosed
	}

	body, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrEncode, err)
	}
	if m.IsShutdown() {
		// later sends fail even if the sentinel never reaches nsqd
		b.closed = true
	}
	if err := b.producer.Publish(b.cfg.Topic, body); err != nil {
		if m.IsShutdown() {
			// the consumer will never see the sentinel; stop it here
			b.stopOnce.Do(func() { go b.stop() })
		}
		return fmt.Errorf("nsq publish: %w", err)
	}
	return nil
}

// connect registers handle and connects the consumer to nsqd. Connecting
// directly to nsqd creates the channel up front.
func (b *nsqBackend) connect(handle func(Message)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.connected {
		return nil
	}
	if b.closed {
		return fmt.Errorf("nsq connect: %w", ErrClosed)
	}

	b.consumer.AddHandler(b.handler(handle))
	if err := b.consumer.ConnectToNSQD(b.cfg.NsqdTCPAddr); err != nil {
		b.closed = true
		return fmt.Errorf("nsq connect %s: %w", b.cfg.NsqdTCPAddr, err)
	}
	b.connected = true
	return nil
}

func (b *nsqBackend) RunWorker(handle func(Message)) error {
	if err := b.connect(handle); err != nil {
		b.producer.Stop()
		return err
	}

	<-b.consumer.StopChan
	b.producer.Stop()
	return nil
}

// close releases the producer and consumer without waiting for the topic
// to drain.
func (b *nsqBackend) close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()

	b.stopOnce.Do(b.stop)
	b.producer.Stop()
}

func (b *nsqBackend) ping() error {
	if err := b.producer.Ping(); err != nil {
		return fmt.Errorf("nsqd unreachable: %w", err)
	}
	return nil
}

func (b *nsqBackend) handler(handle func(Message)) nsq.HandlerFunc {
	return func(nm *nsq.Message) error {
		m, err := decodeMessage(nm.Body)
		if err != nil {
			// finish it: redelivery would fail the same way
			b.logger.Plain().WithError(err).WithField("topic", b.cfg.Topic).Error("dropping undecodable nsq message")
			return nil
		}
		if m.IsShutdown() {
			b.stopOnce.Do(func() { go b.stop() })
			return nil
		}
		handle(m)
		return nil
	}
}

// nsqLogger forwards go-nsq's internal log lines to the structured logger.
type nsqLogger struct {
	logger *logging.Logger
}

func (l nsqLogger) Output(_ int, s string) error {
	entry := l.logger.Plain().WithField("component", "nsq")
	switch {
	case strings.HasPrefix(s, "ERR"):
		entry.Error(s)
	case strings.HasPrefix(s, "WRN"):
		entry.Warn(s)
	default:
		entry.Debug(s)
	}
	return nil
}

var _ Backend = (*nsqBackend)(nil)
