// Package kafkasink writes contact updates to a Kafka topic keyed by
// contact id, so every update for one vessel lands in one partition.
package kafkasink

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/c360/seatrack/component"
	"github.com/c360/seatrack/contact"
	"github.com/c360/seatrack/errors"
	"github.com/c360/seatrack/metric"
)

// DefaultTopic receives contact updates when no topic is configured.
const DefaultTopic = "seatrack.contacts"

// ErrQueueFull is returned by Push when the write queue is full.
var ErrQueueFull = errors.New("kafka sink queue full")

// Writer writes a batch of messages. *kafka.Writer implements it.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Config configures the sink.
type Config struct {
	Brokers      []string      `json:"brokers"`
	Topic        string        `json:"topic"`
	BatchSize    int           `json:"batch_size"`
	QueueSize    int           `json:"queue_size"`
	WriteTimeout time.Duration `json:"write_timeout"`
}

// Validate checks that brokers are configured.
func (c Config) Validate() error {
	if len(c.Brokers) == 0 {
		return errors.WrapInvalid(errors.ErrMissingConfig, "kafkasink", "Validate", "brokers")
	}
	return nil
}

// NewWriter returns a synchronous writer for topic.
func NewWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 250 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}
}

// Deps holds runtime dependencies for the sink.
type Deps struct {
	Config          Config
	Writer          Writer                  // nil builds a kafka.Writer from Config
	MetricsRegistry *metric.MetricsRegistry // Metrics registry (can be nil)
	Logger          *slog.Logger            // Structured logger (can be nil)
}

// Sink is a contact.Sink backed by a Kafka topic.
type Sink struct {
	writer    Writer
	topic     string
	batchSize int
	timeout   time.Duration
	queue     chan contact.Contact
	logger    *slog.Logger
	metrics   *metric.Metrics

	mu      sync.Mutex
	stop    chan struct{}
	done    chan struct{}
	lastErr string

	startTime    time.Time
	written      atomic.Int64
	bytes        atomic.Int64
	failures     atomic.Int64
	drops        atomic.Int64
	failing      atomic.Bool
	lastActivity atomic.Value // time.Time
}

var (
	_ contact.Sink           = (*Sink)(nil)
	_ component.Discoverable = (*Sink)(nil)
)

// New creates a stopped sink.
func New(deps Deps) (*Sink, error) {
	cfg := deps.Config
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 4096
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}

	writer := deps.Writer
	if writer == nil {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		writer = NewWriter(cfg.Brokers, cfg.Topic)
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("component", "kafkasink", "topic", cfg.Topic)
	}

	s := &Sink{
		writer:    writer,
		topic:     cfg.Topic,
		batchSize: cfg.BatchSize,
		timeout:   cfg.WriteTimeout,
		queue:     make(chan contact.Contact, cfg.QueueSize),
		logger:    logger,
		metrics:   deps.MetricsRegistry.CoreMetrics(),
		startTime: time.Now(),
	}
	s.lastActivity.Store(time.Time{})
	return s, nil
}

// Push queues the contact without blocking.
func (s *Sink) Push(_ context.Context, c contact.Contact) error {
	select {
	case s.queue <- c:
		return nil
	default:
		s.drops.Add(1)
		return errors.WrapTransient(ErrQueueFull, "kafkasink", "Push", "enqueue")
	}
}

// Start launches the write worker.
func (s *Sink) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stop != nil {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "kafkasink", "Start", "state check")
	}
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	s.startTime = time.Now()

	go s.run(ctx, s.stop, s.done)
	return nil
}

// Stop writes what is queued, closes the writer and waits at most timeout.
func (s *Sink) Stop(timeout time.Duration) error {
	s.mu.Lock()
	stop, done := s.stop, s.done
	s.stop = nil
	s.mu.Unlock()

	if stop == nil {
		return nil
	}
	close(stop)

	select {
	case <-done:
	case <-time.After(timeout):
		return errors.WrapTransient(fmt.Errorf("stop timeout after %v", timeout),
			"kafkasink", "Stop", "graceful shutdown")
	}

	if err := s.writer.Close(); err != nil {
		return errors.WrapTransient(err, "kafkasink", "Stop", "close writer")
	}
	return nil
}

func (s *Sink) run(ctx context.Context, stop, done chan struct{}) {
	defer close(done)

	for {
		select {
		case c := <-s.queue:
			s.write(ctx, s.collect(c))
		case <-ctx.Done():
			return
		case <-stop:
			for {
				select {
				case c := <-s.queue:
					s.write(context.Background(), s.collect(c))
				default:
					return
				}
			}
		}
	}
}

// collect adds whatever else is already queued, up to the batch size.
func (s *Sink) collect(first contact.Contact) []contact.Contact {
	batch := []contact.Contact{first}
	for len(batch) < s.batchSize {
		select {
		case c := <-s.queue:
			batch = append(batch, c)
		default:
			return batch
		}
	}
	return batch
}

func (s *Sink) write(ctx context.Context, batch []contact.Contact) {
	msgs := make([]kafka.Message, 0, len(batch))
	size := 0
	now := time.Now().UTC()
	for _, c := range batch {
		body, err := json.Marshal(c)
		if err != nil {
			s.recordFailure(err, 1)
			continue
		}
		size += len(body)
		msgs = append(msgs, kafka.Message{
			Key:   []byte(strconv.FormatInt(c.ID, 10)),
			Value: body,
			Time:  now,
		})
	}
	if len(msgs) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.writer.WriteMessages(ctx, msgs...); err != nil {
		s.recordFailure(err, len(msgs))
		s.logger.Warn("Kafka write failed", "messages", len(msgs), "error", err)
		return
	}

	s.failing.Store(false)
	s.written.Add(int64(len(msgs)))
	s.bytes.Add(int64(size))
	s.lastActivity.Store(time.Now())
}

func (s *Sink) recordFailure(err error, n int) {
	s.failing.Store(true)
	s.failures.Add(int64(n))
	if s.metrics != nil {
		s.metrics.SinkFailures.Add(float64(n))
	}
	s.mu.Lock()
	s.lastErr = err.Error()
	s.mu.Unlock()
}

// Meta returns the component metadata.
func (s *Sink) Meta() component.Metadata {
	return component.Metadata{
		Name:        "kafkasink",
		Type:        "sink",
		Description: fmt.Sprintf("Writes contact updates to Kafka topic %s", s.topic),
		Version:     "1.0.0",
	}
}

// Health is healthy while running and the last write succeeded.
func (s *Sink) Health() component.HealthStatus {
	s.mu.Lock()
	running, lastErr, started := s.stop != nil, s.lastErr, s.startTime
	s.mu.Unlock()

	return component.HealthStatus{
		Healthy:    running && !s.failing.Load(),
		LastCheck:  time.Now(),
		ErrorCount: int(s.failures.Load() + s.drops.Load()),
		LastError:  lastErr,
		Uptime:     time.Since(started),
	}
}

// DataFlow returns write rates.
func (s *Sink) DataFlow() component.FlowMetrics {
	s.mu.Lock()
	started := s.startTime
	s.mu.Unlock()

	last, _ := s.lastActivity.Load().(time.Time)
	return component.Rates(s.written.Load(), s.bytes.Load(), s.failures.Load(), time.Since(started), last)
}

// Stats returns written, failed and dropped counts.
func (s *Sink) Stats() (written, failed, dropped int64) {
	return s.written.Load(), s.failures.Load(), s.drops.Load()
}
