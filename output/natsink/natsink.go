// Package natsink publishes contact updates on NATS, one subject per
// contact id. Updates are queued so a slow server never stalls ingestion.
package natsink

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/seatrack/component"
	"github.com/c360/seatrack/contact"
	"github.com/c360/seatrack/errors"
	"github.com/c360/seatrack/metric"
)

// DefaultSubject is the subject prefix; the contact id is appended.
const DefaultSubject = "seatrack.contacts"

// ErrQueueFull is returned by Push when the publish queue is full. The
// update is dropped.
var ErrQueueFull = errors.New("nats sink queue full")

// Publisher sends one message. natsclient.Client implements it.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// Config configures the sink.
type Config struct {
	Subject   string `json:"subject"`
	QueueSize int    `json:"queue_size"`
}

// Deps holds runtime dependencies for the sink.
type Deps struct {
	Config          Config
	Publisher       Publisher
	MetricsRegistry *metric.MetricsRegistry // Metrics registry (can be nil)
	Logger          *slog.Logger            // Structured logger (can be nil)
}

// Sink is a contact.Sink that publishes JSON snapshots.
type Sink struct {
	pub     Publisher
	prefix  string
	queue   chan contact.Contact
	logger  *slog.Logger
	dropped prometheus.Counter

	mu      sync.Mutex
	stop    chan struct{}
	done    chan struct{}
	lastErr string

	startTime    time.Time
	published    atomic.Int64
	bytes        atomic.Int64
	failures     atomic.Int64
	drops        atomic.Int64
	failing      atomic.Bool  // last publish failed
	lastActivity atomic.Value // time.Time
}

var (
	_ contact.Sink           = (*Sink)(nil)
	_ component.Discoverable = (*Sink)(nil)
)

// New creates a stopped sink. Pushes are queued until Start.
func New(deps Deps) (*Sink, error) {
	if deps.Publisher == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "natsink", "New", "publisher")
	}
	cfg := deps.Config
	if cfg.Subject == "" {
		cfg.Subject = DefaultSubject
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("component", "natsink")
	}

	s := &Sink{
		pub:       deps.Publisher,
		prefix:    cfg.Subject,
		queue:     make(chan contact.Contact, cfg.QueueSize),
		logger:    logger,
		startTime: time.Now(),
	}
	s.lastActivity.Store(time.Time{})

	if deps.MetricsRegistry != nil {
		s.dropped = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "seatrack",
			Subsystem: "natsink",
			Name:      "dropped_total",
			Help:      "Contact updates dropped because the publish queue was full",
		})
		_ = deps.MetricsRegistry.RegisterCounter("natsink", "dropped", s.dropped)
	}
	return s, nil
}

// Subject returns the subject a contact is published on.
func (s *Sink) Subject(id int64) string {
	return s.prefix + "." + strconv.FormatInt(id, 10)
}

// Push queues the contact without blocking.
func (s *Sink) Push(_ context.Context, c contact.Contact) error {
	select {
	case s.queue <- c:
		return nil
	default:
		s.drops.Add(1)
		if s.dropped != nil {
			s.dropped.Inc()
		}
		return errors.WrapTransient(ErrQueueFull, "natsink", "Push", "enqueue")
	}
}

// Start launches the publish worker.
func (s *Sink) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stop != nil {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "natsink", "Start", "state check")
	}
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	s.startTime = time.Now()

	go s.run(ctx, s.stop, s.done)
	return nil
}

// Stop publishes what is already queued and stops the worker, waiting at
// most timeout.
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
		return nil
	case <-time.After(timeout):
		return errors.WrapTransient(fmt.Errorf("stop timeout after %v", timeout),
			"natsink", "Stop", "graceful shutdown")
	}
}

func (s *Sink) run(ctx context.Context, stop, done chan struct{}) {
	defer close(done)

	for {
		select {
		case c := <-s.queue:
			s.publish(ctx, c)
		case <-ctx.Done():
			return
		case <-stop:
			for {
				select {
				case c := <-s.queue:
					s.publish(ctx, c)
				default:
					return
				}
			}
		}
	}
}

func (s *Sink) publish(ctx context.Context, c contact.Contact) {
	data, err := json.Marshal(c)
	if err != nil {
		s.recordFailure(err)
		return
	}
	if err := s.pub.Publish(ctx, s.Subject(c.ID), data); err != nil {
		s.recordFailure(err)
		s.logger.Debug("Contact publish failed", "id", c.ID, "error", err)
		return
	}
	s.failing.Store(false)
	s.published.Add(1)
	s.bytes.Add(int64(len(data)))
	s.lastActivity.Store(time.Now())
}

func (s *Sink) recordFailure(err error) {
	s.failing.Store(true)
	s.failures.Add(1)
	s.mu.Lock()
	s.lastErr = err.Error()
	s.mu.Unlock()
}

// Meta returns the component metadata.
func (s *Sink) Meta() component.Metadata {
	return component.Metadata{
		Name:        "natsink",
		Type:        "sink",
		Description: fmt.Sprintf("Publishes contact updates on %s.<id>", s.prefix),
		Version:     "1.0.0",
	}
}

// Health is healthy while running and the last publish succeeded.
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

// DataFlow returns publish rates.
func (s *Sink) DataFlow() component.FlowMetrics {
	s.mu.Lock()
	started := s.startTime
	s.mu.Unlock()

	last, _ := s.lastActivity.Load().(time.Time)
	return component.Rates(s.published.Load(), s.bytes.Load(), s.failures.Load(), time.Since(started), last)
}

// Stats returns published, failed and dropped counts.
func (s *Sink) Stats() (published, failed, dropped int64) {
	return s.published.Load(), s.failures.Load(), s.drops.Load()
}
