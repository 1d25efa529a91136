package input

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/c360/seatrack/component"
	"github.com/c360/seatrack/errors"
	"github.com/c360/seatrack/metric"
	"github.com/c360/seatrack/pkg/retry"
)

// DefaultReconnectDelay is the fixed pause between a failure and the next
// connect attempt.
const DefaultReconnectDelay = 5 * time.Second

// Framing selects how a connection turns reads into lines.
type Framing int

const (
	// FramingStream feeds reads through a Framer (serial, TCP).
	FramingStream Framing = iota
	// FramingDatagram treats every read as one datagram (UDP).
	FramingDatagram
)

// Stream is one open transport session.
type Stream interface {
	// Read blocks for at most the transport's read timeout. A timeout is
	// reported either as (0, nil) or as a net.Error whose Timeout is true.
	Read(p []byte) (int, error)
	Close() error
}

// Dialer opens a Stream. Dial must give up within a bounded connect
// timeout so a dead endpoint surfaces as a failure.
type Dialer interface {
	Dial(ctx context.Context) (Stream, error)
}

// DialerFunc adapts a function to a Dialer.
type DialerFunc func(ctx context.Context) (Stream, error)

// Dial calls f(ctx).
func (f DialerFunc) Dial(ctx context.Context) (Stream, error) {
	return f(ctx)
}

// Config configures a Connection.
type Config struct {
	Name           string
	Framing        Framing
	ReconnectDelay time.Duration // 0 means DefaultReconnectDelay
	ReadBufferSize int           // 0 picks a size for the framing
}

// Deps holds runtime dependencies for a Connection.
type Deps struct {
	Config          Config
	Dialer          Dialer
	Sink            LineSink
	MetricsRegistry *metric.MetricsRegistry // Metrics registry (can be nil)
	Logger          *slog.Logger            // Structured logger (can be nil)
}

// Connection runs one transport: dial, read, frame, and reconnect after a
// fixed delay until stopped.
type Connection struct {
	name     string
	framing  Framing
	delay    time.Duration
	bufSize  int
	dialer   Dialer
	sink     LineSink
	logger   *slog.Logger
	metrics  *metric.Metrics
	observer atomic.Pointer[func(*Connection)]
	// callbacks counts sink, observer and retry hooks running on the loop
	// goroutine.
	callbacks atomic.Int32

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	gen     uint64 // bumped by Start and Stop; stale loops compare against it
	state   State
	session string
	lastErr string

	startTime    time.Time
	lines        atomic.Int64
	bytes        atomic.Int64
	errorCount   atomic.Int64
	reconnects   atomic.Int64
	lastActivity atomic.Value // time.Time
}

var _ component.Discoverable = (*Connection)(nil)

// NewConnection creates a stopped Connection.
func NewConnection(deps Deps) *Connection {
	cfg := deps.Config
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	if cfg.ReadBufferSize <= 0 {
		cfg.ReadBufferSize = 4096
		if cfg.Framing == FramingDatagram {
			cfg.ReadBufferSize = 65536
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("component", "transport", "transport", cfg.Name)
	}

	sink := deps.Sink
	if sink == nil {
		sink = func(string) {}
	}

	c := &Connection{
		name:      cfg.Name,
		framing:   cfg.Framing,
		delay:     cfg.ReconnectDelay,
		bufSize:   cfg.ReadBufferSize,
		dialer:    deps.Dialer,
		sink:      sink,
		logger:    logger,
		metrics:   deps.MetricsRegistry.CoreMetrics(),
		startTime: time.Now(),
	}
	c.lastActivity.Store(time.Time{})
	if c.metrics != nil {
		c.metrics.TransportState.WithLabelValues(c.name).Set(float64(StateDisabled))
	}
	return c
}

// Name returns the transport name.
func (c *Connection) Name() string {
	return c.name
}

// State returns the current state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Session returns the id of the current or most recent session.
func (c *Connection) Session() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Running reports whether the connect loop is active.
func (c *Connection) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancel != nil
}

// observe installs a function called after every state change. The
// function should read State itself rather than trust call order.
func (c *Connection) observe(fn func(*Connection)) {
	c.observer.Store(&fn)
}

// Start launches the connect loop. Starting a running connection is a no-op.
func (c *Connection) Start(ctx context.Context) error {
	if c.dialer == nil {
		return errors.WrapInvalid(errors.ErrMissingConfig, "input", "Start", "dialer check")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.gen++
	c.cancel = cancel
	c.done = make(chan struct{})
	c.startTime = time.Now()

	go c.run(runCtx, c.gen, c.done)
	return nil
}

// Stop moves the connection to Disabled and cancels any session or pending
// reconnect. It waits up to timeout for the loop to exit and is safe to call
// repeatedly. Called from the connection's own sink or state observer,
// it returns without waiting; the loop exits once that callback returns.
func (c *Connection) Stop(timeout time.Duration) error {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel = nil
	c.gen++
	prev := c.state
	c.state = StateDisabled
	c.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	c.stateChanged(prev, StateDisabled, nil)

	if c.callbacks.Load() > 0 {
		return nil
	}

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return errors.WrapTransient(fmt.Errorf("stop timeout after %v", timeout),
			"input", "Stop", "graceful shutdown")
	}
}

func (c *Connection) run(ctx context.Context, gen uint64, done chan struct{}) {
	defer close(done)

	attempts := 0
	cfg := retry.Fixed(c.delay)
	cfg.OnRetry = func(_ int, err error, delay time.Duration) {
		c.logger.Debug("Transport reconnect scheduled", "delay", delay, "error", err)
	}

	err := retry.Do(ctx, cfg, func() error {
		attempts++
		if attempts > 1 {
			c.reconnects.Add(1)
			if c.metrics != nil {
				c.metrics.TransportReconnects.WithLabelValues(c.name).Inc()
			}
		}
		return c.runSession(ctx, gen)
	})

	// A cancelled parent context ends the loop without Stop; tidy up so the
	// connection can be started again.
	c.mu.Lock()
	if c.gen == gen {
		prev := c.state
		c.state = StateDisabled
		if c.cancel != nil {
			c.cancel()
			c.cancel = nil
		}
		c.mu.Unlock()
		c.inCallback(func() { c.stateChanged(prev, StateDisabled, nil) })
	} else {
		c.mu.Unlock()
	}

	c.logger.Debug("Transport loop exited", "reason", err)
}

// runSession dials once and reads until the stream fails or ctx ends. It
// always returns an error so the retry loop schedules the next attempt.
func (c *Connection) runSession(ctx context.Context, gen uint64) error {
	id := uuid.NewString()
	if !c.setState(gen, StateConnecting, nil, id) {
		return ctx.Err()
	}
	logger := c.logger.With("session", id)

	stream, err := c.dialer.Dial(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err = errors.WrapTransient(err, "input", "Dial", c.name)
		c.fail(gen, err)
		return err
	}
	defer func() { _ = stream.Close() }()

	// Unblock a pending Read as soon as the session is cancelled.
	stopClose := context.AfterFunc(ctx, func() { _ = stream.Close() })
	defer stopClose()

	if !c.setState(gen, StateConnected, nil, id) {
		return ctx.Err()
	}
	logger.Debug("Transport session open")

	framer := NewFramer(c.emit)
	buf := make([]byte, c.bufSize)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := stream.Read(buf)
		if n > 0 {
			c.deliver(framer, buf[:n])
		}
		if err == nil || isTimeout(err) {
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		var lost error
		if errors.Is(err, io.EOF) {
			framer.Flush()
			lost = errors.WrapTransient(errors.ErrStreamClosed, "input", "Read", c.name)
		} else {
			lost = errors.WrapTransient(fmt.Errorf("%w: %v", errors.ErrConnectionLost, err),
				"input", "Read", c.name)
		}
		c.fail(gen, lost)
		return lost
	}
}

func (c *Connection) deliver(framer *Framer, data []byte) {
	c.bytes.Add(int64(len(data)))
	c.lastActivity.Store(time.Now())
	if c.metrics != nil {
		c.metrics.TransportBytes.WithLabelValues(c.name).Add(float64(len(data)))
	}

	if c.framing == FramingDatagram {
		SplitDatagram(data, c.emit)
		return
	}
	_, _ = framer.Write(data)
}

func (c *Connection) emit(line string) {
	c.lines.Add(1)
	c.inCallback(func() { c.sink(line) })
}

// inCallback runs fn on the loop goroutine with the callback mark set.
func (c *Connection) inCallback(fn func()) {
	c.callbacks.Add(1)
	defer c.callbacks.Add(-1)
	fn()
}

func (c *Connection) fail(gen uint64, err error) {
	c.errorCount.Add(1)
	c.setState(gen, StateFailed, err, "")
}

// setState applies s if gen is still the current generation. It reports
// false for a superseded loop.
func (c *Connection) setState(gen uint64, s State, err error, session string) bool {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return false
	}
	prev := c.state
	c.state = s
	if err != nil {
		c.lastErr = err.Error()
	}
	if session != "" {
		c.session = session
	}
	c.mu.Unlock()

	c.inCallback(func() { c.stateChanged(prev, s, err) })
	return true
}

func (c *Connection) stateChanged(prev, next State, err error) {
	if c.metrics != nil {
		c.metrics.TransportState.WithLabelValues(c.name).Set(float64(next))
	}
	if prev == next {
		return
	}

	if err != nil {
		c.logger.Info("Transport state changed", "from", prev, "to", next, "error", err)
	} else {
		c.logger.Info("Transport state changed", "from", prev, "to", next)
	}

	if fn := c.observer.Load(); fn != nil {
		(*fn)(c)
	}
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// Meta returns the component metadata.
func (c *Connection) Meta() component.Metadata {
	return component.Metadata{
		Name:        c.name,
		Type:        "input",
		Description: fmt.Sprintf("%s transport connection", c.name),
		Version:     "1.0.0",
	}
}

// Health reports healthy while connected.
func (c *Connection) Health() component.HealthStatus {
	c.mu.Lock()
	state, lastErr, started := c.state, c.lastErr, c.startTime
	c.mu.Unlock()

	return component.HealthStatus{
		Healthy:    state == StateConnected,
		LastCheck:  time.Now(),
		ErrorCount: int(c.errorCount.Load()),
		LastError:  lastErr,
		Uptime:     time.Since(started),
	}
}

// DataFlow returns line and byte rates since the last start.
func (c *Connection) DataFlow() component.FlowMetrics {
	c.mu.Lock()
	started := c.startTime
	c.mu.Unlock()

	last, _ := c.lastActivity.Load().(time.Time)
	return component.Rates(c.lines.Load(), c.bytes.Load(), c.errorCount.Load(), time.Since(started), last)
}

// Stats is a point-in-time copy of the connection counters.
type Stats struct {
	Lines      int64 `json:"lines"`
	Bytes      int64 `json:"bytes"`
	Errors     int64 `json:"errors"`
	Reconnects int64 `json:"reconnects"`
}

// Stats returns the connection counters.
func (c *Connection) Stats() Stats {
	return Stats{
		Lines:      c.lines.Load(),
		Bytes:      c.bytes.Load(),
		Errors:     c.errorCount.Load(),
		Reconnects: c.reconnects.Load(),
	}
}
