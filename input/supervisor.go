package input

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/seatrack/errors"
	"github.com/c360/seatrack/health"
	"github.com/c360/seatrack/metric"
)

// DefaultStopTimeout bounds how long Disable waits for a transport loop.
const DefaultStopTimeout = 2 * time.Second

// SupervisorDeps holds runtime dependencies for a Supervisor.
type SupervisorDeps struct {
	Health          *health.Monitor         // Receives one status per enabled transport (can be nil)
	StopTimeout     time.Duration           // 0 means DefaultStopTimeout
	MetricsRegistry *metric.MetricsRegistry // Metrics registry (can be nil)
	Logger          *slog.Logger            // Structured logger (can be nil)
}

// Supervisor owns the enabled flag of every transport and folds their
// states into a single connected flag.
type Supervisor struct {
	mu      sync.RWMutex
	conns   map[string]*Connection
	enabled map[string]bool
	baseCtx context.Context

	connected   atomic.Bool
	health      *health.Monitor
	stopTimeout time.Duration
	logger      *slog.Logger
	metrics     *metric.Metrics
}

// NewSupervisor creates an empty Supervisor.
func NewSupervisor(deps SupervisorDeps) *Supervisor {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("component", "supervisor")
	}
	timeout := deps.StopTimeout
	if timeout <= 0 {
		timeout = DefaultStopTimeout
	}

	return &Supervisor{
		conns:       make(map[string]*Connection),
		enabled:     make(map[string]bool),
		baseCtx:     context.Background(),
		health:      deps.Health,
		stopTimeout: timeout,
		logger:      logger,
		metrics:     deps.MetricsRegistry.CoreMetrics(),
	}
}

// SetContext sets the parent context of transports started by Enable. The
// engine passes its run context so a shutdown reaches every transport.
func (s *Supervisor) SetContext(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.baseCtx = ctx
}

// Add registers a stopped connection under its name.
func (s *Supervisor) Add(c *Connection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.Name() == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "supervisor", "Add", "transport name")
	}
	if _, exists := s.conns[c.Name()]; exists {
		return errors.WrapInvalid(fmt.Errorf("%w: duplicate transport %q", errors.ErrInvalidConfig, c.Name()),
			"supervisor", "Add", "transport name")
	}

	s.conns[c.Name()] = c
	c.observe(s.refresh)
	return nil
}

// Enable marks the transport enabled and starts it. Enabling an enabled
// transport is a no-op.
func (s *Supervisor) Enable(name string) error {
	s.mu.Lock()
	c, ok := s.conns[name]
	if !ok {
		s.mu.Unlock()
		return errors.WrapInvalid(fmt.Errorf("%w: %q", errors.ErrUnknownTransport, name),
			"supervisor", "Enable", "transport lookup")
	}
	s.enabled[name] = true
	ctx := s.baseCtx
	s.mu.Unlock()

	if err := c.Start(ctx); err != nil {
		return errors.Wrap(err, "supervisor", "Enable", name)
	}
	s.logger.Info("Transport enabled", "transport", name)
	return nil
}

// Disable clears the enabled flag and stops the transport, cancelling any
// pending reconnect.
func (s *Supervisor) Disable(name string) error {
	s.mu.Lock()
	c, ok := s.conns[name]
	if !ok {
		s.mu.Unlock()
		return errors.WrapInvalid(fmt.Errorf("%w: %q", errors.ErrUnknownTransport, name),
			"supervisor", "Disable", "transport lookup")
	}
	s.enabled[name] = false
	s.mu.Unlock()

	err := c.Stop(s.stopTimeout)
	s.logger.Info("Transport disabled", "transport", name)
	return err
}

// Enabled reports the transport's enabled flag.
func (s *Supervisor) Enabled(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.enabled[name]
}

// Connection returns the named transport.
func (s *Supervisor) Connection(name string) (*Connection, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conns[name]
	return c, ok
}

// Names returns the registered transport names in sorted order.
func (s *Supervisor) Names() []string {
	s.mu.RLock()
	names := make([]string, 0, len(s.conns))
	for name := range s.conns {
		names = append(names, name)
	}
	s.mu.RUnlock()

	sort.Strings(names)
	return names
}

// Connected reports whether any transport is connected.
func (s *Supervisor) Connected() bool {
	return s.connected.Load()
}

// States returns every transport's current state.
func (s *Supervisor) States() map[string]State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	states := make(map[string]State, len(s.conns))
	for name, c := range s.conns {
		states[name] = c.State()
	}
	return states
}

// StopAll disables every transport.
func (s *Supervisor) StopAll(timeout time.Duration) error {
	s.mu.Lock()
	conns := make([]*Connection, 0, len(s.conns))
	for name, c := range s.conns {
		s.enabled[name] = false
		conns = append(conns, c)
	}
	s.mu.Unlock()

	var errs []error
	for _, c := range conns {
		if err := c.Stop(timeout); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// refresh runs after any transport changes state.
func (s *Supervisor) refresh(changed *Connection) {
	s.mu.RLock()
	up := false
	for _, c := range s.conns {
		if c.State() == StateConnected {
			up = true
			break
		}
	}
	s.mu.RUnlock()

	if prev := s.connected.Swap(up); prev != up {
		s.logger.Info("Connectivity changed", "connected", up)
	}
	if s.metrics != nil {
		v := 0.0
		if up {
			v = 1
		}
		s.metrics.Connected.Set(v)
	}

	if s.health == nil {
		return
	}
	name := changed.Name()
	switch changed.State() {
	case StateDisabled:
		s.health.Remove(name)
	case StateConnecting:
		s.health.Update(name, health.NewDegraded(name, "connecting"))
	case StateConnected:
		ch := changed.Health()
		st := health.NewHealthy(name, "connected")
		s.health.Update(name, st.WithMetrics(&health.Metrics{
			Uptime:            ch.Uptime,
			ErrorCount:        ch.ErrorCount,
			MessagesProcessed: changed.Stats().Lines,
		}))
	case StateFailed:
		s.health.Update(name, health.FromComponentHealth(name, changed.Health()))
	}
}
