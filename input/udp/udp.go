// Package udp provides the UDP transport: a bound socket whose datagrams are
// split into lines and handed to the router.
package udp

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/seatrack/errors"
	"github.com/c360/seatrack/input"
	"github.com/c360/seatrack/metric"
)

// DefaultPort is the conventional NMEA-over-UDP port.
const DefaultPort = 10110

// Metrics holds Prometheus metrics for the UDP socket
type Metrics struct {
	packetsReceived prometheus.Counter
	socketErrors    prometheus.Counter
	lastActivity    prometheus.Gauge
}

// newMetrics creates and registers UDP metrics
func newMetrics(registry *metric.MetricsRegistry, port int) *Metrics {
	// nil registry means metrics are disabled
	if registry == nil {
		return nil
	}

	metrics := &Metrics{
		packetsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "seatrack",
			Subsystem: "udp",
			Name:      "packets_received_total",
			Help:      "Total UDP datagrams received",
		}),
		socketErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "seatrack",
			Subsystem: "udp",
			Name:      "socket_errors_total",
			Help:      "Socket read errors encountered",
		}),
		lastActivity: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "seatrack",
			Subsystem: "udp",
			Name:      "last_activity_timestamp",
			Help:      "Unix timestamp of last received datagram",
		}),
	}

	serviceName := fmt.Sprintf("udp_%d", port)
	_ = registry.RegisterCounter(serviceName, "packets_received", metrics.packetsReceived)
	_ = registry.RegisterCounter(serviceName, "socket_errors", metrics.socketErrors)
	_ = registry.RegisterGauge(serviceName, "last_activity", metrics.lastActivity)

	return metrics
}

// Config holds the UDP socket settings.
type Config struct {
	Bind        string        `json:"bind"`
	Port        int           `json:"port"`
	ReadTimeout time.Duration `json:"read_timeout"`
}

// DefaultConfig listens on all interfaces on DefaultPort.
func DefaultConfig() Config {
	return Config{
		Bind:        "0.0.0.0",
		Port:        DefaultPort,
		ReadTimeout: time.Second,
	}
}

// Validate checks the socket settings. Port 0 lets the OS pick one.
func (c Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return errors.WrapInvalid(fmt.Errorf("invalid port %d", c.Port),
			"udp-input", "Validate", "port validation")
	}
	if c.Bind != "" && net.ParseIP(c.Bind) == nil {
		return errors.WrapInvalid(fmt.Errorf("invalid bind address %q", c.Bind),
			"udp-input", "Validate", "bind validation")
	}
	return nil
}

// Dialer binds the UDP socket for each session.
type Dialer struct {
	cfg     Config
	logger  *slog.Logger
	metrics *Metrics

	mu   sync.Mutex
	addr net.Addr
}

// NewDialer creates a Dialer for cfg.
func NewDialer(cfg Config, registry *metric.MetricsRegistry, logger *slog.Logger) *Dialer {
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = time.Second
	}
	if logger == nil {
		logger = slog.Default().With("component", "udp-input", "port", cfg.Port)
	}
	return &Dialer{cfg: cfg, logger: logger, metrics: newMetrics(registry, cfg.Port)}
}

// Dial binds the socket.
func (d *Dialer) Dial(_ context.Context) (input.Stream, error) {
	addr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(d.cfg.Bind, fmt.Sprint(d.cfg.Port)))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve UDP address %s:%d: %w", d.cfg.Bind, d.cfg.Port, err)
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on UDP port %d: %w", d.cfg.Port, err)
	}

	// Some systems cap the buffer size; a smaller buffer only risks drops.
	const socketBufferSize = 2 * 1024 * 1024
	if err := conn.SetReadBuffer(socketBufferSize); err != nil {
		d.logger.Warn("Could not set UDP buffer size",
			"buffer_size", socketBufferSize,
			"port", d.cfg.Port,
			"error", err)
	}

	d.mu.Lock()
	d.addr = conn.LocalAddr()
	d.mu.Unlock()

	return &socket{conn: conn, timeout: d.cfg.ReadTimeout, metrics: d.metrics}, nil
}

// Addr returns the most recently bound local address, or nil.
func (d *Dialer) Addr() net.Addr {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.addr
}

// socket reads one datagram per Read.
type socket struct {
	conn    *net.UDPConn
	timeout time.Duration
	metrics *Metrics
}

func (s *socket) Read(p []byte) (int, error) {
	// Deadline lets the read loop observe a stop between datagrams
	_ = s.conn.SetReadDeadline(time.Now().Add(s.timeout))

	n, _, err := s.conn.ReadFromUDP(p)
	if err != nil {
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			return 0, nil
		}
		if s.metrics != nil {
			s.metrics.socketErrors.Inc()
		}
		return n, err
	}

	if s.metrics != nil {
		s.metrics.packetsReceived.Inc()
		s.metrics.lastActivity.Set(float64(time.Now().Unix()))
	}
	return n, nil
}

func (s *socket) Close() error {
	return s.conn.Close()
}

// InputDeps holds runtime dependencies for the UDP input
type InputDeps struct {
	Name            string                  // Transport name, "udp" when empty
	Config          Config                  // Socket configuration
	ReconnectDelay  time.Duration           // Pause before rebinding after a failure
	Sink            input.LineSink          // Receives every line
	MetricsRegistry *metric.MetricsRegistry // Runtime dependency
	Logger          *slog.Logger            // Runtime dependency
}

// Input is the UDP transport connection.
type Input struct {
	*input.Connection
	dialer *Dialer
}

// NewInput validates the configuration and creates a stopped UDP input.
func NewInput(deps InputDeps) (*Input, error) {
	if err := deps.Config.Validate(); err != nil {
		return nil, err
	}

	name := deps.Name
	if name == "" {
		name = "udp"
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("component", "udp-input", "port", deps.Config.Port)
	}

	dialer := NewDialer(deps.Config, deps.MetricsRegistry, logger)
	conn := input.NewConnection(input.Deps{
		Config: input.Config{
			Name:           name,
			Framing:        input.FramingDatagram,
			ReconnectDelay: deps.ReconnectDelay,
		},
		Dialer:          dialer,
		Sink:            deps.Sink,
		MetricsRegistry: deps.MetricsRegistry,
		Logger:          logger,
	})

	return &Input{Connection: conn, dialer: dialer}, nil
}

// Addr returns the bound local address once the socket is open.
func (i *Input) Addr() net.Addr {
	return i.dialer.Addr()
}
