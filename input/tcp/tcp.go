// Package tcp provides the TCP client transport. Bytes from the remote
// talker are framed into sentences and handed to the router.
package tcp

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/c360/seatrack/errors"
	"github.com/c360/seatrack/input"
	"github.com/c360/seatrack/metric"
)

// Config holds the TCP client settings.
type Config struct {
	Address        string        `json:"address"`
	ConnectTimeout time.Duration `json:"connect_timeout"`
	ReadTimeout    time.Duration `json:"read_timeout"`
}

// DefaultConfig returns one-second connect and read timeouts.
func DefaultConfig() Config {
	return Config{
		ConnectTimeout: time.Second,
		ReadTimeout:    time.Second,
	}
}

// Validate checks that the address is host:port.
func (c Config) Validate() error {
	if c.Address == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "tcp-input", "Validate", "address")
	}
	if _, _, err := net.SplitHostPort(c.Address); err != nil {
		return errors.WrapInvalid(fmt.Errorf("invalid TCP address %q: %w", c.Address, err),
			"tcp-input", "Validate", "address parsing")
	}
	return nil
}

// Dialer connects to the configured address with a bounded timeout.
type Dialer struct {
	cfg Config
	net net.Dialer
}

// NewDialer creates a Dialer for cfg.
func NewDialer(cfg Config) *Dialer {
	def := DefaultConfig()
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = def.ConnectTimeout
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = def.ReadTimeout
	}
	return &Dialer{cfg: cfg, net: net.Dialer{Timeout: cfg.ConnectTimeout}}
}

// Dial opens the connection.
func (d *Dialer) Dial(ctx context.Context) (input.Stream, error) {
	conn, err := d.net.DialContext(ctx, "tcp", d.cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", d.cfg.Address, err)
	}
	return &stream{conn: conn, timeout: d.cfg.ReadTimeout}, nil
}

type stream struct {
	conn    net.Conn
	timeout time.Duration
}

func (s *stream) Read(p []byte) (int, error) {
	_ = s.conn.SetReadDeadline(time.Now().Add(s.timeout))
	return s.conn.Read(p)
}

func (s *stream) Close() error {
	return s.conn.Close()
}

// InputDeps holds runtime dependencies for the TCP input
type InputDeps struct {
	Name            string                  // Transport name, "tcp" when empty
	Config          Config                  // Client configuration
	ReconnectDelay  time.Duration           // Pause between a failure and the next attempt
	Sink            input.LineSink          // Receives every line
	MetricsRegistry *metric.MetricsRegistry // Runtime dependency
	Logger          *slog.Logger            // Runtime dependency
}

// NewInput validates the configuration and creates a stopped TCP connection.
func NewInput(deps InputDeps) (*input.Connection, error) {
	if err := deps.Config.Validate(); err != nil {
		return nil, err
	}

	name := deps.Name
	if name == "" {
		name = "tcp"
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("component", "tcp-input", "address", deps.Config.Address)
	}

	return input.NewConnection(input.Deps{
		Config: input.Config{
			Name:           name,
			Framing:        input.FramingStream,
			ReconnectDelay: deps.ReconnectDelay,
		},
		Dialer:          NewDialer(deps.Config),
		Sink:            deps.Sink,
		MetricsRegistry: deps.MetricsRegistry,
		Logger:          logger,
	}), nil
}
