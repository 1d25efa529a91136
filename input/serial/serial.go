// Package serial provides the serial-port transport for directly attached
// NMEA talkers and AIS receivers.
package serial

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.bug.st/serial"

	"github.com/c360/seatrack/errors"
	"github.com/c360/seatrack/input"
	"github.com/c360/seatrack/metric"
)

// Common NMEA 0183 line rates.
const (
	BaudNMEA = 4800
	BaudAIS  = 38400
)

// Config holds the serial port settings.
type Config struct {
	Port        string        `json:"port"`
	BaudRate    int           `json:"baud_rate"`
	ReadTimeout time.Duration `json:"read_timeout"`
}

// DefaultConfig returns the AIS receiver baud rate and a one-second read
// timeout.
func DefaultConfig() Config {
	return Config{BaudRate: BaudAIS, ReadTimeout: time.Second}
}

// Validate checks the port name and baud rate.
func (c Config) Validate() error {
	if c.Port == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "serial-input", "Validate", "port")
	}
	if c.BaudRate <= 0 {
		return errors.WrapInvalid(fmt.Errorf("invalid baud rate %d", c.BaudRate),
			"serial-input", "Validate", "baud rate")
	}
	return nil
}

// Port is the subset of serial.Port the transport uses.
type Port interface {
	Read(p []byte) (int, error)
	SetReadTimeout(t time.Duration) error
	Close() error
}

// OpenFunc opens a named port.
type OpenFunc func(name string, mode *serial.Mode) (Port, error)

func openPort(name string, mode *serial.Mode) (Port, error) {
	return serial.Open(name, mode)
}

// Dialer opens the configured port.
type Dialer struct {
	cfg  Config
	open OpenFunc
}

// NewDialer creates a Dialer. A nil open uses the system serial driver.
func NewDialer(cfg Config, open OpenFunc) *Dialer {
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = time.Second
	}
	if open == nil {
		open = openPort
	}
	return &Dialer{cfg: cfg, open: open}
}

// Dial opens the port in 8N1 mode with the configured read timeout. A read
// that times out returns (0, nil).
func (d *Dialer) Dial(_ context.Context) (input.Stream, error) {
	port, err := d.open(d.cfg.Port, &serial.Mode{
		BaudRate: d.cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", d.cfg.Port, err)
	}
	if err := port.SetReadTimeout(d.cfg.ReadTimeout); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("set read timeout on %s: %w", d.cfg.Port, err)
	}
	return port, nil
}

// Ports lists the serial ports present on the host.
func Ports() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, errors.WrapTransient(err, "serial-input", "Ports", "port enumeration")
	}
	return ports, nil
}

// InputDeps holds runtime dependencies for the serial input
type InputDeps struct {
	Name            string                  // Transport name, "serial" when empty
	Config          Config                  // Port configuration
	Open            OpenFunc                // Port opener (nil for the system driver)
	ReconnectDelay  time.Duration           // Pause before reopening after a failure
	Sink            input.LineSink          // Receives every line
	MetricsRegistry *metric.MetricsRegistry // Runtime dependency
	Logger          *slog.Logger            // Runtime dependency
}

// NewInput validates the configuration and creates a stopped serial
// connection.
func NewInput(deps InputDeps) (*input.Connection, error) {
	if err := deps.Config.Validate(); err != nil {
		return nil, err
	}

	name := deps.Name
	if name == "" {
		name = "serial"
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("component", "serial-input", "port", deps.Config.Port)
	}

	return input.NewConnection(input.Deps{
		Config: input.Config{
			Name:           name,
			Framing:        input.FramingStream,
			ReconnectDelay: deps.ReconnectDelay,
		},
		Dialer:          NewDialer(deps.Config, deps.Open),
		Sink:            deps.Sink,
		MetricsRegistry: deps.MetricsRegistry,
		Logger:          logger,
	}), nil
}
