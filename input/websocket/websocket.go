// Package websocket provides the WebSocket client transport. Each text or
// binary message from the server is treated like a UDP datagram: it may
// carry one or more newline-separated lines.
package websocket

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/c360/seatrack/errors"
	"github.com/c360/seatrack/input"
	"github.com/c360/seatrack/metric"
)

// maxMessageSize matches the datagram read buffer of input.Connection.
const maxMessageSize = 65536

// Config holds the WebSocket client settings.
type Config struct {
	URL            string        `json:"url"`
	Token          string        `json:"token,omitempty"` // sent as a Bearer token when set
	ConnectTimeout time.Duration `json:"connect_timeout"`
	IdleTimeout    time.Duration `json:"idle_timeout"` // no message or pong for this long drops the session
}

// DefaultConfig returns a five second handshake and a one minute idle limit.
func DefaultConfig() Config {
	return Config{
		ConnectTimeout: 5 * time.Second,
		IdleTimeout:    time.Minute,
	}
}

// Validate checks that the URL is ws:// or wss://.
func (c Config) Validate() error {
	if c.URL == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "websocket-input", "Validate", "url")
	}
	u, err := url.Parse(c.URL)
	if err != nil {
		return errors.WrapInvalid(err, "websocket-input", "Validate", "url parsing")
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return errors.WrapInvalid(fmt.Errorf("unsupported scheme %q", u.Scheme),
			"websocket-input", "Validate", "url scheme")
	}
	return nil
}

// Dialer performs the WebSocket handshake.
type Dialer struct {
	cfg Config
	ws  websocket.Dialer
}

// NewDialer creates a Dialer for cfg.
func NewDialer(cfg Config) *Dialer {
	def := DefaultConfig()
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = def.ConnectTimeout
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = def.IdleTimeout
	}
	return &Dialer{
		cfg: cfg,
		ws: websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.ConnectTimeout,
		},
	}
}

// Dial connects and starts the keepalive pings.
func (d *Dialer) Dial(ctx context.Context) (input.Stream, error) {
	headers := http.Header{}
	if d.cfg.Token != "" {
		headers.Set("Authorization", "Bearer "+d.cfg.Token)
	}

	conn, resp, err := d.ws.DialContext(ctx, d.cfg.URL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("connect %s: %w (status %d)", d.cfg.URL, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("connect %s: %w", d.cfg.URL, err)
	}

	s := &stream{conn: conn, idle: d.cfg.IdleTimeout, stop: make(chan struct{})}
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(s.idle))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.idle))
	})
	go s.ping()
	return s, nil
}

type stream struct {
	conn *websocket.Conn
	idle time.Duration

	writeMu   sync.Mutex
	stop      chan struct{}
	closeOnce sync.Once
}

// Read returns one message per call. A message longer than p is an error
// because datagram framing cannot resume a split message.
func (s *stream) Read(p []byte) (int, error) {
	_, msg, err := s.conn.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return 0, io.EOF
		}
		// gorilla connections cannot be read again after any error,
		// including a deadline, so none of them may look like a timeout.
		return 0, fmt.Errorf("websocket read: %s", err.Error())
	}
	_ = s.conn.SetReadDeadline(time.Now().Add(s.idle))
	if len(msg) > len(p) {
		return 0, fmt.Errorf("websocket message of %d bytes exceeds buffer", len(msg))
	}
	return copy(p, msg), nil
}

func (s *stream) ping() {
	ticker := time.NewTicker(s.idle / 2)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.writeMu.Lock()
			err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second))
			s.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (s *stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.stop)
		s.writeMu.Lock()
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		s.writeMu.Unlock()
		err = s.conn.Close()
	})
	return err
}

// InputDeps holds runtime dependencies for the WebSocket input
type InputDeps struct {
	Name            string                  // Transport name, "websocket" when empty
	Config          Config                  // Client configuration
	ReconnectDelay  time.Duration           // Pause between a failure and the next attempt
	Sink            input.LineSink          // Receives every line
	MetricsRegistry *metric.MetricsRegistry // Runtime dependency
	Logger          *slog.Logger            // Runtime dependency
}

// NewInput validates the configuration and creates a stopped WebSocket
// connection.
func NewInput(deps InputDeps) (*input.Connection, error) {
	if err := deps.Config.Validate(); err != nil {
		return nil, err
	}

	name := deps.Name
	if name == "" {
		name = "websocket"
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("component", "websocket-input", "url", deps.Config.URL)
	}

	return input.NewConnection(input.Deps{
		Config: input.Config{
			Name:           name,
			Framing:        input.FramingDatagram,
			ReconnectDelay: deps.ReconnectDelay,
			ReadBufferSize: maxMessageSize,
		},
		Dialer:          NewDialer(deps.Config),
		Sink:            deps.Sink,
		MetricsRegistry: deps.MetricsRegistry,
		Logger:          logger,
	}), nil
}
