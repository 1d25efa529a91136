// Package websocket relays raw router lines to WebSocket clients so chart
// plotters and loggers on the network see the same traffic the router sees.
package websocket

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/seatrack/component"
	"github.com/c360/seatrack/errors"
	"github.com/c360/seatrack/metric"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Config holds configuration for the relay
type Config struct {
	Listen      string `json:"listen"`       // host:port
	Path        string `json:"path"`         // endpoint path
	ClientQueue int    `json:"client_queue"` // lines buffered per client
}

// DefaultConfig returns the default relay configuration
func DefaultConfig() Config {
	return Config{
		Listen:      ":10111",
		Path:        "/ws",
		ClientQueue: 256,
	}
}

// Validate checks the configuration for errors
func (c Config) Validate() error {
	if c.Listen == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate", "listen address")
	}
	if _, _, err := net.SplitHostPort(c.Listen); err != nil {
		return errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrInvalidConfig, err), "Config", "Validate", "listen address")
	}
	if c.Path == "" || c.Path[0] != '/' {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "path must start with /")
	}
	return nil
}

// Metrics holds Prometheus metrics for the relay
type Metrics struct {
	clientsConnected prometheus.Gauge
	linesSent        prometheus.Counter
	linesDropped     prometheus.Counter
}

func newMetrics(registry *metric.MetricsRegistry) *Metrics {
	if registry == nil {
		return nil
	}

	m := &Metrics{
		clientsConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "seatrack",
			Subsystem: "relay",
			Name:      "clients_connected",
			Help:      "Number of currently connected relay clients",
		}),
		linesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "seatrack",
			Subsystem: "relay",
			Name:      "lines_sent_total",
			Help:      "Lines written to relay clients",
		}),
		linesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "seatrack",
			Subsystem: "relay",
			Name:      "lines_dropped_total",
			Help:      "Lines dropped because a client queue was full",
		}),
	}

	_ = registry.RegisterGauge("relay", "clients_connected", m.clientsConnected)
	_ = registry.RegisterCounter("relay", "lines_sent", m.linesSent)
	_ = registry.RegisterCounter("relay", "lines_dropped", m.linesDropped)
	return m
}

// client is one connected WebSocket peer.
type client struct {
	conn        *websocket.Conn
	send        chan []byte
	connectedAt time.Time
	closeOnce   sync.Once
}

func (c *client) close() {
	c.closeOnce.Do(func() { _ = c.conn.Close() })
}

// Relay is a WebSocket server that broadcasts every line it is given.
type Relay struct {
	cfg      Config
	upgrader websocket.Upgrader
	logger   *slog.Logger
	metrics  *Metrics

	clientsMu sync.RWMutex
	clients   map[*client]struct{}

	// Lifecycle management
	lifecycleMu sync.Mutex
	server      *http.Server
	listener    net.Listener
	wg          sync.WaitGroup
	running     atomic.Bool
	startTime   time.Time

	// Metrics
	linesSent    atomic.Int64
	bytesSent    atomic.Int64
	dropped      atomic.Int64
	errors       atomic.Int64
	lastActivity atomic.Value // time.Time
}

var _ component.Discoverable = (*Relay)(nil)

// NewRelay creates a stopped relay.
func NewRelay(cfg Config, registry *metric.MetricsRegistry, logger *slog.Logger) (*Relay, error) {
	def := DefaultConfig()
	if cfg.Path == "" {
		cfg.Path = def.Path
	}
	if cfg.ClientQueue <= 0 {
		cfg.ClientQueue = def.ClientQueue
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default().With("component", "relay")
	}

	r := &Relay{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			// Relay clients are read-only consumers on the local network.
			CheckOrigin:     func(_ *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		logger:  logger,
		metrics: newMetrics(registry),
		clients: make(map[*client]struct{}),
	}
	r.lastActivity.Store(time.Time{})
	return r, nil
}

// Start binds the listen address and serves clients until Stop.
func (r *Relay) Start(ctx context.Context) error {
	r.lifecycleMu.Lock()
	defer r.lifecycleMu.Unlock()

	if r.running.Load() {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "Relay", "Start", "context already cancelled")
	}

	ln, err := net.Listen("tcp", r.cfg.Listen)
	if err != nil {
		return errors.WrapTransient(err, "Relay", "Start", "listen")
	}

	mux := http.NewServeMux()
	mux.HandleFunc(r.cfg.Path, r.handleWebSocket)
	r.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	r.listener = ln
	r.startTime = time.Now()
	r.running.Store(true)

	r.wg.Add(1)
	go r.runServer(r.server, ln)

	r.logger.Info("Relay listening", "addr", ln.Addr().String(), "path", r.cfg.Path)
	return nil
}

// Addr returns the bound address while running.
func (r *Relay) Addr() net.Addr {
	r.lifecycleMu.Lock()
	defer r.lifecycleMu.Unlock()
	if r.listener == nil {
		return nil
	}
	return r.listener.Addr()
}

// Stop shuts down the server and disconnects every client.
func (r *Relay) Stop(timeout time.Duration) error {
	r.lifecycleMu.Lock()
	defer r.lifecycleMu.Unlock()

	if !r.running.Swap(false) {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	shutdownErr := r.server.Shutdown(ctx)

	// Hijacked connections are not closed by Shutdown.
	r.clientsMu.Lock()
	for c := range r.clients {
		c.close()
	}
	r.clientsMu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return errors.WrapTransient(fmt.Errorf("stop timeout after %v", timeout), "Relay", "Stop", "graceful shutdown")
	}

	r.server = nil
	r.listener = nil
	if shutdownErr != nil {
		return errors.WrapTransient(shutdownErr, "Relay", "Stop", "server shutdown")
	}
	return nil
}

func (r *Relay) runServer(server *http.Server, ln net.Listener) {
	defer r.wg.Done()

	if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
		r.errors.Add(1)
		r.logger.Error("Relay server failed", "error", err)
	}
}

func (r *Relay) handleWebSocket(w http.ResponseWriter, req *http.Request) {
	if !r.running.Load() {
		http.Error(w, "relay stopped", http.StatusServiceUnavailable)
		return
	}

	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.errors.Add(1)
		return
	}

	c := &client{
		conn:        conn,
		send:        make(chan []byte, r.cfg.ClientQueue),
		connectedAt: time.Now(),
	}

	r.clientsMu.Lock()
	r.clients[c] = struct{}{}
	count := len(r.clients)
	r.clientsMu.Unlock()

	if r.metrics != nil {
		r.metrics.clientsConnected.Set(float64(count))
	}
	r.logger.Debug("Relay client connected", "remote", conn.RemoteAddr().String(), "clients", count)

	r.wg.Add(2)
	go r.readPump(c)
	go r.writePump(c)
}

// readPump discards client input and detects disconnects.
func (r *Relay) readPump(c *client) {
	defer r.wg.Done()
	defer r.removeClient(c)

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (r *Relay) writePump(c *client) {
	defer r.wg.Done()
	defer c.close()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case line, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(writeWait))
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, line); err != nil {
				r.errors.Add(1)
				return
			}
			r.linesSent.Add(1)
			r.bytesSent.Add(int64(len(line)))
			if r.metrics != nil {
				r.metrics.linesSent.Inc()
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (r *Relay) removeClient(c *client) {
	r.clientsMu.Lock()
	if _, ok := r.clients[c]; ok {
		delete(r.clients, c)
		close(c.send)
	}
	count := len(r.clients)
	r.clientsMu.Unlock()

	if r.metrics != nil {
		r.metrics.clientsConnected.Set(float64(count))
	}
}

// Broadcast queues line for every client. A client whose queue is full
// misses the line. It has the router listener signature.
func (r *Relay) Broadcast(line string) {
	if !r.running.Load() {
		return
	}
	data := []byte(line)
	r.lastActivity.Store(time.Now())

	r.clientsMu.RLock()
	defer r.clientsMu.RUnlock()

	for c := range r.clients {
		select {
		case c.send <- data:
		default:
			r.dropped.Add(1)
			if r.metrics != nil {
				r.metrics.linesDropped.Inc()
			}
		}
	}
}

// ClientCount returns the number of connected clients.
func (r *Relay) ClientCount() int {
	r.clientsMu.RLock()
	defer r.clientsMu.RUnlock()
	return len(r.clients)
}

// Meta returns the component metadata
func (r *Relay) Meta() component.Metadata {
	return component.Metadata{
		Name:        "relay",
		Type:        "output",
		Description: fmt.Sprintf("WebSocket line relay on %s%s", r.cfg.Listen, r.cfg.Path),
		Version:     "1.0.0",
	}
}

// Health returns the current health status of the component
func (r *Relay) Health() component.HealthStatus {
	r.lifecycleMu.Lock()
	started := r.startTime
	r.lifecycleMu.Unlock()

	return component.HealthStatus{
		Healthy:    r.running.Load(),
		LastCheck:  time.Now(),
		ErrorCount: int(r.errors.Load()),
		Uptime:     time.Since(started),
	}
}

// DataFlow returns the current data flow metrics
func (r *Relay) DataFlow() component.FlowMetrics {
	r.lifecycleMu.Lock()
	started := r.startTime
	r.lifecycleMu.Unlock()

	last, _ := r.lastActivity.Load().(time.Time)
	return component.Rates(r.linesSent.Load(), r.bytesSent.Load(), r.errors.Load(), time.Since(started), last)
}
