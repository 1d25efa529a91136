package engine

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/c360/seatrack/component"
	"github.com/c360/seatrack/config"
	"github.com/c360/seatrack/contact"
	"github.com/c360/seatrack/errors"
	gateway "github.com/c360/seatrack/gateway/http"
	"github.com/c360/seatrack/health"
	"github.com/c360/seatrack/input"
	"github.com/c360/seatrack/input/feed"
	"github.com/c360/seatrack/input/serial"
	"github.com/c360/seatrack/input/tcp"
	"github.com/c360/seatrack/input/udp"
	wsinput "github.com/c360/seatrack/input/websocket"
	"github.com/c360/seatrack/natsclient"
	"github.com/c360/seatrack/output/file"
	"github.com/c360/seatrack/output/kafkasink"
	"github.com/c360/seatrack/output/natsink"
	"github.com/c360/seatrack/output/websocket"
	"github.com/c360/seatrack/pkg/retry"
	"github.com/c360/seatrack/processor/router"
)

// natsHealthName is the health monitor entry for the NATS connection.
const natsHealthName = "nats"

// Deps holds the configuration and runtime dependencies of an Engine.
type Deps struct {
	Config *config.Config

	// NATSClient, MetricsRegistry and Logger. A nil NATSClient is built
	// from Config.NATS when the NATS sink is enabled.
	component.Dependencies

	SerialOpen    serial.OpenFunc   // serial port opener (nil for the system driver)
	KafkaWriter   kafkasink.Writer  // Kafka writer (nil builds one from Config.Kafka)
	NATSPublisher natsink.Publisher // overrides the NATS client as publisher
}

// Engine owns every component of a running node.
type Engine struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *engineMetrics

	health     *health.Monitor
	store      *contact.Store
	router     *router.Router
	supervisor *input.Supervisor
	udp        *udp.Input
	relay      *websocket.Relay
	gateway    *gateway.Server

	natsClient *natsclient.Client // connected in the background by Start
	ownsNATS   bool

	outputs  []component.LifecycleComponent // sinks and line listeners
	services []component.LifecycleComponent // feed and gateway

	mu          sync.Mutex
	cancel      context.CancelFunc
	maintCancel context.CancelFunc
	started     []component.LifecycleComponent
	wg          sync.WaitGroup
}

// New builds every configured component without starting any of them.
func New(deps Deps) (*Engine, error) {
	cfg := deps.Config
	if cfg == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "engine", "New", "config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := deps.GetLoggerWithComponent("engine")
	registry := deps.MetricsRegistry

	metrics, err := newEngineMetrics(registry)
	if err != nil {
		logger.Error("Failed to initialize engine metrics", "error", err)
		metrics = nil // Continue without metrics
	}

	e := &Engine{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		health:  health.NewMonitor(),
	}

	e.store = contact.NewStore(contact.StoreDeps{
		Config:          contact.StoreConfig{CacheFile: cfg.Store.CacheFile},
		MetricsRegistry: registry,
		Logger:          deps.GetLoggerWithComponent("contact-store"),
	})
	e.router = router.New(router.Deps{
		Store:           e.store,
		MetricsRegistry: registry,
		Logger:          deps.GetLoggerWithComponent("router"),
	})
	e.supervisor = input.NewSupervisor(input.SupervisorDeps{
		Health:          e.health,
		MetricsRegistry: registry,
		Logger:          deps.GetLoggerWithComponent("supervisor"),
	})

	if err := e.buildTransports(deps); err != nil {
		return nil, err
	}
	if err := e.buildOutputs(deps); err != nil {
		return nil, err
	}
	if err := e.buildServices(deps); err != nil {
		return nil, err
	}
	return e, nil
}

// buildTransports registers one connection per transport kind. Kinds that
// are disabled and misconfigured are skipped so they cannot be enabled at
// runtime either.
func (e *Engine) buildTransports(deps Deps) error {
	cfg := e.cfg
	registry := deps.MetricsRegistry
	sink := e.router.Ingest

	var conns []*input.Connection

	serialConn, err := serial.NewInput(serial.InputDeps{
		Config: serial.Config{
			Port:        cfg.Serial.Port,
			BaudRate:    cfg.Serial.BaudRate,
			ReadTimeout: cfg.Reconnect.ReadTimeout,
		},
		Open:            deps.SerialOpen,
		ReconnectDelay:  cfg.Reconnect.Delay,
		Sink:            sink,
		MetricsRegistry: registry,
		Logger:          deps.GetLogger().With("component", "serial-input", "port", cfg.Serial.Port),
	})
	if err := e.transportResult("serial", cfg.Serial.Enabled, err); err != nil {
		return err
	}
	if serialConn != nil {
		conns = append(conns, serialConn)
	}

	udpInput, err := udp.NewInput(udp.InputDeps{
		Config: udp.Config{
			Bind:        cfg.UDP.Bind,
			Port:        cfg.UDP.Port,
			ReadTimeout: cfg.Reconnect.ReadTimeout,
		},
		ReconnectDelay:  cfg.Reconnect.Delay,
		Sink:            sink,
		MetricsRegistry: registry,
		Logger:          deps.GetLogger().With("component", "udp-input", "port", cfg.UDP.Port),
	})
	if err := e.transportResult("udp", cfg.UDP.Enabled, err); err != nil {
		return err
	}
	if udpInput != nil {
		e.udp = udpInput
		conns = append(conns, udpInput.Connection)
	}

	tcpConn, err := tcp.NewInput(tcp.InputDeps{
		Config: tcp.Config{
			Address:        cfg.TCP.Address,
			ConnectTimeout: cfg.Reconnect.ConnectTimeout,
			ReadTimeout:    cfg.Reconnect.ReadTimeout,
		},
		ReconnectDelay:  cfg.Reconnect.Delay,
		Sink:            sink,
		MetricsRegistry: registry,
		Logger:          deps.GetLogger().With("component", "tcp-input", "address", cfg.TCP.Address),
	})
	if err := e.transportResult("tcp", cfg.TCP.Enabled, err); err != nil {
		return err
	}
	if tcpConn != nil {
		conns = append(conns, tcpConn)
	}

	wsConn, err := wsinput.NewInput(wsinput.InputDeps{
		Config: wsinput.Config{
			URL:            cfg.WebSocket.URL,
			Token:          cfg.WebSocket.Token,
			ConnectTimeout: cfg.Reconnect.ConnectTimeout,
		},
		ReconnectDelay:  cfg.Reconnect.Delay,
		Sink:            sink,
		MetricsRegistry: registry,
		Logger:          deps.GetLogger().With("component", "websocket-input", "url", cfg.WebSocket.URL),
	})
	if err := e.transportResult("websocket", cfg.WebSocket.Enabled, err); err != nil {
		return err
	}
	if wsConn != nil {
		conns = append(conns, wsConn)
	}

	for _, c := range conns {
		if err := e.supervisor.Add(c); err != nil {
			return errors.Wrap(err, "engine", "New", "register transport")
		}
	}
	return nil
}

func (e *Engine) transportResult(name string, enabled bool, err error) error {
	if err == nil {
		return nil
	}
	if enabled {
		return errors.Wrap(err, "engine", "New", fmt.Sprintf("build %s transport", name))
	}
	e.logger.Debug("Transport not registered", "transport", name, "error", err)
	return nil
}

// buildOutputs creates the contact sinks and the raw line listeners.
func (e *Engine) buildOutputs(deps Deps) error {
	cfg := e.cfg
	registry := deps.MetricsRegistry
	var sinks []contact.Sink

	if cfg.NATS.Enabled {
		pub := deps.NATSPublisher
		if pub == nil {
			client := deps.NATSClient
			if client == nil {
				opts := []natsclient.ClientOption{
					natsclient.WithName("seatrack"),
					natsclient.WithLogger(deps.GetLoggerWithComponent("natsclient")),
					natsclient.WithTimeout(cfg.Reconnect.ConnectTimeout),
					natsclient.WithReconnectWait(cfg.Reconnect.Delay),
				}
				if cfg.NATS.Token != "" {
					opts = append(opts, natsclient.WithToken(cfg.NATS.Token))
				}
				if cfg.NATS.User != "" {
					opts = append(opts, natsclient.WithCredentials(cfg.NATS.User, cfg.NATS.Password))
				}
				var err error
				client, err = natsclient.NewClient(strings.Join(cfg.NATS.URLs, ","), opts...)
				if err != nil {
					return errors.Wrap(err, "engine", "New", "create nats client")
				}
				e.ownsNATS = true
			}
			e.natsClient = client
			client.OnHealthChange(e.reportNATS)
			pub = client
		}

		sink, err := natsink.New(natsink.Deps{
			Config:          natsink.Config{Subject: cfg.NATS.Subject},
			Publisher:       pub,
			MetricsRegistry: registry,
			Logger:          deps.GetLoggerWithComponent("natsink"),
		})
		if err != nil {
			return err
		}
		sinks = append(sinks, sink)
		e.outputs = append(e.outputs, sink)
	}

	if cfg.Kafka.Enabled {
		sink, err := kafkasink.New(kafkasink.Deps{
			Config: kafkasink.Config{
				Brokers: cfg.Kafka.Brokers,
				Topic:   cfg.Kafka.Topic,
			},
			Writer:          deps.KafkaWriter,
			MetricsRegistry: registry,
			Logger:          deps.GetLoggerWithComponent("kafkasink"),
		})
		if err != nil {
			return err
		}
		sinks = append(sinks, sink)
		e.outputs = append(e.outputs, sink)
	}

	if len(sinks) > 0 {
		e.store.SetSink(contact.MultiSink(sinks...))
	}

	if cfg.Record.Enabled {
		rc := file.DefaultConfig()
		rc.Path = cfg.Record.Path
		rc.Format = cfg.Record.Format
		rec, err := file.NewRecorder(rc, deps.GetLoggerWithComponent("recorder"))
		if err != nil {
			return err
		}
		e.router.AddListener(rec.Record)
		e.outputs = append(e.outputs, rec)
	}

	if cfg.Relay.Enabled {
		rc := websocket.DefaultConfig()
		rc.Listen = cfg.Relay.Listen
		relay, err := websocket.NewRelay(rc, registry, deps.GetLoggerWithComponent("relay"))
		if err != nil {
			return err
		}
		e.router.AddListener(relay.Broadcast)
		e.relay = relay
		e.outputs = append(e.outputs, relay)
	}
	return nil
}

// buildServices creates the feed poller and the gateway. The gateway is
// always built so Handler works; it only listens when HTTP is enabled.
func (e *Engine) buildServices(deps Deps) error {
	cfg := e.cfg
	registry := deps.MetricsRegistry

	if cfg.Feed.Enabled {
		poller, err := feed.NewPoller(feed.Deps{
			Config: feed.Config{
				URL:      cfg.Feed.URL,
				Interval: cfg.Feed.Interval,
				Timeout:  cfg.Feed.Timeout,
				Token:    cfg.Feed.Token,
			},
			Store:           e.store,
			MetricsRegistry: registry,
			Logger:          deps.GetLoggerWithComponent("feed"),
		})
		if err != nil {
			return err
		}
		e.services = append(e.services, poller)
	}

	discoverables := []component.Discoverable{e.router}
	for _, name := range e.supervisor.Names() {
		if c, ok := e.supervisor.Connection(name); ok {
			discoverables = append(discoverables, c)
		}
	}
	for _, c := range e.outputs {
		discoverables = append(discoverables, c)
	}
	for _, c := range e.services {
		discoverables = append(discoverables, c)
	}

	gw, err := gateway.New(gateway.Deps{
		Config:          gateway.Config{Listen: cfg.HTTP.Listen()},
		Contacts:        e.store,
		Transports:      e.supervisor,
		Health:          e.health,
		Components:      discoverables,
		MetricsRegistry: registry,
		Logger:          deps.GetLoggerWithComponent("gateway"),
	})
	if err != nil {
		return err
	}
	e.gateway = gw
	if cfg.HTTP.Enabled {
		e.services = append(e.services, gw)
	}
	return nil
}

// Start loads the label cache and starts every component in dependency
// order. On failure the components already started are stopped again.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cancel != nil {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "engine", "Start", "state check")
	}

	if err := e.store.LoadCache(); err != nil {
		e.logger.Warn("Contact cache not loaded", "path", e.cfg.Store.CacheFile, "error", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	if e.natsClient != nil {
		e.reportNATS(false)
		e.wg.Add(1)
		go e.connectNATS(runCtx)
	}

	for _, c := range e.outputs {
		if err := e.startComponent(runCtx, c); err != nil {
			e.abortStart()
			return err
		}
	}

	e.supervisor.SetContext(runCtx)
	for _, name := range e.cfg.EnabledTransports() {
		if err := e.supervisor.Enable(name); err != nil {
			e.abortStart()
			return errors.Wrap(err, "engine", "Start", "enable transport")
		}
	}

	maintCtx, maintCancel := context.WithCancel(runCtx)
	e.maintCancel = maintCancel
	e.wg.Add(1)
	go e.maintain(maintCtx)

	for _, c := range e.services {
		if err := e.startComponent(runCtx, c); err != nil {
			e.abortStart()
			return err
		}
	}

	e.logger.Info("Engine started",
		"transports", e.cfg.EnabledTransports(),
		"components", len(e.started),
		"contacts", e.store.Len())
	return nil
}

// startComponent is called with e.mu held.
func (e *Engine) startComponent(ctx context.Context, c component.LifecycleComponent) error {
	if err := c.Start(ctx); err != nil {
		return errors.Wrap(err, "engine", "Start", "start "+c.Meta().Name)
	}
	e.started = append(e.started, c)
	e.metrics.setRunning(len(e.started))
	return nil
}

// abortStart unwinds a partial Start. Called with e.mu held.
func (e *Engine) abortStart() {
	if err := e.shutdown(input.DefaultStopTimeout); err != nil {
		e.logger.Warn("Partial start cleanup incomplete", "error", err)
	}
}

// Stop shuts every component down in reverse start order, flushes the
// label cache and closes the NATS connection. It waits up to timeout per
// component and is safe to call repeatedly.
func (e *Engine) Stop(timeout time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cancel == nil {
		return nil
	}
	err := e.shutdown(timeout)
	e.logger.Info("Engine stopped", "contacts", e.store.Len())
	return err
}

// shutdown is called with e.mu held.
func (e *Engine) shutdown(timeout time.Duration) error {
	var errs []error

	// Services and transports first so nothing new reaches the store.
	for i := len(e.started) - 1; i >= 0; i-- {
		c := e.started[i]
		if !e.isService(c) {
			continue
		}
		if err := c.Stop(timeout); err != nil {
			errs = append(errs, err)
		}
	}
	if err := e.supervisor.StopAll(timeout); err != nil {
		errs = append(errs, err)
	}

	if e.maintCancel != nil {
		e.maintCancel()
		e.maintCancel = nil
	}

	// Sinks drain their queues before the run context is cancelled.
	for i := len(e.started) - 1; i >= 0; i-- {
		c := e.started[i]
		if e.isService(c) {
			continue
		}
		if err := c.Stop(timeout); err != nil {
			errs = append(errs, err)
		}
	}
	e.started = nil
	e.metrics.setRunning(0)

	e.cancel()
	e.cancel = nil

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		errs = append(errs, errors.WrapTransient(fmt.Errorf("stop timeout after %v", timeout),
			"engine", "Stop", "background tasks"))
	}

	if err := e.flush(); err != nil {
		errs = append(errs, err)
	}

	if e.natsClient != nil && e.ownsNATS {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		if err := e.natsClient.Close(ctx); err != nil {
			errs = append(errs, err)
		}
		cancel()
	}

	return errors.Join(errs...)
}

func (e *Engine) isService(c component.LifecycleComponent) bool {
	for _, s := range e.services {
		if s == c {
			return true
		}
	}
	return false
}

// connectNATS retries the initial connection until it succeeds or the
// engine stops. The NATS sink reports unhealthy while publishes fail.
func (e *Engine) connectNATS(ctx context.Context) {
	defer e.wg.Done()

	cfg := retry.Fixed(e.cfg.Reconnect.Delay)
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		e.logger.Warn("NATS connect failed", "attempt", attempt, "retry_in", delay, "error", err)
	}
	err := retry.Do(ctx, cfg, func() error {
		return e.natsClient.Connect(ctx)
	})
	if err != nil {
		e.logger.Debug("NATS connect abandoned", "error", err)
		return
	}
	e.logger.Info("NATS connected", "url", e.natsClient.URL())
}

// reportNATS records the NATS connection under "nats" in the health monitor.
func (e *Engine) reportNATS(healthy bool) {
	st := e.natsClient.GetStatus()
	if healthy {
		e.health.Update(natsHealthName, health.NewHealthy(natsHealthName, fmt.Sprintf("connected, rtt %s", st.RTT)))
		return
	}
	e.health.Update(natsHealthName, health.NewUnhealthy(natsHealthName,
		fmt.Sprintf("%s after %d failed attempts", st.Status, st.FailureCount)))
}

// maintain runs the purge and flush tickers.
func (e *Engine) maintain(ctx context.Context) {
	defer e.wg.Done()

	// A zero max age disables purging; an empty cache path disables flushing.
	var purgeC, flushC <-chan time.Time
	if e.cfg.Store.MaxAge > 0 {
		t := time.NewTicker(e.cfg.Store.PurgeInterval)
		defer t.Stop()
		purgeC = t.C
	}
	if e.cfg.Store.CacheFile != "" {
		t := time.NewTicker(e.cfg.Store.FlushInterval)
		defer t.Stop()
		flushC = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-purgeC:
			e.purge()
		case <-flushC:
			if err := e.flush(); err != nil {
				e.logger.Warn("Contact cache flush failed", "error", err)
			}
		}
	}
}

func (e *Engine) purge() int {
	start := time.Now()
	n := e.store.Purge(e.cfg.Store.MaxAge)
	e.metrics.recordRun("purge", time.Since(start).Seconds(), nil)
	if n > 0 {
		e.logger.Debug("Purged stale contacts", "count", n, "remaining", e.store.Len())
	}
	return n
}

func (e *Engine) flush() error {
	start := time.Now()
	err := e.store.FlushCache()
	e.metrics.recordRun("flush", time.Since(start).Seconds(), err)
	return err
}

// Store returns the contact store.
func (e *Engine) Store() *contact.Store {
	return e.store
}

// Router returns the line router.
func (e *Engine) Router() *router.Router {
	return e.router
}

// Supervisor returns the transport supervisor.
func (e *Engine) Supervisor() *input.Supervisor {
	return e.supervisor
}

// Health returns the per-transport health monitor.
func (e *Engine) Health() *health.Monitor {
	return e.health
}

// Handler returns the gateway's HTTP handler, whether or not it listens.
func (e *Engine) Handler() http.Handler {
	return e.gateway.Handler()
}

// UDPAddr returns the bound UDP address, or nil while the socket is closed.
func (e *Engine) UDPAddr() net.Addr {
	if e.udp == nil {
		return nil
	}
	return e.udp.Addr()
}

// RelayAddr returns the relay's listen address, or nil when the relay is
// disabled or not started.
func (e *Engine) RelayAddr() net.Addr {
	if e.relay == nil {
		return nil
	}
	return e.relay.Addr()
}
