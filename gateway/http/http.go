// Package http serves the read-only contact API and transport control over
// HTTP: contact snapshots, own-ship fix, transport states, health and
// Prometheus metrics.
package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/c360/seatrack/component"
	"github.com/c360/seatrack/contact"
	"github.com/c360/seatrack/errors"
	"github.com/c360/seatrack/health"
	"github.com/c360/seatrack/input"
	"github.com/c360/seatrack/metric"
)

// ContactSource is the read side of the contact store.
type ContactSource interface {
	Snapshot() []contact.Contact
	Get(id int64) (contact.Contact, bool)
	OwnShip() *contact.OwnShip
}

// TransportControl is the supervisor surface the gateway drives.
type TransportControl interface {
	Names() []string
	Connection(name string) (*input.Connection, bool)
	Enabled(name string) bool
	Connected() bool
	Enable(name string) error
	Disable(name string) error
}

// Config holds the listen settings.
type Config struct {
	Listen         string        `json:"listen"`
	RequestTimeout time.Duration `json:"request_timeout"`
}

// Deps holds runtime dependencies for the gateway.
type Deps struct {
	Config          Config
	Contacts        ContactSource
	Transports      TransportControl         // can be nil
	Health          *health.Monitor          // can be nil
	Components      []component.Discoverable // reported by GET /components
	MetricsRegistry *metric.MetricsRegistry  // serves /metrics when set
	Logger          *slog.Logger
}

// Server is the HTTP gateway.
type Server struct {
	cfg        Config
	contacts   ContactSource
	transports TransportControl
	health     *health.Monitor
	components []component.Discoverable
	registry   *metric.MetricsRegistry
	logger     *slog.Logger
	router     chi.Router

	mu        sync.Mutex
	server    *http.Server
	listener  net.Listener
	done      chan struct{}
	startTime time.Time

	running        atomic.Bool
	requestsTotal  atomic.Int64
	requestsFailed atomic.Int64
	bytesSent      atomic.Int64
	lastActivity   atomic.Value // time.Time
}

var _ component.Discoverable = (*Server)(nil)

// New builds the gateway and its routes.
func New(deps Deps) (*Server, error) {
	if deps.Contacts == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "gateway", "New", "contact source")
	}
	cfg := deps.Config
	if cfg.Listen == "" {
		cfg.Listen = ":8080"
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 15 * time.Second
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("component", "gateway")
	}

	s := &Server{
		cfg:        cfg,
		contacts:   deps.Contacts,
		transports: deps.Transports,
		health:     deps.Health,
		components: deps.Components,
		registry:   deps.MetricsRegistry,
		logger:     logger,
	}
	s.lastActivity.Store(time.Time{})
	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.cfg.RequestTimeout))
	r.Use(s.track)

	r.Get("/health", s.handleHealth)
	r.Get("/components", s.handleComponents)
	if s.registry != nil {
		r.Method(http.MethodGet, "/metrics", s.registry.Handler())
	}

	r.Route("/contacts", func(r chi.Router) {
		r.Get("/", s.handleContacts)
		r.Get("/{id}", s.handleContact)
	})
	r.Get("/ownship", s.handleOwnShip)

	r.Route("/transports", func(r chi.Router) {
		r.Get("/", s.handleTransports)
		r.Post("/{name}/enable", s.handleTransportToggle(true))
		r.Post("/{name}/disable", s.handleTransportToggle(false))
	})
	return r
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on the configured address and serves until Stop.
func (s *Server) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "gateway", "Start", "state check")
	}

	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return errors.WrapTransient(err, "gateway", "Start", "listen")
	}
	s.listener = ln
	s.server = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.done = make(chan struct{})
	s.startTime = time.Now()
	s.running.Store(true)

	go func(srv *http.Server, done chan struct{}) {
		defer close(done)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server failed", "error", err)
		}
	}(s.server, s.done)

	s.logger.Info("HTTP gateway listening", "addr", ln.Addr().String())
	return nil
}

// Addr returns the bound address while running.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(timeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running.Swap(false) {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		return errors.WrapTransient(err, "gateway", "Stop", "graceful shutdown")
	}
	<-s.done
	s.server, s.listener = nil, nil
	return nil
}

// track counts requests and failures.
func (s *Server) track(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.requestsTotal.Add(1)
		s.bytesSent.Add(int64(ww.BytesWritten()))
		s.lastActivity.Store(time.Now())
		if ww.Status() >= http.StatusBadRequest {
			s.requestsFailed.Add(1)
		}
	})
}

// contactsResponse is the GET /contacts body.
type contactsResponse struct {
	Count    int               `json:"count"`
	Contacts []contact.Contact `json:"contacts"`
}

func (s *Server) handleContacts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var maxAge time.Duration
	if raw := q.Get("max_age"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			writeError(w, http.StatusBadRequest, "max_age must be a positive duration")
			return
		}
		maxAge = d
	}
	alertsOnly := q.Get("alert") == "true"
	limit := parseLimit(q.Get("limit"), 0)

	now := time.Now()
	all := s.contacts.Snapshot()
	out := make([]contact.Contact, 0, len(all))
	for _, c := range all {
		if maxAge > 0 && now.Sub(c.LastUpdate) > maxAge {
			continue
		}
		if alertsOnly && c.Alert == "" {
			continue
		}
		out = append(out, c)
		if limit > 0 && len(out) == limit {
			break
		}
	}

	writeJSON(w, http.StatusOK, contactsResponse{Count: len(out), Contacts: out})
}

func (s *Server) handleContact(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "contact id must be an integer")
		return
	}
	c, ok := s.contacts.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "contact not found")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleOwnShip(w http.ResponseWriter, _ *http.Request) {
	own := s.contacts.OwnShip()
	if own == nil {
		writeError(w, http.StatusNotFound, "no own-ship fix")
		return
	}
	fix, ok := own.Fix()
	if !ok {
		writeError(w, http.StatusNotFound, "no own-ship fix")
		return
	}
	writeJSON(w, http.StatusOK, fix)
}

// transportView is one entry of GET /transports.
type transportView struct {
	Name    string      `json:"name"`
	Enabled bool        `json:"enabled"`
	State   input.State `json:"state"`
	Session string      `json:"session,omitempty"`
	Stats   input.Stats `json:"stats"`
	Error   string      `json:"last_error,omitempty"`
}

type transportsResponse struct {
	Connected  bool            `json:"connected"`
	Transports []transportView `json:"transports"`
}

func (s *Server) handleTransports(w http.ResponseWriter, _ *http.Request) {
	if s.transports == nil {
		writeJSON(w, http.StatusOK, transportsResponse{Transports: []transportView{}})
		return
	}

	resp := transportsResponse{
		Connected:  s.transports.Connected(),
		Transports: []transportView{},
	}
	for _, name := range s.transports.Names() {
		c, ok := s.transports.Connection(name)
		if !ok {
			continue
		}
		resp.Transports = append(resp.Transports, transportView{
			Name:    name,
			Enabled: s.transports.Enabled(name),
			State:   c.State(),
			Session: c.Session(),
			Stats:   c.Stats(),
			Error:   c.Health().LastError,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTransportToggle(enable bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.transports == nil {
			writeError(w, http.StatusNotFound, "no transports configured")
			return
		}
		name := chi.URLParam(r, "name")

		var err error
		if enable {
			err = s.transports.Enable(name)
		} else {
			err = s.transports.Disable(name)
		}
		if err != nil {
			s.logger.Warn("Transport toggle failed", "transport", name, "enable", enable, "error", err)
			writeError(w, statusFor(err), sanitizeError(err))
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{"name": name, "enabled": enable})
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	if s.health == nil {
		writeJSON(w, http.StatusOK, health.NewHealthy("seatrack", "no monitor configured"))
		return
	}
	status := s.health.AggregateHealth("seatrack")
	code := http.StatusOK
	if status.IsUnhealthy() {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}

// componentView is one entry of GET /components.
type componentView struct {
	Meta     component.Metadata     `json:"meta"`
	Health   component.HealthStatus `json:"health"`
	DataFlow component.FlowMetrics  `json:"data_flow"`
}

func (s *Server) handleComponents(w http.ResponseWriter, _ *http.Request) {
	out := make([]componentView, 0, len(s.components))
	for _, c := range s.components {
		out = append(out, componentView{Meta: c.Meta(), Health: c.Health(), DataFlow: c.DataFlow()})
	}
	writeJSON(w, http.StatusOK, out)
}

func parseLimit(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

// statusFor maps classified errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, errors.ErrUnknownTransport):
		return http.StatusNotFound
	case errors.IsInvalid(err):
		return http.StatusBadRequest
	case errors.IsTransient(err):
		if strings.Contains(err.Error(), "timeout") {
			return http.StatusGatewayTimeout
		}
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// sanitizeError returns a message safe for external clients
func sanitizeError(err error) string {
	switch {
	case errors.Is(err, errors.ErrUnknownTransport):
		return "unknown transport"
	case errors.IsInvalid(err):
		return "invalid request"
	case errors.IsTransient(err):
		return "service temporarily unavailable"
	default:
		return "internal server error"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message, "status": status})
}

// Meta returns component metadata
func (s *Server) Meta() component.Metadata {
	return component.Metadata{
		Name:        "gateway",
		Type:        "gateway",
		Description: fmt.Sprintf("HTTP contact API on %s", s.cfg.Listen),
		Version:     "1.0.0",
	}
}

// Health returns the current health status
func (s *Server) Health() component.HealthStatus {
	s.mu.Lock()
	started := s.startTime
	s.mu.Unlock()

	return component.HealthStatus{
		Healthy:    s.running.Load(),
		LastCheck:  time.Now(),
		ErrorCount: int(s.requestsFailed.Load()),
		Uptime:     time.Since(started),
	}
}

// DataFlow returns current data flow metrics
func (s *Server) DataFlow() component.FlowMetrics {
	s.mu.Lock()
	started := s.startTime
	s.mu.Unlock()

	last, _ := s.lastActivity.Load().(time.Time)
	return component.Rates(s.requestsTotal.Load(), s.bytesSent.Load(), s.requestsFailed.Load(), time.Since(started), last)
}
