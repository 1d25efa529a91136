// Package feed polls an upstream vessel feed and merges each batch into the
// contact store. Reported ages travel with the summaries, so a stale feed
// produces contacts that age out on schedule.
package feed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/seatrack/component"
	"github.com/c360/seatrack/contact"
	"github.com/c360/seatrack/errors"
	"github.com/c360/seatrack/metric"
	"github.com/c360/seatrack/pkg/retry"
	"github.com/c360/seatrack/processor/parser"
)

const (
	defaultInterval = 60 * time.Second
	defaultTimeout  = 10 * time.Second

	// maxBodyBytes caps a single feed response.
	maxBodyBytes = 32 << 20
)

// Config configures the poller.
type Config struct {
	URL      string        `json:"url"`
	Interval time.Duration `json:"interval"`
	Timeout  time.Duration `json:"timeout"`
	Token    string        `json:"token,omitempty"` // sent as a Bearer token when set
}

// Validate checks that a URL is configured.
func (c Config) Validate() error {
	if c.URL == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "feed", "Validate", "url")
	}
	if c.Interval < 0 || c.Timeout < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "feed", "Validate", "negative duration")
	}
	return nil
}

// Merger receives decoded batches. contact.Store implements it.
type Merger interface {
	MergeFromExternalFeed(batch []contact.Summary) int
}

// Client fetches one batch from the feed.
type Client struct {
	url        string
	token      string
	httpClient *http.Client
	parser     *parser.JSONParser
}

// NewClient creates a feed client with the configured request timeout.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		url:        cfg.URL,
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: timeout},
		parser:     parser.NewJSONParser(),
	}
}

// Fetch retrieves and decodes one batch. Reports without a usable id or
// position are skipped and counted.
func (c *Client) Fetch(ctx context.Context) ([]contact.Summary, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, 0, errors.WrapInvalid(err, "feed", "Fetch", "create request")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, errors.WrapTransient(err, "feed", "Fetch", "execute request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("unexpected status: %d", resp.StatusCode)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, 0, retry.NonRetryable(errors.WrapInvalid(err, "feed", "Fetch", "status check"))
		}
		return nil, 0, errors.WrapTransient(err, "feed", "Fetch", "status check")
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, 0, errors.WrapTransient(err, "feed", "Fetch", "read body")
	}

	reports, err := c.parser.ParseBatch(body)
	if err != nil {
		return nil, 0, retry.NonRetryable(err)
	}

	batch := make([]contact.Summary, 0, len(reports))
	skipped := 0
	for _, r := range reports {
		s, err := r.Summary()
		if err != nil {
			skipped++
			continue
		}
		batch = append(batch, s)
	}
	return batch, skipped, nil
}

type pollMetrics struct {
	polls     *prometheus.CounterVec
	summaries prometheus.Counter
	created   prometheus.Counter
}

func newPollMetrics(registry *metric.MetricsRegistry) *pollMetrics {
	if registry == nil {
		return nil
	}
	m := &pollMetrics{
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "seatrack",
			Subsystem: "feed",
			Name:      "polls_total",
			Help:      "Feed polls, by outcome",
		}, []string{"status"}),
		summaries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "seatrack",
			Subsystem: "feed",
			Name:      "summaries_total",
			Help:      "Vessel summaries merged from the feed",
		}),
		created: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "seatrack",
			Subsystem: "feed",
			Name:      "contacts_created_total",
			Help:      "Contacts first seen through the feed",
		}),
	}
	_ = registry.RegisterCounterVec("feed", "polls", m.polls)
	_ = registry.RegisterCounter("feed", "summaries", m.summaries)
	_ = registry.RegisterCounter("feed", "created", m.created)
	return m
}

// Deps holds runtime dependencies for the poller.
type Deps struct {
	Config          Config
	Store           Merger
	Retry           *retry.Config           // Per-poll retry policy (nil for retry.DefaultConfig)
	MetricsRegistry *metric.MetricsRegistry // Metrics registry (can be nil)
	Logger          *slog.Logger            // Structured logger (can be nil)
}

// Poller fetches the feed on a fixed interval.
type Poller struct {
	client   *Client
	store    Merger
	interval time.Duration
	retry    retry.Config
	logger   *slog.Logger
	metrics  *pollMetrics

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	lastErr string

	startTime    time.Time
	polls        atomic.Int64
	failures     atomic.Int64
	merged       atomic.Int64
	lastActivity atomic.Value // time.Time
}

var _ component.Discoverable = (*Poller)(nil)

// NewPoller validates the configuration and creates a stopped poller.
func NewPoller(deps Deps) (*Poller, error) {
	if err := deps.Config.Validate(); err != nil {
		return nil, err
	}
	if deps.Store == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "feed", "NewPoller", "store")
	}

	interval := deps.Config.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	rc := retry.DefaultConfig()
	if deps.Retry != nil {
		rc = *deps.Retry
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("component", "feed")
	}

	p := &Poller{
		client:    NewClient(deps.Config),
		store:     deps.Store,
		interval:  interval,
		retry:     rc,
		logger:    logger,
		metrics:   newPollMetrics(deps.MetricsRegistry),
		startTime: time.Now(),
	}
	p.lastActivity.Store(time.Time{})
	return p, nil
}

// Start polls immediately and then once per interval until stopped.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel != nil {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "feed", "Start", "state check")
	}

	ctx, p.cancel = context.WithCancel(ctx)
	p.done = make(chan struct{})
	p.startTime = time.Now()

	go p.run(ctx, p.done)
	return nil
}

// Stop cancels polling and waits up to timeout for an in-flight poll.
func (p *Poller) Stop(timeout time.Duration) error {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel = nil
	p.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return errors.WrapTransient(fmt.Errorf("stop timeout after %v", timeout),
			"feed", "Stop", "graceful shutdown")
	}
}

func (p *Poller) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		if _, err := p.Poll(ctx); err != nil && ctx.Err() == nil {
			p.logger.Warn("Feed poll failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Poll fetches one batch, with retries, and merges it. It returns the
// number of contacts the batch created.
func (p *Poller) Poll(ctx context.Context) (int, error) {
	p.polls.Add(1)

	var batch []contact.Summary
	var skipped int
	err := retry.Do(ctx, p.retry, func() error {
		var err error
		batch, skipped, err = p.client.Fetch(ctx)
		return err
	})
	if err != nil {
		p.failures.Add(1)
		p.mu.Lock()
		p.lastErr = err.Error()
		p.mu.Unlock()
		if p.metrics != nil {
			p.metrics.polls.WithLabelValues("error").Inc()
		}
		return 0, err
	}

	created := p.store.MergeFromExternalFeed(batch)
	p.mu.Lock()
	p.lastErr = ""
	p.mu.Unlock()
	p.merged.Add(int64(len(batch)))
	p.lastActivity.Store(time.Now())
	if p.metrics != nil {
		p.metrics.polls.WithLabelValues("ok").Inc()
		p.metrics.summaries.Add(float64(len(batch)))
		p.metrics.created.Add(float64(created))
	}

	p.logger.Debug("Feed batch merged", "summaries", len(batch), "created", created, "skipped", skipped)
	return created, nil
}

// Meta returns the component metadata.
func (p *Poller) Meta() component.Metadata {
	return component.Metadata{
		Name:        "feed",
		Type:        "input",
		Description: fmt.Sprintf("Upstream vessel feed polled every %v", p.interval),
		Version:     "1.0.0",
	}
}

// Health is healthy while running and the last poll succeeded.
func (p *Poller) Health() component.HealthStatus {
	p.mu.Lock()
	running, lastErr, started := p.cancel != nil, p.lastErr, p.startTime
	p.mu.Unlock()

	last, _ := p.lastActivity.Load().(time.Time)
	return component.HealthStatus{
		Healthy:    running && lastErr == "" && !last.IsZero(),
		LastCheck:  time.Now(),
		ErrorCount: int(p.failures.Load()),
		LastError:  lastErr,
		Uptime:     time.Since(started),
	}
}

// DataFlow reports merged summaries per second.
func (p *Poller) DataFlow() component.FlowMetrics {
	p.mu.Lock()
	started := p.startTime
	p.mu.Unlock()

	last, _ := p.lastActivity.Load().(time.Time)
	return component.Rates(p.merged.Load(), 0, p.failures.Load(), time.Since(started), last)
}
