// Package file records every raw line the router sees to a file on disk,
// so a session can be replayed later through a UDP or TCP transport.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/seatrack/component"
	"github.com/c360/seatrack/errors"
)

// Config holds configuration for the recorder
type Config struct {
	Path          string        `json:"path"`
	Format        string        `json:"format"` // "raw" or "jsonl"
	Append        bool          `json:"append"`
	BufferSize    int           `json:"buffer_size"`
	FlushInterval time.Duration `json:"flush_interval"`
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.Path == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "path is required")
	}

	validFormats := map[string]bool{"raw": true, "jsonl": true}
	if !validFormats[c.Format] {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"format must be one of: raw, jsonl")
	}

	if c.BufferSize < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"buffer_size cannot be negative")
	}

	return nil
}

// DefaultConfig returns default configuration for the recorder
func DefaultConfig() Config {
	return Config{
		Path:          "seatrack-record.nmea",
		Format:        "raw",
		Append:        true,
		BufferSize:    100,
		FlushInterval: time.Second,
	}
}

// record is one jsonl entry.
type record struct {
	Time time.Time `json:"time"`
	Line string    `json:"line"`
}

// Recorder appends router lines to a file. Record is its router listener.
type Recorder struct {
	path       string
	format     string
	append     bool
	bufferSize int
	interval   time.Duration
	logger     *slog.Logger

	// File handling
	file   *os.File
	fileMu sync.Mutex

	// Buffer for batching writes
	buffer   []record
	bufferMu sync.Mutex

	// Lifecycle management
	shutdown    chan struct{}
	running     bool
	startTime   time.Time
	mu          sync.RWMutex
	lifecycleMu sync.Mutex
	wg          sync.WaitGroup

	// Metrics
	linesWritten atomic.Int64
	bytesWritten atomic.Int64
	errors       atomic.Int64
	lastActivity atomic.Value // time.Time
}

var _ component.Discoverable = (*Recorder)(nil)

// NewRecorder creates a stopped recorder.
func NewRecorder(config Config, logger *slog.Logger) (*Recorder, error) {
	if config.Format == "" {
		config.Format = "raw"
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.FlushInterval <= 0 {
		config.FlushInterval = time.Second
	}
	if config.BufferSize == 0 {
		config.BufferSize = 100
	}
	if logger == nil {
		logger = slog.Default().With("component", "recorder")
	}

	r := &Recorder{
		path:       config.Path,
		format:     config.Format,
		append:     config.Append,
		bufferSize: config.BufferSize,
		interval:   config.FlushInterval,
		logger:     logger,
		buffer:     make([]record, 0, config.BufferSize),
	}
	r.lastActivity.Store(time.Time{})
	return r, nil
}

// Start opens the output file and begins the periodic flush.
func (r *Recorder) Start(_ context.Context) error {
	r.lifecycleMu.Lock()
	defer r.lifecycleMu.Unlock()

	if r.running {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Recorder", "Start", "check running state")
	}

	if dir := filepath.Dir(r.path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.WrapFatal(err, "Recorder", "Start", "create output directory")
		}
	}

	flags := os.O_CREATE | os.O_WRONLY
	if r.append {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}

	f, err := os.OpenFile(r.path, flags, 0644)
	if err != nil {
		return errors.WrapTransient(err, "Recorder", "Start", "open output file")
	}

	r.fileMu.Lock()
	r.file = f
	r.fileMu.Unlock()

	r.shutdown = make(chan struct{})
	r.wg.Add(1)
	go r.flushLoop(r.shutdown)

	r.mu.Lock()
	r.running = true
	r.startTime = time.Now()
	r.mu.Unlock()

	r.logger.Info("Recorder started", "path", r.path, "format", r.format, "append", r.append)
	return nil
}

// Stop flushes what is buffered and closes the file.
func (r *Recorder) Stop(timeout time.Duration) error {
	r.lifecycleMu.Lock()
	defer r.lifecycleMu.Unlock()

	if !r.running {
		return nil
	}

	close(r.shutdown)

	waitCh := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
	case <-time.After(timeout):
		return errors.WrapTransient(fmt.Errorf("shutdown timeout after %v", timeout), "Recorder", "Stop", "shutdown")
	}

	r.flush()

	r.fileMu.Lock()
	var closeErr error
	if r.file != nil {
		closeErr = r.file.Close()
		r.file = nil
	}
	r.fileMu.Unlock()

	r.mu.Lock()
	r.running = false
	r.mu.Unlock()

	if closeErr != nil {
		return errors.WrapTransient(closeErr, "Recorder", "Stop", "close output file")
	}
	return nil
}

// Record buffers one line. It has the router listener signature.
func (r *Recorder) Record(line string) {
	r.bufferMu.Lock()
	r.buffer = append(r.buffer, record{Time: time.Now().UTC(), Line: line})
	shouldFlush := len(r.buffer) >= r.bufferSize
	r.bufferMu.Unlock()

	r.lastActivity.Store(time.Now())

	if shouldFlush {
		r.flush()
	}
}

func (r *Recorder) flushLoop(shutdown chan struct{}) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-shutdown:
			return
		case <-ticker.C:
			r.flush()
		}
	}
}

// flush writes buffered lines to the file
func (r *Recorder) flush() {
	r.bufferMu.Lock()
	if len(r.buffer) == 0 {
		r.bufferMu.Unlock()
		return
	}
	lines := r.buffer
	r.buffer = make([]record, 0, r.bufferSize)
	r.bufferMu.Unlock()

	r.fileMu.Lock()
	defer r.fileMu.Unlock()

	if r.file == nil {
		// Lines recorded while stopped are dropped.
		r.errors.Add(int64(len(lines)))
		return
	}

	for _, rec := range lines {
		var data []byte
		switch r.format {
		case "jsonl":
			b, err := json.Marshal(rec)
			if err != nil {
				r.errors.Add(1)
				continue
			}
			data = append(b, '\n')
		default:
			data = []byte(rec.Line + "\r\n")
		}

		n, err := r.file.Write(data)
		if err != nil {
			r.errors.Add(1)
			r.logger.Warn("Failed to write recorded line", "path", r.path, "error", err)
			continue
		}
		r.linesWritten.Add(1)
		r.bytesWritten.Add(int64(n))
	}
}

// Meta returns component metadata
func (r *Recorder) Meta() component.Metadata {
	return component.Metadata{
		Name:        "recorder",
		Type:        "output",
		Description: fmt.Sprintf("Records raw lines to %s", r.path),
		Version:     "1.0.0",
	}
}

// Health returns the current health status
func (r *Recorder) Health() component.HealthStatus {
	r.mu.RLock()
	running, started := r.running, r.startTime
	r.mu.RUnlock()

	return component.HealthStatus{
		Healthy:    running,
		LastCheck:  time.Now(),
		ErrorCount: int(r.errors.Load()),
		Uptime:     time.Since(started),
	}
}

// DataFlow returns current data flow metrics
func (r *Recorder) DataFlow() component.FlowMetrics {
	r.mu.RLock()
	started := r.startTime
	r.mu.RUnlock()

	last, _ := r.lastActivity.Load().(time.Time)
	return component.Rates(r.linesWritten.Load(), r.bytesWritten.Load(), r.errors.Load(), time.Since(started), last)
}
