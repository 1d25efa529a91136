package component

import (
	"log/slog"

	"github.com/c360/seatrack/metric"
	"github.com/c360/seatrack/natsclient"
)

// Dependencies provides the external dependencies shared by components.
type Dependencies struct {
	NATSClient      *natsclient.Client      // NATS client, nil when NATS is disabled
	MetricsRegistry *metric.MetricsRegistry // Metrics registry (can be nil)
	Logger          *slog.Logger            // Structured logger (can be nil, defaults to slog.Default())
}

// GetLogger returns the configured logger or a default logger if none is provided
func (d *Dependencies) GetLogger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// GetLoggerWithComponent returns a logger configured with component context
func (d *Dependencies) GetLoggerWithComponent(componentName string) *slog.Logger {
	return d.GetLogger().With("component", componentName)
}
