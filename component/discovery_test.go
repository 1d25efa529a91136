package component

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRates(t *testing.T) {
	now := time.Now()
	fm := Rates(100, 5000, 5, 10*time.Second, now)

	assert.InDelta(t, 10.0, fm.MessagesPerSecond, 1e-9)
	assert.InDelta(t, 500.0, fm.BytesPerSecond, 1e-9)
	assert.InDelta(t, 0.05, fm.ErrorRate, 1e-9)
	assert.Equal(t, now, fm.LastActivity)
}

func TestRates_ZeroUptime(t *testing.T) {
	fm := Rates(0, 0, 0, 0, time.Time{})
	assert.Zero(t, fm.MessagesPerSecond)
	assert.Zero(t, fm.ErrorRate)
}

func TestDependencies_GetLogger(t *testing.T) {
	var deps Dependencies
	assert.Equal(t, slog.Default(), deps.GetLogger())

	logger := slog.New(slog.NewTextHandler(nil, nil))
	deps.Logger = logger
	assert.Equal(t, logger, deps.GetLogger())
	assert.NotNil(t, deps.GetLoggerWithComponent("udp-input"))
}
