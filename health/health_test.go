package health

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/seatrack/component"
)

func TestStatusPredicates(t *testing.T) {
	tests := []struct {
		status    string
		healthy   bool
		degraded  bool
		unhealthy bool
	}{
		{StatusHealthy, true, false, false},
		{StatusDegraded, false, true, false},
		{StatusUnhealthy, false, false, true},
		{"", false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			s := Status{Status: tt.status}
			assert.Equal(t, tt.healthy, s.IsHealthy())
			assert.Equal(t, tt.degraded, s.IsDegraded())
			assert.Equal(t, tt.unhealthy, s.IsUnhealthy())
		})
	}
}

func TestAggregate(t *testing.T) {
	tests := []struct {
		name string
		subs []Status
		want string
	}{
		{"no inputs", nil, StatusUnhealthy},
		{"all connected", []Status{NewHealthy("tcp", ""), NewHealthy("udp", "")}, StatusHealthy},
		{"one connected", []Status{NewHealthy("tcp", ""), NewUnhealthy("serial", "")}, StatusDegraded},
		{"none connected", []Status{NewUnhealthy("tcp", ""), NewDegraded("udp", "")}, StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Aggregate("seatrack", tt.subs)
			assert.Equal(t, tt.want, got.Status)
			assert.Len(t, got.SubStatuses, len(tt.subs))
		})
	}
}

func TestSanitizeErrorMessage(t *testing.T) {
	msg := sanitizeErrorMessage("dial tcp 10.0.0.5:10110: connection refused")
	assert.NotContains(t, msg, "10.0.0.5")
	assert.Contains(t, msg, "[IP]")

	msg = sanitizeErrorMessage("open /dev/ttyUSB0: permission denied")
	assert.Contains(t, msg, "[DEVICE]")

	msg = sanitizeErrorMessage("nats://user:pw@host:4222 unreachable")
	assert.Contains(t, msg, "[URL]")

	assert.Equal(t, "", sanitizeErrorMessage(""))
}

func TestFromComponentHealth(t *testing.T) {
	ch := component.HealthStatus{
		Healthy:    false,
		ErrorCount: 3,
		LastError:  "read udp 192.168.1.9:10110: i/o timeout",
		Uptime:     time.Minute,
	}

	s := FromComponentHealth("udp-input", ch)
	assert.Equal(t, "udp-input", s.Component)
	assert.True(t, s.IsUnhealthy())
	assert.NotContains(t, s.Message, "192.168.1.9")
	require.NotNil(t, s.Metrics)
	assert.Equal(t, 3, s.Metrics.ErrorCount)
}

func TestMonitor(t *testing.T) {
	m := NewMonitor()
	assert.Equal(t, 0, m.Count())

	m.Update("udp", Status{Status: StatusHealthy})
	got, ok := m.Get("udp")
	require.True(t, ok)
	assert.Equal(t, "udp", got.Component)
	assert.False(t, got.Timestamp.IsZero())

	m.Update("tcp", NewUnhealthy("tcp", "refused"))
	agg := m.AggregateHealth("seatrack")
	assert.True(t, agg.IsDegraded())
	require.Len(t, agg.SubStatuses, 2)
	assert.Equal(t, "tcp", agg.SubStatuses[0].Component)

	m.Remove("tcp")
	assert.True(t, m.AggregateHealth("seatrack").IsHealthy())
}

func TestMonitor_ConcurrentUpdates(t *testing.T) {
	m := NewMonitor()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				m.Update("serial", NewHealthy("serial", ""))
			} else {
				_ = m.AggregateHealth("seatrack")
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, m.Count())
}
