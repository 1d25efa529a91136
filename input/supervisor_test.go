package input

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/seatrack/errors"
	"github.com/c360/seatrack/health"
	"github.com/c360/seatrack/metric"
)

func newSupervisedConnection(name string, dialer Dialer, delay time.Duration) *Connection {
	return NewConnection(Deps{
		Config: Config{Name: name, ReconnectDelay: delay},
		Dialer: dialer,
	})
}

func TestSupervisor_AddRejectsDuplicates(t *testing.T) {
	s := NewSupervisor(SupervisorDeps{})
	require.NoError(t, s.Add(newSupervisedConnection("tcp", &scriptedDialer{}, time.Hour)))

	err := s.Add(newSupervisedConnection("tcp", &scriptedDialer{}, time.Hour))
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
	assert.True(t, errors.Is(err, errors.ErrInvalidConfig))

	assert.Error(t, s.Add(newSupervisedConnection("", &scriptedDialer{}, time.Hour)))
}

func TestSupervisor_UnknownTransport(t *testing.T) {
	s := NewSupervisor(SupervisorDeps{})

	err := s.Enable("serial")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrUnknownTransport))

	err = s.Disable("serial")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrUnknownTransport))
}

func TestSupervisor_ConnectedIsAnyTransport(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	monitor := health.NewMonitor()
	s := NewSupervisor(SupervisorDeps{Health: monitor, MetricsRegistry: registry})
	s.SetContext(context.Background())

	up := &scriptedDialer{streams: []*fakeStream{newFakeStream()}}
	down := &scriptedDialer{}
	require.NoError(t, s.Add(newSupervisedConnection("tcp", up, time.Hour)))
	require.NoError(t, s.Add(newSupervisedConnection("udp", down, time.Hour)))
	t.Cleanup(func() { _ = s.StopAll(time.Second) })

	assert.False(t, s.Connected())
	assert.Equal(t, []string{"tcp", "udp"}, s.Names())

	require.NoError(t, s.Enable("udp"))
	require.Eventually(t, func() bool { return s.States()["udp"] == StateFailed }, time.Second, time.Millisecond)
	assert.False(t, s.Connected())

	require.NoError(t, s.Enable("tcp"))
	require.Eventually(t, s.Connected, time.Second, time.Millisecond)
	assert.True(t, s.Enabled("tcp"))
	assert.Equal(t, 1.0, testutil.ToFloat64(registry.CoreMetrics().Connected))

	require.Eventually(t, func() bool {
		st, ok := monitor.Get("tcp")
		return ok && st.IsHealthy()
	}, time.Second, time.Millisecond)
	udpStatus, ok := monitor.Get("udp")
	require.True(t, ok)
	assert.True(t, udpStatus.IsUnhealthy())
	assert.True(t, monitor.AggregateHealth("transports").IsDegraded())

	require.NoError(t, s.Disable("tcp"))
	assert.False(t, s.Enabled("tcp"))
	assert.False(t, s.Connected())
	assert.Equal(t, StateDisabled, s.States()["tcp"])
	assert.Equal(t, 0.0, testutil.ToFloat64(registry.CoreMetrics().Connected))

	_, ok = monitor.Get("tcp")
	assert.False(t, ok, "disabled transports stop reporting")
}

func TestSupervisor_DisablePreventsReconnect(t *testing.T) {
	dialer := &scriptedDialer{}
	s := NewSupervisor(SupervisorDeps{})
	require.NoError(t, s.Add(newSupervisedConnection("tcp", dialer, 200*time.Millisecond)))

	require.NoError(t, s.Enable("tcp"))
	require.Eventually(t, func() bool { return s.States()["tcp"] == StateFailed }, time.Second, time.Millisecond)
	require.NoError(t, s.Disable("tcp"))

	time.Sleep(400 * time.Millisecond)
	assert.Equal(t, int32(1), dialer.dials.Load())

	c, ok := s.Connection("tcp")
	require.True(t, ok)
	assert.False(t, c.Running())
}

func TestSupervisor_StopAll(t *testing.T) {
	s := NewSupervisor(SupervisorDeps{})
	require.NoError(t, s.Add(newSupervisedConnection("a", &scriptedDialer{streams: []*fakeStream{newFakeStream()}}, time.Hour)))
	require.NoError(t, s.Add(newSupervisedConnection("b", &scriptedDialer{}, time.Hour)))
	require.NoError(t, s.Enable("a"))
	require.NoError(t, s.Enable("b"))
	require.Eventually(t, s.Connected, time.Second, time.Millisecond)

	require.NoError(t, s.StopAll(time.Second))
	for name, state := range s.States() {
		assert.Equal(t, StateDisabled, state, name)
		assert.False(t, s.Enabled(name))
	}
	assert.False(t, s.Connected())
}
