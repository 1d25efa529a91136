package kafkasink

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/seatrack/contact"
	"github.com/c360/seatrack/errors"
	"github.com/c360/seatrack/metric"
)

type fakeWriter struct {
	mu      sync.Mutex
	batches [][]kafka.Message
	err     error
	closed  bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.batches = append(w.batches, msgs)
	return nil
}

func (w *fakeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func (w *fakeWriter) messages() []kafka.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	var all []kafka.Message
	for _, b := range w.batches {
		all = append(all, b...)
	}
	return all
}

func TestNew_RequiresBrokersWithoutWriter(t *testing.T) {
	_, err := New(Deps{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrMissingConfig))

	s, err := New(Deps{Config: Config{Brokers: []string{"localhost:9092"}}})
	require.NoError(t, err)
	w, ok := s.writer.(*kafka.Writer)
	require.True(t, ok)
	assert.Equal(t, DefaultTopic, w.Topic)
}

func TestSink_WritesKeyedMessages(t *testing.T) {
	w := &fakeWriter{}
	s, err := New(Deps{Writer: w})
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))

	require.NoError(t, s.Push(context.Background(), contact.Contact{ID: 244123456, Label: "NORDIC STAR"}))
	require.NoError(t, s.Push(context.Background(), contact.Contact{ID: 1000000003, Label: "3"}))

	require.Eventually(t, func() bool { return len(w.messages()) == 2 }, time.Second, 5*time.Millisecond)
	msgs := w.messages()
	assert.Equal(t, "244123456", string(msgs[0].Key))
	assert.Equal(t, "1000000003", string(msgs[1].Key))

	var got contact.Contact
	require.NoError(t, json.Unmarshal(msgs[0].Value, &got))
	assert.Equal(t, "NORDIC STAR", got.Label)

	require.NoError(t, s.Stop(time.Second))
	assert.True(t, w.closed)
}

func TestSink_BatchesQueuedContacts(t *testing.T) {
	w := &fakeWriter{}
	s, err := New(Deps{Config: Config{BatchSize: 3}, Writer: w})
	require.NoError(t, err)

	for i := int64(1); i <= 7; i++ {
		require.NoError(t, s.Push(context.Background(), contact.Contact{ID: i}))
	}
	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Stop(time.Second))

	require.Len(t, w.batches, 3)
	assert.Len(t, w.batches[0], 3)
	assert.Len(t, w.batches[1], 3)
	assert.Len(t, w.batches[2], 1)
	written, _, _ := s.Stats()
	assert.Equal(t, int64(7), written)
}

func TestSink_WriteFailure(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	w := &fakeWriter{err: fmt.Errorf("kafka: leader not available")}
	s, err := New(Deps{Writer: w, MetricsRegistry: registry})
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	defer func() { _ = s.Stop(time.Second) }()

	require.NoError(t, s.Push(context.Background(), contact.Contact{ID: 1}))
	require.Eventually(t, func() bool {
		_, failed, _ := s.Stats()
		return failed == 1
	}, time.Second, 5*time.Millisecond)

	assert.False(t, s.Health().Healthy)
	assert.Contains(t, s.Health().LastError, "leader not available")
	assert.Equal(t, 1.0, testutil.ToFloat64(registry.CoreMetrics().SinkFailures))
}

func TestSink_QueueFull(t *testing.T) {
	s, err := New(Deps{Config: Config{QueueSize: 1}, Writer: &fakeWriter{}})
	require.NoError(t, err)

	require.NoError(t, s.Push(context.Background(), contact.Contact{ID: 1}))
	err = s.Push(context.Background(), contact.Contact{ID: 2})
	assert.True(t, errors.Is(err, ErrQueueFull))
}
