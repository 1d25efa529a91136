package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/seatrack/contact"
	"github.com/c360/seatrack/errors"
	"github.com/c360/seatrack/pkg/retry"
)

const batchJSON = `[
	{"mmsi":244123456,"lat":52.1,"lon":4.3,"sog":12.3,"cog":87.5,"heading":90,"name":"NORDIC STAR","bow":100,"stern":20,"port":10,"starboard":12,"destination":"ROTTERDAM","elapsed_ms":60000},
	{"mmsi":211000001,"lat":53.5,"lon":8.1,"elapsed_ms":0},
	{"mmsi":211000002,"name":"NO POSITION"}
]`

type recordingMerger struct {
	mu      sync.Mutex
	batches [][]contact.Summary
}

func (m *recordingMerger) MergeFromExternalFeed(batch []contact.Summary) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches = append(m.batches, batch)
	return len(batch)
}

func (m *recordingMerger) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.batches)
}

func noRetry() *retry.Config {
	return &retry.Config{MaxAttempts: 1}
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, Config{URL: "http://feed"}.Validate())
	assert.True(t, errors.Is(Config{}.Validate(), errors.ErrMissingConfig))
	assert.True(t, errors.IsInvalid(Config{URL: "http://feed", Interval: -time.Second}.Validate()))
}

func TestClient_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(batchJSON))
	}))
	defer srv.Close()

	client := NewClient(Config{URL: srv.URL, Token: "secret"})
	batch, skipped, err := client.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, skipped)
	require.Len(t, batch, 2)

	first := batch[0]
	assert.Equal(t, int64(244123456), first.ID)
	assert.Equal(t, "NORDIC STAR", first.Label)
	assert.InDelta(t, 52.1, first.Position.Lat, 1e-9)
	assert.Equal(t, 60*time.Second, first.ReportedAge)
	require.NotNil(t, first.Descriptor)
	assert.Equal(t, 120, first.Descriptor.Length())
	assert.Equal(t, "ROTTERDAM", first.Descriptor.Destination)
}

func TestClient_FetchErrors(t *testing.T) {
	tests := []struct {
		name         string
		status       int
		body         string
		nonRetryable bool
	}{
		{"server error retries", http.StatusBadGateway, "", false},
		{"rate limited retries", http.StatusTooManyRequests, "", false},
		{"not found gives up", http.StatusNotFound, "", true},
		{"malformed body gives up", http.StatusOK, "{not json", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, _, err := NewClient(Config{URL: srv.URL}).Fetch(context.Background())
			require.Error(t, err)
			assert.Equal(t, tt.nonRetryable, retry.IsNonRetryable(err))
		})
	}
}

func TestPoller_PollMergesIntoStore(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(batchJSON))
	}))
	defer srv.Close()

	store := contact.NewStore(contact.StoreDeps{})
	p, err := NewPoller(Deps{Config: Config{URL: srv.URL}, Store: store, Retry: noRetry()})
	require.NoError(t, err)

	created, err := p.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, created)
	assert.Equal(t, 2, store.Len())

	c, ok := store.Get(244123456)
	require.True(t, ok)
	assert.Equal(t, "NORDIC STAR", c.Label)
	age := time.Since(c.LastUpdate)
	assert.InDelta(t, float64(60*time.Second), float64(age), float64(5*time.Second),
		"last update is back-dated by the reported age")

	created, err = p.Poll(context.Background())
	require.NoError(t, err)
	assert.Zero(t, created, "second poll only updates")
}

func TestPoller_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`[{"mmsi":1,"lat":1,"lon":1}]`))
	}))
	defer srv.Close()

	merger := &recordingMerger{}
	p, err := NewPoller(Deps{
		Config: Config{URL: srv.URL},
		Store:  merger,
		Retry:  &retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1},
	})
	require.NoError(t, err)

	_, err = p.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, 1, merger.count())
}

func TestPoller_StartStop(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	merger := &recordingMerger{}
	p, err := NewPoller(Deps{Config: Config{URL: srv.URL, Interval: 20 * time.Millisecond}, Store: merger, Retry: noRetry()})
	require.NoError(t, err)

	require.NoError(t, p.Start(context.Background()))
	err = p.Start(context.Background())
	assert.True(t, errors.Is(err, errors.ErrAlreadyStarted))

	require.Eventually(t, func() bool { return merger.count() >= 3 }, 2*time.Second, 5*time.Millisecond)
	assert.True(t, p.Health().Healthy)

	require.NoError(t, p.Stop(time.Second))
	require.NoError(t, p.Stop(time.Second))
	stopped := calls.Load()
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, stopped, calls.Load())
	assert.False(t, p.Health().Healthy)
}

func TestPoller_FailureRecordedInHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p, err := NewPoller(Deps{Config: Config{URL: srv.URL}, Store: &recordingMerger{}, Retry: noRetry()})
	require.NoError(t, err)

	_, err = p.Poll(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))
	h := p.Health()
	assert.False(t, h.Healthy)
	assert.Equal(t, 1, h.ErrorCount)
	assert.Contains(t, h.LastError, "unexpected status: 500")
}

func TestNewPoller_RequiresStore(t *testing.T) {
	_, err := NewPoller(Deps{Config: Config{URL: "http://feed"}})
	assert.True(t, errors.IsInvalid(err))
}
