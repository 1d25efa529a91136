package contact

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/seatrack/errors"
	"github.com/c360/seatrack/metric"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestStore(t *testing.T) (*Store, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	s := NewStore(StoreDeps{})
	s.now = clock.Now
	return s, clock
}

type recordingSink struct {
	mu      sync.Mutex
	updates []Contact
	err     error
}

func (r *recordingSink) Push(_ context.Context, c Contact) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, c)
	return r.err
}

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.updates)
}

func TestMerge_FirstSightCreatesContact(t *testing.T) {
	for _, id := range []int64{1, 244123456, 366999999, RadarIDBase + 7} {
		t.Run(fmt.Sprint(id), func(t *testing.T) {
			s, _ := newTestStore(t)
			require.NoError(t, s.Merge(Record{ID: id, Kind: KindPosition, Position: Position{Lat: 1, Lon: 2}}))

			assert.Equal(t, 1, s.Len())
			c, ok := s.Get(id)
			require.True(t, ok)
			assert.Equal(t, fmt.Sprint(id), c.Label)
			assert.Equal(t, NavStatusUndefined, c.NavStatus)

			_, _, hasDims := c.Dimensions()
			assert.False(t, hasDims)
			_, hasType := c.ShipType()
			assert.False(t, hasType)
		})
	}
}

func TestMerge_Kinds(t *testing.T) {
	s, clock := newTestStore(t)
	const id = 244123456

	require.NoError(t, s.Merge(Record{ID: id, Kind: KindPosition, Position: Position{Lat: 52.1, Lon: 4.3}}))
	require.NoError(t, s.Merge(Record{ID: id, Kind: KindVelocity, SOG: 12.5, COG: 87, Heading: 90, HasHeading: true, ROT: -2}))

	c, _ := s.Get(id)
	assert.Equal(t, Position{Lat: 52.1, Lon: 4.3}, c.Position)
	assert.Equal(t, 12.5, c.SOG)
	assert.Equal(t, 87.0, c.COG)
	assert.Equal(t, 90.0, c.Heading)
	assert.Equal(t, -2.0, c.ROT)

	// Unavailable heading keeps the previous value.
	clock.Advance(time.Second)
	require.NoError(t, s.Merge(Record{ID: id, Kind: KindReport, Position: Position{Lat: 52.2, Lon: 4.4}, SOG: 11, COG: 88, NavStatus: "moored"}))
	c, _ = s.Get(id)
	assert.Equal(t, 90.0, c.Heading)
	assert.Equal(t, 11.0, c.SOG)
	assert.Equal(t, "moored", c.NavStatus)
	assert.Equal(t, clock.Now(), c.LastUpdate)

	require.NoError(t, s.Merge(Record{ID: id, Kind: KindDistress, Alert: " MAYDAY "}))
	c, _ = s.Get(id)
	assert.Equal(t, "MAYDAY", c.Alert)
}

func TestMerge_RejectsUnknownKind(t *testing.T) {
	s, _ := newTestStore(t)
	err := s.Merge(Record{ID: 1})
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
	assert.Equal(t, 0, s.Len())
}

func TestMerge_DescriptorIdempotent(t *testing.T) {
	s, _ := newTestStore(t)
	rec := Record{
		ID:    211000001,
		Kind:  KindDescriptor,
		Label: "  NORDIC STAR ",
		Descriptor: &Descriptor{
			Bow: 100, Stern: 20, Port: 10, Starboard: 12,
			ShipType: 70, CallSign: "DABC", Draught: 7.5, Destination: "HAMBURG",
		},
	}

	require.NoError(t, s.Merge(rec))
	once, _ := s.Get(rec.ID)
	require.NoError(t, s.Merge(rec))
	twice, _ := s.Get(rec.ID)

	assert.Equal(t, "NORDIC STAR", once.Label)
	assert.Equal(t, once.Label, twice.Label)
	assert.Equal(t, once.Descriptor, twice.Descriptor)

	length, beam, ok := twice.Dimensions()
	require.True(t, ok)
	assert.Equal(t, 120, length)
	assert.Equal(t, 22, beam)
}

func TestMerge_DescriptorSurvivesPositionUpdates(t *testing.T) {
	s, _ := newTestStore(t)
	require.NoError(t, s.Merge(Record{ID: 5, Kind: KindDescriptor, Descriptor: &Descriptor{ShipType: 30}}))
	require.NoError(t, s.Merge(Record{ID: 5, Kind: KindPosition, Position: Position{Lat: 1, Lon: 1}}))

	c, _ := s.Get(5)
	st, ok := c.ShipType()
	assert.True(t, ok)
	assert.Equal(t, 30, st)
}

func TestMerge_PartialDescriptorKeepsFields(t *testing.T) {
	s, _ := newTestStore(t)
	require.NoError(t, s.Merge(Record{ID: 5, Kind: KindDescriptor, Label: "ALPHA"}))
	require.NoError(t, s.Merge(Record{ID: 5, Kind: KindDescriptor, Descriptor: &Descriptor{CallSign: "XYZ1", Bow: 10}}))
	require.NoError(t, s.Merge(Record{ID: 5, Kind: KindDescriptor, Descriptor: &Descriptor{Stern: 5}}))

	c, _ := s.Get(5)
	assert.Equal(t, "ALPHA", c.Label)
	require.NotNil(t, c.Descriptor)
	assert.Equal(t, "XYZ1", c.Descriptor.CallSign)
	assert.Equal(t, 15, c.Descriptor.Length())
}

func TestMerge_BlankLabelIgnored(t *testing.T) {
	s, _ := newTestStore(t)
	require.NoError(t, s.Merge(Record{ID: 9, Kind: KindDescriptor, Label: "BRAVO"}))
	for _, blank := range []string{"", "   ", "\t"} {
		require.NoError(t, s.Merge(Record{ID: 9, Kind: KindDescriptor, Label: blank}))
	}
	assert.Equal(t, "BRAVO", s.Label(9))
}

func TestMergeBearingRange(t *testing.T) {
	t.Run("no own-ship fix", func(t *testing.T) {
		s, _ := newTestStore(t)
		err := s.MergeBearingRange(RadarIDBase+1, 90, 1)
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrNoOwnShipFix))
		assert.True(t, errors.IsInvalid(err))
		assert.Equal(t, 0, s.Len())
	})

	t.Run("true bearing", func(t *testing.T) {
		s, _ := newTestStore(t)
		s.OwnShip().UpdatePosition(Position{Lat: 0, Lon: 0}, time.Now())

		require.NoError(t, s.MergeBearingRange(RadarIDBase+1, 0, 60))
		c, ok := s.Get(RadarIDBase + 1)
		require.True(t, ok)
		assert.InDelta(t, 1.0, c.Position.Lat, 0.01)
		assert.InDelta(t, 0.0, c.Position.Lon, 0.0001)
		assert.True(t, c.IsRadar())
	})

	t.Run("relative bearing uses own heading", func(t *testing.T) {
		s, _ := newTestStore(t)
		s.OwnShip().UpdatePosition(Position{Lat: 0, Lon: 0}, time.Now())

		err := s.Merge(Record{ID: RadarIDBase + 2, Kind: KindBearingRange, BearingDeg: 0, RangeNM: 60, RelativeBearing: true})
		assert.True(t, errors.Is(err, errors.ErrNoOwnShipFix))

		s.OwnShip().UpdateHeading(90, time.Now())
		require.NoError(t, s.Merge(Record{ID: RadarIDBase + 2, Kind: KindBearingRange, BearingDeg: 0, RangeNM: 60, RelativeBearing: true}))
		c, _ := s.Get(RadarIDBase + 2)
		assert.InDelta(t, 0.0, c.Position.Lat, 0.0001)
		assert.InDelta(t, 1.0, c.Position.Lon, 0.01)
	})
}

func TestMergeFromExternalFeed(t *testing.T) {
	s, clock := newTestStore(t)
	require.NoError(t, s.Merge(Record{ID: 2, Kind: KindVelocity, SOG: 3}))

	created := s.MergeFromExternalFeed([]Summary{
		{
			ID:          1,
			Label:       "FEEDER",
			Position:    Position{Lat: 10, Lon: 20},
			SOG:         8,
			COG:         45,
			Heading:     44,
			Descriptor:  &Descriptor{Bow: 50, Stern: 10, Destination: "ROTTERDAM"},
			ReportedAge: 60 * time.Second,
		},
		{ID: 2, Position: Position{Lat: 11, Lon: 21}, SOG: 9, ReportedAge: -time.Second},
	})
	assert.Equal(t, 1, created)

	c, ok := s.Get(1)
	require.True(t, ok)
	assert.Equal(t, clock.Now().Add(-60*time.Second), c.LastUpdate)
	assert.Equal(t, "FEEDER", c.Label)
	assert.Equal(t, Position{Lat: 10, Lon: 20}, c.Position)
	assert.Equal(t, 44.0, c.Heading)
	require.NotNil(t, c.Descriptor)
	assert.Equal(t, "ROTTERDAM", c.Descriptor.Destination)

	c2, _ := s.Get(2)
	assert.Equal(t, clock.Now(), c2.LastUpdate)
	assert.Equal(t, 9.0, c2.SOG)
	assert.Nil(t, c2.Descriptor)

	assert.Equal(t, 0, s.MergeFromExternalFeed(nil))
}

func TestMergeFromExternalFeed_NoStaticData(t *testing.T) {
	s, _ := newTestStore(t)
	s.MergeFromExternalFeed([]Summary{{ID: 42, Position: Position{Lat: 1, Lon: 2}}})

	c, ok := s.Get(42)
	require.True(t, ok)
	assert.Nil(t, c.Descriptor)
	_, _, ok = c.Dimensions()
	assert.False(t, ok)
	_, ok = c.ShipType()
	assert.False(t, ok)
	assert.Zero(t, s.CacheLen())

	// A later summary without static data keeps what an earlier one reported.
	s.MergeFromExternalFeed([]Summary{{ID: 42, Descriptor: &Descriptor{Bow: 20, Stern: 5}}})
	s.MergeFromExternalFeed([]Summary{{ID: 42, Position: Position{Lat: 1.1, Lon: 2.1}}})

	c, _ = s.Get(42)
	require.NotNil(t, c.Descriptor)
	assert.Equal(t, 25, c.Descriptor.Length())
	assert.Equal(t, 1, s.CacheLen())
}

func TestMergeFromExternalFeed_AgesCorrectly(t *testing.T) {
	s, _ := newTestStore(t)
	s.MergeFromExternalFeed([]Summary{
		{ID: 1, ReportedAge: 10 * time.Minute},
		{ID: 2, ReportedAge: time.Minute},
	})

	assert.Equal(t, 1, s.Purge(5*time.Minute))
	_, ok := s.Get(2)
	assert.True(t, ok)
}

func TestPurge(t *testing.T) {
	tests := []struct {
		name    string
		elapsed time.Duration
		maxAge  time.Duration
		removed int
	}{
		{"younger than max age", 4 * time.Second, 5 * time.Second, 0},
		{"exactly max age is kept", 5 * time.Second, 5 * time.Second, 0},
		{"older than max age", 5*time.Second + time.Millisecond, 5 * time.Second, 1},
		{"zero disables", time.Hour, 0, 0},
		{"negative disables", time.Hour, -time.Second, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, clock := newTestStore(t)
			require.NoError(t, s.Merge(Record{ID: 42, Kind: KindPosition}))
			clock.Advance(tt.elapsed)

			assert.Equal(t, tt.removed, s.Purge(tt.maxAge))
			assert.Equal(t, 1-tt.removed, s.Len())
		})
	}
}

func TestPurge_KeepsLabelCache(t *testing.T) {
	s, clock := newTestStore(t)
	require.NoError(t, s.Merge(Record{ID: 7, Kind: KindDescriptor, Label: "CHARLIE"}))
	clock.Advance(time.Hour)
	require.Equal(t, 1, s.Purge(time.Minute))

	_, ok := s.CacheEntry(7)
	assert.True(t, ok)
	assert.Equal(t, "CHARLIE", s.Label(7))

	// A returning vessel picks its cached name back up.
	require.NoError(t, s.Merge(Record{ID: 7, Kind: KindPosition}))
	c, _ := s.Get(7)
	assert.Equal(t, "CHARLIE", c.Label)
}

func TestSnapshot_SortedCopy(t *testing.T) {
	s, _ := newTestStore(t)
	for _, id := range []int64{30, 10, 20} {
		require.NoError(t, s.Merge(Record{ID: id, Kind: KindDescriptor, Descriptor: &Descriptor{Bow: 1}}))
	}

	snap := s.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, []int64{10, 20, 30}, []int64{snap[0].ID, snap[1].ID, snap[2].ID})

	snap[0].Label = "MUTATED"
	snap[0].Descriptor.Bow = 99
	c, _ := s.Get(10)
	assert.Equal(t, "10", c.Label)
	assert.Equal(t, 1, c.Descriptor.Bow)
}

func TestSink(t *testing.T) {
	sink := &recordingSink{}
	s := NewStore(StoreDeps{Sink: sink})

	require.NoError(t, s.Merge(Record{ID: 1, Kind: KindPosition, Position: Position{Lat: 3, Lon: 4}}))
	s.MergeFromExternalFeed([]Summary{{ID: 2}, {ID: 3}})
	assert.Equal(t, 3, sink.count())
	assert.Equal(t, Position{Lat: 3, Lon: 4}, sink.updates[0].Position)

	// A failing sink never fails the merge.
	sink.err = fmt.Errorf("downstream unavailable")
	require.NoError(t, s.Merge(Record{ID: 1, Kind: KindVelocity, SOG: 1}))
	assert.Equal(t, 4, sink.count())

	// Nothing is pushed for a merge that was skipped.
	_ = s.MergeBearingRange(5, 0, 1)
	assert.Equal(t, 4, sink.count())

	s.SetSink(nil)
	require.NoError(t, s.Merge(Record{ID: 1, Kind: KindVelocity, SOG: 2}))
	assert.Equal(t, 4, sink.count())
}

func TestMultiSink(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{err: fmt.Errorf("b failed")}
	sink := MultiSink(a, nil, b)

	err := sink.Push(context.Background(), Contact{ID: 1})
	require.Error(t, err)
	assert.Equal(t, 1, a.count())
	assert.Equal(t, 1, b.count())

	assert.NoError(t, MultiSink().Push(context.Background(), Contact{}))
	assert.Same(t, a, MultiSink(nil, a))
}

// Concurrent merges for one id are serialized by the store mutex: every
// merge lands, and the final state is whichever merge ran last.
func TestMerge_ConcurrentSameID(t *testing.T) {
	s := NewStore(StoreDeps{})
	const workers, perWorker = 8, 200

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				if i%2 == 0 {
					_ = s.Merge(Record{ID: 1, Kind: KindPosition, Position: Position{Lat: float64(w), Lon: float64(i)}})
				} else {
					_ = s.Merge(Record{ID: 1, Kind: KindDescriptor, Label: fmt.Sprintf("W%d", w), Descriptor: &Descriptor{Bow: w + 1}})
				}
				_ = s.Snapshot()
			}
		}(w)
	}
	wg.Wait()

	require.Equal(t, 1, s.Len())
	c, _ := s.Get(1)
	require.NotNil(t, c.Descriptor)
	assert.Regexp(t, `^W\d$`, c.Label)
	assert.GreaterOrEqual(t, c.Descriptor.Bow, 1)
}

func TestStoreMetrics(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	s := NewStore(StoreDeps{MetricsRegistry: registry})
	m := registry.CoreMetrics()

	require.NoError(t, s.Merge(Record{ID: 1, Kind: KindPosition}))
	require.NoError(t, s.Merge(Record{ID: 2, Kind: KindDescriptor, Label: "X"}))
	s.MergeFromExternalFeed([]Summary{{ID: 3, ReportedAge: time.Hour}})

	assert.Equal(t, 3.0, testutil.ToFloat64(m.Contacts))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MergesTotal.WithLabelValues("position")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MergesTotal.WithLabelValues("descriptor")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MergesTotal.WithLabelValues("feed")))

	assert.Equal(t, 1, s.Purge(time.Minute))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PurgedTotal))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Contacts))
}

func TestNavStatusLabel(t *testing.T) {
	assert.Equal(t, "under way using engine", NavStatusLabel(0))
	assert.Equal(t, "moored", NavStatusLabel(5))
	assert.Equal(t, "ais-sart active", NavStatusLabel(14))
	for _, code := range []int{-1, 9, 13, 15, 16, 99} {
		assert.Equal(t, NavStatusUndefined, NavStatusLabel(code), "code %d", code)
	}
}
