package contact

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/c360/seatrack/errors"
	"github.com/c360/seatrack/metric"
)

// StoreConfig configures a Store.
type StoreConfig struct {
	// CacheFile is the label cache path. Empty keeps the cache in memory.
	CacheFile string
}

// StoreDeps holds runtime dependencies for a Store.
type StoreDeps struct {
	Config          StoreConfig
	Sink            Sink                    // Downstream sink (can be nil)
	MetricsRegistry *metric.MetricsRegistry // Metrics registry (can be nil)
	Logger          *slog.Logger            // Structured logger (can be nil)
}

// Store is the live contact table plus the persisted label cache.
type Store struct {
	mu       sync.Mutex
	contacts map[int64]*Contact
	cache    map[int64]*CacheEntry

	own       *OwnShip
	sink      Sink
	cacheFile string
	logger    *slog.Logger
	metrics   *metric.Metrics

	now func() time.Time
}

// NewStore creates an empty store. The label cache is not read until
// LoadCache is called.
func NewStore(deps StoreDeps) *Store {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("component", "contact-store")
	}

	sink := deps.Sink
	if sink == nil {
		sink = nopSink{}
	}

	return &Store{
		contacts:  make(map[int64]*Contact),
		cache:     make(map[int64]*CacheEntry),
		own:       &OwnShip{},
		sink:      sink,
		cacheFile: deps.Config.CacheFile,
		logger:    logger,
		metrics:   deps.MetricsRegistry.CoreMetrics(),
		now:       time.Now,
	}
}

// OwnShip returns the own-ship record.
func (s *Store) OwnShip() *OwnShip {
	return s.own
}

// SetSink replaces the downstream sink. A nil sink disables pushes.
func (s *Store) SetSink(sink Sink) {
	if sink == nil {
		sink = nopSink{}
	}
	s.mu.Lock()
	s.sink = sink
	s.mu.Unlock()
}

// Merge folds rec into the contact with rec.ID, creating it on first sight.
// Bearing/range records need an own-ship fix and fail with ErrNoOwnShipFix
// when none has arrived.
func (s *Store) Merge(rec Record) error {
	if rec.Kind < KindPosition || rec.Kind > KindDistress {
		return errors.WrapInvalid(fmt.Errorf("record kind %d", rec.Kind), "Store", "Merge", "check record kind")
	}
	now := s.now()

	var target Position
	if rec.Kind == KindBearingRange {
		p, err := s.resolveBearingRange(rec)
		if err != nil {
			return err
		}
		target = p
	}

	s.mu.Lock()
	c := s.getOrCreateLocked(rec.ID)
	switch rec.Kind {
	case KindPosition:
		c.Position = rec.Position
	case KindVelocity:
		applyVelocity(c, rec)
	case KindReport:
		c.Position = rec.Position
		applyVelocity(c, rec)
	case KindDescriptor:
		if rec.Descriptor != nil {
			if c.Descriptor == nil {
				c.Descriptor = &Descriptor{}
			}
			c.Descriptor.merge(*rec.Descriptor)
		}
	case KindBearingRange:
		c.Position = target
	case KindDistress:
		c.Alert = strings.TrimSpace(rec.Alert)
	}
	c.setLabel(rec.Label)
	if rec.NavStatus != "" {
		c.NavStatus = rec.NavStatus
	}
	c.LastUpdate = now

	if rec.Kind == KindDescriptor || rec.Label != "" {
		s.rememberLocked(c)
	}
	out := c.clone()
	sink := s.sink
	s.mu.Unlock()

	s.observeMerge(rec.Kind.String())
	s.push(sink, out)
	return nil
}

// MergeBearingRange places contact id at bearingDeg (true) and rangeNM from
// the current own-ship fix.
func (s *Store) MergeBearingRange(id int64, bearingDeg, rangeNM float64) error {
	return s.Merge(Record{
		ID:         id,
		Kind:       KindBearingRange,
		BearingDeg: bearingDeg,
		RangeNM:    rangeNM,
	})
}

// resolveBearingRange reads the own-ship fix once and projects rec from it.
func (s *Store) resolveBearingRange(rec Record) (Position, error) {
	fix, ok := s.own.Fix()
	if !ok {
		return Position{}, errors.WrapInvalid(errors.ErrNoOwnShipFix, "Store", "Merge",
			fmt.Sprintf("project contact %d", rec.ID))
	}

	bearing := rec.BearingDeg
	if rec.RelativeBearing {
		if !fix.HasHeading {
			return Position{}, errors.WrapInvalid(errors.ErrNoOwnShipFix, "Store", "Merge",
				fmt.Sprintf("relative bearing for contact %d without own heading", rec.ID))
		}
		bearing += fix.Heading
	}

	return Project(fix.Position, normalizeBearing(bearing), rec.RangeNM), nil
}

// MergeFromExternalFeed applies a polled batch. Each summary replaces the
// contact's kinematics in one step and merges its descriptor when the feed
// carried static data. LastUpdate is set to
// now minus the summary's reported age. Returns the number of contacts
// created.
func (s *Store) MergeFromExternalFeed(batch []Summary) int {
	if len(batch) == 0 {
		return 0
	}
	now := s.now()

	created := 0
	updated := make([]Contact, 0, len(batch))

	s.mu.Lock()
	for _, sum := range batch {
		if _, ok := s.contacts[sum.ID]; !ok {
			created++
		}
		c := s.getOrCreateLocked(sum.ID)
		c.Position = sum.Position
		c.SOG = sum.SOG
		c.COG = sum.COG
		c.Heading = sum.Heading
		if sum.NavStatus != "" {
			c.NavStatus = sum.NavStatus
		}
		if sum.Descriptor != nil {
			if c.Descriptor == nil {
				c.Descriptor = &Descriptor{}
			}
			c.Descriptor.merge(*sum.Descriptor)
		}
		c.setLabel(sum.Label)

		age := sum.ReportedAge
		if age < 0 {
			age = 0
		}
		c.LastUpdate = now.Add(-age)

		if sum.Descriptor != nil || sum.Label != "" {
			s.rememberLocked(c)
		}
		updated = append(updated, c.clone())
	}
	sink := s.sink
	s.mu.Unlock()

	for _, c := range updated {
		s.observeMerge("feed")
		s.push(sink, c)
	}
	return created
}

// Purge removes every contact not updated within maxAge and returns how many
// were removed. maxAge <= 0 disables purging. The label cache is kept.
func (s *Store) Purge(maxAge time.Duration) int {
	if maxAge <= 0 {
		return 0
	}
	now := s.now()

	s.mu.Lock()
	removed := 0
	for id, c := range s.contacts {
		if now.Sub(c.LastUpdate) > maxAge {
			delete(s.contacts, id)
			removed++
		}
	}
	remaining := len(s.contacts)
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.PurgedTotal.Add(float64(removed))
		s.metrics.Contacts.Set(float64(remaining))
	}
	if removed > 0 {
		s.logger.Debug("Purged stale contacts", "removed", removed, "remaining", remaining, "max_age", maxAge)
	}
	return removed
}

// Snapshot returns a copy of every live contact ordered by id.
func (s *Store) Snapshot() []Contact {
	s.mu.Lock()
	out := make([]Contact, 0, len(s.contacts))
	for _, c := range s.contacts {
		out = append(out, c.clone())
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Get returns a copy of one contact.
func (s *Store) Get(id int64) (Contact, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.contacts[id]
	if !ok {
		return Contact{}, false
	}
	return c.clone(), true
}

// Len returns the number of live contacts.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.contacts)
}

// Label returns the display name for id: the live contact's label, else the
// cached label, else the id itself.
func (s *Store) Label(id int64) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.contacts[id]; ok {
		return c.Label
	}
	if e, ok := s.cache[id]; ok && e.Label != "" {
		return e.Label
	}
	return newContact(id).Label
}

// getOrCreateLocked returns the live contact for id, creating it with the
// cached label when one is known. Callers hold s.mu.
func (s *Store) getOrCreateLocked(id int64) *Contact {
	if c, ok := s.contacts[id]; ok {
		return c
	}

	c := newContact(id)
	if e, ok := s.cache[id]; ok {
		c.setLabel(e.Label)
	}
	s.contacts[id] = c

	if s.metrics != nil {
		s.metrics.Contacts.Set(float64(len(s.contacts)))
	}
	return c
}

func applyVelocity(c *Contact, rec Record) {
	if rec.Missing&FieldSOG == 0 {
		c.SOG = rec.SOG
	}
	if rec.Missing&FieldCOG == 0 {
		c.COG = rec.COG
	}
	if rec.Missing&FieldROT == 0 {
		c.ROT = rec.ROT
	}
	if rec.HasHeading {
		c.Heading = rec.Heading
	}
}

func (s *Store) observeMerge(kind string) {
	if s.metrics != nil {
		s.metrics.MergesTotal.WithLabelValues(kind).Inc()
	}
}

func (s *Store) push(sink Sink, c Contact) {
	if err := sink.Push(context.Background(), c); err != nil {
		if s.metrics != nil {
			s.metrics.SinkFailures.Inc()
		}
		s.logger.Warn("Sink rejected contact update", "id", c.ID, "error", err)
	}
}
