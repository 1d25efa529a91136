// Package router connects transports to the contact store. Every line is
// classified, dispatched to one decoder through a table built at
// construction, merged, and then handed to the registered listeners.
package router

import (
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/seatrack/component"
	"github.com/c360/seatrack/contact"
	"github.com/c360/seatrack/metric"
	"github.com/c360/seatrack/processor"
	"github.com/c360/seatrack/processor/ais"
	"github.com/c360/seatrack/processor/nmea"
	"github.com/c360/seatrack/processor/parser"
	"github.com/c360/seatrack/processor/sentence"
)

// Route names, used as the dialect label in metrics and logs.
const (
	RoutePosition    = "position"
	RouteHeading     = "heading"
	RouteRadar       = "radar"
	RouteProprietary = "proprietary"
	RouteAIS         = "ais"
	RouteJSON        = "json"
	RouteCSV         = "csv"
)

// Listener receives every non-blank raw line, decoded or not. Listeners run
// synchronously on the ingest path.
type Listener func(line string)

// ListenerID identifies a registered listener.
type ListenerID uint64

type route struct {
	name    string
	decoder processor.Decoder
}

type listenerEntry struct {
	id ListenerID
	fn Listener
}

// Config configures the router.
type Config struct {
	// FragmentTimeout bounds how long partial AIS messages are kept.
	FragmentTimeout time.Duration
}

// Deps holds runtime dependencies for the router.
type Deps struct {
	Config          Config
	Store           *contact.Store
	MetricsRegistry *metric.MetricsRegistry // Metrics registry (can be nil)
	Logger          *slog.Logger            // Structured logger (can be nil)
}

// Router dispatches raw lines to decoders and merges the results.
type Router struct {
	store   *contact.Store
	logger  *slog.Logger
	metrics *metric.Metrics

	sentences map[string]route // by talker-independent sentence key
	talker    route            // talker sentences with no table entry
	json      route
	opaque    route

	mu        sync.Mutex
	nextID    ListenerID
	listeners atomic.Pointer[[]listenerEntry]

	startTime    time.Time
	lines        atomic.Int64
	bytes        atomic.Int64
	decodeErrors atomic.Int64
	mergeErrors  atomic.Int64
	lastActivity atomic.Value // time.Time

	now func() time.Time
}

var _ component.Discoverable = (*Router)(nil)

// New creates a router bound to deps.Store.
func New(deps Deps) *Router {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("component", "router")
	}

	position := route{RoutePosition, processor.DecoderFunc(nmea.DecodeOwnPosition)}
	heading := route{RouteHeading, processor.DecoderFunc(nmea.DecodeOwnHeading)}
	radar := route{RouteRadar, processor.DecoderFunc(nmea.DecodeRadarTarget)}

	r := &Router{
		store:   deps.Store,
		logger:  logger,
		metrics: deps.MetricsRegistry.CoreMetrics(),
		sentences: map[string]route{
			"GGA":  position,
			"RMC":  position,
			"GLL":  position,
			"HDT":  heading,
			"HDG":  heading,
			"VTG":  heading,
			"TTM":  radar,
			"TLL":  radar,
			"PTRK": {RouteProprietary, processor.DecoderFunc(nmea.DecodeProprietary)},
		},
		talker:    route{RouteAIS, ais.NewDecoder(deps.Config.FragmentTimeout)},
		json:      route{RouteJSON, parser.NewJSONParser()},
		opaque:    route{RouteCSV, parser.NewCSVParser()},
		startTime: time.Now(),
		now:       time.Now,
	}
	r.listeners.Store(&[]listenerEntry{})
	r.lastActivity.Store(time.Time{})
	return r
}

// routeFor returns the decoder for a classified line.
func (r *Router) routeFor(tag sentence.Tag) route {
	switch tag.Dialect {
	case sentence.Talker:
		if rt, ok := r.sentences[tag.Key()]; ok {
			return rt
		}
		return r.talker
	case sentence.JSON:
		return r.json
	default:
		return r.opaque
	}
}

// Ingest processes one raw line. Blank lines are dropped. Decode and merge
// failures are logged and counted; they never stop the stream, and the line
// still reaches every listener.
func (r *Router) Ingest(line string) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return
	}

	r.lines.Add(1)
	r.bytes.Add(int64(len(line)))
	r.lastActivity.Store(r.now())

	rt := r.routeFor(sentence.Classify(trimmed))
	if r.metrics != nil {
		r.metrics.LinesTotal.WithLabelValues(rt.name).Inc()
	}

	res, err := rt.decoder.Decode(trimmed)
	if err != nil {
		r.decodeErrors.Add(1)
		if r.metrics != nil {
			r.metrics.DecodeErrors.WithLabelValues(rt.name).Inc()
		}
		r.logger.Debug("Could not decode line", "route", rt.name, "line", trimmed, "error", err)
	} else {
		r.apply(rt.name, res)
	}

	r.fanOut(line)
}

// apply writes own-ship updates and merges records in order. The first
// failed merge skips the rest of the line.
func (r *Router) apply(routeName string, res processor.Result) {
	if res.OwnShip != nil {
		res.OwnShip.Apply(r.store.OwnShip(), r.now())
		if res.OwnShip.Position != nil && r.metrics != nil {
			r.metrics.OwnShipLastFix.Set(float64(r.now().Unix()))
		}
	}

	for _, rec := range res.Records {
		if err := r.store.Merge(rec); err != nil {
			r.mergeErrors.Add(1)
			r.logger.Debug("Skipped merge", "route", routeName, "id", rec.ID, "kind", rec.Kind, "error", err)
			return
		}
	}
}

func (r *Router) fanOut(line string) {
	listeners := *r.listeners.Load()
	for _, l := range listeners {
		l.fn(line)
	}
	if r.metrics != nil && len(listeners) > 0 {
		r.metrics.ListenerFans.Add(float64(len(listeners)))
	}
}

// AddListener registers fn and returns a handle for RemoveListener.
func (r *Router) AddListener(fn Listener) ListenerID {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	id := r.nextID

	current := *r.listeners.Load()
	next := make([]listenerEntry, len(current), len(current)+1)
	copy(next, current)
	next = append(next, listenerEntry{id: id, fn: fn})
	r.listeners.Store(&next)
	return id
}

// RemoveListener unregisters a listener. Unknown ids are ignored. It is safe
// to call from inside a listener.
func (r *Router) RemoveListener(id ListenerID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current := *r.listeners.Load()
	next := make([]listenerEntry, 0, len(current))
	for _, l := range current {
		if l.id != id {
			next = append(next, l)
		}
	}
	r.listeners.Store(&next)
}

// ListenerCount returns the number of registered listeners.
func (r *Router) ListenerCount() int {
	return len(*r.listeners.Load())
}

// Stats is a point-in-time count of router activity.
type Stats struct {
	Lines        int64 `json:"lines"`
	DecodeErrors int64 `json:"decode_errors"`
	MergeErrors  int64 `json:"merge_errors"`
}

// Stats returns the running totals.
func (r *Router) Stats() Stats {
	return Stats{
		Lines:        r.lines.Load(),
		DecodeErrors: r.decodeErrors.Load(),
		MergeErrors:  r.mergeErrors.Load(),
	}
}

// Meta returns the component metadata
func (r *Router) Meta() component.Metadata {
	return component.Metadata{
		Name:        "router",
		Type:        "processor",
		Description: "Classifies and decodes raw lines into contact updates",
		Version:     "1.0.0",
	}
}

// Health reports the router healthy; decode errors are expected input noise.
func (r *Router) Health() component.HealthStatus {
	return component.HealthStatus{
		Healthy:    true,
		LastCheck:  time.Now(),
		ErrorCount: int(r.decodeErrors.Load()),
		Uptime:     time.Since(r.startTime),
	}
}

// DataFlow returns the current data flow metrics
func (r *Router) DataFlow() component.FlowMetrics {
	last, _ := r.lastActivity.Load().(time.Time)
	return component.Rates(r.lines.Load(), r.bytes.Load(), r.decodeErrors.Load(), time.Since(r.startTime), last)
}
